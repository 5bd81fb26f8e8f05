package replicator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/fp"
	"github.com/tinoosan/dubsync/internal/metrics"
)

type outcome int

const (
	outcomeReplicated outcome = iota
	outcomeSkipped
	outcomeDeferred
	outcomeFailed
)

// RunOnce performs a single scan of the output directory and returns what it
// did. Per-file errors are logged and counted; they never abort the cycle.
func (e *Engine) RunOnce(ctx context.Context) events.Cycle {
	start := time.Now()
	var stats events.Cycle
	e.setState(StateScanning)
	defer e.setState(StateIdle)
	e.touch()

	cands, err := e.candidates()
	if err != nil {
		e.fail(StageList, e.outputDir, "", err)
		stats.Failed++
	}
	stats.Candidates = len(cands)
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		switch e.process(ctx, c) {
		case outcomeReplicated:
			stats.Replicated++
		case outcomeSkipped:
			stats.Skipped++
		case outcomeDeferred:
			stats.Deferred++
		case outcomeFailed:
			stats.Failed++
		}
		e.touch()
	}

	elapsed := time.Since(start)
	stats.DurationMS = elapsed.Milliseconds()
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if n, err := e.ledger.Len(ctx); err == nil {
		metrics.LedgerEntries.Set(float64(n))
	}
	e.lastCycle.Store(time.Now().UnixNano())
	e.touch()
	e.log.Debug("cycle done", "candidates", stats.Candidates, "replicated", stats.Replicated,
		"skipped", stats.Skipped, "deferred", stats.Deferred, "failed", stats.Failed, "duration", elapsed)
	c := stats
	e.report(events.Event{Type: events.TypeCycleDone, Cycle: &c})
	return stats
}

// candidates lists regular files directly under the output directory whose
// names match the pattern, sorted by name. Entries that vanish while listing
// are dropped silently.
func (e *Engine) candidates() ([]data.Candidate, error) {
	entries, err := os.ReadDir(e.outputDir)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}
	var out []data.Candidate
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(e.pattern, ent.Name()); !ok {
			continue
		}
		p := filepath.Join(e.outputDir, ent.Name())
		st, err := os.Stat(p)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		out = append(out, data.Candidate{Path: p, Name: ent.Name(), Size: st.Size(), ModTime: st.ModTime()})
	}
	return out, nil
}

func (e *Engine) process(ctx context.Context, c data.Candidate) outcome {
	log := e.log.With("path", c.Path)

	// Identities that need no stability window: path mode, or a digest we
	// already hashed for this exact inode, ctime, size and mtime.
	var id string
	if e.mode == fp.ModePath {
		id = fp.Identity(fp.ModePath, c.Path, "")
	} else if d, ok := e.digests.Get(cacheKey(c.Path, c.Size, c.ModTime, changeStamp(c.Path))); ok {
		id = fp.Identity(e.mode, c.Path, d)
	}
	if id != "" {
		done, err := e.ledger.AlreadyReplicated(ctx, id)
		if err != nil {
			e.fail(StageLedger, c.Path, id, err)
			return outcomeFailed
		}
		if done {
			e.setState(StateSkipping)
			return outcomeSkipped
		}
	}

	e.setState(StateProbing)
	info, stable := e.probe.Observe(ctx, c.Path)
	if !stable {
		log.Debug("not stable yet")
		e.report(events.Event{Type: events.TypeDeferred, Path: c.Path})
		return outcomeDeferred
	}

	var digest string
	if e.mode == fp.ModeContent {
		// Stamp before hashing: a write that lands during the hash moves the
		// ctime, so the stale digest is never found again.
		stamp := changeStamp(c.Path)
		d, _, err := fp.FileDigest(c.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return e.deferVanished(c.Path)
			}
			e.fail(StageDigest, c.Path, "", err)
			return outcomeFailed
		}
		digest = d
		e.digests.Add(cacheKey(c.Path, info.Size(), info.ModTime(), stamp), digest)
		id = fp.Identity(e.mode, c.Path, digest)
		done, err := e.ledger.AlreadyReplicated(ctx, id)
		if err != nil {
			e.fail(StageLedger, c.Path, id, err)
			return outcomeFailed
		}
		if done {
			e.setState(StateSkipping)
			return outcomeSkipped
		}
	}

	e.setState(StateCopying)
	dst := filepath.Join(e.backupDir, c.Name)
	copied, n, err := copyFile(c.Path, dst)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !exists(c.Path) {
			return e.deferVanished(c.Path)
		}
		e.fail(StageCopy, c.Path, id, err)
		return outcomeFailed
	}
	if n != info.Size() || (digest != "" && copied != digest) {
		log.Warn("file changed during copy, will retry", "size", info.Size(), "copied", n)
		e.report(events.Event{Type: events.TypeDeferred, Path: c.Path, Identity: id})
		return outcomeDeferred
	}

	rec := data.ReplicationRecord{
		Identity:     id,
		SourcePath:   c.Path,
		BackupPath:   dst,
		Digest:       copied,
		Size:         n,
		ReplicatedAt: time.Now().UTC(),
	}
	if err := e.ledger.MarkReplicated(ctx, rec); err != nil {
		e.fail(StageLedger, c.Path, id, err)
		return outcomeFailed
	}
	metrics.ReplicatedFiles.Inc()
	log.Info("replicated", "backup", dst, "size", n, "identity", id)
	e.report(events.Event{Type: events.TypeReplicated, Path: c.Path, Identity: id})
	return outcomeReplicated
}

func (e *Engine) deferVanished(path string) outcome {
	e.log.Debug("file vanished", "path", path)
	e.report(events.Event{Type: events.TypeDeferred, Path: path})
	return outcomeDeferred
}

func (e *Engine) fail(stage Stage, path, id string, err error) {
	metrics.ReplicationErrors.WithLabelValues(string(stage)).Inc()
	e.log.Error("replication error", "stage", stage, "path", path, "err", err)
	e.report(events.Event{Type: events.TypeFailed, Path: path, Identity: id, Stage: string(stage), Err: err.Error()})
}

func (e *Engine) report(ev events.Event) {
	if e.rep == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.rep.Report(ev)
}

func cacheKey(path string, size int64, mod time.Time, stamp string) string {
	return fmt.Sprintf("%s|%d|%d|%s", path, size, mod.UnixNano(), stamp)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
