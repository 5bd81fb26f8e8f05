package replicator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/fp"
	"github.com/tinoosan/dubsync/internal/ledger"
	"github.com/tinoosan/dubsync/internal/metrics"
	"github.com/tinoosan/dubsync/internal/stability"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// instantProbe treats every existing regular file as stable.
type instantProbe struct{}

func (instantProbe) Observe(ctx context.Context, path string) (os.FileInfo, bool) {
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return nil, false
	}
	return st, true
}

type funcProbe func(ctx context.Context, path string) (os.FileInfo, bool)

func (f funcProbe) Observe(ctx context.Context, path string) (os.FileInfo, bool) { return f(ctx, path) }

type dirs struct{ out, backup string }

func newDirs(t *testing.T) dirs {
	t.Helper()
	root := t.TempDir()
	d := dirs{out: filepath.Join(root, "outputs"), backup: filepath.Join(root, "archive")}
	for _, p := range []string{d.out, d.backup} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return d
}

func newEngine(t *testing.T, d dirs, mutate func(*Options)) (*Engine, *ledger.InMemory) {
	t.Helper()
	l := ledger.NewInMemory()
	opts := Options{
		OutputDir:    d.out,
		BackupDir:    d.backup,
		PollInterval: time.Hour,
		Probe:        instantProbe{},
		Ledger:       l,
		Logger:       discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e, l
}

func write(t *testing.T, p string, b []byte) {
	t.Helper()
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func ledgerLen(t *testing.T, l ledger.Reader) int {
	t.Helper()
	n, err := l.Len(context.Background())
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	return n
}

func TestNew_RejectsSameDirectories(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{OutputDir: dir, BackupDir: dir + "/", Ledger: ledger.NewInMemory()})
	if err == nil {
		t.Fatalf("expected error for identical directories")
	}
}

func TestNew_RejectsBadPattern(t *testing.T) {
	d := newDirs(t)
	_, err := New(Options{OutputDir: d.out, BackupDir: d.backup, Pattern: "[", Ledger: ledger.NewInMemory()})
	if err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
}

func TestRunOnce_CopiesAtMostOnce(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, nil)
	src := filepath.Join(d.out, "output_file_1.mp4")
	payload := bytes.Repeat([]byte("a"), 100)
	write(t, src, payload)

	before := testutil.ToFloat64(metrics.ReplicatedFiles)
	first := e.RunOnce(context.Background())
	if first.Candidates != 1 || first.Replicated != 1 {
		t.Fatalf("first cycle = %+v", first)
	}
	got, err := os.ReadFile(filepath.Join(d.backup, "output_file_1.mp4"))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("backup differs from source")
	}

	for i := 0; i < 3; i++ {
		s := e.RunOnce(context.Background())
		if s.Replicated != 0 || s.Skipped != 1 {
			t.Fatalf("cycle %d = %+v", i+2, s)
		}
	}
	if n := ledgerLen(t, l); n != 1 {
		t.Fatalf("ledger len = %d", n)
	}
	if delta := testutil.ToFloat64(metrics.ReplicatedFiles) - before; delta != 1 {
		t.Fatalf("replicated counter delta = %v", delta)
	}
}

func TestRunOnce_SkipsWithoutProbingOnceCached(t *testing.T) {
	d := newDirs(t)
	probes := 0
	e, _ := newEngine(t, d, func(o *Options) {
		o.Probe = funcProbe(func(ctx context.Context, p string) (os.FileInfo, bool) {
			probes++
			return instantProbe{}.Observe(ctx, p)
		})
	})
	write(t, filepath.Join(d.out, "output_file_1.mp4"), []byte("x"))

	e.RunOnce(context.Background())
	e.RunOnce(context.Background())
	if probes != 1 {
		t.Fatalf("probes = %d, want 1", probes)
	}
}

func TestRunOnce_OverwritesExistingBackup(t *testing.T) {
	d := newDirs(t)
	e, _ := newEngine(t, d, nil)
	payload := []byte("fresh render")
	write(t, filepath.Join(d.out, "output_file_2.wav"), payload)
	write(t, filepath.Join(d.backup, "output_file_2.wav"), []byte("stale and much longer content"))

	if s := e.RunOnce(context.Background()); s.Replicated != 1 {
		t.Fatalf("cycle = %+v", s)
	}
	got, _ := os.ReadFile(filepath.Join(d.backup, "output_file_2.wav"))
	if !bytes.Equal(got, payload) {
		t.Fatalf("backup = %q, want %q", got, payload)
	}
	ents, _ := os.ReadDir(d.backup)
	if len(ents) != 1 {
		t.Fatalf("backup dir has %d entries, want 1 (temp file leaked?)", len(ents))
	}
}

func TestRunOnce_PreservesModeAndModTime(t *testing.T) {
	d := newDirs(t)
	e, _ := newEngine(t, d, nil)
	src := filepath.Join(d.out, "output_file_3.mp4")
	write(t, src, []byte("data"))
	if err := os.Chmod(src, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	mt := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, mt, mt); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	e.RunOnce(context.Background())
	st, err := os.Stat(filepath.Join(d.backup, "output_file_3.mp4"))
	if err != nil {
		t.Fatalf("stat backup: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", st.Mode().Perm())
	}
	if !st.ModTime().Equal(mt) {
		t.Fatalf("mtime = %v, want %v", st.ModTime(), mt)
	}
}

func TestRunOnce_IgnoresNonMatchingEntries(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, nil)
	write(t, filepath.Join(d.out, "notes.txt"), []byte("n"))
	write(t, filepath.Join(d.out, "output_file_noext"), []byte("n"))
	if err := os.Mkdir(filepath.Join(d.out, "output_file_dir.d"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if s := e.RunOnce(context.Background()); s.Candidates != 0 {
		t.Fatalf("cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 0 {
		t.Fatalf("ledger len = %d", n)
	}
}

func TestRunOnce_FileDeletedBeforeProbe(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, func(o *Options) {
		probe := stability.New(10*time.Millisecond, 1)
		o.Probe = funcProbe(func(ctx context.Context, p string) (os.FileInfo, bool) {
			_ = os.Remove(p)
			return probe.Observe(ctx, p)
		})
	})
	write(t, filepath.Join(d.out, "output_file_1.mp4"), []byte("gone soon"))

	s := e.RunOnce(context.Background())
	if s.Deferred != 1 || s.Failed != 0 || s.Replicated != 0 {
		t.Fatalf("cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 0 {
		t.Fatalf("ledger len = %d", n)
	}
	if _, err := os.Stat(filepath.Join(d.backup, "output_file_1.mp4")); !os.IsNotExist(err) {
		t.Fatalf("backup should not exist, stat err = %v", err)
	}
}

func TestRunOnce_UnstableIsDeferredThenReplicated(t *testing.T) {
	d := newDirs(t)
	stable := false
	e, l := newEngine(t, d, func(o *Options) {
		o.Probe = funcProbe(func(ctx context.Context, p string) (os.FileInfo, bool) {
			st, _ := os.Stat(p)
			return st, stable
		})
	})
	write(t, filepath.Join(d.out, "output_file_1.mp4"), []byte("partial"))

	if s := e.RunOnce(context.Background()); s.Deferred != 1 {
		t.Fatalf("first cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 0 {
		t.Fatalf("ledger len = %d", n)
	}
	stable = true
	if s := e.RunOnce(context.Background()); s.Replicated != 1 {
		t.Fatalf("second cycle = %+v", s)
	}
}

func TestRunOnce_ContentIdentityReplicatesNewContent(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, nil)
	src := filepath.Join(d.out, "output_file_1.mp4")
	write(t, src, []byte("take one"))
	e.RunOnce(context.Background())

	write(t, src, []byte("take two, longer"))
	if s := e.RunOnce(context.Background()); s.Replicated != 1 {
		t.Fatalf("cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 2 {
		t.Fatalf("ledger len = %d", n)
	}
	got, _ := os.ReadFile(filepath.Join(d.backup, "output_file_1.mp4"))
	if string(got) != "take two, longer" {
		t.Fatalf("backup = %q", got)
	}
}

func TestRunOnce_SameSizeRewriteWithPinnedMtime(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, nil)
	src := filepath.Join(d.out, "output_file_1.mp4")
	mt := time.Now().Add(-time.Hour).Truncate(time.Second)
	put := func(b byte) {
		write(t, src, bytes.Repeat([]byte{b}, 100))
		if err := os.Chtimes(src, mt, mt); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	put('a')
	if changeStamp(src) == "" {
		t.Skip("no inode/ctime on this platform")
	}
	if s := e.RunOnce(context.Background()); s.Replicated != 1 {
		t.Fatalf("first cycle = %+v", s)
	}

	// ctime has clock-tick granularity.
	time.Sleep(50 * time.Millisecond)
	put('b')
	if s := e.RunOnce(context.Background()); s.Replicated != 1 || s.Skipped != 0 {
		t.Fatalf("second cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 2 {
		t.Fatalf("ledger len = %d", n)
	}
	got, _ := os.ReadFile(filepath.Join(d.backup, "output_file_1.mp4"))
	if !bytes.Equal(got, bytes.Repeat([]byte("b"), 100)) {
		t.Fatalf("backup = %q", got)
	}
}

func TestRunOnce_PathIdentityIgnoresRewrites(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, func(o *Options) { o.IdentityMode = fp.ModePath })
	src := filepath.Join(d.out, "output_file_1.mp4")
	write(t, src, []byte("take one"))
	e.RunOnce(context.Background())

	write(t, src, []byte("take two, longer"))
	if s := e.RunOnce(context.Background()); s.Skipped != 1 || s.Replicated != 0 {
		t.Fatalf("cycle = %+v", s)
	}
	if n := ledgerLen(t, l); n != 1 {
		t.Fatalf("ledger len = %d", n)
	}
	got, _ := os.ReadFile(filepath.Join(d.backup, "output_file_1.mp4"))
	if string(got) != "take one" {
		t.Fatalf("backup = %q", got)
	}
}

type brokenLedger struct{ *ledger.InMemory }

func (*brokenLedger) AlreadyReplicated(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestRunOnce_LedgerErrorIsCountedNotFatal(t *testing.T) {
	d := newDirs(t)
	ch := make(chan events.Event, 8)
	bl := &brokenLedger{InMemory: ledger.NewInMemory()}
	e, _ := newEngine(t, d, func(o *Options) {
		o.Ledger = bl
		o.Reporter = events.NewChanReporter(ch)
	})
	write(t, filepath.Join(d.out, "output_file_1.mp4"), []byte("x"))
	write(t, filepath.Join(d.out, "output_file_2.mp4"), []byte("y"))

	before := testutil.ToFloat64(metrics.ReplicationErrors.WithLabelValues(string(StageLedger)))
	s := e.RunOnce(context.Background())
	if s.Failed != 2 || s.Candidates != 2 {
		t.Fatalf("cycle = %+v", s)
	}
	if delta := testutil.ToFloat64(metrics.ReplicationErrors.WithLabelValues(string(StageLedger))) - before; delta != 2 {
		t.Fatalf("error counter delta = %v", delta)
	}
	ev := <-ch
	if ev.Type != events.TypeFailed || ev.Stage != string(StageLedger) || ev.Err == "" {
		t.Fatalf("event = %+v", ev)
	}
	if e.State() != StateIdle {
		t.Fatalf("state = %v", e.State())
	}
}

func TestRunOnce_ReportsEvents(t *testing.T) {
	d := newDirs(t)
	ch := make(chan events.Event, 8)
	e, _ := newEngine(t, d, func(o *Options) { o.Reporter = events.NewChanReporter(ch) })
	write(t, filepath.Join(d.out, "output_file_1.mp4"), []byte("x"))

	e.RunOnce(context.Background())
	ev := <-ch
	if ev.Type != events.TypeReplicated || ev.Identity == "" || ev.At.IsZero() {
		t.Fatalf("first event = %+v", ev)
	}
	ev = <-ch
	if ev.Type != events.TypeCycleDone || ev.Cycle == nil || ev.Cycle.Replicated != 1 {
		t.Fatalf("second event = %+v", ev)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, func(o *Options) {
		o.PollInterval = time.Second
		o.Probe = stability.New(time.Second, 1)
	})
	payload := bytes.Repeat([]byte{0x5a}, 100)
	write(t, filepath.Join(d.out, "output_file_1.mp4"), payload)

	e.Run(context.Background())
	e.Run(context.Background()) // no-op
	defer e.Stop()

	dst := filepath.Join(d.backup, "output_file_1.mp4")
	deadline := time.Now().Add(3 * time.Second)
	for {
		if got, err := os.ReadFile(dst); err == nil && bytes.Equal(got, payload) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("backup not replicated within 3s")
		}
		time.Sleep(50 * time.Millisecond)
	}
	// Let another cycle pass; the file must not be recorded twice.
	time.Sleep(1500 * time.Millisecond)
	if n := ledgerLen(t, l); n != 1 {
		t.Fatalf("ledger len = %d", n)
	}
	if e.LastCycle().IsZero() {
		t.Fatalf("last cycle not recorded")
	}
}

func TestRun_WatcherWakesLoop(t *testing.T) {
	d := newDirs(t)
	e, l := newEngine(t, d, func(o *Options) { o.Watch = true })
	e.Run(context.Background())
	defer e.Stop()

	// The first cycle runs immediately on an empty dir; after that only the
	// watcher can trigger a scan before the hour-long poll.
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(d.out, "output_file_9.mp4"), []byte("late"))

	deadline := time.Now().Add(3 * time.Second)
	for ledgerLen(t, l) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("watcher did not wake the loop")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	d := newDirs(t)
	e, _ := newEngine(t, d, nil)
	e.Stop()
	e.Run(context.Background())
	e.Stop()
	e.Stop()
}

// lockedBuffer lets the worker goroutine and the test share a log sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun_RestartUsesFreshOperationID(t *testing.T) {
	d := newDirs(t)
	var out lockedBuffer
	e, _ := newEngine(t, d, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(&out, nil))
	})
	for i := 0; i < 3; i++ {
		e.Run(context.Background())
		e.Stop()
	}

	var ids []string
	for _, line := range strings.Split(out.String(), "\n") {
		if !strings.Contains(line, "sync engine started") {
			continue
		}
		if n := strings.Count(line, "operation_id="); n != 1 {
			t.Fatalf("operation_id appears %d times: %s", n, line)
		}
		ids = append(ids, line[strings.Index(line, "operation_id="):])
	}
	if len(ids) != 3 {
		t.Fatalf("started %d times, want 3", len(ids))
	}
	if ids[0] == ids[1] || ids[1] == ids[2] {
		t.Fatalf("operation ids repeat: %q", ids)
	}
}

func TestLastProgress_AdvancesDuringCycle(t *testing.T) {
	d := newDirs(t)
	var seen []time.Time
	var e *Engine
	e, _ = newEngine(t, d, func(o *Options) {
		o.Probe = funcProbe(func(ctx context.Context, p string) (os.FileInfo, bool) {
			seen = append(seen, e.LastProgress())
			time.Sleep(20 * time.Millisecond)
			return instantProbe{}.Observe(ctx, p)
		})
	})
	if !e.LastProgress().IsZero() {
		t.Fatalf("progress before any cycle")
	}
	for i := 1; i <= 3; i++ {
		write(t, filepath.Join(d.out, fmt.Sprintf("output_file_%d.mp4", i)), []byte{byte(i)})
	}

	e.RunOnce(context.Background())
	if len(seen) != 3 {
		t.Fatalf("probed %d files", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i].After(seen[i-1]) {
			t.Fatalf("progress did not advance between candidates: %v", seen)
		}
	}
	if !e.LastProgress().After(seen[2]) || e.LastProgress().Before(e.LastCycle()) {
		t.Fatalf("progress %v, last probe %v, cycle %v", e.LastProgress(), seen[2], e.LastCycle())
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle: "Idle", StateScanning: "Scanning", StateProbing: "Probing",
		StateCopying: "Copying", StateSkipping: "Skipping", State(42): "Unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestCopyFile_ReturnsDigest(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	write(t, src, []byte("hello"))
	digest, n, err := copyFile(src, filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	want, _, _ := fp.FileDigest(src)
	if digest != want || n != 5 {
		t.Fatalf("digest=%s n=%d, want %s 5", digest, n, want)
	}
}

var _ ledger.Ledger = (*brokenLedger)(nil)
