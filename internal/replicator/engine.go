// Package replicator copies finished output files into the backup directory
// exactly once per identity.
package replicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tinoosan/dubsync/internal/events"
	"github.com/tinoosan/dubsync/internal/fp"
	"github.com/tinoosan/dubsync/internal/ledger"
	"github.com/tinoosan/dubsync/internal/stability"
)

const (
	DefaultPollInterval    = 10 * time.Second
	DefaultPattern         = "output_file_*.*"
	DefaultDigestCacheSize = 1024
	watchDebounce          = 500 * time.Millisecond
)

// Prober reports whether a file has stopped changing. *stability.Probe
// satisfies it.
type Prober interface {
	Observe(ctx context.Context, path string) (os.FileInfo, bool)
}

// Options configures an Engine. OutputDir, BackupDir and Ledger are required.
type Options struct {
	OutputDir       string
	BackupDir       string
	Pattern         string
	PollInterval    time.Duration
	Watch           bool
	IdentityMode    fp.Mode
	DigestCacheSize int
	Probe           Prober
	Ledger          ledger.Ledger
	Reporter        events.Reporter
	Logger          *slog.Logger
}

// Engine scans the output directory on a fixed interval and replicates every
// stable candidate whose identity is not yet in the ledger. All ledger
// check-copy-mark sequences run on the single worker goroutine.
type Engine struct {
	outputDir string
	backupDir string
	pattern   string
	poll      time.Duration
	watch     bool
	mode      fp.Mode
	probe     Prober
	ledger    ledger.Ledger
	rep       events.Reporter
	base      *slog.Logger
	log       *slog.Logger
	digests   *lru.Cache[string, string]

	state     atomic.Int32
	lastCycle atomic.Int64
	progress  atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	watcher *wakeWatcher
	wg      sync.WaitGroup
}

// New validates opts and builds an Engine. It does not start anything.
func New(opts Options) (*Engine, error) {
	if opts.OutputDir == "" || opts.BackupDir == "" {
		return nil, errors.New("replicator: output and backup directories are required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("replicator: ledger is required")
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("replicator: output dir: %w", err)
	}
	backup, err := filepath.Abs(opts.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("replicator: backup dir: %w", err)
	}
	if out == backup {
		return nil, fmt.Errorf("replicator: output and backup directories are the same: %s", out)
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return nil, fmt.Errorf("replicator: pattern %q: %w", opts.Pattern, err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.IdentityMode == "" {
		opts.IdentityMode = fp.ModeContent
	}
	if opts.DigestCacheSize <= 0 {
		opts.DigestCacheSize = DefaultDigestCacheSize
	}
	if opts.Probe == nil {
		opts.Probe = stability.New(stability.DefaultWindow, stability.DefaultSamples)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cache, err := lru.New[string, string](opts.DigestCacheSize)
	if err != nil {
		return nil, fmt.Errorf("replicator: digest cache: %w", err)
	}
	return &Engine{
		outputDir: out,
		backupDir: backup,
		pattern:   opts.Pattern,
		poll:      opts.PollInterval,
		watch:     opts.Watch,
		mode:      opts.IdentityMode,
		probe:     opts.Probe,
		ledger:    opts.Ledger,
		rep:       opts.Reporter,
		base:      opts.Logger,
		log:       opts.Logger,
		digests:   cache,
	}, nil
}

// Run starts the scan loop in its own goroutine. It returns immediately; a
// second call while running is a no-op.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	ctx, e.cancel = context.WithCancel(ctx)
	// Tag this run with a stable operation_id for easier correlation.
	e.log = e.base.With("operation_id", uuid.NewString())

	wake := make(chan struct{}, 1)
	if e.watch {
		w, err := startWatcher(e.outputDir, e.pattern, watchDebounce, wake, e.log)
		if err != nil {
			e.log.Warn("watcher unavailable, polling only", "dir", e.outputDir, "err", err)
		} else {
			e.watcher = w
		}
	}

	e.log.Info("sync engine started", "output", e.outputDir, "backup", e.backupDir,
		"pattern", e.pattern, "poll", e.poll, "identity", e.mode)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop(ctx, wake)
	}()
}

// Stop cancels the loop and waits for the in-flight cycle to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	w := e.watcher
	e.watcher = nil
	log := e.log
	e.mu.Unlock()

	if w != nil {
		w.close()
	}
	e.wg.Wait()
	log.Info("sync engine stopped")
}

// State returns where the engine currently is in its cycle.
func (e *Engine) State() State { return State(e.state.Load()) }

// LastCycle returns when the most recent cycle finished, or the zero time.
func (e *Engine) LastCycle() time.Time {
	n := e.lastCycle.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// LastProgress returns when the engine last started a cycle, finished a
// candidate or finished a cycle. It keeps advancing through long cycles, so
// it is the liveness signal for readiness checks.
func (e *Engine) LastProgress() time.Time {
	n := e.progress.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (e *Engine) touch() { e.progress.Store(time.Now().UnixNano()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

func (e *Engine) loop(ctx context.Context, wake <-chan struct{}) {
	for {
		e.safeCycle(ctx)
		timer := time.NewTimer(e.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}
	}
}

func (e *Engine) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.setState(StateIdle)
			e.log.Error("sync cycle panic", "panic", r)
			e.fail(StagePanic, "", "", fmt.Errorf("panic: %v", r))
		}
	}()
	e.RunOnce(ctx)
}
