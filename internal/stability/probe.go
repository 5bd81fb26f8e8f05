// Package stability decides whether a file has finished being written by
// watching its size over a fixed observation window.
package stability

import (
	"context"
	"os"
	"time"
)

const (
	DefaultWindow  = 3 * time.Second
	DefaultSamples = 1
)

// Probe is a heuristic "writer has finished" check. A writer that pauses for
// exactly the window and then resumes will be reported as stable.
type Probe struct {
	window  time.Duration
	samples int
}

// New creates a Probe. Non-positive values fall back to the defaults.
func New(window time.Duration, samples int) *Probe {
	if window <= 0 {
		window = DefaultWindow
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Probe{window: window, samples: samples}
}

// Window returns the observation window of a single sample.
func (p *Probe) Window() time.Duration { return p.window }

// IsStable reports whether path still exists and its size did not change
// across the observation window(s). It never returns an error: a missing or
// vanished file is simply not stable.
func (p *Probe) IsStable(ctx context.Context, path string) bool {
	_, ok := p.Observe(ctx, path)
	return ok
}

// Observe is IsStable that also returns the last stat taken, so callers can
// reuse it without another syscall.
func (p *Probe) Observe(ctx context.Context, path string) (os.FileInfo, bool) {
	prev, err := os.Stat(path)
	if err != nil || !prev.Mode().IsRegular() {
		return nil, false
	}
	for i := 0; i < p.samples; i++ {
		if !wait(ctx, p.window) {
			return nil, false
		}
		cur, err := os.Stat(path)
		if err != nil {
			return nil, false
		}
		if cur.Size() != prev.Size() || !cur.ModTime().Equal(prev.ModTime()) {
			return cur, false
		}
		prev = cur
	}
	return prev, true
}

func wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
