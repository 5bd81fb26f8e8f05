// Package ytdlp fetches media through yt-dlp (or a compatible tool) and
// resolves the file it wrote.
package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"

	"github.com/tinoosan/dubsync/internal/data"
	"github.com/tinoosan/dubsync/internal/downloader"
)

const (
	DefaultTool        = "yt-dlp"
	DefaultMergeFormat = "mp4"
	DefaultTimeout     = 10 * time.Minute
)

// partial suffixes written by the tool while a download is in flight.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// Lines in the tool's progress output that name the file on disk. Later
// lines supersede earlier ones: a merge or move follows the downloads.
var outputPathLines = []*regexp.Regexp{
	regexp.MustCompile(`^\[download\] Destination: (.+)$`),
	regexp.MustCompile(`^\[download\] (.+) has already been downloaded$`),
	regexp.MustCompile(`^\[Merger\] Merging formats into "(.+)"$`),
	regexp.MustCompile(`^\[MoveFiles\] Moving file ".+" to "(.+)"$`),
}

// Config describes how to invoke the tool.
type Config struct {
	Tool         string
	Args         []string
	DownloadsDir string
	MergeFormat  string
	Timeout      time.Duration
}

// Adapter implements downloader.Fetcher on top of an external tool.
type Adapter struct {
	tool    string
	args    []string
	dir     string
	format  string
	timeout time.Duration
	log     *slog.Logger
}

var _ downloader.TokenFetcher = (*Adapter)(nil)

// NewAdapter creates an Adapter. Zero values in cfg fall back to defaults.
func NewAdapter(cfg Config) *Adapter {
	a := &Adapter{
		tool:    cfg.Tool,
		args:    append([]string(nil), cfg.Args...),
		dir:     cfg.DownloadsDir,
		format:  cfg.MergeFormat,
		timeout: cfg.Timeout,
		log:     slog.Default(),
	}
	if a.tool == "" {
		a.tool = DefaultTool
	}
	if a.format == "" {
		a.format = DefaultMergeFormat
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	return a
}

// SetLogger allows wiring a shared application logger into the adapter.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l != nil {
		a.log = l
	}
}

// Fetch downloads url under a fresh token.
func (a *Adapter) Fetch(ctx context.Context, url string) data.FetchResult {
	return a.FetchWithToken(ctx, url, "")
}

// FetchWithToken downloads url and tags the output file name with token. An
// empty token is replaced with a random one.
func (a *Adapter) FetchWithToken(ctx context.Context, url, token string) (res data.FetchResult) {
	start := time.Now()
	if token == "" {
		token = uuid.NewString()
	}
	res = data.FetchResult{URL: url, Token: token, StartedAt: start}
	if strings.TrimSpace(url) == "" {
		res.Err = data.ErrEmptyURL
		return res
	}
	defer func() { res.Duration = time.Since(start) }()
	log := a.log.With("url", url, "token", token)

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	log.Info("fetch started", "tool", a.tool)
	out, err := a.command(token).Run(runCtx, append(append([]string(nil), a.args...), url)...)
	switch {
	case runCtx.Err() != nil:
		res.ExitCode = -1
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.Err = fmt.Errorf("%w: timed out after %s", data.ErrToolFailed, a.timeout)
		} else {
			res.Err = fmt.Errorf("%w: %w", data.ErrToolFailed, runCtx.Err())
		}
		log.Warn("fetch aborted", "err", res.Err)
		return res
	case err != nil:
		res.ExitCode = -1
		if out != nil && out.ExitCode > 0 {
			res.ExitCode = out.ExitCode
			res.Err = fmt.Errorf("%w: exit %d: %s", data.ErrToolFailed, out.ExitCode, lastLine(out.Stderr))
		} else {
			res.Err = fmt.Errorf("%w: %w", data.ErrToolFailed, err)
		}
		log.Warn("fetch failed", "exit_code", res.ExitCode, "err", res.Err)
		return res
	}

	reported := ""
	if out != nil {
		reported = a.reportedPath(out.Stdout)
	}
	p, err := a.resolve(reported, token, start)
	if err != nil {
		res.Err = err
		log.Warn("fetch produced no file", "dir", a.dir)
		return res
	}
	res.Path = p
	log.Info("fetch done", "path", p, "duration", time.Since(start))
	return res
}

// command builds the tool invocation. The output template puts token first
// so the file can be found even when the tool reports nothing.
func (a *Adapter) command(token string) *ytdlp.Command {
	return ytdlp.New().
		NoPlaylist().
		MergeOutputFormat(a.format).
		Output(filepath.Join(a.dir, token+"_%(title).70s.%(ext)s")).
		SetExecutable(a.tool).
		SetWorkDir(a.dir)
}

// reportedPath returns the last file the tool said it wrote, if any.
func (a *Adapter) reportedPath(stdout string) string {
	var found string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		for _, re := range outputPathLines {
			if m := re.FindStringSubmatch(line); m != nil {
				found = m[1]
				break
			}
		}
	}
	if found != "" && !filepath.IsAbs(found) {
		found = filepath.Join(a.dir, found)
	}
	return found
}

// resolve picks the file the tool produced. A path the tool reported wins if
// it exists, then a token-prefixed name, then the newest file written since
// start for tools that ignore the output template.
func (a *Adapter) resolve(reported, token string, start time.Time) (string, error) {
	if reported != "" && !isPartial(reported) {
		if st, err := os.Stat(reported); err == nil && st.Mode().IsRegular() {
			return reported, nil
		}
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", data.ErrNoArtifact, err)
	}
	since := start.Truncate(time.Second)
	var (
		tagged, recent       string
		taggedMod, recentMod time.Time
	)
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || isPartial(name) {
			continue
		}
		info, err := ent.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mod := info.ModTime()
		if strings.HasPrefix(name, token+"_") {
			if tagged == "" || mod.After(taggedMod) {
				tagged, taggedMod = name, mod
			}
			continue
		}
		if !mod.Before(since) && (recent == "" || mod.After(recentMod)) {
			recent, recentMod = name, mod
		}
	}
	switch {
	case tagged != "":
		return filepath.Join(a.dir, tagged), nil
	case recent != "":
		return filepath.Join(a.dir, recent), nil
	}
	return "", data.ErrNoArtifact
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// lastLine returns the last non-blank line of the tool's stderr.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return "no output"
}
