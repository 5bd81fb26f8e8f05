package data

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

var (
	ErrEmptyURL   = errors.New("url is required")
	ErrToolFailed = errors.New("fetch tool failed")
	ErrNoArtifact = errors.New("fetch produced no file")
)

// FetchResult is the outcome of a single fetch. Either Path is set or Err
// explains why no file could be resolved. The caller owns the file at Path.
type FetchResult struct {
	URL       string
	Token     string
	Path      string
	Err       error
	ExitCode  int
	StartedAt time.Time
	Duration  time.Duration
}

// OK reports whether the fetch resolved a local file.
func (r FetchResult) OK() bool { return r.Err == nil && r.Path != "" }

type fetchResultJSON struct {
	URL        string `json:"url"`
	Token      string `json:"token,omitempty"`
	Path       string `json:"path,omitempty"`
	Error      string `json:"error,omitempty"`
	ExitCode   int    `json:"exitCode"`
	DurationMS int64  `json:"durationMs"`
}

func (r FetchResult) ToJSON(w io.Writer) error {
	out := fetchResultJSON{
		URL:        r.URL,
		Token:      r.Token,
		Path:       r.Path,
		ExitCode:   r.ExitCode,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.NewEncoder(w).Encode(out)
}

// FetchRequest is the body accepted by the fetch endpoint.
type FetchRequest struct {
	URL string `json:"url"`
}
