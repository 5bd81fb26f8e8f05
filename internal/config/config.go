// Package config loads dubsync settings from defaults, an optional config
// file and DUBSYNC_* environment variables, in increasing priority.
package config

import (
	"log/slog"
	"time"

	"github.com/tinoosan/dubsync/internal/fp"
)

// Config is passed explicitly to every component; nothing reads the
// environment after Load.
type Config struct {
	BaseDir      string
	DownloadsDir string
	OutputDir    string
	BackupDir    string

	// OutputPattern is a filepath.Match pattern applied to names directly
	// under OutputDir.
	OutputPattern    string
	StabilityWindow  time.Duration
	StabilitySamples int
	PollInterval     time.Duration
	Watch            bool
	IdentityMode     fp.Mode
	DigestCacheSize  int

	FetchTool            string
	FetchArgs            []string
	MergeFormat          string
	FetchTimeout         time.Duration
	MaxConcurrentFetches int

	// LedgerDSN enables the PostgreSQL ledger. Empty keeps history in memory.
	LedgerDSN string

	HTTPAddr string
	APIToken string

	LogLevel  slog.Level
	LogFormat string
	LogFile   string
}

const (
	DefaultOutputPattern   = "output_file_*.*"
	DefaultStabilityWindow = 3 * time.Second
	DefaultPollInterval    = 10 * time.Second
	DefaultFetchTimeout    = 10 * time.Minute
	DefaultFetchTool       = "yt-dlp"
	DefaultMergeFormat     = "mp4"
	DefaultHTTPAddr        = ":7860"
	DefaultDigestCacheSize = 1024
)
