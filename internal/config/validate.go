package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalid is matched by every configuration error. Configuration errors
// are fatal: the engine must not start on an invalid Config.
var ErrInvalid = errors.New("invalid configuration")

type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(field, reason string, err error) error {
	return &FieldError{Field: field, Reason: reason, Err: err}
}

// Validate checks the Config without touching the filesystem beyond stat.
func (c *Config) Validate() error {
	var errs []error
	for field, dir := range map[string]string{
		KeyDownloadsDir: c.DownloadsDir,
		KeyOutputDir:    c.OutputDir,
		KeyBackupDir:    c.BackupDir,
	} {
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fieldErr(field, "required", nil))
		}
	}
	if len(errs) == 0 {
		errs = append(errs, c.checkDistinct()...)
	}

	if c.OutputPattern == "" {
		errs = append(errs, fieldErr(KeyOutputPattern, "required", nil))
	} else if _, err := filepath.Match(c.OutputPattern, ""); err != nil {
		errs = append(errs, fieldErr(KeyOutputPattern, "invalid pattern", err))
	} else if strings.ContainsRune(c.OutputPattern, filepath.Separator) {
		errs = append(errs, fieldErr(KeyOutputPattern, "must match names, not paths", nil))
	}
	if c.StabilityWindow <= 0 {
		errs = append(errs, fieldErr(KeyStabilityWindow, "must be positive", nil))
	}
	if c.StabilitySamples < 1 {
		errs = append(errs, fieldErr(KeyStabilitySamples, "must be at least 1", nil))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fieldErr(KeyPollInterval, "must be positive", nil))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, fieldErr(KeyFetchTimeout, "must be positive", nil))
	}
	if c.MaxConcurrentFetches < 1 {
		errs = append(errs, fieldErr(KeyMaxConcurrentFetches, "must be at least 1", nil))
	}
	if c.FetchTool == "" {
		errs = append(errs, fieldErr(KeyFetchTool, "required", nil))
	}
	if c.DigestCacheSize < 1 {
		errs = append(errs, fieldErr(KeyDigestCacheSize, "must be at least 1", nil))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fieldErr(KeyLogFormat, "must be text or json", nil))
	}
	return errors.Join(errs...)
}

// checkDistinct enforces that the engine never reads from and writes to the
// same directory, and that fetches never land where backups are written.
func (c *Config) checkDistinct() []error {
	var errs []error
	if sameDir(c.OutputDir, c.BackupDir) {
		errs = append(errs, fieldErr(KeyBackupDir, fmt.Sprintf("must differ from output_dir %s", c.OutputDir), nil))
	}
	if sameDir(c.DownloadsDir, c.BackupDir) {
		errs = append(errs, fieldErr(KeyBackupDir, fmt.Sprintf("must differ from downloads_dir %s", c.DownloadsDir), nil))
	}
	if sameDir(c.DownloadsDir, c.OutputDir) {
		errs = append(errs, fieldErr(KeyOutputDir, fmt.Sprintf("must differ from downloads_dir %s", c.DownloadsDir), nil))
	}
	return errs
}

// EnsureDirs creates the working directories.
func (c *Config) EnsureDirs() error {
	for field, dir := range map[string]string{
		KeyDownloadsDir: c.DownloadsDir,
		KeyOutputDir:    c.OutputDir,
		KeyBackupDir:    c.BackupDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fieldErr(field, "cannot create directory", err)
		}
	}
	return nil
}

// Prepare validates, creates the directories and re-checks that they are
// distinct once symlinks and mounts can be resolved.
func (c *Config) Prepare() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.EnsureDirs(); err != nil {
		return err
	}
	return errors.Join(c.checkDistinct()...)
}

func sameDir(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	sa, errA := os.Stat(a)
	sb, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(sa, sb)
}
