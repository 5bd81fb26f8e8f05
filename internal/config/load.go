package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinoosan/dubsync/internal/fp"
)

const envPrefix = "DUBSYNC"

// Keys understood in config files and as DUBSYNC_<KEY> environment variables.
const (
	KeyBaseDir              = "base_dir"
	KeyDownloadsDir         = "downloads_dir"
	KeyOutputDir            = "output_dir"
	KeyBackupDir            = "backup_dir"
	KeyOutputPattern        = "output_pattern"
	KeyStabilityWindow      = "stability_window"
	KeyStabilitySamples     = "stability_samples"
	KeyPollInterval         = "poll_interval"
	KeyWatch                = "watch"
	KeyIdentityMode         = "identity_mode"
	KeyDigestCacheSize      = "digest_cache_size"
	KeyFetchTool            = "fetch_tool"
	KeyFetchArgs            = "fetch_args"
	KeyMergeFormat          = "merge_format"
	KeyFetchTimeout         = "fetch_timeout"
	KeyMaxConcurrentFetches = "max_concurrent_fetches"
	KeyLedgerDSN            = "ledger_dsn"
	KeyHTTPAddr             = "http_addr"
	KeyAPIToken             = "api_token"
	KeyLogLevel             = "log_level"
	KeyLogFormat            = "log_format"
	KeyLogFile              = "log_file"
)

// NewViper returns a viper instance with defaults and env binding applied and,
// when file is non-empty, the config file read in. Callers may bind flags
// before handing it to FromViper.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if strings.TrimSpace(file) != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return v, nil
}

// Load is NewViper followed by FromViper.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseDir, ".")
	v.SetDefault(KeyDownloadsDir, "downloads")
	v.SetDefault(KeyOutputDir, "outputs")
	v.SetDefault(KeyBackupDir, "~/dubsync-archive")
	v.SetDefault(KeyOutputPattern, DefaultOutputPattern)
	v.SetDefault(KeyStabilityWindow, DefaultStabilityWindow.String())
	v.SetDefault(KeyStabilitySamples, 1)
	v.SetDefault(KeyPollInterval, DefaultPollInterval.String())
	v.SetDefault(KeyWatch, true)
	v.SetDefault(KeyIdentityMode, string(fp.ModeContent))
	v.SetDefault(KeyDigestCacheSize, DefaultDigestCacheSize)
	v.SetDefault(KeyFetchTool, DefaultFetchTool)
	v.SetDefault(KeyFetchArgs, []string{})
	v.SetDefault(KeyMergeFormat, DefaultMergeFormat)
	v.SetDefault(KeyFetchTimeout, DefaultFetchTimeout.String())
	v.SetDefault(KeyMaxConcurrentFetches, 1)
	v.SetDefault(KeyLedgerDSN, "")
	v.SetDefault(KeyHTTPAddr, DefaultHTTPAddr)
	v.SetDefault(KeyAPIToken, "")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
}

// FromViper builds a Config. Relative directories are resolved against
// base_dir and a leading "~" expands to the user's home directory. It reports
// parse errors only; call Validate for semantic checks.
func FromViper(v *viper.Viper) (*Config, error) {
	base, err := expandHome(v.GetString(KeyBaseDir))
	if err != nil {
		return nil, err
	}
	if base, err = filepath.Abs(base); err != nil {
		return nil, fmt.Errorf("config: base_dir: %w", err)
	}

	cfg := &Config{
		BaseDir:              base,
		OutputPattern:        strings.TrimSpace(v.GetString(KeyOutputPattern)),
		StabilitySamples:     v.GetInt(KeyStabilitySamples),
		Watch:                v.GetBool(KeyWatch),
		DigestCacheSize:      v.GetInt(KeyDigestCacheSize),
		FetchTool:            strings.TrimSpace(v.GetString(KeyFetchTool)),
		FetchArgs:            v.GetStringSlice(KeyFetchArgs),
		MergeFormat:          strings.TrimSpace(v.GetString(KeyMergeFormat)),
		MaxConcurrentFetches: v.GetInt(KeyMaxConcurrentFetches),
		LedgerDSN:            strings.TrimSpace(v.GetString(KeyLedgerDSN)),
		HTTPAddr:             strings.TrimSpace(v.GetString(KeyHTTPAddr)),
		APIToken:             strings.TrimSpace(v.GetString(KeyAPIToken)),
		LogFormat:            strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
		LogFile:              strings.TrimSpace(v.GetString(KeyLogFile)),
	}

	for key, dst := range map[string]*string{
		KeyDownloadsDir: &cfg.DownloadsDir,
		KeyOutputDir:    &cfg.OutputDir,
		KeyBackupDir:    &cfg.BackupDir,
	} {
		if *dst, err = resolveDir(base, v.GetString(key)); err != nil {
			return nil, fieldErr(key, "cannot resolve directory", err)
		}
	}

	for key, dst := range map[string]*time.Duration{
		KeyStabilityWindow: &cfg.StabilityWindow,
		KeyPollInterval:    &cfg.PollInterval,
		KeyFetchTimeout:    &cfg.FetchTimeout,
	} {
		if *dst, err = secondsOrDuration(v.Get(key)); err != nil {
			return nil, fieldErr(key, "invalid duration", err)
		}
	}

	if cfg.IdentityMode, err = fp.ParseMode(v.GetString(KeyIdentityMode)); err != nil {
		return nil, fieldErr(KeyIdentityMode, "invalid identity mode", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(v.GetString(KeyLogLevel)))); err != nil {
		return nil, fieldErr(KeyLogLevel, "invalid log level", err)
	}
	return cfg, nil
}

func expandHome(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: expand %q: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

func resolveDir(base, p string) (string, error) {
	p, err := expandHome(p)
	if err != nil {
		return "", err
	}
	if p == "" {
		return "", nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p), nil
}

// secondsOrDuration accepts Go duration strings ("1500ms", "3s") and bare
// numbers, which are read as seconds.
func secondsOrDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}
