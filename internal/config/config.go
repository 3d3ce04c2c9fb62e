// Package config holds runtime configuration: defaults, the optional YAML
// file, .env and environment credentials, CLI flag parsing, and validation.
// The resulting Config is built once in main and treated as read-only by
// every package it is passed to.
package config

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Command selects the top-level operation.
type Command string

const (
	CommandUpload    Command = "upload"    // Process and deliver the corpus (default).
	CommandReconcile Command = "reconcile" // Diff channel history against local assets.
	CommandPlan      Command = "plan"      // Preview routes and segment plans only.
	CommandCheck     Command = "check"     // Run system diagnostics and exit.
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stderr is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// BotConfig carries Bot API credentials and the destination chat.
type BotConfig struct {
	Token       string        `yaml:"token"`
	ChatID      string        `yaml:"chat_id"`      // Numeric ID or @channelname.
	APIEndpoint string        `yaml:"api_endpoint"` // Default: tgbotapi.APIEndpoint.
	Timeout     time.Duration `yaml:"timeout"`      // HTTP timeout per request.
	Disabled    bool          `yaml:"disabled"`
}

// UserConfig carries MTProto application credentials and the session file.
type UserConfig struct {
	APIID       int    `yaml:"api_id"`
	APIHash     string `yaml:"api_hash"`
	Channel     string `yaml:"channel"` // @channelname or t.me link.
	SessionFile string `yaml:"session_file"`
	Disabled    bool   `yaml:"disabled"`
}

// Config holds all runtime settings. Fields are grouped by concern with
// inline documentation of defaults.
type Config struct {
	Command Command `yaml:"-"`

	// Paths (positional args override the file values).
	InputDir       string `yaml:"input_dir"`  // Default: "downloads".
	OutputDir      string `yaml:"output_dir"` // Default: "processed".
	StatePath      string `yaml:"state_path"` // Default: "<output>/state.db" when empty.
	FailedListPath string `yaml:"failed_list"`
	ConfigFile     string `yaml:"-"`
	EnvFile        string `yaml:"-"`

	Bot  BotConfig  `yaml:"bot"`
	User UserConfig `yaml:"user"`

	// Size thresholds.
	BotMaxMB        float64 `yaml:"bot_max_mb"`        // Default: 45.
	UserMaxMB       float64 `yaml:"user_max_mb"`       // Default: 1900.
	SegmentTargetMB float64 `yaml:"segment_target_mb"` // Default: 40.
	SegmentMargin   float64 `yaml:"segment_margin"`    // Default: 0.9.
	MinOutputBytes  int64   `yaml:"min_output_bytes"`  // Default: 1000.
	MaxCaptionRunes int     `yaml:"max_caption"`       // Default: 1024.

	// Intro card.
	FontPath          string        `yaml:"font_path"`
	FontSize          float64       `yaml:"font_size"`      // Points at 1080p. Default: 120.
	IntroCharsPerLine int           `yaml:"chars_per_line"` // Default: 25.
	IntroDuration     time.Duration `yaml:"intro_duration"` // Default: 2s.

	// External tool timeouts.
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`       // Default: 30s.
	SegmentTimeout    time.Duration `yaml:"segment_timeout"`     // Default: 5m.
	BotEncodeTimeout  time.Duration `yaml:"bot_encode_timeout"`  // Default: 15m.
	UserEncodeTimeout time.Duration `yaml:"user_encode_timeout"` // Default: 30m.

	// Delivery policy and flow control.
	BotAttempts    int           `yaml:"bot_attempts"`     // Default: 3.
	BotBackoffStep time.Duration `yaml:"bot_backoff_step"` // Default: 15s (15s, 30s, ...).
	UserAttempts   int           `yaml:"user_attempts"`    // Default: 1.
	UserBackoff    time.Duration `yaml:"user_backoff"`     // Only used when UserAttempts > 1.
	BotPause       time.Duration `yaml:"bot_pause"`        // Default: 30s.
	UserPause      time.Duration `yaml:"user_pause"`       // Default: 120s.
	PartPause      time.Duration `yaml:"part_pause"`       // Default: 5s.
	HistoryLimit   int           `yaml:"history_limit"`    // Default: 1000.

	// Behavior flags.
	DryRun      bool `yaml:"-"`
	Force       bool `yaml:"-"` // Reprocess assets already marked uploaded.
	RetryFailed bool `yaml:"-"` // Only process paths from the failed list.
	ListOnly    bool `yaml:"-"` // reconcile: print missing assets without replaying.

	// Display and logging.
	Verbose   bool      `yaml:"verbose"`
	ColorMode ColorMode `yaml:"color"`
	LogFile   string    `yaml:"log_file"`
}

// DefaultConfig returns a Config with every default set. Used as the base
// before the file, env, and flag layers are applied.
func DefaultConfig() Config {
	return Config{
		Command:           CommandUpload,
		InputDir:          "downloads",
		OutputDir:         "processed",
		EnvFile:           ".env",
		Bot:               BotConfig{Timeout: 15 * time.Minute},
		User:              UserConfig{SessionFile: "vidrelay.session"},
		BotMaxMB:          45,
		UserMaxMB:         1900,
		SegmentTargetMB:   40,
		SegmentMargin:     0.9,
		MinOutputBytes:    1000,
		MaxCaptionRunes:   1024,
		FontPath:          "fonts/Vazir-Bold.ttf",
		FontSize:          120,
		IntroCharsPerLine: 25,
		IntroDuration:     2 * time.Second,
		ProbeTimeout:      30 * time.Second,
		SegmentTimeout:    5 * time.Minute,
		BotEncodeTimeout:  15 * time.Minute,
		UserEncodeTimeout: 30 * time.Minute,
		BotAttempts:       3,
		BotBackoffStep:    15 * time.Second,
		UserAttempts:      1,
		UserBackoff:       time.Minute,
		BotPause:          30 * time.Second,
		UserPause:         120 * time.Second,
		PartPause:         5 * time.Second,
		HistoryLimit:      1000,
		ColorMode:         ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// BotEnabled reports whether Bot credentials are present and not disabled.
func (c *Config) BotEnabled() bool {
	return !c.Bot.Disabled && c.Bot.Token != "" && c.Bot.ChatID != ""
}

// UserEnabled reports whether MTProto credentials are present and not disabled.
func (c *Config) UserEnabled() bool {
	return !c.User.Disabled && c.User.APIID != 0 && c.User.APIHash != "" && c.User.Channel != ""
}

// ResolvedStatePath returns StatePath, defaulting to state.db in OutputDir.
func (c *Config) ResolvedStatePath() string {
	if c.StatePath != "" {
		return c.StatePath
	}
	return filepath.Join(c.OutputDir, "state.db")
}

// ResolvedFailedListPath returns FailedListPath, defaulting to failed.json in OutputDir.
func (c *Config) ResolvedFailedListPath() string {
	if c.FailedListPath != "" {
		return c.FailedListPath
	}
	return filepath.Join(c.OutputDir, "failed.json")
}

// Validate checks enum fields, thresholds, and policy values. Outside of
// check mode it also requires both directory paths.
func (c *Config) Validate() error {
	switch c.Command {
	case CommandUpload, CommandReconcile, CommandPlan, CommandCheck:
		// valid
	default:
		return errors.New("invalid command (use upload, reconcile, plan, or check)")
	}

	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return errors.New("invalid color mode (use 'auto', 'always' or 'never')")
	}

	if c.BotMaxMB <= 0 || c.UserMaxMB <= 0 {
		return errors.New("channel size caps must be positive")
	}
	if c.SegmentTargetMB <= 0 || c.SegmentTargetMB > c.BotMaxMB {
		return errors.New("segment target must be positive and not above the bot cap")
	}
	if c.SegmentMargin <= 0 || c.SegmentMargin > 1 {
		return errors.New("segment margin must be in (0, 1]")
	}
	if c.BotAttempts < 1 || c.UserAttempts < 1 {
		return errors.New("upload attempts must be at least 1")
	}
	if c.MaxCaptionRunes < 1 {
		return errors.New("caption limit must be at least 1")
	}
	if c.IntroCharsPerLine < 1 {
		return errors.New("intro characters per line must be at least 1")
	}
	if c.HistoryLimit < 1 {
		return errors.New("history limit must be at least 1")
	}

	if c.Command == CommandCheck {
		return nil
	}
	if c.InputDir == "" || c.OutputDir == "" {
		return errors.New("need input_dir and output_dir")
	}
	if c.Command == CommandReconcile && !c.UserEnabled() {
		return errors.New("reconcile needs user credentials (API_ID, API_HASH, CHANNEL_USERNAME)")
	}
	return nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved input directory. This prevents discovery from picking up
// produced artifacts. Both arguments must be absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}
