package config

// This file implements CLI flag parsing and help text.
// Flags are grouped into paths, delivery, behavior, display, and utility.
// Negated flags (e.g. --no-bot) are applied after Parse so earlier layers hold unless set.

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// ParseFlags parses args into cfg. Flag defaults are the values already in
// cfg, so only flags the user actually passes override earlier layers.
// On --help or --version it prints and exits.
func ParseFlags(cfg *Config, args []string, version string) error {
	fs := flag.NewFlagSet("vidrelay", flag.ContinueOnError)
	fs.Usage = func() { printUsage(version) }

	var negated negatedFlags

	definePathFlags(fs, cfg)
	defineDeliveryFlags(fs, cfg, &negated)
	defineBehaviorFlags(fs, cfg)
	defineDisplayFlags(fs, cfg, &negated)
	defineUtilityFlags(fs, &negated)

	if err := fs.Parse(args); err != nil {
		return err
	}

	applyNegatedFlags(cfg, &negated)

	if negated.showHelp {
		printUsage(version)
		os.Exit(0)
	}
	if negated.showVersion {
		fmt.Fprintln(os.Stdout, "vidrelay v"+version)
		os.Exit(0)
	}

	return parsePositionalArgs(fs, cfg)
}

// negatedFlags holds boolean flags that are applied after Parse.
// These either disable a channel or trigger exit (showHelp, showVersion).
type negatedFlags struct {
	noBot       bool
	noUser      bool
	forceColor  bool
	noColor     bool
	showVersion bool
	showHelp    bool
}

// definePathFlags registers --config, --env-file, --state, --failed-list, --font.
func definePathFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "dotenv file with credentials")
	fs.StringVar(&cfg.StatePath, "state", cfg.StatePath, "State database path")
	fs.StringVar(&cfg.FailedListPath, "failed-list", cfg.FailedListPath, "Failed asset list path")
	fs.StringVar(&cfg.FontPath, "font", cfg.FontPath, "TTF font for the intro card")
}

// defineDeliveryFlags registers size, retry, and channel toggles.
func defineDeliveryFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.Float64Var(&cfg.SegmentTargetMB, "segment-mb", cfg.SegmentTargetMB, "Target segment size in MB for the bot channel")
	fs.IntVar(&cfg.BotAttempts, "bot-attempts", cfg.BotAttempts, "Bot upload attempts per artifact")
	fs.IntVar(&cfg.UserAttempts, "user-attempts", cfg.UserAttempts, "User upload attempts per artifact")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "Channel messages scanned by reconcile")
	fs.BoolVar(&n.noBot, "no-bot", false, "Disable the bot channel")
	fs.BoolVar(&n.noUser, "no-user", false, "Disable the user channel")
}

// defineBehaviorFlags registers dry-run, force, retry-failed, list.
func defineBehaviorFlags(fs *flag.FlagSet, cfg *Config) {
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Preview only; do not transcode or upload")
	fs.BoolVar(&cfg.DryRun, "d", cfg.DryRun, "Same as --dry-run")
	fs.BoolVar(&cfg.Force, "force", cfg.Force, "Reprocess assets already marked uploaded")
	fs.BoolVar(&cfg.Force, "f", cfg.Force, "Same as --force")
	fs.BoolVar(&cfg.RetryFailed, "retry-failed", cfg.RetryFailed, "Only process assets from the failed list")
	fs.BoolVar(&cfg.ListOnly, "list", cfg.ListOnly, "reconcile: list missing assets without uploading")
}

// defineDisplayFlags registers --color, --no-color, verbose, --log.
func defineDisplayFlags(fs *flag.FlagSet, cfg *Config, n *negatedFlags) {
	fs.BoolVar(&n.forceColor, "color", false, "Force colored logs")
	fs.BoolVar(&n.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Verbose output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Same as --verbose")
	fs.StringVar(&cfg.LogFile, "log", cfg.LogFile, "Append logs to file")
	fs.StringVar(&cfg.LogFile, "l", cfg.LogFile, "Same as --log")
}

// defineUtilityFlags registers --version and --help (exit after printing).
func defineUtilityFlags(fs *flag.FlagSet, n *negatedFlags) {
	fs.BoolVar(&n.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&n.showVersion, "V", false, "Same as --version")
	fs.BoolVar(&n.showHelp, "help", false, "Show this help and exit")
	fs.BoolVar(&n.showHelp, "h", false, "Same as --help")
}

// applyNegatedFlags copies negated flag values into cfg.
func applyNegatedFlags(cfg *Config, n *negatedFlags) {
	if n.noBot {
		cfg.Bot.Disabled = true
	}
	if n.noUser {
		cfg.User.Disabled = true
	}
	if n.noColor {
		cfg.ColorMode = ColorNever
	} else if n.forceColor {
		cfg.ColorMode = ColorAlways
	}
}

// parsePositionalArgs sets InputDir and OutputDir from up to two positional
// args. Missing args keep the configured directories.
func parsePositionalArgs(fs *flag.FlagSet, cfg *Config) error {
	args := fs.Args()
	if len(args) > 2 {
		return fmt.Errorf("too many arguments: %s", strings.Join(args[2:], " "))
	}
	if len(args) >= 1 {
		cfg.InputDir = NormalizeDirArg(args[0])
	}
	if len(args) == 2 {
		cfg.OutputDir = NormalizeDirArg(args[1])
	}
	return nil
}

// printUsage writes the help text to stderr. Column-aligned for readability.
func printUsage(version string) {
	const col1 = 28 // width of "  -x, --long-name <arg>  "
	lines := []struct {
		flags string
		desc  string
	}{
		{"", "vidrelay v" + version + " - prepare and deliver videos to a Telegram channel"},
		{"", ""},
		{"  vidrelay [command] [OPTIONS] [input_dir] [output_dir]", ""},
		{"", ""},
		{"Commands", ""},
		{"  upload", "Process and deliver every asset (default)"},
		{"  reconcile", "Diff channel history against local assets and replay missing"},
		{"  plan", "Show route and segment plan per asset"},
		{"  check", "System diagnostics (ffmpeg, encoders, font, disk, credentials)"},
		{"", ""},
		{"Paths", ""},
		{"  --config <file>", "YAML config file"},
		{"  --env-file <file>", "dotenv credentials (default: .env)"},
		{"  --state <file>", "State database (default: <output>/state.db)"},
		{"  --failed-list <file>", "Failed list (default: <output>/failed.json)"},
		{"  --font <file>", "Intro card font"},
		{"", ""},
		{"Delivery", ""},
		{"  --segment-mb <n>", "Bot segment target size (default: 40)"},
		{"  --bot-attempts <n>", "Bot upload attempts (default: 3)"},
		{"  --user-attempts <n>", "User upload attempts (default: 1)"},
		{"  --history-limit <n>", "Messages scanned by reconcile (default: 1000)"},
		{"  --no-bot", "Disable the bot channel"},
		{"  --no-user", "Disable the user channel"},
		{"", ""},
		{"Behavior", ""},
		{"  -d, --dry-run", "Preview only; do not transcode or upload"},
		{"  -f, --force", "Reprocess assets already marked uploaded"},
		{"  --retry-failed", "Only process assets from the failed list"},
		{"  --list", "reconcile: list missing assets only"},
		{"", ""},
		{"Display", ""},
		{"  --color", "Force colored logs"},
		{"  --no-color", "Disable colored logs"},
		{"  -v, --verbose", "Verbose output"},
		{"  -l, --log <path>", "Append logs to file"},
		{"", ""},
		{"Utility", ""},
		{"  -V, --version", "Print version and exit"},
		{"  -h, --help", "Show this help and exit"},
	}

	for _, l := range lines {
		if l.flags == "" && l.desc == "" {
			fmt.Fprintln(os.Stderr)
			continue
		}
		if l.desc == "" {
			fmt.Fprintln(os.Stderr, l.flags)
			continue
		}
		if l.flags == "" {
			fmt.Fprintln(os.Stderr, l.desc)
			continue
		}
		padding := col1 - len(l.flags)
		if padding < 1 {
			padding = 1
		}
		fmt.Fprintf(os.Stderr, "%s%*s%s\n", l.flags, padding, "", l.desc)
	}
}
