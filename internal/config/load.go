package config

// This file layers the configuration sources in precedence order:
// defaults < YAML file < .env file < process environment < CLI flags.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names, shared with the .env file.
const (
	EnvBotToken    = "TELEGRAM_TOKEN"
	EnvBotChatID   = "CHANNEL_ID"
	EnvAPIID       = "API_ID"
	EnvAPIHash     = "API_HASH"
	EnvChannel     = "CHANNEL_USERNAME"
	EnvSessionFile = "VIDRELAY_SESSION"
)

// Load builds the final Config from args (without the program name).
// On --help or --version it prints and exits.
func Load(args []string, version string) (Config, error) {
	cfg := DefaultConfig()

	args = parseCommand(&cfg, args)
	scanLayerFlags(&cfg, args)

	if cfg.ConfigFile != "" {
		if err := loadFile(&cfg, cfg.ConfigFile); err != nil {
			return cfg, err
		}
	}

	dotenv, err := readEnvFile(cfg.EnvFile)
	if err != nil {
		return cfg, err
	}
	if err := applyEnv(&cfg, envLookup(dotenv)); err != nil {
		return cfg, err
	}

	if err := ParseFlags(&cfg, args, version); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// parseCommand consumes a leading subcommand name. Anything else leaves the
// default command in place.
func parseCommand(cfg *Config, args []string) []string {
	if len(args) == 0 {
		return args
	}
	switch Command(args[0]) {
	case CommandUpload, CommandReconcile, CommandPlan, CommandCheck:
		cfg.Command = Command(args[0])
		return args[1:]
	}
	return args
}

// scanLayerFlags picks --config and --env-file out of args ahead of the full
// flag parse, since both decide which layers load before flags apply.
func scanLayerFlags(cfg *Config, args []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return
		}
		if !strings.HasPrefix(a, "-") {
			continue
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !hasValue && i+1 < len(args) {
			value = args[i+1]
		}
		switch name {
		case "config":
			cfg.ConfigFile = value
		case "env-file":
			cfg.EnvFile = value
		}
	}
}

// loadFile overlays YAML values onto cfg. Keys absent from the file keep
// their current values.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// readEnvFile parses a dotenv file without touching the process
// environment. A missing file is not an error.
func readEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return vals, nil
}

// envLookup resolves a key from the process environment first, then the
// dotenv values.
func envLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}
}

// applyEnv copies credential variables into cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBotToken); ok {
		cfg.Bot.Token = v
	}
	if v, ok := lookup(EnvBotChatID); ok {
		cfg.Bot.ChatID = v
	}
	if v, ok := lookup(EnvAPIID); ok {
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a whole number (got %q)", EnvAPIID, v)
		}
		cfg.User.APIID = id
	}
	if v, ok := lookup(EnvAPIHash); ok {
		cfg.User.APIHash = v
	}
	if v, ok := lookup(EnvChannel); ok {
		cfg.User.Channel = v
	}
	if v, ok := lookup(EnvSessionFile); ok {
		cfg.User.SessionFile = v
	}
	return nil
}
