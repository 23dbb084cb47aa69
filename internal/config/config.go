// Package config loads ankistore settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every ankistore environment variable.
const EnvPrefix = "ANKISTORE_"

// collectionFile is the file name the sync server gives each user's collection.
const collectionFile = "collection.anki2"

// Config holds the resolved settings.
type Config struct {
	CollectionPath string        `koanf:"collection_path"`
	SyncBase       string        `koanf:"sync_base" validate:"required"`
	SyncUser       string        `koanf:"sync_user"`
	NoteTypeID     int64         `koanf:"note_type_id" validate:"gt=0"`
	OpTimeout      time.Duration `koanf:"op_timeout" validate:"gt=0"`
	BusyTimeout    time.Duration `koanf:"busy_timeout" validate:"gt=0"`
	ReposDir       string        `koanf:"repos_dir" validate:"required"`
	DefaultDeck    string        `koanf:"default_deck" validate:"required"`
	LogLevel       string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	RenderMarkdown bool          `koanf:"render_markdown"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SyncBase:    "/syncserver",
		NoteTypeID:  1,
		OpTimeout:   5 * time.Second,
		BusyTimeout: 2 * time.Second,
		ReposDir:    "repos",
		DefaultDeck: "Default",
		LogLevel:    "info",
	}
}

// RegisterFlags adds the flags Load reads. Flag names use dashes; they map
// to the underscore keys of the config file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("collection-path", "", "Path to the collection file (default <sync-base>/<user>/"+collectionFile+")")
	fs.String("sync-base", d.SyncBase, "Directory holding per-user collections")
	fs.String("sync-user", "", "Sync user as username:password")
	fs.Duration("op-timeout", d.OpTimeout, "Upper bound for each storage operation")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn or error")
}

// Load resolves the configuration. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	// Variables of the legacy sync deployment, kept for compatibility.
	legacy := map[string]string{
		"SYNC_BASE":  "sync_base",
		"SYNC_USER1": "sync_user",
	}
	if err := k.Load(env.Provider("SYNC_", ".", func(s string) string {
		return legacy[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve validates cfg and derives the collection path.
func (c *Config) resolve() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.CollectionPath != "" {
		return nil
	}
	user, err := c.Username()
	if err != nil {
		return err
	}
	c.CollectionPath = filepath.Join(c.SyncBase, user, collectionFile)
	return nil
}

// Username returns the user part of SyncUser.
func (c *Config) Username() (string, error) {
	if c.SyncUser == "" {
		return "", errors.New("collection_path or sync_user is required")
	}
	user, _, ok := strings.Cut(c.SyncUser, ":")
	if !ok || user == "" {
		return "", errors.New("sync_user must be in format 'username:password'")
	}
	return user, nil
}
