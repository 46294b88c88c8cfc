package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/AliZeynalov/portfolio-chatbot/internal/client"
	"github.com/AliZeynalov/portfolio-chatbot/internal/history"
	"github.com/AliZeynalov/portfolio-chatbot/internal/session"
)

// Store kinds.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config stores caffbot settings (~/.caffbot/config.toml).
type Config struct {
	Endpoint       string `toml:"endpoint"`
	Store          string `toml:"store"`
	DataDir        string `toml:"data_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DefaultConfig points at a gateway on localhost.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "http://localhost:8080/api/bot",
		Store:          StoreFile,
		DataDir:        "~/.caffbot",
		TimeoutSeconds: int(client.DefaultTimeout / time.Second),
	}
}

// DefaultConfigPath returns ~/.caffbot/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".caffbot", "config.toml"), nil
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Store != StoreFile && cfg.Store != StoreSQLite {
		return cfg, fmt.Errorf("unknown store %q (want %s or %s)", cfg.Store, StoreFile, StoreSQLite)
	}
	return cfg, nil
}

// Encode renders cfg as TOML.
func (c Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}

// ResolvedDataDir expands a leading ~.
func (c Config) ResolvedDataDir() (string, error) {
	if c.DataDir != "~" && !strings.HasPrefix(c.DataDir, "~/") {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(c.DataDir, "~")), nil
}

// OpenStore opens the configured history store. The returned close function
// is always non-nil.
func (c Config) OpenStore() (history.Store, func() error, error) {
	dir, err := c.ResolvedDataDir()
	if err != nil {
		return nil, nil, err
	}

	switch c.Store {
	case StoreSQLite:
		s, err := history.NewSQLiteStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := history.NewFileStore(dir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

// OpenSession opens the persisted conversation against the configured
// endpoint.
func (c Config) OpenSession(ctx context.Context) (*session.Session, func() error, error) {
	store, closeStore, err := c.OpenStore()
	if err != nil {
		return nil, nil, err
	}

	var opts []client.Option
	if c.TimeoutSeconds > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(c.TimeoutSeconds)*time.Second))
	}

	s, err := session.Open(ctx, store, client.New(c.Endpoint, opts...))
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return s, closeStore, nil
}
