package infra

import (
	"errors"
	"fmt"
	"os"

	"faycoin_go/internal/domain"

	"gopkg.in/yaml.v3"
)

// Transport kinds understood by channel.transport.
const (
	TransportNone      = "none"
	TransportMemory    = "memory"
	TransportWebSocket = "websocket"
)

// Storage drivers understood by storage.driver.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds every setting of one execution context.
// LoadConfig overrides secrets and endpoints from the environment after parsing.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	// Identity is established by the surrounding page; the synchronizer itself has no user concept.
	Identity struct {
		UserEmail string `yaml:"user_email"`
		UserName  string `yaml:"user_name"`
	} `yaml:"identity"`

	Storage struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"` // empty: OS config dir
		Key    string `yaml:"key"`
	} `yaml:"storage"`

	Channel struct {
		Name      string `yaml:"name"`
		Transport string `yaml:"transport"`
		RelayURL  string `yaml:"relay_url"`
		InboxSize int    `yaml:"inbox_size"`
	} `yaml:"channel"`

	Relay struct {
		Listen          string `yaml:"listen"`
		ClientQueueSize int    `yaml:"client_queue_size"`
		MaxChannels     int    `yaml:"max_channels"`
	} `yaml:"relay"`

	Mirror struct {
		Enabled     bool   `yaml:"enabled"`
		DatabaseURL string `yaml:"database_url"`
		Migrate     bool   `yaml:"migrate"`
		Workers     int    `yaml:"workers"`
	} `yaml:"mirror"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns a local-only configuration usable without a file.
// Environment overrides still apply.
func DefaultConfig() *Config {
	var cfg Config
	overrideWithEnv(&cfg)
	cfg.applyDefaults()
	return &cfg
}

// LoadConfig reads and parses the YAML file at path. A missing file yields
// ErrConfigNotFound so callers can fall back to DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "faycoin"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.Key == "" {
		c.Storage.Key = domain.DefaultBalanceKey
	}
	if c.Channel.Name == "" {
		c.Channel.Name = domain.DefaultChannelName
	}
	if c.Channel.Transport == "" {
		c.Channel.Transport = TransportNone
		if c.Channel.RelayURL != "" {
			c.Channel.Transport = TransportWebSocket
		}
	}
	if c.Channel.InboxSize <= 0 {
		c.Channel.InboxSize = 256
	}
	if c.Relay.Listen == "" {
		c.Relay.Listen = "127.0.0.1:8787"
	}
	if c.Relay.ClientQueueSize <= 0 {
		c.Relay.ClientQueueSize = 64
	}
	if c.Relay.MaxChannels <= 0 {
		c.Relay.MaxChannels = 256
	}
	if c.Mirror.Workers <= 0 {
		c.Mirror.Workers = 2
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StorageMemory:
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
	}

	switch c.Channel.Transport {
	case TransportNone, TransportMemory:
	case TransportWebSocket:
		if !hasPrefix(c.Channel.RelayURL, "ws://") && !hasPrefix(c.Channel.RelayURL, "wss://") {
			return &domain.ConfigError{Field: "channel.relay_url", Err: fmt.Errorf("invalid relay URL: %q", c.Channel.RelayURL)}
		}
	default:
		return &domain.ConfigError{Field: "channel.transport", Err: fmt.Errorf("unsupported transport %q", c.Channel.Transport)}
	}

	if !domain.ValidChannelName(c.Channel.Name) {
		return &domain.ConfigError{Field: "channel.name", Err: fmt.Errorf("invalid channel name %q", c.Channel.Name)}
	}

	if c.Mirror.Enabled {
		if c.Mirror.DatabaseURL == "" {
			return &domain.ConfigError{Field: "mirror.database_url", Err: errors.New("required when mirror is enabled")}
		}
		if c.Identity.UserEmail == "" {
			return &domain.ConfigError{Field: "identity.user_email", Err: errors.New("required when mirror is enabled")}
		}
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv lets the environment win over the file for endpoints and identity.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("FAYCOIN_USER_EMAIL"); v != "" {
		cfg.Identity.UserEmail = v
	}
	if v := os.Getenv("FAYCOIN_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("FAYCOIN_RELAY_URL"); v != "" {
		cfg.Channel.RelayURL = v
	}
	if v := os.Getenv("FAYCOIN_MIRROR_DATABASE_URL"); v != "" {
		cfg.Mirror.DatabaseURL = v
	}
	if v := os.Getenv("FAYCOIN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
