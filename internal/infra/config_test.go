package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"faycoin_go/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: faycoin-test\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Name != "faycoin-test" {
		t.Errorf("app.name = %q", cfg.App.Name)
	}
	if cfg.Storage.Driver != StorageSQLite {
		t.Errorf("storage.driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Storage.Key != domain.DefaultBalanceKey {
		t.Errorf("storage.key = %q", cfg.Storage.Key)
	}
	if cfg.Channel.Name != domain.DefaultChannelName {
		t.Errorf("channel.name = %q", cfg.Channel.Name)
	}
	if cfg.Channel.Transport != TransportNone {
		t.Errorf("channel.transport = %q, want none", cfg.Channel.Transport)
	}
	if cfg.Relay.MaxChannels != 256 {
		t.Errorf("relay.max_channels = %d, want 256", cfg.Relay.MaxChannels)
	}
}

func TestLoadConfig_RelayURLImpliesWebSocket(t *testing.T) {
	path := writeConfig(t, "channel:\n  relay_url: ws://127.0.0.1:8787\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Channel.Transport != TransportWebSocket {
		t.Errorf("channel.transport = %q, want websocket", cfg.Channel.Transport)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("FAYCOIN_RELAY_URL", "wss://relay.example.com")
	t.Setenv("FAYCOIN_USER_EMAIL", "fay@example.com")
	path := writeConfig(t, "channel:\n  relay_url: ws://ignored\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Channel.RelayURL != "wss://relay.example.com" {
		t.Errorf("relay_url = %q", cfg.Channel.RelayURL)
	}
	if cfg.Identity.UserEmail != "fay@example.com" {
		t.Errorf("user_email = %q", cfg.Identity.UserEmail)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"channel.transport":   "channel:\n  transport: carrier-pigeon\n",
		"channel.relay_url":   "channel:\n  transport: websocket\n  relay_url: http://nope\n",
		"storage.driver":      "storage:\n  driver: redis\n",
		"mirror.database_url": "mirror:\n  enabled: true\n",
		"channel.name":        "channel:\n  name: \"a/b\"\n",
	}
	for field, body := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != field {
				t.Errorf("field = %q, want %q", cfgErr.Field, field)
			}
		})
	}
}

func TestLoadConfig_ChannelNameCharset(t *testing.T) {
	for _, name := range []string{"bad!name", "colon:name", "0123456789012345678901234567890123456789012345678901234567890123x"} {
		_, err := LoadConfig(writeConfig(t, "channel:\n  name: \""+name+"\"\n"))
		var cfgErr *domain.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Field != "channel.name" {
			t.Errorf("name %q: err = %v, want channel.name ConfigError", name, err)
		}
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cases := map[int]time.Duration{
		-1:  1 * time.Second,
		0:   1 * time.Second,
		1:   2 * time.Second,
		3:   8 * time.Second,
		6:   60 * time.Second,
		100: 60 * time.Second,
	}
	for retry, want := range cases {
		if got := CalculateBackoff(retry); got != want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", retry, got, want)
		}
	}
}
