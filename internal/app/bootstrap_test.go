package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"faycoin_go/internal/infra"
	"faycoin_go/internal/infra/broadcast"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBootstrap_TwoContextsShareHub(t *testing.T) {
	logDir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "faycoin.db")
	cfgPath := writeConfig(t, `
storage:
  driver: sqlite
  path: `+dbPath+`
channel:
  transport: memory
logging:
  dir: `+logDir+`
  level: warn
`)

	hub := broadcast.NewHub(16)
	ctx := context.Background()

	a := NewBootstrap()
	a.Hub = hub
	a.Metrics = &infra.Metrics{}
	if err := a.Initialize(ctx, cfgPath); err != nil {
		t.Fatalf("Initialize a: %v", err)
	}
	defer a.Close()

	b := NewBootstrap()
	b.Hub = hub
	b.Metrics = &infra.Metrics{}
	if err := b.Initialize(ctx, cfgPath); err != nil {
		t.Fatalf("Initialize b: %v", err)
	}
	defer b.Close()

	if hub.Members("faycoin-sync") != 2 {
		t.Fatalf("Members = %d, want 2", hub.Members("faycoin-sync"))
	}

	a.Sync.AddCoins(25)

	deadline := time.Now().Add(2 * time.Second)
	for b.Sync.Balance() != 25 {
		if time.Now().After(deadline) {
			t.Fatalf("b balance = %d, want 25", b.Sync.Balance())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close a: %v", err)
	}

	c := NewBootstrap()
	c.Metrics = &infra.Metrics{}
	if err := c.Initialize(ctx, cfgPath); err != nil {
		t.Fatalf("Initialize c: %v", err)
	}
	defer c.Close()
	if got := c.Sync.Balance(); got != 25 {
		t.Errorf("restarted context balance = %d, want 25", got)
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	cfgPath := writeConfig(t, `
storage:
  driver: floppy
`)
	if err := NewBootstrap().Initialize(context.Background(), cfgPath); err == nil {
		t.Fatal("Initialize accepted an unsupported storage driver")
	}
}

func TestLoadConfig_MissingFileFallsBack(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Channel.Transport != infra.TransportNone && cfg.Channel.Transport != infra.TransportWebSocket {
		t.Errorf("Transport = %q", cfg.Channel.Transport)
	}
	if cfg.Storage.Key != "fayCoinBalance" {
		t.Errorf("Storage.Key = %q", cfg.Storage.Key)
	}
}
