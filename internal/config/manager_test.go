package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  enabled: true
  addr: ":9090"
notify:
  channel: smtp
  smtp:
    host: mail.example.com
    port: 2525
    from: noreply@example.com
    timeout: 10s
scheduler:
  enabled: true
  workers: 4
  sweep_every: 30s
storage:
  driver: sqlite
  path: ./test.db
logging:
  level: debug
  console: true
`)

	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Server.Enabled || cfg.Server.Addr != ":9090" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Notify.SMTP.Host != "mail.example.com" || cfg.Notify.SMTP.Port != 2525 {
		t.Errorf("smtp = %+v", cfg.Notify.SMTP)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Scheduler.Workers)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Error("Get() did not return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  enabled: true
  adress: ":9090"
`)
	m := NewConfigManager(path)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestParseJSONPassthrough(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}`)
	m := NewConfigManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestSubscribePublish(t *testing.T) {
	m := NewConfigManager("unused.yaml")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{Logging: LoggingConfig{Level: "info"}}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second) // buffer full: oldest dropped, newest kept

	select {
	case got := <-ch:
		if got != second {
			t.Errorf("got level %q, want newest", got.Logging.Level)
		}
	default:
		t.Fatal("no config delivered")
	}
}

func TestLoadMissingFile(t *testing.T) {
	m := NewConfigManager(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := m.Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
