package app

import (
	"testing"
	"time"

	"mailsched/internal/config"
)

func TestDurationFields(t *testing.T) {
	d, err := durationOrDefault("scheduler.sweep_every", "45s", time.Minute)
	if err != nil || d != 45*time.Second {
		t.Errorf("got %v, %v", d, err)
	}
	d, err = durationOrDefault("scheduler.sweep_every", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Errorf("empty: got %v, %v", d, err)
	}
	if _, err := durationField("notify.smtp.timeout", "-5s"); err == nil {
		t.Error("negative duration accepted")
	}
	if _, err := durationField("notify.smtp.timeout", "banana"); err == nil {
		t.Error("garbage duration accepted")
	}
}

func TestMapStorageConfig(t *testing.T) {
	sc, err := mapStorageConfig(&config.Config{})
	if err != nil || sc.Driver != "memory" {
		t.Errorf("no section: %+v, %v", sc, err)
	}

	sc, err = mapStorageConfig(&config.Config{Storage: &config.StorageConfig{
		Driver: "sqlite", Path: "./x.db", BusyTimeout: "5s",
	}})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if sc.BusyTimeout != 5*time.Second {
		t.Errorf("busy_timeout = %v", sc.BusyTimeout)
	}

	if _, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}); err == nil {
		t.Error("sqlite without path accepted")
	}
	if _, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "oracle"}}); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestMapDispatchConfigDefaults(t *testing.T) {
	dc, err := mapDispatchConfig(&config.Config{Scheduler: config.SchedulerConfig{Enabled: true}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if dc.DefaultTimeout != 30*time.Second || dc.SweepEvery != time.Minute {
		t.Errorf("defaults: %+v", dc)
	}
	if _, err := mapDispatchConfig(&config.Config{Scheduler: config.SchedulerConfig{SweepEvery: "soon"}}); err == nil {
		t.Error("bad sweep_every accepted")
	}
}

func TestMapChatTelegramConfig(t *testing.T) {
	if _, err := mapChatTelegramConfig(&config.Config{Chat: config.ChatConfig{
		Telegram: config.ChatTelegramConfig{Enabled: true},
	}}); err == nil {
		t.Error("enabled without token accepted")
	}

	tc, err := mapChatTelegramConfig(&config.Config{Chat: config.ChatConfig{
		Telegram: config.ChatTelegramConfig{Enabled: true, Token: "t"},
	}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if tc.PollTimeout != 10*time.Second {
		t.Errorf("poll_timeout = %v", tc.PollTimeout)
	}
}
