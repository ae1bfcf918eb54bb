package config

import (
	"os"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `{database: {backend: "sqlite"}, embedding: {provider: "hash"}, log: {level: "info"}}`)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 20 * time.Millisecond

	got := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { got <- cfg })
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// An invalid file is ignored.
	if err := os.WriteFile(path, []byte(`{database: {backend: "oracle"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-got:
		t.Fatalf("invalid config delivered: %+v", cfg.Database)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{database: {backend: "sqlite"}, embedding: {provider: "hash"}, log: {level: "debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-got:
		if cfg.Log.Level != "debug" {
			t.Errorf("level = %q", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
