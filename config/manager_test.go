package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFixture(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
}

func TestManagerLoadsInitialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFixture(t, path, `{"port": 7000}`)

	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	defer m.Close()

	if m.Current().Port != 7000 {
		t.Errorf("Current().Port = %d, want 7000", m.Current().Port)
	}
}

func TestManagerReloadsOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFixture(t, path, `{"port": 7000}`)

	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	defer m.Close()

	reloaded := make(chan *Config, 1)
	m.OnReload(func(c *Config) { reloaded <- c })

	writeConfigFixture(t, path, `{"port": 9000}`)

	select {
	case c := <-reloaded:
		if c.Port != 9000 {
			t.Errorf("reloaded Port = %d, want 9000", c.Port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload after file write")
	}

	if m.Current().Port != 9000 {
		t.Errorf("Current().Port = %d, want 9000 after reload", m.Current().Port)
	}
}

func TestManagerKeepsPreviousConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeConfigFixture(t, path, `{"port": 7000}`)

	m, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	defer m.Close()

	writeConfigFixture(t, path, `{not valid json`)
	time.Sleep(200 * time.Millisecond)

	if m.Current().Port != 7000 {
		t.Errorf("Current().Port = %d, want 7000 (unchanged after invalid reload)", m.Current().Port)
	}
}

func TestNewManagerMissingFileReturnsError(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "missing.json"), nil)
	if err == nil {
		t.Error("expected an error when the initial config file is missing")
	}
}
