package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}

	if cfg.Window.Width != 800 || cfg.Window.Height != 600 {
		t.Errorf("got window %dx%d, want 800x600", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Render.PreferMailbox() {
		t.Errorf("default present mode should be fifo")
	}
	if !cfg.Render.FatalDeviceLoss {
		t.Errorf("device loss should be fatal by default")
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
window:
  width: 1024
render:
  present_mode: mailbox
  fatal_device_loss: false
log:
  level: debug
  format: json
stats:
  interval: 250ms
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Window.Width != 1024 || cfg.Window.Height != 600 {
		t.Errorf("got window %dx%d, want 1024x600", cfg.Window.Width, cfg.Window.Height)
	}
	if cfg.Window.Title != "Quad" {
		t.Errorf("got title %q, want the default", cfg.Window.Title)
	}
	if !cfg.Render.PreferMailbox() || cfg.Render.FatalDeviceLoss {
		t.Errorf("render section not applied: %+v", cfg.Render)
	}
	if cfg.Stats.Interval != 250*time.Millisecond {
		t.Errorf("got interval %s, want 250ms", cfg.Stats.Interval)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("got level %v (%v), want debug", level, err)
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("empty document should yield the defaults")
	}
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":  "window:\n  depth: 3\n",
		"zero width":     "window:\n  width: 0\n",
		"present mode":   "render:\n  present_mode: immediate\n",
		"log level":      "log:\n  level: loud\n",
		"log format":     "log:\n  format: xml\n",
		"missing shader": "shaders:\n  vertex: \"\"\n",
		"negative stats": "stats:\n  interval: -1s\n",
		"malformed":      "window: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Errorf("expected an error for %q", doc)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.yaml")
	if err := os.WriteFile(path, []byte("window:\n  title: Loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Window.Title != "Loaded" {
		t.Errorf("got title %q, want Loaded", cfg.Window.Title)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}

func TestFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("window:\n  height: 480\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPath, path)
	cfg, err := FromEnvironment()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Window.Height != 480 {
		t.Errorf("got height %d, want 480", cfg.Window.Height)
	}
}
