package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tatami-reader/tatami/pkg/models"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	want := Defaults()
	if cfg.Reader.TextScale != want.Reader.TextScale {
		t.Errorf("text scale = %v, want %v", cfg.Reader.TextScale, want.Reader.TextScale)
	}
	if cfg.Input.DragThreshold != want.Input.DragThreshold {
		t.Errorf("drag threshold = %v, want %v", cfg.Input.DragThreshold, want.Input.DragThreshold)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	cfg.Reader.TextScale = 1.5
	cfg.Reader.Direction = models.DirectionVerticalRTL
	cfg.Input.SwipeDistance = 12
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Reader.TextScale != 1.5 {
		t.Errorf("text scale = %v, want 1.5", got.Reader.TextScale)
	}
	if got.Reader.Direction != models.DirectionVerticalRTL {
		t.Errorf("direction = %v, want vertical-rtl", got.Reader.Direction)
	}
	if got.Input.SwipeDistance != 12 {
		t.Errorf("swipe distance = %v, want 12", got.Input.SwipeDistance)
	}
}

func TestClampRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	bad := `
reader:
  text_scale: 99
  page_margin: -4
  reading_direction: sideways
input:
  drag_threshold: -1
`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Reader.TextScale != 3.0 {
		t.Errorf("text scale not clamped: %v", cfg.Reader.TextScale)
	}
	if cfg.Reader.PageMargin != 0 {
		t.Errorf("page margin not clamped: %v", cfg.Reader.PageMargin)
	}
	if cfg.Reader.Direction != models.DirectionHorizontalLTR {
		t.Errorf("direction not defaulted: %v", cfg.Reader.Direction)
	}
	if cfg.Input.DragThreshold != Defaults().Input.DragThreshold {
		t.Errorf("drag threshold not defaulted: %v", cfg.Input.DragThreshold)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvDirection, string(models.DirectionVerticalLTR))
	t.Setenv(EnvLogLevel, "debug")
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Reader.Direction != models.DirectionVerticalLTR {
		t.Errorf("direction = %v, want vertical-ltr", cfg.Reader.Direction)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %v, want debug", cfg.Logging.Level)
	}
}
