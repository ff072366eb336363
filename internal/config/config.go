// Package config holds the user-editable settings file. The file is YAML in
// the user config dir; environment variables act as read-only overrides at
// runtime. Numeric fields are clamped on load so that a hand-edited file can
// never put the reader into an unusable state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tatami-reader/tatami/pkg/models"
)

const (
	configDirName  = "tatami"
	configFileName = "config.yaml"

	// Bump when the structure changes in a backward-incompatible way.
	currentConfigVersion = 1
)

// ReaderConfig covers layout and typography settings. Any change to these
// invalidates cached page metrics for the open chapter.
type ReaderConfig struct {
	TextScale      float64                 `yaml:"text_scale"`
	LineHeight     float64                 `yaml:"line_height"`
	PageMargin     int                     `yaml:"page_margin"`
	ColumnGap      int                     `yaml:"column_gap"`
	Direction      models.ReadingDirection `yaml:"reading_direction"`
	PaginationMode models.PaginationMode   `yaml:"pagination_mode"`
	FuriganaShown  bool                    `yaml:"furigana_visible"`
	Theme          string                  `yaml:"theme"`
}

// InputConfig calibrates gesture classification.
type InputConfig struct {
	// DragThreshold is the Euclidean distance in cells beyond which a
	// gesture session is a drag, never a tap.
	DragThreshold float64 `yaml:"drag_threshold"`
	// SwipeDistance and SwipeVelocity (cells, cells/sec) gate swipe
	// navigation, evaluated independently of the drag threshold.
	SwipeDistance float64 `yaml:"swipe_distance"`
	SwipeVelocity float64 `yaml:"swipe_velocity"`
	// WheelThreshold is the accumulated wheel delta per page turn;
	// WheelCooldownMs suppresses further turns after each one.
	WheelThreshold  int `yaml:"wheel_threshold"`
	WheelCooldownMs int `yaml:"wheel_cooldown_ms"`
}

// LoggingConfig mirrors the logger options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the persisted application configuration.
type Config struct {
	ConfigVersion int           `yaml:"config_version"`
	Reader        ReaderConfig  `yaml:"reader"`
	Input         InputConfig   `yaml:"input"`
	Logging       LoggingConfig `yaml:"logging"`

	// Path of the loaded file; not persisted.
	path string `yaml:"-"`
}

// Env var names used as overrides.
const (
	EnvLogLevel    = "TATAMI_LOG_LEVEL"
	EnvLogFormat   = "TATAMI_LOG_FORMAT"
	EnvLogFile     = "TATAMI_LOG_FILE"
	EnvTextScale   = "TATAMI_TEXT_SCALE"
	EnvDirection   = "TATAMI_READING_DIRECTION"
	EnvPagination  = "TATAMI_PAGINATION_MODE"
)

// Defaults returns the application defaults.
func Defaults() Config {
	return Config{
		ConfigVersion: currentConfigVersion,
		Reader: ReaderConfig{
			TextScale:      1.0,
			LineHeight:     1.0,
			PageMargin:     2,
			ColumnGap:      0,
			Direction:      models.DirectionHorizontalLTR,
			PaginationMode: models.ModePaged,
			FuriganaShown:  true,
			Theme:          "dark",
		},
		Input: InputConfig{
			DragThreshold:   3,
			SwipeDistance:   8,
			SwipeVelocity:   40,
			WheelThreshold:  3,
			WheelCooldownMs: 150,
		},
		Logging: LoggingConfig{Level: "info", Format: "console", File: ""},
	}
}

// Load reads the config file, applies env overrides, and clamps values.
// A missing file is not an error; defaults are returned.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.clamp()
	return &cfg, nil
}

// Save persists the configuration to its path.
func (c *Config) Save() error {
	if strings.TrimSpace(c.path) == "" {
		p, err := configPath()
		if err != nil {
			return err
		}
		c.path = p
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	c.ConfigVersion = currentConfigVersion
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Layout builds the LayoutParameters snapshot for a given viewport.
func (c *Config) Layout(width, height int) models.LayoutParameters {
	return models.LayoutParameters{
		ViewportWidth:  width,
		ViewportHeight: height,
		Padding:        c.Reader.PageMargin,
		ColumnGap:      c.Reader.ColumnGap,
		TextScale:      c.Reader.TextScale,
		Direction:      c.Reader.Direction,
		Mode:           c.Reader.PaginationMode,
		FuriganaShown:  c.Reader.FuriganaShown,
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogFile); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv(EnvTextScale); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Reader.TextScale = f
		}
	}
	if v := os.Getenv(EnvDirection); v != "" {
		c.Reader.Direction = models.ReadingDirection(v)
	}
	if v := os.Getenv(EnvPagination); v != "" {
		c.Reader.PaginationMode = models.PaginationMode(v)
	}
}

func (c *Config) clamp() {
	d := Defaults()

	c.Reader.TextScale = clampF(c.Reader.TextScale, 0.5, 3.0)
	c.Reader.LineHeight = clampF(c.Reader.LineHeight, 1.0, 3.0)
	c.Reader.PageMargin = clampI(c.Reader.PageMargin, 0, 16)
	c.Reader.ColumnGap = clampI(c.Reader.ColumnGap, 0, 8)
	switch c.Reader.Direction {
	case models.DirectionHorizontalLTR, models.DirectionVerticalRTL, models.DirectionVerticalLTR:
	default:
		c.Reader.Direction = d.Reader.Direction
	}
	switch c.Reader.PaginationMode {
	case models.ModePaged, models.ModeContinuous:
	default:
		c.Reader.PaginationMode = d.Reader.PaginationMode
	}

	if c.Input.DragThreshold <= 0 {
		c.Input.DragThreshold = d.Input.DragThreshold
	}
	if c.Input.SwipeDistance <= 0 {
		c.Input.SwipeDistance = d.Input.SwipeDistance
	}
	if c.Input.SwipeVelocity <= 0 {
		c.Input.SwipeVelocity = d.Input.SwipeVelocity
	}
	if c.Input.WheelThreshold <= 0 {
		c.Input.WheelThreshold = d.Input.WheelThreshold
	}
	if c.Input.WheelCooldownMs <= 0 {
		c.Input.WheelCooldownMs = d.Input.WheelCooldownMs
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", herr
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName, configFileName), nil
}
