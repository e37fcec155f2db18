// Package config holds the renderer settings. Every field has a default, so the program runs
// without a config file.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "QUAD_CONFIG"

// DefaultPath is read when EnvPath is unset and the file exists.
const DefaultPath = "quad.yaml"

const (
	PresentModeFIFO    = "fifo"
	PresentModeMailbox = "mailbox"
)

type Config struct {
	Window  Window  `yaml:"window"`
	Shaders Shaders `yaml:"shaders"`
	Render  Render  `yaml:"render"`
	Log     Log     `yaml:"log"`
	Stats   Stats   `yaml:"stats"`
}

type Window struct {
	Title  string `yaml:"title"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Shaders are paths to compiled SPIR-V, relative to the working directory.
type Shaders struct {
	Vertex   string `yaml:"vertex"`
	Fragment string `yaml:"fragment"`
}

type Render struct {
	// Validation enables the Khronos validation layer and routes its messages to the log.
	Validation bool `yaml:"validation"`
	// PresentMode is fifo or mailbox. Mailbox falls back to fifo when unsupported.
	PresentMode string `yaml:"present_mode"`
	// FatalDeviceLoss ends the program when the device is lost mid-frame instead of
	// logging and carrying on.
	FatalDeviceLoss bool `yaml:"fatal_device_loss"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Stats struct {
	// Interval between frame statistics reports. Zero disables them.
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		Window: Window{
			Title:  "Quad",
			Width:  800,
			Height: 600,
		},
		Shaders: Shaders{
			Vertex:   "shaders/vert.spv",
			Fragment: "shaders/frag.spv",
		},
		Render: Render{
			Validation:      false,
			PresentMode:     PresentModeFIFO,
			FatalDeviceLoss: true,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Stats: Stats{
			Interval: 5 * time.Second,
		},
	}
}

// Parse overlays YAML onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	err := decoder.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg, err := Parse(data)
	return cfg, errors.Wrapf(err, "config %s", path)
}

// FromEnvironment loads the file named by $QUAD_CONFIG, else quad.yaml when present, else
// returns the defaults.
func FromEnvironment() (*Config, error) {
	if path, ok := os.LookupEnv(EnvPath); ok && path != "" {
		return Load(path)
	}

	_, err := os.Stat(DefaultPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(DefaultPath)
}

func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}

	if c.Shaders.Vertex == "" || c.Shaders.Fragment == "" {
		return errors.New("both shader paths are required")
	}

	switch c.Render.PresentMode {
	case PresentModeFIFO, PresentModeMailbox:
	default:
		return errors.Newf("unknown present mode %q", c.Render.PresentMode)
	}

	_, err := c.Log.SlogLevel()
	if err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Newf("unknown log format %q", c.Log.Format)
	}

	if c.Stats.Interval < 0 {
		return errors.Newf("negative stats interval %s", c.Stats.Interval)
	}

	return nil
}

// PreferMailbox reports whether the mailbox present mode was requested.
func (r Render) PreferMailbox() bool {
	return r.PresentMode == PresentModeMailbox
}

func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(l.Level))
	if err != nil {
		return level, errors.Wrapf(err, "log level %q", l.Level)
	}
	return level, nil
}
