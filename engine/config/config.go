package config

import (
	"bytes"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/triangle/engine/core"
)

const DefaultPath = "config.toml"

type Window struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Renderer struct {
	FramesInFlight int `toml:"frames_in_flight"`
	// Timeouts are in milliseconds.
	FenceTimeoutMS   int64      `toml:"fence_timeout_ms"`
	AcquireTimeoutMS int64      `toml:"acquire_timeout_ms"`
	Validation       bool       `toml:"validation"`
	ValidationLayers []string   `toml:"validation_layers"`
	ClearColor       [4]float32 `toml:"clear_color"`
	ShaderDir        string     `toml:"shader_dir"`
	HotReload        bool       `toml:"hot_reload"`
}

type Config struct {
	LogLevel string   `toml:"log_level"`
	Window   Window   `toml:"window"`
	Renderer Renderer `toml:"renderer"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Window: Window{
			Title:  "Hello this is window",
			X:      100,
			Y:      100,
			Width:  800,
			Height: 600,
		},
		Renderer: Renderer{
			FramesInFlight:   2,
			FenceTimeoutMS:   1000,
			AcquireTimeoutMS: 1000,
			Validation:       true,
			ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},
			ClearColor:       [4]float32{0, 0, 0, 1},
			ShaderDir:        "assets/shaders/spv",
			HotReload:        false,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogInfo("no configuration found at %s, using defaults", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := Decode(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Decode merges the TOML document in data into cfg and validates the result.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return errors.Newf("unknown configuration keys:\n%s", strict.String())
		}
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.Newf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	case c.Renderer.FramesInFlight < 1:
		return errors.Newf("frames_in_flight must be at least 1, got %d", c.Renderer.FramesInFlight)
	case c.Renderer.FenceTimeoutMS <= 0:
		return errors.Newf("fence_timeout_ms must be positive, got %d", c.Renderer.FenceTimeoutMS)
	case c.Renderer.AcquireTimeoutMS <= 0:
		return errors.Newf("acquire_timeout_ms must be positive, got %d", c.Renderer.AcquireTimeoutMS)
	case c.Renderer.ShaderDir == "":
		return errors.New("shader_dir must not be empty")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "log_level %q", c.LogLevel)
	}
	return nil
}

func (r Renderer) FenceTimeout() time.Duration {
	return time.Duration(r.FenceTimeoutMS) * time.Millisecond
}

func (r Renderer) AcquireTimeout() time.Duration {
	return time.Duration(r.AcquireTimeoutMS) * time.Millisecond
}
