package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "Hello this is window", cfg.Window.Title)
	assert.Equal(t, 2, cfg.Renderer.FramesInFlight)
	assert.Equal(t, time.Second, cfg.Renderer.FenceTimeout())
	assert.Equal(t, []string{"VK_LAYER_KHRONOS_validation"}, cfg.Renderer.ValidationLayers)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[window]
width = 1024

[renderer]
frames_in_flight = 3
acquire_timeout_ms = 250
hot_reload = true
clear_color = [0.1, 0.2, 0.3, 1.0]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint32(1024), cfg.Window.Width)
	assert.Equal(t, uint32(600), cfg.Window.Height)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.AcquireTimeout())
	assert.Equal(t, time.Second, cfg.Renderer.FenceTimeout())
	assert.True(t, cfg.Renderer.HotReload)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Renderer.ClearColor)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"unknown key", "[renderer]\nframes = 2\n", "unknown configuration keys"},
		{"zero frames", "[renderer]\nframes_in_flight = 0\n", "frames_in_flight"},
		{"zero width", "[window]\nwidth = 0\n", "window size"},
		{"negative fence timeout", "[renderer]\nfence_timeout_ms = -1\n", "fence_timeout_ms"},
		{"zero acquire timeout", "[renderer]\nacquire_timeout_ms = 0\n", "acquire_timeout_ms"},
		{"bad log level", "log_level = \"loud\"\n", "log_level"},
		{"empty shader dir", "[renderer]\nshader_dir = \"\"\n", "shader_dir"},
		{"syntax", "[window\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode([]byte(tt.doc), Default())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
