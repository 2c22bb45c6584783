package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masterd/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "library", cfg.LibraryDir)
	assert.Equal(t, 15*time.Second, cfg.ChunkDuration)
	assert.Equal(t, 128, cfg.BitrateKbps)
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 8<<20, cfg.HotTierBytes)
	assert.Equal(t, 256<<20, cfg.WarmTierBytes)
	assert.Empty(t, cfg.WarmDiskDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 6, cfg.WindowSize)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, models.PhilosophyNeutral, cfg.DefaultPreset)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"Listen": ":9999",
		"LogLevel": "debug",
		"LibraryDir": "/music",
		"ChunkSeconds": 10,
		"BitrateKbps": 96,
		"SampleRate": 24000,
		"Channels": 1,
		"HotTierBytes": 1048576,
		"WarmTierBytes": 4194304,
		"WarmDiskDir": "/var/cache/masterd",
		"Workers": 8,
		"WindowSize": 4,
		"RequestTimeoutSeconds": 5,
		"DefaultPreset": "enhance"
	}`))
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/music", cfg.LibraryDir)
	assert.Equal(t, 10*time.Second, cfg.ChunkDuration)
	assert.Equal(t, 96, cfg.BitrateKbps)
	assert.Equal(t, 24000, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, "/var/cache/masterd", cfg.WarmDiskDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 4, cfg.WindowSize)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, models.PhilosophyEnhance, cfg.DefaultPreset)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"unknown preset", `{"DefaultPreset": "maximal"}`},
		{"unsupported sample rate", `{"SampleRate": 44100}`},
		{"unsupported channels", `{"Channels": 6}`},
		{"hot exceeds warm", `{"HotTierBytes": 100, "WarmTierBytes": 50}`},
		{"negative workers", `{"Workers": -1}`},
		{"negative window", `{"WindowSize": -2}`},
		{"malformed json", `{`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
