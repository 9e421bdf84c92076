package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8787", cfg.API.BaseURL)
	assert.Equal(t, ".ftops", cfg.State.Dir)
	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)
}

func TestFromYAMLKeepsDefaultsForMissingFields(t *testing.T) {
	cfg, err := FromYAML([]byte("api:\n  base_url: https://api.from-trees.com\ndev: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://api.from-trees.com", cfg.API.BaseURL)
	assert.True(t, cfg.Dev)
	assert.Equal(t, "15s", cfg.API.Timeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"relative url": "api:\n  base_url: /api\n",
		"ftp url":      "api:\n  base_url: ftp://host\n",
		"bad timeout":  "api:\n  timeout: soon\n",
		"zero timeout": "api:\n  timeout: 0s\n",
		"bad level":    "log:\n  level: loud\n",
		"bad format":   "log:\n  format: xml\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
	_, err := FromYAML([]byte("api: ["))
	assert.ErrorContains(t, err, "invalid config yaml")
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8787", cfg.Serve.Addr)
	assert.Equal(t, filepath.Join(dir, "ftops.yml"), Path(dir))
	assert.Equal(t, "ftops.yml", Path(""))
}
