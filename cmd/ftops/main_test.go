package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/prefs"
	ftopssdk "ftops/sdk/go"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ftops.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("config", writeConfig(t, "api:\n  base_url: http://file.example:8787\n  timeout: 5s\nlog:\n  level: info\n"))
	viper.Set("base-url", "http://flag.example:9000")
	viper.Set("state-dir", "/tmp/ftops-state")
	viper.Set("dev", true)

	c, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example:9000", c.API.BaseURL)
	assert.Equal(t, "5s", c.API.Timeout)
	assert.Equal(t, "/tmp/ftops-state", c.State.Dir)
	assert.Equal(t, "info", c.Log.Level)
	assert.True(t, c.Dev)
}

func TestLoadConfigRejectsInvalidLogLevel(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("config", writeConfig(t, "api:\n  base_url: http://localhost:8787\n"))
	viper.Set("log-level", "loud")

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestReadJSONArg(t *testing.T) {
	v, err := readJSONArg(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"b":2}`), 0o644))
	v, err = readJSONArg("@" + path)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, v)

	_, err = readJSONArg("@" + filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMessagePrefersAPIBody(t *testing.T) {
	assert.Equal(t, "boom", message(errors.New("boom")))
	apiErr := &ftopssdk.APIError{StatusCode: 404, Code: "record_not_found"}
	assert.NotContains(t, message(apiErr), "status=404")
}

func TestKnownPref(t *testing.T) {
	assert.True(t, knownPref(prefs.KeyRecordURI))
	assert.False(t, knownPref("ftops-ui:nope"))
}

func TestCommandTree(t *testing.T) {
	registerCommands()
	t.Cleanup(func() { rootCmd.ResetCommands() })
	for _, path := range [][]string{
		{"preview", "materialize"},
		{"templates", "steps", "move"},
		{"projects", "task", "status"},
		{"demo", "send"},
		{"dev", "serve"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
