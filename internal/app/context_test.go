package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ftops/internal/config"
	"ftops/internal/prefs"
)

func TestOpenPersistsPreferences(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.State.Dir = t.TempDir()
	cfg.Dev = true

	env, err := Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, env.Prefs.Set(ctx, prefs.KeyDebugEmail, "ops@from-trees.com"))
	require.NoError(t, env.Close())

	env, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, "ops@from-trees.com", env.Client.DebugEmail)
	assert.Equal(t, cfg.API.BaseURL, env.Client.BaseURL)
}

func TestNewClientSkipsDebugEmailOutsideDev(t *testing.T) {
	p := prefs.NewMemory()
	require.NoError(t, p.Set(context.Background(), prefs.KeyDebugEmail, "ops@from-trees.com"))
	cfg := config.Default()
	cfg.API.SessionToken = "tok"
	c, err := NewClient(cfg, p, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, c.DebugEmail)
	assert.Equal(t, "tok", c.SessionToken)

	cfg.API.Timeout = "never"
	_, err = NewClient(cfg, p, zap.NewNop())
	assert.Error(t, err)
}
