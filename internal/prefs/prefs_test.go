package prefs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/db"
	"ftops/internal/migrate"
)

func openSQLStore(t *testing.T, dir string) SQLStore {
	t.Helper()
	conn, err := db.Open(db.Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, migrate.Console))
	return SQLStore{DB: conn}
}

func TestPrefsPersistAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	p, err := Open(ctx, openSQLStore(t, dir))
	require.NoError(t, err)
	require.NoError(t, p.Set(ctx, KeyRecordURI, "manual://proposal/demo"))
	require.NoError(t, p.SetActiveTab(ctx, TabProjects))
	require.NoError(t, p.SetBool(ctx, KeyAutoRunPreview, false))

	reopened, err := Open(ctx, openSQLStore(t, dir))
	require.NoError(t, err)
	assert.Equal(t, "manual://proposal/demo", reopened.RecordURI())
	assert.Equal(t, TabProjects, reopened.ActiveTab())
	assert.False(t, reopened.AutoRunPreview())
}

func TestPrefsDefaults(t *testing.T) {
	p := NewMemory()
	assert.Equal(t, TabPreview, p.ActiveTab())
	assert.True(t, p.AutoRunPreview())
	assert.Empty(t, p.WorkspaceID())

	require.NoError(t, p.Set(context.Background(), KeyTab, "bogus"))
	assert.Equal(t, TabPreview, p.ActiveTab())
	assert.Error(t, p.SetActiveTab(context.Background(), "bogus"))
}

func TestPrefsJSONAndUnset(t *testing.T) {
	ctx := context.Background()
	p := NewMemory()
	type blob struct {
		Count int `json:"count"`
	}
	require.NoError(t, p.SetJSON(ctx, KeyDemoState, blob{Count: 3}))
	var got blob
	require.True(t, p.GetJSON(KeyDemoState, &got))
	assert.Equal(t, 3, got.Count)

	require.NoError(t, p.Set(ctx, KeyDemoState, "{not json"))
	assert.False(t, p.GetJSON(KeyDemoState, &got))

	require.NoError(t, p.SetOrUnset(ctx, KeyProjectID, "p1"))
	assert.Equal(t, "p1", p.ProjectID())
	require.NoError(t, p.SetOrUnset(ctx, KeyProjectID, ""))
	_, ok := p.Get(KeyProjectID)
	assert.False(t, ok)
	assert.NotContains(t, p.Keys(), KeyProjectID)
}
