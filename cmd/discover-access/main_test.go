package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftops/internal/access"
)

func TestHostFlagReachesDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/accounts/acct/access/apps":
			_, _ = w.Write([]byte(`{"success":true,"result":[{"id":"ops","name":"Ops","domain":"ops.from-trees.com"},{"id":"api","name":"API","domain":"api.from-trees.com"}],"result_info":{"page":1,"total_pages":1}}`))
		case "/accounts/acct/access/apps/api/policies":
			_, _ = w.Write([]byte(`{"success":true,"result":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	strayOut := filepath.Join(t.TempDir(), "stray.json")
	t.Setenv("CLOUDFLARE_API_TOKEN", "tok")
	t.Setenv("CLOUDFLARE_ACCOUNT_ID", "acct")
	t.Setenv("CLOUDFLARE_API_BASE_URL", srv.URL)
	t.Setenv("CLOUDFLARE_HOST", "ops.from-trees.com")
	t.Setenv("CLOUDFLARE_OUT", strayOut)
	t.Cleanup(viper.Reset)

	addFlags()
	initConfig()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--host", "api.from-trees.com"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	var report access.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, []string{"api.from-trees.com"}, report.Hosts)
	require.Len(t, report.Apps, 1)
	assert.Equal(t, "api", report.Apps[0].ID)

	_, err := os.Stat(strayOut)
	assert.True(t, os.IsNotExist(err), "CLOUDFLARE_OUT must not set the output path")
}
