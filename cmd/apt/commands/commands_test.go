package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/settings"
	"github.com/catalogtools/apt/pkg/stores"
)

func ptr(v int64) *int64 { return &v }

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /integration/v1/createAPIAccessToken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"api_access_token": "tok"}`))
	})
	serve := func(pattern string, body any) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Token") != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	serve("GET /integration/v2/user/42/", map[string]int64{"id": 42})
	serve("GET /integration/v1/document_hub/", []alation.DocumentHub{
		{ID: 1, Title: "Engineering", TemplateIDs: []int64{10}},
	})
	serve("GET /integration/v2/folder/", []alation.Folder{
		{ID: 100, Title: "Runbooks", DocumentHubID: 1},
		{ID: 101, Title: "Incidents", DocumentHubID: 1, ParentFolderID: ptr(100), TemplateID: ptr(11)},
	})
	serve("GET /integration/v1/custom_template/", []alation.Template{
		{ID: 10, Title: "Runbook", Fields: []alation.Field{{ID: 1, NameSingular: "Owner", FieldType: "TEXT"}}},
		{ID: 11, Title: "Incident", Fields: []alation.Field{
			{ID: 2, NameSingular: "Severity", FieldType: "PICKER", Options: []string{"Low", "High"}},
		}},
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// configure writes a settings file pointing at srv and returns the
// --config flag for it.
func configure(t *testing.T, srv *httptest.Server) []string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	_, err := execute(t, "--config", path, "settings", "set",
		"alation_url="+srv.URL,
		"refresh_token=secret",
		"user_id=42",
		"rate_limit=1000",
		"cache_path="+filepath.Join(dir, "cache.db"),
	)
	require.NoError(t, err)
	return []string{"--config", path}
}

func TestSettingsCommands(t *testing.T) {
	srv := newCatalogServer(t)
	flags := configure(t, srv)

	out, err := execute(t, append(flags, "settings", "show")...)
	require.NoError(t, err)
	assert.Contains(t, out, "alation_url: "+srv.URL)
	assert.NotContains(t, out, "secret")

	out, err = execute(t, append(flags, "--json", "settings", "show", "--show-secrets")...)
	require.NoError(t, err)
	var view settingsView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "secret", view.RefreshToken)
	assert.True(t, view.Valid)

	_, err = execute(t, append(flags, "settings", "set", "user_id=abc")...)
	assert.ErrorContains(t, err, "user_id must be numeric")

	_, err = execute(t, append(flags, "settings", "set", "nonsense")...)
	assert.ErrorContains(t, err, "KEY=VALUE")
}

func TestCommandsWithoutSettings(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, err := execute(t, "--config", path, "hubs")
	assert.ErrorContains(t, err, "apt settings set")

	_, err = execute(t, "--config", path, "auth", "refresh")
	assert.ErrorContains(t, err, "settings are missing or invalid")
}

func TestAuthCommands(t *testing.T) {
	srv := newCatalogServer(t)
	flags := configure(t, srv)

	out, err := execute(t, append(flags, "--json", "auth", "validate")...)
	require.NoError(t, err)
	var res authResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Refreshed)
	require.NotNil(t, res.Valid)
	assert.True(t, *res.Valid)

	out, err = execute(t, append(flags, "auth", "refresh")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Refreshed: ok")
}

func TestBrowseAndGenerate(t *testing.T) {
	srv := newCatalogServer(t)
	flags := configure(t, srv)

	out, err := execute(t, append(flags, "cache", "refetch")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Fetched 1 hubs, 2 folders, 2 templates")

	out, err = execute(t, append(flags, "--json", "hubs")...)
	require.NoError(t, err)
	var hubs []alation.DocumentHub
	require.NoError(t, json.Unmarshal([]byte(out), &hubs))
	require.Len(t, hubs, 1)
	assert.Equal(t, "Engineering", hubs[0].Title)

	out, err = execute(t, append(flags, "folders", "--hub", "1")...)
	require.NoError(t, err)
	assert.Equal(t, "Runbooks  [100]\n  Incidents  [101]\n", out)

	out, err = execute(t, append(flags, "templates", "--folder", "101")...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "*"), "own template is marked: %q", lines[1])
	assert.Contains(t, lines[1], "Incident")

	// The folder's own template is used by default
	out, err = execute(t, append(flags, "generate", "--folder", "101", "--format", "csv")...)
	require.NoError(t, err)
	assert.Contains(t, out, "11,Incident,Severity,,PICKER,false,Low|High")

	out, err = execute(t, append(flags, "generate", "--folder", "101", "--template", "10", "--format", "markdown")...)
	require.NoError(t, err)
	assert.Contains(t, out, "# Runbook")

	_, err = execute(t, append(flags, "generate", "--folder", "100")...)
	assert.ErrorContains(t, err, "--template")

	_, err = execute(t, append(flags, "generate", "--folder", "101", "--template", "99")...)
	assert.Error(t, err)

	out, err = execute(t, append(flags, "--json", "cache", "show")...)
	require.NoError(t, err)
	var info stores.SnapshotInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 2, info.FolderCount)

	out, err = execute(t, append(flags, "--json", "activity", "--limit", "100")...)
	require.NoError(t, err)
	var entries []*stores.ActivityEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	types := make(map[string]bool)
	for _, e := range entries {
		types[e.Type] = true
	}
	assert.True(t, types["cache.refetched"], "activity types: %v", types)
	assert.True(t, types["schema.generated"], "activity types: %v", types)
}

func TestGenerateToFile(t *testing.T) {
	srv := newCatalogServer(t)
	flags := configure(t, srv)
	dir := t.TempDir()

	out := filepath.Join(dir, "schema.csv")
	stdout, err := execute(t, append(flags, "generate", "--folder", "101", "--format", "csv", "--out", out)...)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "11,Incident,Severity")

	// A failed run leaves no file behind
	failed := filepath.Join(dir, "failed.csv")
	_, err = execute(t, append(flags, "generate", "--folder", "101", "--template", "99", "--out", failed)...)
	require.Error(t, err)
	assert.NoFileExists(t, failed)

	_, err = execute(t, append(flags, "generate", "--folder", "101", "--out", filepath.Join(dir, "missing", "x.txt"))...)
	assert.ErrorContains(t, err, "failed to write output file")
}

func TestAsyncActivityIsFlushedBeforeExit(t *testing.T) {
	srv := newCatalogServer(t)
	flags := configure(t, srv)

	// Deliver events from the background publisher
	path := flags[1]
	cfg, err := settings.Load(path)
	require.NoError(t, err)
	cfg.Telemetry.Events.Enabled = true
	cfg.Telemetry.Events.EnableAsync = true
	require.NoError(t, settings.Save(path, cfg))

	_, err = execute(t, append(flags, "generate", "--folder", "101", "--format", "csv")...)
	require.NoError(t, err)

	out, err := execute(t, append(flags, "--json", "activity")...)
	require.NoError(t, err)
	var entries []*stores.ActivityEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	types := make(map[string]bool)
	for _, e := range entries {
		types[e.Type] = true
	}
	assert.True(t, types["schema.generated"], "activity types: %v", types)
}
