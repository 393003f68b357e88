package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ptr(v int64) *int64 { return &v }

func testSnapshot() *Snapshot {
	return &Snapshot{
		BaseURL:   "https://catalog.example.com",
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Hubs: []alation.DocumentHub{
			{ID: 1, Title: "Engineering", TemplateIDs: []int64{10, 11}},
			{ID: 2, Title: "Empty Hub"},
		},
		Folders: []alation.Folder{
			{ID: 100, Title: "Runbooks", DocumentHubID: 1},
			{ID: 101, Title: "Incidents", DocumentHubID: 1, ParentFolderID: ptr(100), TemplateID: ptr(11)},
		},
		Templates: []alation.Template{
			{ID: 10, Title: "Runbook", Fields: []alation.Field{
				{ID: 1, NameSingular: "Owner", FieldType: "OBJECT_SET", AllowMultiple: true},
				{ID: 2, NameSingular: "Tier", FieldType: "PICKER", Options: []string{"1", "2"}},
			}},
			{ID: 11, Title: "Incident"},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "nested", "apt.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// Running migrations twice is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"snapshots", "hubs", "folders", "templates", "activity"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestLoadSnapshotEmpty(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LoadSnapshot(context.Background())
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := testSnapshot()
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("failed to save snapshot: %v", err)
	}
	if snap.ID == "" {
		t.Fatal("expected snapshot id to be assigned")
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}

	if loaded.ID != snap.ID || loaded.BaseURL != snap.BaseURL {
		t.Errorf("unexpected snapshot header: %+v", loaded)
	}
	if !loaded.FetchedAt.Equal(snap.FetchedAt) {
		t.Errorf("expected fetched_at %v, got %v", snap.FetchedAt, loaded.FetchedAt)
	}
	if len(loaded.Hubs) != 2 || len(loaded.Folders) != 2 || len(loaded.Templates) != 2 {
		t.Fatalf("unexpected record counts: %d hubs, %d folders, %d templates",
			len(loaded.Hubs), len(loaded.Folders), len(loaded.Templates))
	}

	if ids := loaded.Hubs[0].TemplateIDs; len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Errorf("unexpected hub template ids: %v", ids)
	}
	if len(loaded.Hubs[1].TemplateIDs) != 0 {
		t.Errorf("expected no template ids for empty hub, got %v", loaded.Hubs[1].TemplateIDs)
	}

	root, child := loaded.Folders[0], loaded.Folders[1]
	if root.ParentFolderID != nil || root.TemplateID != nil {
		t.Errorf("root folder should have no parent or template: %+v", root)
	}
	if child.ParentFolderID == nil || *child.ParentFolderID != 100 {
		t.Errorf("expected child parent 100, got %v", child.ParentFolderID)
	}
	if child.TemplateID == nil || *child.TemplateID != 11 {
		t.Errorf("expected child template 11, got %v", child.TemplateID)
	}

	fields := loaded.Templates[0].Fields
	if len(fields) != 2 || !fields[0].AllowMultiple || fields[1].Options[1] != "2" {
		t.Errorf("unexpected template fields: %+v", fields)
	}

	info, err := store.LatestSnapshotInfo(ctx)
	if err != nil {
		t.Fatalf("failed to get snapshot info: %v", err)
	}
	if info.HubCount != 2 || info.FolderCount != 2 || info.TemplateCount != 2 {
		t.Errorf("unexpected counts in info: %+v", info)
	}
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, testSnapshot()); err != nil {
		t.Fatalf("failed to save first snapshot: %v", err)
	}

	second := &Snapshot{
		FetchedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Hubs:      []alation.DocumentHub{{ID: 9, Title: "Only"}},
	}
	if err := store.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("failed to save second snapshot: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("failed to load snapshot: %v", err)
	}
	if loaded.ID != second.ID || len(loaded.Hubs) != 1 || len(loaded.Folders) != 0 {
		t.Errorf("expected only the second snapshot, got %+v", loaded)
	}

	var folders int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders").Scan(&folders); err != nil {
		t.Fatalf("count folders: %v", err)
	}
	if folders != 0 {
		t.Errorf("expected old folders to be cascaded away, found %d", folders)
	}

	if err := store.ClearSnapshots(ctx); err != nil {
		t.Fatalf("failed to clear: %v", err)
	}
	if _, err := store.LoadSnapshot(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot after clear, got %v", err)
	}
}

func TestActivityLog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{"hub.selected", "folder.selected", "schema.generated"} {
		entry := &ActivityEntry{
			OccurredAt: base.Add(time.Duration(i) * time.Minute),
			Type:       typ,
			Message:    typ,
		}
		if err := store.AppendActivity(ctx, entry); err != nil {
			t.Fatalf("failed to append activity: %v", err)
		}
		if entry.ID == "" || entry.Level != "info" || entry.Data != "{}" {
			t.Errorf("expected defaults to be filled in: %+v", entry)
		}
	}

	entries, err := store.ListActivity(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list activity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != "schema.generated" || entries[1].Type != "folder.selected" {
		t.Errorf("expected newest first, got %s then %s", entries[0].Type, entries[1].Type)
	}
}
