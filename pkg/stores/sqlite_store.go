package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/catalogtools/apt/pkg/alation"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// memoryPath is the special path of a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database, creating its directory, and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.cfg.Path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(s.cfg.Path), 0o700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveSnapshot stores a snapshot and drops every older one in a single
// transaction. An empty ID is filled with a new UUID.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Cascades to hubs, folders and templates
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, base_url, fetched_at, hub_count, folder_count, template_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.BaseURL, snap.FetchedAt, len(snap.Hubs), len(snap.Folders), len(snap.Templates), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	for _, h := range snap.Hubs {
		ids, err := json.Marshal(nonNilIDs(h.TemplateIDs))
		if err != nil {
			return fmt.Errorf("failed to encode template ids of hub %d: %w", h.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO hubs (id, snapshot_id, title, description, template_ids)
			VALUES (?, ?, ?, ?, ?)
		`, h.ID, snap.ID, h.Title, h.Description, string(ids))
		if err != nil {
			return fmt.Errorf("failed to store hub %d: %w", h.ID, err)
		}
	}

	for _, f := range snap.Folders {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO folders (id, snapshot_id, title, description, document_hub_id, parent_folder_id, template_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, f.ID, snap.ID, f.Title, f.Description, f.DocumentHubID, nullInt(f.ParentFolderID), nullInt(f.TemplateID))
		if err != nil {
			return fmt.Errorf("failed to store folder %d: %w", f.ID, err)
		}
	}

	for _, t := range snap.Templates {
		fields, err := json.Marshal(t.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields of template %d: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO templates (id, snapshot_id, title, fields)
			VALUES (?, ?, ?, ?)
		`, t.ID, snap.ID, t.Title, string(fields))
		if err != nil {
			return fmt.Errorf("failed to store template %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LatestSnapshotInfo returns the summary of the newest snapshot.
func (s *SQLiteStore) LatestSnapshotInfo(ctx context.Context) (*SnapshotInfo, error) {
	query := `
		SELECT id, base_url, fetched_at, hub_count, folder_count, template_count, created_at
		FROM snapshots
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	info := &SnapshotInfo{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&info.ID,
		&info.BaseURL,
		&info.FetchedAt,
		&info.HubCount,
		&info.FolderCount,
		&info.TemplateCount,
		&info.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return info, nil
}

// LoadSnapshot returns the newest snapshot with all its records, or
// ErrNoSnapshot.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	info, err := s.LatestSnapshotInfo(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ID:        info.ID,
		BaseURL:   info.BaseURL,
		FetchedAt: info.FetchedAt,
	}

	if snap.Hubs, err = s.loadHubs(ctx, info.ID); err != nil {
		return nil, err
	}
	if snap.Folders, err = s.loadFolders(ctx, info.ID); err != nil {
		return nil, err
	}
	if snap.Templates, err = s.loadTemplates(ctx, info.ID); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SQLiteStore) loadHubs(ctx context.Context, snapshotID string) ([]alation.DocumentHub, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, template_ids
		FROM hubs
		WHERE snapshot_id = ?
		ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hubs: %w", err)
	}
	defer rows.Close()

	var hubs []alation.DocumentHub
	for rows.Next() {
		var h alation.DocumentHub
		var ids string
		if err := rows.Scan(&h.ID, &h.Title, &h.Description, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan hub: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &h.TemplateIDs); err != nil {
			return nil, fmt.Errorf("failed to decode template ids of hub %d: %w", h.ID, err)
		}
		hubs = append(hubs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hubs: %w", err)
	}
	return hubs, nil
}

func (s *SQLiteStore) loadFolders(ctx context.Context, snapshotID string) ([]alation.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, document_hub_id, parent_folder_id, template_id
		FROM folders
		WHERE snapshot_id = ?
		ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []alation.Folder
	for rows.Next() {
		var f alation.Folder
		var parent, template sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Title, &f.Description, &f.DocumentHubID, &parent, &template); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		f.ParentFolderID = fromNullInt(parent)
		f.TemplateID = fromNullInt(template)
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating folders: %w", err)
	}
	return folders, nil
}

func (s *SQLiteStore) loadTemplates(ctx context.Context, snapshotID string) ([]alation.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, fields
		FROM templates
		WHERE snapshot_id = ?
		ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []alation.Template
	for rows.Next() {
		var t alation.Template
		var fields string
		if err := rows.Scan(&t.ID, &t.Title, &fields); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(fields), &t.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields of template %d: %w", t.ID, err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return templates, nil
}

// ClearSnapshots deletes every cached snapshot.
func (s *SQLiteStore) ClearSnapshots(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

// AppendActivity appends an entry to the activity log
func (s *SQLiteStore) AppendActivity(ctx context.Context, entry *ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = "info"
	}
	if entry.Data == "" {
		entry.Data = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, occurred_at, type, level, message, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.OccurredAt, entry.Type, entry.Level, entry.Message, entry.Data)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivity returns the most recent activity entries, newest first.
func (s *SQLiteStore) ListActivity(ctx context.Context, limit int) ([]*ActivityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, type, level, message, data
		FROM activity
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var entries []*ActivityEntry
	for rows.Next() {
		entry := &ActivityEntry{}
		if err := rows.Scan(&entry.ID, &entry.OccurredAt, &entry.Type, &entry.Level, &entry.Message, &entry.Data); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return entries, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
