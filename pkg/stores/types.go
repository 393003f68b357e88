package stores

import (
	"context"
	"errors"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing has been cached yet.
var ErrNoSnapshot = errors.New("no cached snapshot")

// Snapshot is one complete fetch of the catalog.
type Snapshot struct {
	ID        string                `json:"id"`
	BaseURL   string                `json:"base_url"`
	FetchedAt time.Time             `json:"fetched_at"`
	Hubs      []alation.DocumentHub `json:"hubs"`
	Folders   []alation.Folder      `json:"folders"`
	Templates []alation.Template    `json:"templates"`
}

// SnapshotInfo summarises a stored snapshot without its records.
type SnapshotInfo struct {
	ID            string    `json:"id"`
	BaseURL       string    `json:"base_url"`
	FetchedAt     time.Time `json:"fetched_at"`
	HubCount      int       `json:"hub_count"`
	FolderCount   int       `json:"folder_count"`
	TemplateCount int       `json:"template_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActivityEntry is one line of the persisted activity log.
type ActivityEntry struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Data       string    `json:"data"` // JSON blob
}

// Store is the persistence surface used by the session and the CLI.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error

	// Catalog cache
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	LatestSnapshotInfo(ctx context.Context) (*SnapshotInfo, error)
	ClearSnapshots(ctx context.Context) error

	// Activity log
	AppendActivity(ctx context.Context, entry *ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]*ActivityEntry, error)
}
