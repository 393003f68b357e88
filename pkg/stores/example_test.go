package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveSnapshot demonstrates persisting and reloading the catalog cache.
func ExampleSQLiteStore_SaveSnapshot() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	snap := &stores.Snapshot{
		BaseURL:   "https://catalog.example.com",
		FetchedAt: time.Now(),
		Hubs:      []alation.DocumentHub{{ID: 1, Title: "Engineering"}},
		Folders:   []alation.Folder{{ID: 10, Title: "Runbooks", DocumentHubID: 1}},
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		log.Fatal(err)
	}

	loaded, err := store.LoadSnapshot(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d hub(s), %d folder(s)\n", len(loaded.Hubs), len(loaded.Folders))
	// Output: 1 hub(s), 1 folder(s)
}
