// Package stores persists the catalog cache and the activity log in SQLite.
// The database runs in WAL mode with schema migrations embedded in the
// binary. A snapshot replaces the previous cached hubs, folders and
// templates atomically.
package stores
