// Package doctrack provides a minimal public API for embedding the document
// lifecycle core in other Go programs.
//
// Most integrations should go through the HTTP API layer; this package exports
// only the types and constructors needed to drive the lifecycle engine and
// storage layer programmatically.
package doctrack

import (
	"context"

	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/storage/sqlite"
	"github.com/doctrack/doctrack/internal/workspace"
)

// Version is the doctrack release version.
const Version = "0.4.0"

// Storage is the interface for document storage operations.
type Storage = storage.Storage

// Transaction provides atomic multi-operation support within a database
// transaction. Use Storage.RunInTransaction() to obtain one.
type Transaction = storage.Transaction

// NewSQLiteStorage creates a new SQLite storage instance at the given path.
func NewSQLiteStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// FindWorkspaceDir finds the .doctrack/ directory in the current directory
// tree. Returns empty string if not found.
func FindWorkspaceDir() string {
	return workspace.FindDir()
}

// FindDatabasePath finds the doctrack database in the current directory tree.
func FindDatabasePath() string {
	return workspace.FindDatabasePath()
}
