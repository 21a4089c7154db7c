// database/memory.go
package database

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/petshop/backend/config"
)

// OpenMemory opens a migrated in-memory SQLite store for tests and closes it
// when the test ends.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, config.DatabaseConfig{Driver: string(DialectSQLite), Path: ":memory:"}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("database.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("database.OpenMemory: %v", err)
	}
	return s
}
