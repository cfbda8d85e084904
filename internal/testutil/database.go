package testutil

import (
	"testing"
	"time"

	"efm-go/internal/database"
	"efm-go/internal/efm"
)

// NewTestDatabase returns a migrated in-memory database whose clock ticks one
// second per timestamp, so rows created in sequence get increasing times.
// It is closed when the test ends.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	return NewTestDatabaseWithClock(t, TickingClock(time.Second))
}

// NewTestDatabaseWithClock is NewTestDatabase with a caller-provided clock.
func NewTestDatabaseWithClock(t *testing.T, clock efm.Clock) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", clock)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
