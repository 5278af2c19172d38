package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/larder-app/larder/internal/database"
	"github.com/larder-app/larder/internal/model"
)

func openStoreDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(email, "Test User", "hash")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedHousehold(t *testing.T, db *sql.DB, createdBy int64) *model.Household {
	t.Helper()
	h, err := NewHouseholdStore(db).Create("Test House", createdBy)
	if err != nil {
		t.Fatalf("seed household: %v", err)
	}
	return h
}
