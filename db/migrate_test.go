package db

import (
	"context"
	"strings"
	"testing"
)

func TestMigrate_EmptyDSN(t *testing.T) {
	if err := Migrate("", "up"); err == nil {
		t.Fatal("Migrate with empty DSN should return error")
	}
}

func TestMigrate_InvalidDirection(t *testing.T) {
	for _, direction := range []string{"", "sideways", "UP", "Down"} {
		t.Run(direction, func(t *testing.T) {
			err := Migrate("postgres://localhost/locat", direction)
			if err == nil {
				t.Fatalf("Migrate(%q) should return error", direction)
			}
			if !strings.Contains(err.Error(), "direction") {
				t.Errorf("error = %q, want direction error", err.Error())
			}
		})
	}
}

func TestMigrationFS_ContainsPairs(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("got %d up and %d down migrations, want matching non-zero counts", ups, downs)
	}
}

func TestInitDB_EmptyDSN(t *testing.T) {
	db, err := InitDB(context.Background(), "")
	if err == nil {
		db.Close()
		t.Fatal("InitDB with empty DSN should return error")
	}
}
