package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenAppliesPragmasToEveryConnection(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	database.SetMaxOpenConns(3)

	for i := 0; i < 3; i++ {
		conn, err := database.Conn(t.Context())
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		defer conn.Close()

		var fk int
		if err := conn.QueryRowContext(t.Context(), `PRAGMA foreign_keys`).Scan(&fk); err != nil {
			t.Fatalf("query foreign_keys: %v", err)
		}
		if fk != 1 {
			t.Fatalf("conn %d: foreign_keys=%d, want 1", i, fk)
		}
		var mode string
		if err := conn.QueryRowContext(t.Context(), `PRAGMA journal_mode`).Scan(&mode); err != nil {
			t.Fatalf("query journal_mode: %v", err)
		}
		if !strings.EqualFold(mode, "wal") {
			t.Fatalf("conn %d: journal_mode=%q, want wal", i, mode)
		}
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDSNKeepsExistingQuery(t *testing.T) {
	got := dsn("app.db?mode=ro")
	if !strings.HasPrefix(got, "file:app.db?mode=ro&_pragma=") {
		t.Fatalf("dsn=%q", got)
	}
}
