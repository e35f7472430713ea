package migrations

import (
	"path/filepath"
	"testing"

	"github.com/Simplici0/printbill/internal/db"
)

func TestUpCreatesSchemaAndIsRepeatable(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	for i := 0; i < 2; i++ {
		if err := Up(database); err != nil {
			t.Fatalf("run migrations (iteration=%d): %v", i, err)
		}
	}

	v, err := Version(database)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 4 {
		t.Fatalf("version=%d, want 4", v)
	}

	for _, table := range []string{"users", "catalog_entries", "gst_rates", "service_rates", "mr_rates", "estimates"} {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n); err != nil {
			t.Fatalf("query table %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}
