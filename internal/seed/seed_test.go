package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/db"
	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/migrations"
	"github.com/Simplici0/printbill/internal/pricing"
)

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := Config{
		AdminEmail:    "Admin@PrintBill.test",
		AdminPassword: "12345",
	}

	doc, err := DefaultCatalogs()
	if err != nil {
		t.Fatalf("parse default catalogs: %v", err)
	}
	card := pricing.DefaultRateCard()
	wantInserts := 1 + len(doc.Catalogs) + len(estimate.JobTypes()) + len(card.Services) + len(card.MR)

	for i := 0; i < 5; i++ {
		stats, err := Run(database, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != wantInserts {
				t.Fatalf("expected %d inserts in first run, got %d", wantInserts, stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM users WHERE email = ? AND role = 'admin'`, "admin@printbill.test", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM gst_rates`, nil, len(estimate.JobTypes()))
	assertCount(t, database, `SELECT COUNT(*) FROM service_rates`, nil, len(card.Services))

	var hash string
	if err := database.QueryRow(`SELECT password_hash FROM users WHERE email = ?`, "admin@printbill.test").Scan(&hash); err != nil {
		t.Fatalf("query admin hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("12345")); err != nil {
		t.Fatalf("expected admin hash to match password: %v", err)
	}
}

func TestSeededDataServesTheEngine(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "seed-engine.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()
	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := Run(database, Config{}); err != nil {
		t.Fatalf("run seed: %v", err)
	}
	ctx := context.Background()

	entries, err := catalog.SQLProvider{DB: database}.Fetch(ctx, catalog.MRTypes(string(estimate.LP)))
	if err != nil {
		t.Fatalf("fetch LP MR catalog: %v", err)
	}
	if len(entries) == 0 || entries[0].Value != estimate.FallbackValue(catalog.MRTypes("LP")) {
		t.Fatalf("expected LP MR catalog to start with the fallback value, got %+v", entries)
	}

	pct, err := gst.SQLProvider{DB: database}.FetchRate(ctx, "Notebook")
	if err != nil || pct != 12 {
		t.Fatalf("expected notebook gst 12, got %v (err=%v)", pct, err)
	}

	card, err := pricing.LoadRateCard(ctx, database)
	if err != nil {
		t.Fatalf("load rate card: %v", err)
	}
	if card.MR["LP MR SIMPLE"] != pricing.DefaultRateCard().MR["LP MR SIMPLE"] {
		t.Fatalf("expected seeded MR rates, got %v", card.MR)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM users`, nil, 0)
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
