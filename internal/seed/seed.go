package seed

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/estimate"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/pricing"
)

// RoleAdmin is the role of the seeded user.
const RoleAdmin = "admin"

//go:embed catalogs.yaml
var defaultCatalogs []byte

// gstPercent overrides the default GST percentage for some job types.
var gstPercent = map[string]float64{
	"Notebook": 12,
}

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	GSTPercent    float64
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// DefaultCatalogs returns the catalogs seeded into an empty database.
func DefaultCatalogs() (catalog.Document, error) {
	return catalog.Parse("catalogs.yaml", defaultCatalogs)
}

// Run executes the startup seed in an idempotent way. Existing rows are
// never overwritten.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	doc, err := DefaultCatalogs()
	if err != nil {
		return Stats{}, err
	}

	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	for _, set := range doc.Catalogs {
		if err := ensureCatalog(tx, set, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	if err := ensureGSTRates(tx, cfg.GSTPercent, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureRateCard(tx, pricing.DefaultRateCard(), &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(tx *sql.Tx, email, password string, stats *Stats) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`, email, string(hash), RoleAdmin); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

// ensureCatalog fills a catalog only when it has no entries yet.
func ensureCatalog(tx *sql.Tx, set catalog.Set, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM catalog_entries WHERE kind = ? AND name = ? LIMIT 1)
	`, string(set.Kind), set.Name).Scan(&exists); err != nil {
		return fmt.Errorf("check catalog %s existence: %w", set.Key, err)
	}
	if exists {
		return nil
	}

	for i, e := range set.Entries {
		if _, err := tx.Exec(`
			INSERT INTO catalog_entries (kind, name, value, concatenated, position)
			VALUES (?, ?, ?, ?, ?)
		`, string(set.Kind), set.Name, e.Value, e.Concatenated, i); err != nil {
			return fmt.Errorf("insert catalog %s entry %q: %w", set.Key, e.Value, err)
		}
	}
	stats.Inserts++
	return nil
}

func ensureGSTRates(tx *sql.Tx, fallback float64, stats *Stats) error {
	if fallback <= 0 {
		fallback = gst.DefaultPercent
	}
	for _, jobType := range estimate.JobTypes() {
		pct, ok := gstPercent[jobType]
		if !ok {
			pct = fallback
		}
		res, err := tx.Exec(`INSERT OR IGNORE INTO gst_rates (job_type, percent) VALUES (?, ?)`, jobType, pct)
		if err != nil {
			return fmt.Errorf("insert gst rate for %s: %w", jobType, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Inserts++
		}
	}
	return nil
}

func ensureRateCard(tx *sql.Tx, card pricing.RateCard, stats *Stats) error {
	for code, rate := range card.Services {
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO service_rates (service, base, per_unit)
			VALUES (?, ?, ?)
		`, string(code), rate.Base, rate.PerUnit)
		if err != nil {
			return fmt.Errorf("insert service rate %s: %w", code, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Inserts++
		}
	}
	for concatenated, amount := range card.MR {
		res, err := tx.Exec(`INSERT OR IGNORE INTO mr_rates (concatenated, amount) VALUES (?, ?)`, concatenated, amount)
		if err != nil {
			return fmt.Errorf("insert mr rate %s: %w", concatenated, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stats.Inserts++
		}
	}
	return nil
}
