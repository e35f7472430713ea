package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Importer loads YAML catalog files into the database and refreshes the
// cache so open sessions reconcile against the new lists.
type Importer struct {
	DB    *sql.DB
	Cache *Cache
	Log   Logger
}

// ImportFile imports every catalog in path and returns how many were applied.
func (im Importer) ImportFile(ctx context.Context, path string) (int, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return 0, err
	}
	for _, s := range doc.Catalogs {
		if im.DB != nil {
			if err := Replace(ctx, im.DB, s.Key, s.Entries); err != nil {
				return 0, err
			}
		}
		if im.Cache != nil {
			entries := s.Entries
			if im.DB != nil {
				// Re-read so cached entries carry their database ids.
				if stored, err := (SQLProvider{DB: im.DB}).Fetch(ctx, s.Key); err == nil {
					entries = stored
				}
			}
			im.Cache.Replace(s.Key, entries)
		}
	}
	if im.Log != nil {
		im.Log.Infow("catalog file imported", "path", path, "catalogs", len(doc.Catalogs))
	}
	return len(doc.Catalogs), nil
}

// ImportDir imports every catalog file in dir in lexical order.
func (im Importer) ImportDir(ctx context.Context, dir string) (int, error) {
	names, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read catalog dir: %w", err)
	}
	var paths []string
	for _, de := range names {
		if !de.IsDir() && IsCatalogFile(de.Name()) {
			paths = append(paths, filepath.Join(dir, de.Name()))
		}
	}
	sort.Strings(paths)

	total := 0
	for _, p := range paths {
		n, err := im.ImportFile(ctx, p)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Watch imports catalog files from dir whenever they are created or
// rewritten, collapsing bursts of events per file within debounce. It
// blocks until ctx is cancelled.
func (im Importer) Watch(ctx context.Context, dir string, debounce time.Duration) error {
	if !filepath.IsAbs(dir) {
		return errors.New("catalog dir must be absolute")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("add watch: %w", err)
	}
	return im.watchLoop(ctx, fsw.Events, fsw.Errors, debounce)
}

// watchLoop drains watcher events until ctx is cancelled or events closes.
// A closed errs channel is dropped from the select.
func (im Importer) watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, debounce time.Duration) error {
	// pending holds the last event time per path.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	flush := func(all bool) {
		now := time.Now()
		for p, t := range pending {
			if !all && now.Sub(t) < debounce {
				continue
			}
			delete(pending, p)
			if _, err := im.ImportFile(ctx, p); err != nil && im.Log != nil {
				im.Log.Errorw("catalog import failed", "path", p, "error", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				flush(true)
				return nil
			}
			if !IsCatalogFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
				pending[ev.Name] = time.Now()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if im.Log != nil {
				im.Log.Warnw("catalog watcher error", "error", err)
			}

		case <-ticker.C:
			flush(false)
		}
	}
}
