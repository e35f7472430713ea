package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printbill/internal/db"
	"github.com/Simplici0/printbill/internal/migrations"
)

type stubProvider struct {
	mu      sync.Mutex
	entries map[Key][]Entry
	fail    error
	calls   int
	release chan struct{}
}

func (p *stubProvider) Fetch(ctx context.Context, key Key) ([]Entry, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	return p.entries[key], nil
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey("mrTypes", " LP ")
	require.NoError(t, err)
	require.Equal(t, MRTypes("LP"), k)
	require.Equal(t, "mrTypes/LP", k.String())
	require.Equal(t, "papers", Papers().String())

	_, err = ParseKey("materials", "")
	require.ErrorIs(t, err, ErrUnknownKey)
	_, err = ParseKey("colours", "x")
	require.ErrorIs(t, err, ErrUnknownKey)
}

func TestCache_LoadsInBackground(t *testing.T) {
	release := make(chan struct{})
	p := &stubProvider{
		entries: map[Key][]Entry{Papers(): {{ID: "1", Value: "Art Card 300 GSM"}}},
		release: release,
	}
	c := NewCache(p, nil)

	var got []Key
	var mu sync.Mutex
	unsubscribe := c.Subscribe(func(k Key) {
		mu.Lock()
		got = append(got, k)
		mu.Unlock()
	})
	defer unsubscribe()

	entries, loading := c.Entries(Papers())
	require.True(t, loading)
	require.Empty(t, entries)

	close(release)
	c.Wait()

	entries, loading = c.Entries(Papers())
	require.False(t, loading)
	require.Len(t, entries, 1)
	e, ok := c.Lookup(Papers(), "Art Card 300 GSM")
	require.True(t, ok)
	require.Equal(t, "1", e.ID)

	mu.Lock()
	require.Equal(t, []Key{Papers()}, got)
	mu.Unlock()
	require.Equal(t, 1, p.calls, "loaded keys are not refetched")
}

func TestCache_RetriesAfterFailure(t *testing.T) {
	p := &stubProvider{fail: errors.New("offline"), entries: map[Key][]Entry{DSTMaterials(): {{Value: "DST 6mm"}}}}
	c := NewCache(p, nil)

	c.Prefetch(DSTMaterials())
	c.Wait()
	require.Error(t, c.Err(DSTMaterials()))
	entries, loading := c.Entries(DSTMaterials())
	require.Empty(t, entries)
	require.True(t, loading, "a read after a failure starts a new fetch")

	c.Wait()
	p.mu.Lock()
	p.fail = nil
	p.mu.Unlock()
	c.Entries(DSTMaterials())
	c.Wait()

	entries, _ = c.Entries(DSTMaterials())
	require.Len(t, entries, 1)
	require.NoError(t, c.Err(DSTMaterials()))
}

func TestCache_ReplaceNotifies(t *testing.T) {
	c := NewCache(&stubProvider{}, nil)
	notified := make(chan Key, 1)
	c.Subscribe(func(k Key) { notified <- k })

	c.Replace(MRTypes("FS"), []Entry{{Value: "HEAVY", Concatenated: "FS MR HEAVY"}})
	require.Equal(t, MRTypes("FS"), <-notified)

	entries, loading := c.Entries(MRTypes("FS"))
	require.False(t, loading)
	require.Equal(t, "FS MR HEAVY", entries[0].Concatenated)
}

const sampleYAML = `
catalogs:
  - kind: mrTypes
    name: LP
    entries:
      - value: SIMPLE
        concatenated: LP MR SIMPLE
      - value: COMPLEX
  - kind: papers
    entries:
      - value: Art Card 300 GSM
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	doc, err := ReadFile(writeFile(t, dir, "base.yaml", sampleYAML))
	require.NoError(t, err)
	require.Len(t, doc.Catalogs, 2)
	require.Equal(t, MRTypes("LP"), doc.Catalogs[0].Key)
	require.Equal(t, "COMPLEX", doc.Catalogs[0].Entries[1].Value)

	_, err = ReadFile(writeFile(t, dir, "bad.yaml", "catalogs:\n  - kind: materials\n    entries: []\n"))
	require.ErrorIs(t, err, ErrUnknownKey)

	_, err = ReadFile(writeFile(t, dir, "blank.yaml", "catalogs:\n  - kind: papers\n    entries:\n      - value: ' '\n"))
	require.ErrorContains(t, err, "empty value")
}

func TestFileProvider_LastFileWins(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", sampleYAML)
	writeFile(t, dir, "b.yml", "catalogs:\n  - kind: papers\n    entries:\n      - value: Kraft 350\n")
	writeFile(t, dir, "notes.txt", "ignored")

	p := FileProvider{Dir: dir}
	papers, err := p.Fetch(context.Background(), Papers())
	require.NoError(t, err)
	require.Equal(t, []Entry{{Value: "Kraft 350"}}, papers)

	mr, err := p.Fetch(context.Background(), MRTypes("LP"))
	require.NoError(t, err)
	require.Len(t, mr, 2)

	none, err := p.Fetch(context.Background(), MRTypes("EMB"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func openDB(t *testing.T) Importer {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, migrations.Up(database))
	return Importer{DB: database}
}

func TestSQL_ReplaceAndFetch(t *testing.T) {
	im := openDB(t)
	ctx := context.Background()
	key := Materials("Foil")

	require.NoError(t, Replace(ctx, im.DB, key, []Entry{{Value: "Gold MTS 220"}, {Value: "Silver"}}))
	got, err := SQLProvider{DB: im.DB}.Fetch(ctx, key)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Gold MTS 220", got[0].Value)
	require.NotEmpty(t, got[0].ID)

	require.NoError(t, Replace(ctx, im.DB, key, []Entry{{Value: "Rose Gold"}}))
	got, err = SQLProvider{DB: im.DB}.Fetch(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []string{"Rose Gold"}, values(got))

	require.ErrorIs(t, Replace(ctx, im.DB, Key{Kind: "bogus"}, nil), ErrUnknownKey)
}

func values(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out
}

func TestImporter_ImportDirRefreshesCache(t *testing.T) {
	im := openDB(t)
	im.Cache = NewCache(SQLProvider{DB: im.DB}, nil)
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", sampleYAML)

	n, err := im.ImportDir(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	entries, loading := im.Cache.Entries(MRTypes("LP"))
	require.False(t, loading)
	require.Equal(t, []string{"SIMPLE", "COMPLEX"}, values(entries))
	require.NotEmpty(t, entries[0].ID)
}

func TestImporter_WatchPicksUpNewFiles(t *testing.T) {
	im := openDB(t)
	im.Cache = NewCache(SQLProvider{DB: im.DB}, nil)
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Watch(ctx, dir, 20*time.Millisecond) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "live.yaml"), []byte(sampleYAML), 0o644)
		entries, loading := im.Cache.Entries(Papers())
		return !loading && len(entries) == 1
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestImporter_WatchLoopSurvivesClosedErrors(t *testing.T) {
	im := openDB(t)
	im.Cache = NewCache(SQLProvider{DB: im.DB}, nil)
	dir := t.TempDir()
	path := writeFile(t, dir, "live.yaml", sampleYAML)

	events := make(chan fsnotify.Event)
	errs := make(chan error)
	done := make(chan error, 1)
	go func() { done <- im.watchLoop(context.Background(), events, errs, time.Hour) }()

	close(errs)
	events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
	close(events)
	require.NoError(t, <-done)

	entries, loading := im.Cache.Entries(Papers())
	require.False(t, loading)
	require.Len(t, entries, 1)
}

func TestImporter_WatchRequiresAbsoluteDir(t *testing.T) {
	err := Importer{}.Watch(context.Background(), "relative/dir", 0)
	require.Error(t, err)
}
