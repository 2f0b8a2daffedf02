package odwatch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hkloudou/odwatch/internal/catalog"
	"github.com/hkloudou/odwatch/internal/ledger"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/hkloudou/odwatch/internal/storage"
	"github.com/hkloudou/odwatch/internal/table"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog serves whatever results were set last
type stubCatalog struct {
	mu      sync.Mutex
	results []model.RawEntry
	calls   int
}

func (s *stubCatalog) set(entries ...model.RawEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = entries
}

func (s *stubCatalog) Fetch(ctx context.Context, q catalog.Query) (*catalog.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &catalog.Response{Results: s.results, ResultSetSize: int64(len(s.results))}, nil
}

func entry(id, name, typ string, created time.Time) model.RawEntry {
	return model.RawEntry(fmt.Sprintf(`{
		"resource": {"id": %q, "name": %q, "type": %q, "description": "  about\n%s  ",
			"createdAt": %q, "updatedAt": %q},
		"classification": {"domain_category": "Health"},
		"creator": {"display_name": "NYC OpenData"},
		"permalink": "https://data.cityofnewyork.us/d/%s"
	}`, id, name, typ, id, created.Format(time.RFC3339), created.Format(time.RFC3339), id))
}

type harness struct {
	client *Client
	cat    *stubCatalog
	clock  *clockwork.FakeClock
	poster *social.RecordingPoster
	cfg    *Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SocialDelay = 0

	h := &harness{
		cat:    &stubCatalog{},
		clock:  clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)),
		poster: &social.RecordingPoster{},
		cfg:    cfg,
	}
	h.client = New(cfg,
		WithStorage(storage.NewMemoryStorage("test")),
		WithCatalog(h.cat),
		WithClock(h.clock),
		WithPoster(h.poster),
		WithLedger(ledger.NewMemoryLedger()),
	)
	t.Cleanup(h.client.Close)
	return h
}

func (h *harness) readClean(t *testing.T, name string) model.Table {
	t.Helper()
	records, err := table.ReadFile(filepath.Join(h.cfg.CleanDir(), name))
	require.NoError(t, err)
	return records
}

func ids(t model.Table) []string {
	out := make([]string, 0, len(t))
	for _, r := range t {
		out = append(out, r.ID)
	}
	return out
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	// Run 1: A, B, C on an empty history
	h.cat.set(
		entry("aaaa-0001", "Alpha", "dataset", day),
		entry("bbbb-0002", "Bravo", "dataset", day.Add(24*time.Hour)),
		entry("cccc-0003", "Charlie", "map", day.Add(48*time.Hour)),
	)
	fr, err := h.client.Fetch(ctx)
	require.NoError(t, err)
	t.Logf("fetch: %s", fr.Dump())
	assert.Equal(t, "2024-03-01T09:30:00-05:00.json.gz", fr.Key)
	assert.Equal(t, 3, fr.Entries)

	rr, err := h.client.Reconcile(ctx)
	require.NoError(t, err)
	t.Logf("reconcile:\n%s", rr.Dump())
	assert.Equal(t, []string{"aaaa-0001", "bbbb-0002", "cccc-0003"}, ids(rr.New))
	assert.Empty(t, rr.Deleted)
	assert.Empty(t, rr.Updated)

	// Run 2: A disappears, D appears, B is renamed
	h.clock.Advance(24 * time.Hour)
	h.cat.set(
		entry("bbbb-0002", "Bravo v2", "dataset", day.Add(24*time.Hour)),
		entry("cccc-0003", "Charlie", "map", day.Add(48*time.Hour)),
		entry("dddd-0004", "Delta", "dataset", day.Add(72*time.Hour)),
	)
	_, err = h.client.Fetch(ctx)
	require.NoError(t, err)

	rr, err = h.client.Reconcile(ctx)
	require.NoError(t, err)
	t.Logf("reconcile:\n%s", rr.Dump())

	assert.Equal(t, 2, rr.Snapshots)
	assert.Equal(t, 6, rr.Entries)
	assert.Equal(t, 4, rr.Records)
	assert.Equal(t, []string{"dddd-0004"}, ids(rr.New))
	assert.Equal(t, []string{"aaaa-0001"}, ids(rr.Deleted))
	require.Len(t, rr.Updated, 1)
	assert.Equal(t, "bbbb-0002", rr.Updated[0].ID)
	assert.Equal(t, []string{"name"}, rr.Updated[0].Fields)

	latest := h.readClean(t, LatestFile)
	assert.Equal(t, []string{"aaaa-0001", "bbbb-0002", "cccc-0003", "dddd-0004"}, ids(latest))
	// The canonical row keeps the first observation
	assert.Equal(t, "Bravo", latest[1].Name)
	assert.Equal(t, "about bbbb-0002", latest[1].Description)
	assert.True(t, latest[0].FirstScrapeDate.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)))
	assert.True(t, latest[3].FirstScrapeDate.Equal(time.Date(2024, 3, 2, 14, 30, 0, 0, time.UTC)))

	assert.Equal(t, []string{"dddd-0004"}, ids(h.readClean(t, NewFile)))
	assert.Equal(t, []string{"aaaa-0001"}, ids(h.readClean(t, DeletedFile)))

	obs, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), ObservationsFile))
	require.NoError(t, err)
	assert.Equal(t,
		"scrape_date,n\n2024-03-01T14:30:00Z,3\n2024-03-02T14:30:00Z,3\n",
		string(obs))

	byType, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), CountFile("type")))
	require.NoError(t, err)
	assert.Equal(t, "type,n\ndataset,3\nmap,1\n", string(byType))

	for _, dim := range []string{"day", "creator", "category", "month", "staleness"} {
		_, err := os.Stat(filepath.Join(h.cfg.CleanDir(), CountFile(dim)))
		assert.NoError(t, err, dim)
	}

	// Publishing
	pf, err := h.client.PublishFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, pf.Items)
	rss, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), RSSFile))
	require.NoError(t, err)
	assert.Contains(t, string(rss), "<rss")
	// Newest creation first
	assert.Less(t, strings.Index(string(rss), "Delta"), strings.Index(string(rss), "Alpha"))
	atom, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), AtomFile))
	require.NoError(t, err)
	assert.Contains(t, string(atom), "<feed")

	ps, err := h.client.PublishSocial(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dddd-0004"}, ps.Posted)
	assert.Equal(t, []string{
		"🔢 New dataset: “Delta” https://data.cityofnewyork.us/d/dddd-0004",
	}, h.poster.Posted())

	// A second publish does not announce again
	ps, err = h.client.PublishSocial(ctx)
	require.NoError(t, err)
	assert.Empty(t, ps.Posted)
	assert.Equal(t, []string{"dddd-0004"}, ps.Skipped)
	assert.Len(t, h.poster.Posted(), 1)
}

func TestReconcileIsRepeatable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	h.cat.set(entry("aaaa-0001", "Alpha", "dataset", day))
	_, err := h.client.Fetch(ctx)
	require.NoError(t, err)

	_, err = h.client.Reconcile(ctx)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), LatestFile))
	require.NoError(t, err)

	// Without a new fetch nothing is new the second time
	rr, err := h.client.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, rr.New)
	assert.Empty(t, rr.Deleted)

	second, err := os.ReadFile(filepath.Join(h.cfg.CleanDir(), LatestFile))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCloseReleasesStore(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// Closing an unused client is a no-op
	h.client.Close()

	h.cat.set(entry("aaaa-0001", "Alpha", "dataset", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	_, err := h.client.Fetch(ctx)
	require.NoError(t, err)
	h.client.Close()

	// The next stage builds a fresh store over the same storage
	rr, err := h.client.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rr.Records)
	h.client.Close()
	h.client.Close()
}

func TestFetchSpanNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"resource":{"id":"A"}}],"resultSetSize":1}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	client := New(cfg,
		WithStorage(storage.NewMemoryStorage("test")),
		WithCatalog(catalog.New(catalog.Config{BaseURL: srv.URL})),
	)
	defer client.Close()

	fr, err := client.Fetch(context.Background())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, span := range fr.Trace.Spans() {
		assert.False(t, seen[span.Name], "span %s recorded twice", span.Name)
		seen[span.Name] = true
	}
	assert.True(t, seen["Catalog.Fetch"], "client span")
	assert.True(t, seen["Fetch.Catalog"], "stage span")
}

func TestReconcileEmptyStore(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.Reconcile(context.Background())
	require.ErrorIs(t, err, ErrEmptyStore)
}

func TestFetchEmptyCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	fr, err := h.client.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fr.Entries)

	rr, err := h.client.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rr.Records)
	assert.Empty(t, h.readClean(t, LatestFile))
}

func TestPublishBeforeReconcile(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.PublishFeed(context.Background())
	require.ErrorIs(t, err, ErrNotReconciled)

	_, err = h.client.PublishSocial(context.Background())
	require.ErrorIs(t, err, ErrNotReconciled)
}
