package reconcile

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hkloudou/odwatch/internal/delta"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 30, 0, 0, time.UTC)
}

func entry(id, name string) model.RawEntry {
	return model.RawEntry(fmt.Sprintf(`{"resource":{"id":%q,"name":%q,"updatedAt":"2024-02-01T00:00:00Z"}}`, id, name))
}

func snap(d int, entries ...model.RawEntry) model.Snapshot {
	return model.Snapshot{Key: day(d).Format(time.RFC3339), ScrapeDate: day(d), Entries: entries}
}

func TestReconcileKeepsEarliest(t *testing.T) {
	snaps := []model.Snapshot{
		snap(3, entry("B", "Bravo v3"), entry("C", "Charlie")),
		snap(1, entry("A", "Alpha"), entry("B", "Bravo v1")),
		snap(2, entry("B", "Bravo v2")),
	}

	res, err := Reconcile(snaps)
	require.NoError(t, err)

	require.Len(t, res.Table, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{res.Table[0].ID, res.Table[1].ID, res.Table[2].ID})

	b := res.Table[1]
	assert.Equal(t, "Bravo v1", b.Name)
	assert.True(t, b.FirstScrapeDate.Equal(day(1)))
	assert.True(t, res.Table[2].FirstScrapeDate.Equal(day(3)))

	assert.Equal(t, "Bravo v3", res.Latest["B"].Name)
	assert.True(t, res.Latest["B"].FirstScrapeDate.Equal(day(3)))
	assert.True(t, res.LastScrapeDate.Equal(day(3)))

	want := []Observation{{day(1), 2}, {day(2), 1}, {day(3), 2}}
	if diff := cmp.Diff(want, res.Observations); diff != "" {
		t.Errorf("observations (-want +got):\n%s", diff)
	}
}

func TestReconcileDuplicateWithinSnapshot(t *testing.T) {
	res, err := Reconcile([]model.Snapshot{
		snap(1, entry("A", "first"), entry("A", "second")),
	})
	require.NoError(t, err)
	require.Len(t, res.Table, 1)
	assert.Equal(t, "first", res.Table[0].Name)
	assert.Equal(t, 2, res.Observations[0].N)
}

func TestReconcileDeterministic(t *testing.T) {
	var snaps []model.Snapshot
	for d := 1; d <= 6; d++ {
		var entries []model.RawEntry
		for i := 0; i < 20; i++ {
			id := fmt.Sprintf("id-%02d", (i*d)%25)
			entries = append(entries, entry(id, fmt.Sprintf("%s@%d", id, d)))
		}
		snaps = append(snaps, snap(d, entries...))
	}

	want, err := Reconcile(snaps)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5; i++ {
		shuffled := append([]model.Snapshot(nil), snaps...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Reconcile(shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(want.Table, got.Table); diff != "" {
			t.Fatalf("table depends on snapshot order (-want +got):\n%s", diff)
		}
	}

	// One row per id, and each row carries the minimum scrape date
	first := make(map[string]time.Time)
	for _, s := range snaps {
		for _, e := range s.Entries {
			id := e.Get("resource.id").String()
			if at, ok := first[id]; !ok || s.ScrapeDate.Before(at) {
				first[id] = s.ScrapeDate
			}
		}
	}
	assert.Len(t, want.Table, len(first))
	for _, rec := range want.Table {
		assert.True(t, rec.FirstScrapeDate.Equal(first[rec.ID]), rec.ID)
	}
}

func TestReconcileEmpty(t *testing.T) {
	res, err := Reconcile(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Table)
	assert.Empty(t, res.Observations)

	res, err = Reconcile([]model.Snapshot{snap(1)})
	require.NoError(t, err)
	assert.Empty(t, res.Table)
	assert.Equal(t, []Observation{{day(1), 0}}, res.Observations)
}

func TestReconcileLatestIDs(t *testing.T) {
	res, err := Reconcile([]model.Snapshot{
		snap(1, entry("A", "Alpha"), entry("B", "Bravo")),
		snap(2, entry(" abcd-1234 ", "Padded"), entry("B", "Bravo")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "abcd-1234"}, res.LatestIDs.Sorted())

	// The padded id must match the id the previous run persisted
	previous := model.Table{{ID: "A"}, {ID: "B"}, {ID: "abcd-1234"}}
	d := delta.Diff(res.Table, previous, res.LatestIDs)
	assert.Empty(t, d.New)
	assert.Equal(t, []string{"A"}, d.Deleted.Sorted())
}

func TestReconcileLatestIDsTie(t *testing.T) {
	a := model.Snapshot{Key: "a", ScrapeDate: day(1), Entries: []model.RawEntry{entry("A", "Alpha")}}
	b := model.Snapshot{Key: "b", ScrapeDate: day(1), Entries: []model.RawEntry{entry("B", "Bravo")}}

	for _, order := range [][]model.Snapshot{{a, b}, {b, a}} {
		res, err := Reconcile(order)
		require.NoError(t, err)
		assert.Equal(t, []string{"B"}, res.LatestIDs.Sorted())
	}

	res, err := Reconcile([]model.Snapshot{snap(1, entry("A", "Alpha")), snap(2)})
	require.NoError(t, err)
	assert.Empty(t, res.LatestIDs, "an empty newest snapshot deletes everything")
}

func TestReconcileBadTimestamp(t *testing.T) {
	_, err := Reconcile([]model.Snapshot{
		snap(1, model.RawEntry(`{"resource":{"id":"A","updatedAt":"yesterday"}}`)),
	})
	assert.ErrorContains(t, err, "updatedAt")
}

func TestStaleness(t *testing.T) {
	asOf := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	table := model.Table{
		{ID: "A", UpdateDate: asOf.AddDate(0, 0, -10)},
		{ID: "B", UpdateDate: asOf.AddDate(0, 0, -40)},
		{ID: "C", UpdateDate: asOf.Add(-36 * time.Hour)},
		{ID: "D"},
	}

	got := Staleness(table, asOf)
	assert.Equal(t, map[string]int{"A": 10, "B": 40, "C": 1}, got)
}

func TestStalenessFromStoredData(t *testing.T) {
	snaps := []model.Snapshot{snap(1, entry("A", "Alpha")), snap(3, entry("B", "Bravo"))}

	// updatedAt is 2024-02-01; the newest first scrape is 2024-03-03 09:30
	var runs []map[string]int
	for range 2 {
		res, err := Reconcile(snaps)
		require.NoError(t, err)
		runs = append(runs, Staleness(res.Table, MaxFirstScrape(res.Table)))
	}
	assert.Equal(t, map[string]int{"A": 31, "B": 31}, runs[0])
	assert.Equal(t, runs[0], runs[1])
}

func TestMaxFirstScrape(t *testing.T) {
	table := model.Table{{ID: "A", FirstScrapeDate: day(2)}, {ID: "B", FirstScrapeDate: day(5)}}
	assert.True(t, MaxFirstScrape(table).Equal(day(5)))
	assert.True(t, MaxFirstScrape(nil).IsZero())
}
