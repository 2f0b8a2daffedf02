// Package reconcile merges a sequence of snapshots into one canonical
// table with one record per dataset id.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/normalize"
)

// Observation is the number of entries one snapshot contained
type Observation struct {
	ScrapeDate time.Time
	N          int
}

// Result of merging snapshots
type Result struct {
	// Table holds the earliest observation of every id, sorted by id.
	// FirstScrapeDate is the first snapshot that contained the id.
	Table model.Table

	// Observations counts entries per snapshot (duplicates included),
	// ascending by scrape date.
	Observations []Observation

	// Latest holds the most recent observation of every id. Its
	// FirstScrapeDate is the scrape date of that observation.
	Latest map[string]model.Record

	// LastScrapeDate is the newest scrape date seen
	LastScrapeDate time.Time

	// LatestIDs are the normalized ids of the newest snapshot, empty when
	// that snapshot has no entries. Ties on scrape date go to the larger key.
	LatestIDs model.Set
}

// Reconcile normalizes every entry of every snapshot and deduplicates by
// id, keeping the earliest observation. Snapshot order does not matter.
func Reconcile(snapshots []model.Snapshot) (Result, error) {
	var rows []model.Record
	counts := make(map[time.Time]int)
	latestIDs := make(model.Set)
	newest := newestSnapshot(snapshots)

	for i, snap := range snapshots {
		at := snap.ScrapeDate.UTC()
		counts[at] += len(snap.Entries)
		for _, entry := range snap.Entries {
			rec, err := normalize.Normalize(entry, at)
			if err != nil {
				return Result{}, fmt.Errorf("failed to normalize %s: %w", snap.Key, err)
			}
			rows = append(rows, rec)
			if i == newest {
				latestIDs.Add(rec.ID)
			}
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.FirstScrapeDate.Equal(b.FirstScrapeDate) {
			return a.FirstScrapeDate.Before(b.FirstScrapeDate)
		}
		return a.ID < b.ID
	})

	res := Result{
		Latest:    make(map[string]model.Record),
		LatestIDs: latestIDs,
	}
	seen := make(model.Set)
	for _, rec := range rows {
		if !seen.Has(rec.ID) {
			seen.Add(rec.ID)
			res.Table = append(res.Table, rec)
		}
		// rows are ascending, so the last write wins
		res.Latest[rec.ID] = rec
		if rec.FirstScrapeDate.After(res.LastScrapeDate) {
			res.LastScrapeDate = rec.FirstScrapeDate
		}
	}
	res.Table.SortByID()

	for at, n := range counts {
		res.Observations = append(res.Observations, Observation{ScrapeDate: at, N: n})
		if at.After(res.LastScrapeDate) {
			res.LastScrapeDate = at
		}
	}
	sort.Slice(res.Observations, func(i, j int) bool {
		return res.Observations[i].ScrapeDate.Before(res.Observations[j].ScrapeDate)
	})

	return res, nil
}

func newestSnapshot(snapshots []model.Snapshot) int {
	newest := -1
	for i, snap := range snapshots {
		if newest < 0 {
			newest = i
			continue
		}
		cur := snapshots[newest]
		if snap.ScrapeDate.After(cur.ScrapeDate) ||
			(snap.ScrapeDate.Equal(cur.ScrapeDate) && snap.Key > cur.Key) {
			newest = i
		}
	}
	return newest
}

// Staleness returns, per id, the whole days between the record's update
// date and asOf. Records without an update date are left out.
//
// Callers pass MaxFirstScrape(table) as asOf, not the wall clock or the
// newest scrape date, so the result depends only on the stored records
// and a repeated reconcile writes the same count-by-staleness table.
func Staleness(table model.Table, asOf time.Time) map[string]int {
	out := make(map[string]int, len(table))
	for _, rec := range table {
		if rec.UpdateDate.IsZero() {
			continue
		}
		out[rec.ID] = int(asOf.Sub(rec.UpdateDate) / (24 * time.Hour))
	}
	return out
}

// MaxFirstScrape is the newest first_scrape_date in the table, the
// reference point staleness is measured against.
func MaxFirstScrape(table model.Table) time.Time {
	var max time.Time
	for _, rec := range table {
		if rec.FirstScrapeDate.After(max) {
			max = rec.FirstScrapeDate
		}
	}
	return max
}
