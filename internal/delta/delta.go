// Package delta classifies datasets as new or deleted between runs.
package delta

import "github.com/hkloudou/odwatch/internal/model"

// Set is the outcome of comparing two canonical tables
type Set struct {
	// New ids are in the current table but not in the previous one
	New model.Set
	// Deleted ids were already known before this run but are missing
	// from the most recent raw snapshot
	Deleted model.Set

	NewRecords     model.Table
	DeletedRecords model.Table
}

// Diff compares the freshly reconciled table with the table persisted by
// the previous run, and with the ids of the newest raw snapshot.
//
//	new     = ids(current) - ids(previous)
//	deleted = (ids(current) ∪ ids(previous)) - latestRaw - new
//
// The history only grows, so in practice ids(previous) ⊆ ids(current) and
// deleted reduces to "known before this run, absent from the latest scrape".
// A dataset that drops out for one scrape and later returns is reported as
// deleted for that run only.
func Diff(current, previous model.Table, latestRaw model.Set) Set {
	cur := current.IDs()
	prev := previous.IDs()

	known := make(model.Set, len(cur)+len(prev))
	for id := range cur {
		known.Add(id)
	}
	for id := range prev {
		known.Add(id)
	}

	newIDs := cur.Difference(prev)
	deleted := known.Difference(latestRaw).Difference(newIDs)

	newRecords := current.Filter(newIDs)
	newRecords.SortByID()

	// Prefer the current row; ids only the previous table knows fall back to it
	curIdx, prevIdx := current.Index(), previous.Index()
	deletedRecords := make(model.Table, 0, len(deleted))
	for _, id := range deleted.Sorted() {
		rec, ok := curIdx[id]
		if !ok {
			rec = prevIdx[id]
		}
		deletedRecords = append(deletedRecords, rec)
	}

	return Set{
		New:            newIDs,
		Deleted:        deleted,
		NewRecords:     newRecords,
		DeletedRecords: deletedRecords,
	}
}
