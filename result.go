package odwatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/hkloudou/odwatch/internal/aggregate"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/trace"
)

// FetchResult describes one stored snapshot
type FetchResult struct {
	Key        string
	ScrapeDate time.Time
	Entries    int
	Total      int64 // resultSetSize reported by the catalog
	Trace      *trace.Trace
}

// Dump renders the result for humans
func (r *FetchResult) Dump() string {
	return fmt.Sprintf("snapshot %s: %d entries (catalog total %d)", r.Key, r.Entries, r.Total)
}

// ReconcileResult describes one reconcile run
type ReconcileResult struct {
	Snapshots      int
	Entries        int // raw entries over all snapshots, duplicates included
	Records        int // rows in the canonical table
	LastScrapeDate time.Time

	New     model.Table
	Deleted model.Table
	Updated []model.Change
	Summary aggregate.Summary

	Files []string // outputs written, in write order
	Trace *trace.Trace
}

// Dump renders the result for humans
func (r *ReconcileResult) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "reconciled %d snapshots (%d entries) into %d records\n", r.Snapshots, r.Entries, r.Records)
	if !r.LastScrapeDate.IsZero() {
		fmt.Fprintf(&sb, "  last scrape: %s\n", r.LastScrapeDate.Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "  new: %d, deleted: %d, updated: %d\n", len(r.New), len(r.Deleted), len(r.Updated))
	for _, rec := range r.New {
		fmt.Fprintf(&sb, "  + %s %s\n", rec.ID, rec.Name)
	}
	for _, rec := range r.Deleted {
		fmt.Fprintf(&sb, "  - %s %s\n", rec.ID, rec.Name)
	}
	for _, ch := range r.Updated {
		fmt.Fprintf(&sb, "  ~ %s %s [%s]\n", ch.ID, ch.Name, strings.Join(ch.Fields, ","))
	}
	return sb.String()
}

// FeedResult describes the published feed files
type FeedResult struct {
	Items int
	Files []string
	Trace *trace.Trace
}

// Dump renders the result for humans
func (r *FeedResult) Dump() string {
	return fmt.Sprintf("feed: %d items -> %s", r.Items, strings.Join(r.Files, ", "))
}

// SocialResult describes one announce run
type SocialResult struct {
	New     int
	Posted  []string
	Skipped []string
	Trace   *trace.Trace
}

// Dump renders the result for humans
func (r *SocialResult) Dump() string {
	return fmt.Sprintf("social: %d new, %d posted, %d already announced", r.New, len(r.Posted), len(r.Skipped))
}
