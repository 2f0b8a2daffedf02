package odwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/hkloudou/odwatch/internal/aggregate"
	"github.com/hkloudou/odwatch/internal/delta"
	"github.com/hkloudou/odwatch/internal/merge"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/reconcile"
	"github.com/hkloudou/odwatch/internal/snapshot"
	"github.com/hkloudou/odwatch/internal/table"
	"github.com/hkloudou/odwatch/trace"
)

// Output files under the clean directory
const (
	LatestFile       = "latest.csv"
	NewFile          = "new.csv"
	DeletedFile      = "deleted.csv"
	UpdatedFile      = "updated.csv"
	ObservationsFile = "observations.csv"
	RSSFile          = "latest-created.rss"
	AtomFile         = "latest-created.atom"
)

// ErrEmptyStore is returned by Reconcile when no snapshot has been fetched yet
var ErrEmptyStore = snapshot.ErrEmptyStore

type output struct {
	name string
	fn   func(io.Writer) error
}

// CountFile is the output name of one aggregate dimension
func CountFile(dimension string) string {
	return "count-by-" + dimension + ".csv"
}

// Reconcile rebuilds the canonical table from every stored snapshot,
// compares it with the table left by the previous run and rewrites all
// outputs. The canonical table is written last, so an interrupted run
// reports the same delta when repeated.
func (c *Client) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	ctx = trace.WithTrace(ctx, "Reconcile")
	tr := trace.FromContext(ctx)

	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	defer c.reportCache()

	refs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("failed to reconcile %s: %w", c.storage.Namespace(), ErrEmptyStore)
	}

	snaps, err := c.store.ReadAll(ctx, refs)
	if err != nil {
		return nil, err
	}
	res, err := reconcile.Reconcile(snaps)
	if err != nil {
		return nil, err
	}
	if len(res.LatestIDs) == 0 {
		c.log.Warn("latest snapshot is empty", "key", snaps[0].Key)
	}
	tr.RecordSpan("Reconcile.Merge", map[string]any{"records": len(res.Table)})

	previous, err := c.readPrevious()
	if err != nil {
		return nil, err
	}

	d := delta.Diff(res.Table, previous, res.LatestIDs)
	changes, err := merge.Detect(res.Table, res.Latest)
	if err != nil {
		return nil, fmt.Errorf("failed to detect changes: %w", err)
	}
	tr.RecordSpan("Reconcile.Delta", map[string]any{
		"new":     len(d.NewRecords),
		"deleted": len(d.DeletedRecords),
		"updated": len(changes),
	})

	staleness := reconcile.Staleness(res.Table, reconcile.MaxFirstScrape(res.Table))
	summary := aggregate.Summarize(res.Table, staleness, c.loc)

	out := &ReconcileResult{
		Snapshots:      len(snaps),
		Records:        len(res.Table),
		LastScrapeDate: res.LastScrapeDate.In(c.loc),
		New:            d.NewRecords,
		Deleted:        d.DeletedRecords,
		Updated:        changes,
		Summary:        summary,
		Trace:          tr,
	}
	for _, obs := range res.Observations {
		out.Entries += obs.N
	}

	observations := make([]model.Count, 0, len(res.Observations))
	for _, obs := range res.Observations {
		observations = append(observations, model.Count{Key: table.FormatTime(obs.ScrapeDate), N: obs.N})
	}

	writes := []output{
		{ObservationsFile, func(w io.Writer) error { return table.WriteCounts(w, "scrape_date", observations) }},
		{NewFile, func(w io.Writer) error { return table.WriteRecords(w, d.NewRecords) }},
		{DeletedFile, func(w io.Writer) error { return table.WriteRecords(w, d.DeletedRecords) }},
		{UpdatedFile, func(w io.Writer) error { return table.WriteChanges(w, changes) }},
	}
	for _, named := range summary.Tables() {
		writes = append(writes, output{CountFile(named.Name), func(w io.Writer) error {
			return table.WriteCounts(w, named.Name, named.Counts)
		}})
	}
	writes = append(writes, output{LatestFile, func(w io.Writer) error { return table.WriteRecords(w, res.Table) }})

	for _, wr := range writes {
		path := c.cleanPath(wr.name)
		if err := table.WriteFile(path, wr.fn); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, path)
	}
	tr.RecordSpan("Reconcile.Write", map[string]any{"files": len(out.Files)})

	c.log.Info("reconciled",
		"snapshots", out.Snapshots,
		"records", out.Records,
		"new", len(out.New),
		"deleted", len(out.Deleted),
		"updated", len(out.Updated))
	c.log.Debug("reconcile timings", "trace", tr)
	return out, nil
}

// readPrevious loads the canonical table of the previous run. A missing
// file means a first run: every id is new.
func (c *Client) readPrevious() (model.Table, error) {
	path := c.cleanPath(LatestFile)
	prev, err := table.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Info("no previous table, treating every record as new", "path", path)
			return model.Table{}, nil
		}
		return nil, fmt.Errorf("failed to read previous table: %w", err)
	}
	return prev, nil
}
