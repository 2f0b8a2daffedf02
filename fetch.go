package odwatch

import (
	"context"
	"fmt"

	"github.com/hkloudou/odwatch/trace"
)

// Fetch downloads the catalog once and stores it as a new snapshot
// stamped with the current time in the configured timezone.
func (c *Client) Fetch(ctx context.Context) (*FetchResult, error) {
	ctx = trace.WithTrace(ctx, "Fetch")
	tr := trace.FromContext(ctx)

	if err := c.ensureInitialized(); err != nil {
		return nil, err
	}
	fetcher := c.ensureCatalog()

	at := c.clock.Now().In(c.loc)
	q := c.cfg.Query()

	c.log.Info("fetching catalog", "domains", q.Domains, "limit", q.Limit)
	resp, err := fetcher.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	tr.RecordSpan("Fetch.Catalog", map[string]any{
		"results": len(resp.Results),
		"total":   resp.ResultSetSize,
	})

	if len(resp.Results) == 0 {
		c.log.Warn("catalog returned no results", "domains", q.Domains)
	} else if resp.ResultSetSize > int64(len(resp.Results)) {
		c.log.Warn("catalog result set truncated",
			"returned", len(resp.Results), "total", resp.ResultSetSize)
	}

	ref, err := c.store.Write(ctx, at, resp.Results)
	if err != nil {
		return nil, err
	}

	c.log.Info("snapshot stored", "key", ref.Key, "entries", len(resp.Results))
	c.log.Debug(tr.Dump())

	return &FetchResult{
		Key:        ref.Key,
		ScrapeDate: ref.ScrapeDate,
		Entries:    len(resp.Results),
		Total:      resp.ResultSetSize,
		Trace:      tr,
	}, nil
}
