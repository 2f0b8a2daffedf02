package odwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hkloudou/odwatch/internal/feed"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/hkloudou/odwatch/internal/table"
	"github.com/hkloudou/odwatch/trace"
)

// ErrNotReconciled is returned by the publish stages when the table they
// read has not been written by Reconcile yet
var ErrNotReconciled = errors.New("odwatch: run reconcile first")

// PublishFeed writes the RSS and Atom feeds of the most recently created
// datasets in the canonical table.
func (c *Client) PublishFeed(ctx context.Context) (*FeedResult, error) {
	ctx = trace.WithTrace(ctx, "PublishFeed")
	tr := trace.FromContext(ctx)

	records, err := c.readClean(LatestFile)
	if err != nil {
		return nil, err
	}

	f := feed.Build(records, c.cfg.FeedOptions())
	tr.RecordSpan("Feed.Build", map[string]any{"items": f.Len()})

	out := &FeedResult{Items: f.Len(), Trace: tr}
	for _, wr := range []output{
		{RSSFile, f.WriteRSS},
		{AtomFile, f.WriteAtom},
	} {
		path := c.cleanPath(wr.name)
		if err := table.WriteFile(path, wr.fn); err != nil {
			return nil, err
		}
		out.Files = append(out.Files, path)
	}
	tr.RecordSpan("Feed.Write", map[string]any{"files": len(out.Files)})

	c.log.Info("feed published", "items", out.Items, "files", out.Files)
	return out, nil
}

// PublishSocial announces every dataset of the last reconcile's new table
// that has not been announced before.
func (c *Client) PublishSocial(ctx context.Context) (*SocialResult, error) {
	ctx = trace.WithTrace(ctx, "PublishSocial")
	tr := trace.FromContext(ctx)

	records, err := c.readClean(NewFile)
	if err != nil {
		return nil, err
	}

	poster, l, err := c.ensureSocial()
	if err != nil {
		return nil, err
	}

	a := &social.Announcer{
		Poster: poster,
		Ledger: l,
		Clock:  c.clock,
		Delay:  c.cfg.SocialDelay,
		Log:    c.log,
	}
	rep, err := a.Announce(ctx, records)
	out := &SocialResult{
		New:     len(records),
		Posted:  rep.Posted,
		Skipped: rep.Skipped,
		Trace:   tr,
	}
	if err != nil {
		return out, err
	}

	c.log.Info("social published", "new", out.New, "posted", len(out.Posted), "skipped", len(out.Skipped))
	return out, nil
}

func (c *Client) readClean(name string) (model.Table, error) {
	path := c.cleanPath(name)
	records, err := table.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNotReconciled, path)
		}
		return nil, err
	}
	return records, nil
}
