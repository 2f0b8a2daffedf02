package social

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hkloudou/odwatch/internal/ledger"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/trace"
	"github.com/jonboulle/clockwork"
)

// DefaultDelay between two posts
const DefaultDelay = 2 * time.Second

// Announcer posts one message per new record, pacing the posts and
// skipping records the ledger already knows
type Announcer struct {
	Poster Poster
	Ledger ledger.Ledger
	Clock  clockwork.Clock
	Delay  time.Duration
	Log    *slog.Logger
}

// Report of an Announce run
type Report struct {
	Posted  []string
	Skipped []string
}

// Announce posts records in order. A post failure stops the run; records
// posted before it stay marked in the ledger.
func (a *Announcer) Announce(ctx context.Context, records model.Table) (Report, error) {
	a.defaults()
	tr := trace.FromContext(ctx)

	var rep Report
	for _, rec := range records {
		seen, err := a.Ledger.Seen(ctx, rec.ID)
		if err != nil {
			return rep, err
		}
		if seen {
			a.Log.Debug("already announced, skipping", "id", rec.ID)
			rep.Skipped = append(rep.Skipped, rec.ID)
			continue
		}

		if len(rep.Posted) > 0 && a.Delay > 0 {
			select {
			case <-ctx.Done():
				return rep, ctx.Err()
			case <-a.Clock.After(a.Delay):
			}
		}

		text := Message(rec)
		if err := a.Poster.Post(ctx, text); err != nil {
			return rep, fmt.Errorf("failed to announce %s: %w", rec.ID, err)
		}
		if err := a.Ledger.Mark(ctx, rec.ID); err != nil {
			return rep, err
		}
		a.Log.Info("announced dataset", "id", rec.ID, "name", rec.Name)
		rep.Posted = append(rep.Posted, rec.ID)
	}

	tr.RecordSpan("Social.Announce", map[string]any{
		"posted":  len(rep.Posted),
		"skipped": len(rep.Skipped),
	})
	return rep, nil
}

func (a *Announcer) defaults() {
	if a.Ledger == nil {
		a.Ledger = ledger.NoOpLedger{}
	}
	if a.Clock == nil {
		a.Clock = clockwork.NewRealClock()
	}
	if a.Log == nil {
		a.Log = slog.New(slog.DiscardHandler)
	}
}
