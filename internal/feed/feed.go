// Package feed renders the most recently created datasets as RSS and Atom.
package feed

import (
	"io"
	"sort"

	"github.com/gorilla/feeds"
	"github.com/hkloudou/odwatch/internal/model"
)

const DefaultLimit = 20

// Options describe the channel
type Options struct {
	Title       string
	Link        string
	Description string
	Limit       int
}

// DefaultOptions matches the NYC portal monitor
func DefaultOptions() Options {
	return Options{
		Title:       "New datasets from opendata.cityofnewyork.us",
		Link:        "https://opendata.cityofnewyork.us",
		Description: "The latest datasets posted to New York City's data portal",
		Limit:       DefaultLimit,
	}
}

// Feed is a built channel ready to be serialized
type Feed struct {
	feed       *feeds.Feed
	categories []string // parallel to feed.Items
}

// Latest returns the limit most recently created records, newest first.
// Ties are broken by id; records without a creation date sort last.
func Latest(table model.Table, limit int) model.Table {
	out := append(model.Table(nil), table...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CreationDate, out[j].CreationDate
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Build creates the channel from the table
func Build(table model.Table, opts Options) *Feed {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	items := Latest(table, opts.Limit)

	f := &feeds.Feed{
		Title:       opts.Title,
		Link:        &feeds.Link{Href: opts.Link},
		Description: opts.Description,
		Id:          opts.Link,
	}
	// Channel date follows the content so unchanged input gives identical output
	if len(items) > 0 {
		f.Created = items[0].CreationDate
		f.Updated = items[0].CreationDate
	}

	out := &Feed{feed: f}
	for _, rec := range items {
		item := &feeds.Item{
			Id:          rec.ID,
			Title:       rec.Name,
			Link:        &feeds.Link{Href: rec.Permalink},
			Description: rec.Description,
			Created:     rec.CreationDate,
			Updated:     rec.UpdateDate,
		}
		if rec.Creator != "" {
			item.Author = &feeds.Author{Name: rec.Creator}
		}
		f.Items = append(f.Items, item)
		out.categories = append(out.categories, rec.Category)
	}
	return out
}

// Len is the number of items
func (f *Feed) Len() int {
	return len(f.feed.Items)
}

// WriteRSS writes RSS 2.0
func (f *Feed) WriteRSS(w io.Writer) error {
	rss := (&feeds.Rss{Feed: f.feed}).RssFeed()
	for i, item := range rss.Items {
		item.Category = f.categories[i]
	}
	return feeds.WriteXML(rss, w)
}

// WriteAtom writes Atom 1.0
func (f *Feed) WriteAtom(w io.Writer) error {
	return f.feed.WriteAtom(w)
}
