// Package model holds the types that flow through the odwatch pipeline:
// raw catalog entries as fetched, snapshots of them, and the canonical
// per-dataset records derived from snapshots.
package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// RawEntry is one dataset's metadata exactly as the catalog returned it.
// The bytes are never modified; fields are read on demand with gjson paths.
type RawEntry json.RawMessage

// Get returns the value at a gjson path (e.g. "resource.name").
func (e RawEntry) Get(path string) gjson.Result {
	return gjson.GetBytes(e, path)
}

// MarshalJSON emits the stored bytes verbatim.
func (e RawEntry) MarshalJSON() ([]byte, error) {
	if len(e) == 0 {
		return []byte("null"), nil
	}
	return e, nil
}

// UnmarshalJSON keeps a copy of the raw bytes.
func (e *RawEntry) UnmarshalJSON(data []byte) error {
	*e = append((*e)[0:0], data...)
	return nil
}

// Snapshot is the full catalog listing captured at one moment.
type Snapshot struct {
	Key        string
	ScrapeDate time.Time
	Entries    []RawEntry
}

// Record is the canonical, normalized view of one dataset.
// Empty strings mean absent; zero times mean missing.
type Record struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	Description     string    `json:"description,omitempty"`
	Attribution     string    `json:"attribution,omitempty"`
	Type            string    `json:"type,omitempty"`
	Creator         string    `json:"creator,omitempty"`
	Permalink       string    `json:"permalink,omitempty"`
	Category        string    `json:"category,omitempty"`
	CreationDate    time.Time `json:"creation_date,omitzero"`
	UpdateDate      time.Time `json:"update_date,omitzero"`
	FirstScrapeDate time.Time `json:"first_scrape_date,omitzero"`
}

// Table is a list of records with at most one record per id.
type Table []Record

// IDs returns the ids in the table.
func (t Table) IDs() Set {
	ids := make(Set, len(t))
	for _, r := range t {
		ids.Add(r.ID)
	}
	return ids
}

// Index maps id to record.
func (t Table) Index() map[string]Record {
	idx := make(map[string]Record, len(t))
	for _, r := range t {
		idx[r.ID] = r
	}
	return idx
}

// Filter returns the records whose id is in ids, preserving order.
func (t Table) Filter(ids Set) Table {
	out := make(Table, 0, len(ids))
	for _, r := range t {
		if ids.Has(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// SortByID sorts the table in place by id.
func (t Table) SortByID() {
	sort.SliceStable(t, func(i, j int) bool { return t[i].ID < t[j].ID })
}

// Set is a set of dataset ids.
type Set map[string]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id string) { s[id] = struct{}{} }

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Difference returns the ids in s that are not in other.
func (s Set) Difference(other Set) Set {
	out := make(Set)
	for id := range s {
		if !other.Has(id) {
			out.Add(id)
		}
	}
	return out
}

// Sorted returns the ids in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Count is one row of an aggregate table.
type Count struct {
	Key string
	N   int
}

// Change describes how a dataset's metadata moved between its first and
// its most recent observation.
type Change struct {
	ID              string
	Name            string
	FirstScrapeDate time.Time
	LastScrapeDate  time.Time
	Fields          []string
	Patch           json.RawMessage
}
