// Package normalize turns raw catalog entries into canonical records.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/hkloudou/odwatch/internal/model"
	"github.com/tidwall/gjson"
)

// nullLike are string values the catalog uses in place of a missing value
var nullLike = map[string]struct{}{
	"null": {},
	"none": {},
	"nan":  {},
}

// Normalize maps one raw entry to a record observed at scrapeDate.
// It never mutates the entry and always yields the same record for the
// same input. An entry without resource.id, or with a timestamp that is
// present but not RFC 3339, is an error.
func Normalize(entry model.RawEntry, scrapeDate time.Time) (model.Record, error) {
	id := Text(entry.Get("resource.id"))
	if id == "" {
		return model.Record{}, fmt.Errorf("entry has no resource.id")
	}

	created, err := Timestamp(entry.Get("resource.createdAt"))
	if err != nil {
		return model.Record{}, fmt.Errorf("dataset %s: createdAt: %w", id, err)
	}
	updated, err := Timestamp(entry.Get("resource.updatedAt"))
	if err != nil {
		return model.Record{}, fmt.Errorf("dataset %s: updatedAt: %w", id, err)
	}

	return model.Record{
		ID:              id,
		Name:            Text(entry.Get("resource.name")),
		Description:     Text(entry.Get("resource.description")),
		Attribution:     Text(entry.Get("resource.attribution")),
		Type:            Text(entry.Get("resource.type")),
		Creator:         Text(entry.Get("creator.display_name")),
		Permalink:       Text(entry.Get("permalink")),
		Category:        Text(entry.Get("classification.domain_category")),
		CreationDate:    created,
		UpdateDate:      updated,
		FirstScrapeDate: scrapeDate.UTC(),
	}, nil
}

// Text normalizes a JSON value to a single-line string. Missing, null,
// whitespace-only and null-like values become "".
func Text(v gjson.Result) string {
	if !v.Exists() || v.Type == gjson.Null {
		return ""
	}
	return String(v.String())
}

// String trims s, turns every whitespace run (newlines included) into one
// space, and maps null-like literals to "".
func String(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if _, ok := nullLike[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

// Timestamp parses an RFC 3339 value into UTC. Missing or empty values
// give the zero time.
func Timestamp(v gjson.Result) (time.Time, error) {
	s := Text(v)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// ParseTime accepts RFC 3339 with or without fractional seconds, and the
// offset-less form the catalog sometimes emits (read as UTC).
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
