package index

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Ext is the suffix of every snapshot blob key.
const Ext = ".json.gz"

// LatestKey is the alias that always holds a copy of the newest snapshot.
const LatestKey = "latest" + Ext

// sentinels mark alias blobs that live beside the timestamped snapshots
// but are not snapshots themselves.
var sentinels = []string{"latest", "additions"}

// layouts accepted by ParseKey, most specific first.
// Keys written by FormatKey always match the first one.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatKey returns the storage key for a snapshot captured at t.
// Format: {RFC3339Nano}.json.gz
// Example: 2024-03-01T09:30:00.123456-05:00.json.gz
func FormatKey(t time.Time) string {
	return t.Format(time.RFC3339Nano) + Ext
}

// Stem strips the directory and the .json/.json.gz suffix from a key.
func Stem(key string) string {
	name := path.Base(key)
	name = strings.TrimSuffix(name, ".gz")
	return strings.TrimSuffix(name, ".json")
}

// IsSnapshotKey reports whether key has the snapshot blob suffix.
func IsSnapshotKey(key string) bool {
	return strings.HasSuffix(key, Ext)
}

// IsSentinel reports whether key names an alias blob ("latest", "additions").
func IsSentinel(key string) bool {
	stem := Stem(key)
	for _, s := range sentinels {
		if strings.Contains(stem, s) {
			return true
		}
	}
	return false
}

// ParseKey parses the capture timestamp encoded in a snapshot key.
// Validates:
// - the key is not a sentinel alias
// - the stem is an ISO-8601 timestamp (offset optional, UTC assumed when absent)
// - the year is in range [1970, 3000]
// The offset written in the key is preserved in the returned time.
func ParseKey(key string) (time.Time, error) {
	if IsSentinel(key) {
		return time.Time{}, fmt.Errorf("invalid snapshot key: %s (alias, not a snapshot)", key)
	}

	stem := Stem(key)
	if stem == "" {
		return time.Time{}, fmt.Errorf("invalid snapshot key: %q (empty timestamp)", key)
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, stem)
		if err != nil {
			continue
		}
		if t.Year() < 1970 || t.Year() > 3000 {
			return time.Time{}, fmt.Errorf("invalid snapshot key: %s (year %d out of range [1970, 3000])", key, t.Year())
		}
		return t, nil
	}

	return time.Time{}, fmt.Errorf("invalid snapshot key: %s (expected ISO-8601 timestamp)", key)
}
