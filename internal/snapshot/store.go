// Package snapshot persists raw catalog listings, one blob per capture,
// keyed by the capture timestamp (see index.FormatKey).
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/hkloudou/odwatch/internal/cache"
	"github.com/hkloudou/odwatch/internal/encrypt"
	"github.com/hkloudou/odwatch/internal/index"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/storage"
	"github.com/hkloudou/odwatch/trace"
	"github.com/tidwall/gjson"
)

// DefaultConcurrency bounds parallel blob reads in ReadAll
const DefaultConcurrency = 4

// ErrEmptyStore is returned by Latest when no snapshot exists yet
var ErrEmptyStore = errors.New("snapshot store is empty")

// MalformedKeyError reports a blob whose key is not a capture timestamp
type MalformedKeyError struct {
	Key string
	Err error
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed snapshot key %q: %v", e.Key, e.Err)
}

func (e *MalformedKeyError) Unwrap() error { return e.Err }

// CorruptSnapshotError reports a blob that cannot be decoded into a list
// of catalog entries
type CorruptSnapshotError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CorruptSnapshotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt snapshot %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt snapshot %q: %s", e.Key, e.Reason)
}

func (e *CorruptSnapshotError) Unwrap() error { return e.Err }

// Ref points at one stored snapshot
type Ref struct {
	Key        string
	ScrapeDate time.Time
}

// Option configures a Store
type Option func(*Store)

// WithCache routes reads of timestamped blobs through c
func WithCache(c cache.Cache) Option {
	return func(s *Store) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithPrefix scopes all keys under prefix (e.g. "raw/")
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithConcurrency sets how many blobs ReadAll fetches at once
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store reads and writes snapshots on top of a blob storage
type Store struct {
	storage     storage.Storage
	cache       cache.Cache
	prefix      string
	concurrency int
	log         *slog.Logger
	pool        pond.ResultPool[model.Snapshot]
}

// NewStore creates a snapshot store
func NewStore(s storage.Storage, opts ...Option) *Store {
	st := &Store{
		storage:     s,
		cache:       cache.NewNoOpCache(),
		concurrency: DefaultConcurrency,
		log:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.pool = pond.NewResultPool[model.Snapshot](st.concurrency)
	return st
}

// Close waits for queued reads and stops the worker pool. The store must
// not be used afterwards.
func (s *Store) Close() {
	s.pool.StopAndWait()
}

// List returns every stored snapshot, newest first. Alias blobs (latest,
// additions) are skipped; any other key that does not parse as a
// timestamp fails the whole listing.
func (s *Store) List(ctx context.Context) ([]Ref, error) {
	keys, err := s.storage.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	refs := make([]Ref, 0, len(keys))
	for _, key := range keys {
		if !index.IsSnapshotKey(key) || index.IsSentinel(key) {
			continue
		}
		at, err := index.ParseKey(key)
		if err != nil {
			return nil, &MalformedKeyError{Key: key, Err: err}
		}
		refs = append(refs, Ref{Key: key, ScrapeDate: at})
	}

	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].ScrapeDate.Equal(refs[j].ScrapeDate) {
			return refs[i].ScrapeDate.After(refs[j].ScrapeDate)
		}
		return refs[i].Key > refs[j].Key
	})

	trace.FromContext(ctx).RecordSpan("Snapshot.List", map[string]any{
		"keys":      len(keys),
		"snapshots": len(refs),
	})
	return refs, nil
}

// Read loads and decodes one snapshot
func (s *Store) Read(ctx context.Context, ref Ref) (model.Snapshot, error) {
	data, err := s.cache.Take(ctx, s.storage.Namespace(), ref.Key, func() ([]byte, error) {
		return s.storage.Get(ctx, ref.Key)
	})
	if err != nil {
		if errors.Is(err, encrypt.ErrCorrupt) {
			return model.Snapshot{}, &CorruptSnapshotError{Key: ref.Key, Reason: "undecodable blob", Err: err}
		}
		return model.Snapshot{}, fmt.Errorf("failed to read snapshot %s: %w", ref.Key, err)
	}

	entries, err := decodeEntries(ref.Key, data)
	if err != nil {
		return model.Snapshot{}, err
	}

	return model.Snapshot{
		Key:        ref.Key,
		ScrapeDate: ref.ScrapeDate,
		Entries:    entries,
	}, nil
}

// Latest reads the newest snapshot
func (s *Store) Latest(ctx context.Context) (model.Snapshot, error) {
	refs, err := s.List(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(refs) == 0 {
		return model.Snapshot{}, ErrEmptyStore
	}
	return s.Read(ctx, refs[0])
}

// ReadAll reads refs in parallel and returns the snapshots in the same
// order. The first failure cancels the context of reads still in flight.
func (s *Store) ReadAll(ctx context.Context, refs []Ref) ([]model.Snapshot, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group := s.pool.NewGroupContext(gctx)
	for _, ref := range refs {
		group.SubmitErr(func() (model.Snapshot, error) {
			snap, err := s.Read(gctx, ref)
			if err != nil {
				cancel()
			}
			return snap, err
		})
	}

	snaps, err := group.Wait()
	if err != nil {
		return nil, err
	}

	entries := 0
	for _, snap := range snaps {
		entries += len(snap.Entries)
	}
	trace.FromContext(ctx).RecordSpan("Snapshot.ReadAll", map[string]any{
		"snapshots": len(snaps),
		"entries":   entries,
	})
	return snaps, nil
}

// Write stores entries as the snapshot captured at `at` and refreshes the
// latest alias. The alias is written second so it never points ahead of
// the timestamped blob.
func (s *Store) Write(ctx context.Context, at time.Time, entries []model.RawEntry) (Ref, error) {
	if entries == nil {
		entries = []model.RawEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	ref := Ref{Key: s.prefix + index.FormatKey(at), ScrapeDate: at}
	if err := s.storage.Put(ctx, ref.Key, data); err != nil {
		return Ref{}, fmt.Errorf("failed to write snapshot %s: %w", ref.Key, err)
	}
	if err := s.storage.Put(ctx, s.prefix+index.LatestKey, data); err != nil {
		return Ref{}, fmt.Errorf("failed to write latest alias: %w", err)
	}

	s.log.Debug("snapshot written", "key", ref.Key, "entries", len(entries), "bytes", len(data))
	trace.FromContext(ctx).RecordSpan("Snapshot.Write", map[string]any{
		"key":     ref.Key,
		"entries": len(entries),
	})
	return ref, nil
}

func decodeEntries(key string, data []byte) ([]model.RawEntry, error) {
	if !gjson.ValidBytes(data) {
		return nil, &CorruptSnapshotError{Key: key, Reason: "invalid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, &CorruptSnapshotError{Key: key, Reason: "root is not an array"}
	}

	var entries []model.RawEntry
	var bad error
	root.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			bad = &CorruptSnapshotError{Key: key, Reason: fmt.Sprintf("entry %d is not an object", len(entries))}
			return false
		}
		entries = append(entries, model.RawEntry(item.Raw))
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return entries, nil
}
