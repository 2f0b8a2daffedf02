// Package table reads and writes the flat CSV files odwatch publishes.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hkloudou/odwatch/internal/model"
)

// Columns of latest.csv, new.csv and deleted.csv. scrape_date holds the
// record's first_scrape_date.
var Columns = []string{
	"scrape_date",
	"id",
	"name",
	"description",
	"attribution",
	"type",
	"creator",
	"permalink",
	"category",
	"creation_date",
	"update_date",
}

// ChangeColumns of updated.csv
var ChangeColumns = []string{"id", "name", "first_scrape_date", "last_scrape_date", "fields", "patch"}

// timeLayouts accepted when reading; the first one is used for writing.
// The second matches tables written by pandas.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// FormatTime renders t as RFC 3339 in UTC; the zero time is ""
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayouts[0])
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func recordRow(r model.Record) []string {
	return []string{
		FormatTime(r.FirstScrapeDate),
		r.ID,
		r.Name,
		r.Description,
		r.Attribution,
		r.Type,
		r.Creator,
		r.Permalink,
		r.Category,
		FormatTime(r.CreationDate),
		FormatTime(r.UpdateDate),
	}
}

// WriteRecords writes a header plus one row per record
func WriteRecords(w io.Writer, t model.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range t {
		if err := cw.Write(recordRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadRecords reads a table written by WriteRecords. Columns are matched
// by header name, so column order and extra columns do not matter; the
// id column is required.
func ReadRecords(r io.Reader) (model.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return model.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, fmt.Errorf("missing id column in header %v", header)
	}

	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	out := model.Table{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}

		rec := model.Record{
			ID:          get(row, "id"),
			Name:        get(row, "name"),
			Description: get(row, "description"),
			Attribution: get(row, "attribution"),
			Type:        get(row, "type"),
			Creator:     get(row, "creator"),
			Permalink:   get(row, "permalink"),
			Category:    get(row, "category"),
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: empty id", line)
		}
		for name, dst := range map[string]*time.Time{
			"scrape_date":   &rec.FirstScrapeDate,
			"creation_date": &rec.CreationDate,
			"update_date":   &rec.UpdateDate,
		} {
			if *dst, err = parseTime(get(row, name)); err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, name, err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteCounts writes a two-column table: keyHeader,n
func WriteCounts(w io.Writer, keyHeader string, counts []model.Count) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{keyHeader, "n"}); err != nil {
		return err
	}
	for _, c := range counts {
		if err := cw.Write([]string{c.Key, strconv.Itoa(c.N)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChanges writes updated.csv; fields are joined with ';'
func WriteChanges(w io.Writer, changes []model.Change) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ChangeColumns); err != nil {
		return err
	}
	for _, c := range changes {
		row := []string{
			c.ID,
			c.Name,
			FormatTime(c.FirstScrapeDate),
			FormatTime(c.LastScrapeDate),
			strings.Join(c.Fields, ";"),
			string(c.Patch),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes path atomically: fn fills a temp file in the same
// directory, which is then renamed over path.
func WriteFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// ReadFile reads a records table from path. A missing file wraps
// os.ErrNotExist.
func ReadFile(path string) (model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return t, nil
}
