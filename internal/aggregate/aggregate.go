// Package aggregate derives the count tables published with every run.
package aggregate

import (
	"sort"
	"strconv"
	"time"

	"github.com/hkloudou/odwatch/internal/model"
)

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Summary is a family of independent count tables
type Summary struct {
	ByDay       []model.Count // first_scrape_date calendar day
	ByType      []model.Count
	ByCreator   []model.Count
	ByCategory  []model.Count // "" collects records without a category
	ByMonth     []model.Count // creation month, records without one are skipped
	ByStaleness []model.Count // whole days since last update
}

// Summarize counts records along every dimension. Days and months are
// taken in loc (UTC when nil). Keys are ascending; staleness keys sort
// numerically.
func Summarize(table model.Table, staleness map[string]int, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}

	day := make(map[string]int)
	typ := make(map[string]int)
	creator := make(map[string]int)
	category := make(map[string]int)
	month := make(map[string]int)
	stale := make(map[int]int)

	for _, rec := range table {
		if !rec.FirstScrapeDate.IsZero() {
			day[rec.FirstScrapeDate.In(loc).Format(DayLayout)]++
		}
		typ[rec.Type]++
		creator[rec.Creator]++
		category[rec.Category]++
		if !rec.CreationDate.IsZero() {
			month[rec.CreationDate.In(loc).Format(MonthLayout)]++
		}
		if d, ok := staleness[rec.ID]; ok {
			stale[d]++
		}
	}

	return Summary{
		ByDay:       sorted(day),
		ByType:      sorted(typ),
		ByCreator:   sorted(creator),
		ByCategory:  sorted(category),
		ByMonth:     sorted(month),
		ByStaleness: sortedInt(stale),
	}
}

func sorted(m map[string]int) []model.Count {
	out := make([]model.Count, 0, len(m))
	for k, n := range m {
		out = append(out, model.Count{Key: k, N: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func sortedInt(m map[int]int) []model.Count {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]model.Count, 0, len(m))
	for _, k := range keys {
		out = append(out, model.Count{Key: strconv.Itoa(k), N: m[k]})
	}
	return out
}

// Tables lists every table with its output name, in a fixed order.
func (s Summary) Tables() []Named {
	return []Named{
		{"day", s.ByDay},
		{"type", s.ByType},
		{"creator", s.ByCreator},
		{"category", s.ByCategory},
		{"month", s.ByMonth},
		{"staleness", s.ByStaleness},
	}
}

// Named pairs a count table with its dimension name
type Named struct {
	Name   string
	Counts []model.Count
}
