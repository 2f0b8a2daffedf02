package merge

import (
	"encoding/json"
	"fmt"

	"github.com/hkloudou/odwatch/internal/model"
)

// Detect compares every record's first observation (from table) with its
// most recent one (from latest) and reports the datasets whose metadata
// changed, sorted by id.
func Detect(table model.Table, latest map[string]model.Record) ([]model.Change, error) {
	var changes []model.Change
	for _, first := range table {
		last, ok := latest[first.ID]
		if !ok {
			continue
		}

		a, err := json.Marshal(first)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", first.ID, err)
		}
		b, err := json.Marshal(last)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", last.ID, err)
		}

		patch, fields, err := CreatePatch(a, b)
		if err != nil {
			return nil, fmt.Errorf("failed to diff %s: %w", first.ID, err)
		}
		if len(fields) == 0 {
			continue
		}

		changes = append(changes, model.Change{
			ID:              first.ID,
			Name:            last.Name,
			FirstScrapeDate: first.FirstScrapeDate,
			LastScrapeDate:  last.FirstScrapeDate,
			Fields:          fields,
			Patch:           patch,
		})
	}
	return changes, nil
}
