package merge

import (
	"testing"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/hkloudou/odwatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePatch(t *testing.T) {
	tests := []struct {
		name     string
		original string
		modified string
		patch    string
		fields   []string
	}{
		{
			name:     "equal",
			original: `{"id":"a","name":"x"}`,
			modified: `{"id":"a","name":"x"}`,
			patch:    `{}`,
		},
		{
			name:     "replace",
			original: `{"id":"a","name":"x"}`,
			modified: `{"id":"a","name":"y"}`,
			patch:    `{"name":"y"}`,
			fields:   []string{"name"},
		},
		{
			name:     "added and removed",
			original: `{"id":"a","category":"Health"}`,
			modified: `{"id":"a","description":"new"}`,
			patch:    `{"category":null,"description":"new"}`,
			fields:   []string{"category", "description"},
		},
		{
			name:     "scrape date ignored",
			original: `{"id":"a","first_scrape_date":"2024-03-01T00:00:00Z"}`,
			modified: `{"id":"a","first_scrape_date":"2024-03-09T00:00:00Z"}`,
			patch:    `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, fields, err := CreatePatch([]byte(tt.original), []byte(tt.modified))
			require.NoError(t, err)
			t.Logf("patch: %s", patch)

			assert.JSONEq(t, tt.patch, string(patch))
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestCreatePatchInvalid(t *testing.T) {
	_, _, err := CreatePatch([]byte(`{`), []byte(`{}`))
	assert.Error(t, err)
}

// Applying the created patch to the original must give back the modified
// document (minus volatile fields)
func TestPatchRoundTrip(t *testing.T) {
	original := []byte(`{"id":"a","name":"x","type":"map","category":"Health"}`)
	modified := []byte(`{"id":"a","name":"y","type":"map","attribution":"DOT"}`)

	patch, _, err := CreatePatch(original, modified)
	require.NoError(t, err)

	got, err := jsonpatch.MergePatch(original, patch)
	require.NoError(t, err)
	assert.JSONEq(t, string(modified), string(got))
}

func TestDetect(t *testing.T) {
	d1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d5 := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	table := model.Table{
		{ID: "A", Name: "Trees", FirstScrapeDate: d1},
		{ID: "B", Name: "Bikes", Category: "Transit", FirstScrapeDate: d1},
		{ID: "C", Name: "Gone", FirstScrapeDate: d1},
	}
	latest := map[string]model.Record{
		"A": {ID: "A", Name: "Trees", FirstScrapeDate: d5},
		"B": {ID: "B", Name: "Bike Lanes", FirstScrapeDate: d5, UpdateDate: d5},
	}

	changes, err := Detect(table, latest)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	c := changes[0]
	assert.Equal(t, "B", c.ID)
	assert.Equal(t, "Bike Lanes", c.Name)
	assert.Equal(t, []string{"category", "name", "update_date"}, c.Fields)
	assert.True(t, c.FirstScrapeDate.Equal(d1))
	assert.True(t, c.LastScrapeDate.Equal(d5))
	assert.JSONEq(t, `{"category":null,"name":"Bike Lanes","update_date":"2024-03-05T00:00:00Z"}`, string(c.Patch))
}
