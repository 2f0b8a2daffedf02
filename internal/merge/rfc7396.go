// Package merge describes how a dataset's metadata changed over time as an
// RFC 7396 JSON Merge Patch (https://datatracker.ietf.org/doc/html/rfc7396).
package merge

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// volatile fields differ between any two observations and are never
// reported as changes
var volatile = []string{"first_scrape_date"}

// CreatePatch returns the merge patch turning original into modified and
// the sorted list of top-level fields it touches. An empty field list
// means the documents are equal once volatile fields are dropped.
func CreatePatch(original, modified []byte) ([]byte, []string, error) {
	original, err := stripVolatile(original)
	if err != nil {
		return nil, nil, err
	}
	modified, err = stripVolatile(modified)
	if err != nil {
		return nil, nil, err
	}

	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, nil, fmt.Errorf("RFC7396 diff failed: %w", err)
	}

	var fields []string
	gjson.ParseBytes(patch).ForEach(func(key, _ gjson.Result) bool {
		fields = append(fields, key.String())
		return true
	})
	sort.Strings(fields)
	return patch, fields, nil
}

func stripVolatile(doc []byte) ([]byte, error) {
	if !json.Valid(doc) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	var err error
	for _, path := range volatile {
		doc, err = sjson.DeleteBytes(doc, path)
		if err != nil {
			return nil, fmt.Errorf("failed to drop %s: %w", path, err)
		}
	}
	return doc, nil
}
