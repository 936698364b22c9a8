// Package source reads the raw distribution files of the supported datasets
// and exposes them as alignable record streams. Each dataset gets one type
// implementing align.Source: Records decodes the distribution files, Metadata
// mints the standardized view of a single record, including the deterministic
// per-entity annotation payload paths the extractors write to.
package source

import (
	"encoding/json"
	"fmt"
	"os"
)

// ID is a dataset-local identifier. The raw distribution files are
// inconsistent about identifier types, so an ID unmarshals from both JSON
// strings and numbers. A JSON null leaves the ID empty, which downstream key
// extractors treat as an absent foreign key.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = ID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}

	*id = ID(n.String())

	return nil
}

// String returns the identifier as a plain string.
func (id ID) String() string {
	return string(id)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return nil
}
