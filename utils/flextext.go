package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexText decodes a JSON string, number or null into text. Listing sites
// are inconsistent about quoting ids and years.
type FlexText string

func (f *FlexText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexText(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("flextext: %s: %w", data, err)
		}
		*f = FlexText(n.String())
	}
	return nil
}

func (f FlexText) String() string { return string(f) }
