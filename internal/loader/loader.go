// Package loader reads form documents (schema + rules + initial state)
// from JSON files and optionally hot-reloads them on change.
package loader

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/formkeeper/formkeeper/internal/types"
)

// Document is one complete form definition as stored on disk.
type Document struct {
	FormID  string                  `json:"formId"`
	Fields  []types.FieldDefinition `json:"fields"`
	Rules   []types.RuleDefinition  `json:"rules"`
	Initial types.FormState         `json:"initial"`
}

// Load reads and decodes a form document. The gjson probe runs before
// full decoding so a file that is valid JSON but the wrong shape fails
// with a shape error rather than a zero-valued document.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form document: %w", err)
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("form document %s is not valid JSON", path)
	}
	if fields := gjson.GetBytes(raw, "fields"); !fields.IsArray() {
		return nil, fmt.Errorf("form document %s: missing or non-array \"fields\"", path)
	}
	if rules := gjson.GetBytes(raw, "rules"); rules.Exists() && !rules.IsArray() {
		return nil, fmt.Errorf("form document %s: \"rules\" must be an array", path)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode form document %s: %w", path, err)
	}

	if doc.FormID == "" {
		doc.FormID = "default"
	}

	return &doc, nil
}
