// internal/form/events.go
package form

import (
	"fmt"

	"github.com/tidwall/gjson"
)

/*
 * Change-event normalization.
 *
 * The engine consumes one canonical shape: {name, value}. Raw events
 * arrive either in that shape or wrapped DOM-style as
 * {target: {name, value}}. Probing with gjson avoids committing to a
 * struct for the wrapped shape and tolerates extra keys renderers
 * attach to their events.
 */

// ChangeEvent is the canonical normalized field edit.
type ChangeEvent struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// NormalizeEvent converts a raw JSON event into a ChangeEvent,
// accepting both the direct and the DOM-like wrapped shape.
func NormalizeEvent(raw []byte) (ChangeEvent, error) {
	if !gjson.ValidBytes(raw) {
		return ChangeEvent{}, fmt.Errorf("malformed change event")
	}

	name := gjson.GetBytes(raw, "target.name")
	value := gjson.GetBytes(raw, "target.value")
	if !name.Exists() {
		name = gjson.GetBytes(raw, "name")
		value = gjson.GetBytes(raw, "value")
	}

	if !name.Exists() || name.String() == "" {
		return ChangeEvent{}, fmt.Errorf("change event has no field name")
	}

	return ChangeEvent{Name: name.String(), Value: value.Value()}, nil
}
