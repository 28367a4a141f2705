package types

// AttributeOverlay holds per-field rendering-attribute patches
// (hidden, readOnly, title, required, ...) keyed by field name. It is
// merged over static schema defaults at read time; FieldDefinitions are
// never mutated.
type AttributeOverlay map[string]map[string]any

// Set records one attribute patch, allocating the field entry on first use.
func (o AttributeOverlay) Set(field, prop string, value any) {
	attrs, ok := o[field]
	if !ok {
		attrs = make(map[string]any)
		o[field] = attrs
	}
	attrs[prop] = value
}

// Get returns the overlay value for a field attribute, if present.
func (o AttributeOverlay) Get(field, prop string) (any, bool) {
	attrs, ok := o[field]
	if !ok {
		return nil, false
	}
	v, ok := attrs[prop]
	return v, ok
}

// Clone returns an independent copy. Attribute values are scalars by
// construction, so a per-field map copy is sufficient.
func (o AttributeOverlay) Clone() AttributeOverlay {
	out := make(AttributeOverlay, len(o))
	for field, attrs := range o {
		c := make(map[string]any, len(attrs))
		for k, v := range attrs {
			c[k] = v
		}
		out[field] = c
	}
	return out
}

// MergeFrom copies every patch in other into o, overwriting on conflict.
func (o AttributeOverlay) MergeFrom(other AttributeOverlay) {
	for field, attrs := range other {
		for prop, v := range attrs {
			o.Set(field, prop, v)
		}
	}
}
