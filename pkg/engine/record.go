// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package engine

// Record is one result row with named properties. The zero value is an
// empty record.
type Record struct {
	headers []string
	values  []any
}

// NewRecord builds a record from parallel header and value slices. Extra
// headers beyond len(values) read as nil.
func NewRecord(headers []string, values []any) Record {
	return Record{headers: headers, values: values}
}

// Property returns the value of the named property, or nil when the record
// carries no such property. Lookup never fails: schema-flexible documents
// may omit any property.
func (r Record) Property(name string) any {
	for i, h := range r.headers {
		if h == name {
			if i >= len(r.values) {
				return nil
			}
			return r.values[i]
		}
	}
	return nil
}

// Has reports whether the record carries the named property.
func (r Record) Has(name string) bool {
	for _, h := range r.headers {
		if h == name {
			return true
		}
	}
	return false
}

// Properties returns the property names in result order.
func (r Record) Properties() []string {
	out := make([]string, len(r.headers))
	copy(out, r.headers)
	return out
}

// Values returns the property values in result order.
func (r Record) Values() []any {
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// Map returns the record as a name-to-value map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.headers))
	for i, h := range r.headers {
		if i < len(r.values) {
			m[h] = r.values[i]
		}
	}
	return m
}
