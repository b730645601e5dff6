package httpparse

import "strings"

// Header is one name/value pair in request order. Names are stored as
// received; all lookups are case-insensitive per spec.md §4 (C7).
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered, case-insensitive multimap. Duplicate names are
// preserved in order — a duplicate Content-Length is rejected earlier by
// the parser; others (Cookie-like headers, and Host) are kept, and Get
// returns the first value.
type Headers []Header

// Get returns the first value for name, case-insensitive.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Values returns every value stored under name, in insertion order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			out = append(out, kv.Value)
		}
	}
	return out
}

// Count returns how many headers are stored under name. The parser does
// not use it; it tracks a duplicate Content-Length on its own.
func (h Headers) Count(name string) int {
	n := 0
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			n++
		}
	}
	return n
}
