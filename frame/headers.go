package frame

import "strings"

type headerEntry struct {
	name  string
	value string
}

// Headers is an insertion-ordered set of STOMP headers.
//
// Brokers do not care about header order, but keeping it makes serialised
// frames deterministic. Names keep the casing they were set with; lookups
// are case-insensitive.
type Headers struct {
	entries []headerEntry
}

func NewHeaders() *Headers {
	return &Headers{}
}

// Get returns the value of the first header matching name.
func (h *Headers) Get(name string) (string, bool) {
	for _, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			return e.value, true
		}
	}

	return "", false
}

func (h *Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Set replaces the value of an existing header, or appends a new one.
func (h *Headers) Set(name, value string) {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			h.entries[i].value = value
			return
		}
	}

	h.entries = append(h.entries, headerEntry{name: name, value: value})
}

// SetIfAbsent appends a header unless one with the same name already
// exists. The parser uses this to implement first-occurrence-wins.
func (h *Headers) SetIfAbsent(name, value string) {
	if !h.Has(name) {
		h.entries = append(h.entries, headerEntry{name: name, value: value})
	}
}

func (h *Headers) Del(name string) {
	for i, e := range h.entries {
		if strings.EqualFold(e.name, name) {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			return
		}
	}
}

func (h *Headers) Len() int {
	return len(h.entries)
}

// Each visits headers in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	for _, e := range h.entries {
		fn(e.name, e.value)
	}
}

// Merge copies every header from other into h, replacing duplicates.
func (h *Headers) Merge(other *Headers) {
	if other == nil {
		return
	}

	other.Each(func(name, value string) {
		h.Set(name, value)
	})
}

func (h *Headers) Clone() *Headers {
	clone := &Headers{entries: make([]headerEntry, len(h.entries))}
	copy(clone.entries, h.entries)
	return clone
}
