// Package formula collects mathematical formula occurrences together with a
// window of surrounding document text, so retrieved context can carry the
// prose that explains each formula.
package formula

import "unicode/utf8"

// windowRunes is how far the stored context extends on each side of a
// formula occurrence.
const windowRunes = 100

// Entry is one recorded formula with its surrounding document context.
type Entry struct {
	Formula string `json:"formula"`
	Context string `json:"context"`
}

// Store keys entries by literal formula text in first-seen order.
// Re-recording a formula overwrites its context in place (last write wins);
// the original insertion position is kept.
type Store struct {
	entries []Entry
	index   map[string]int
}

// New returns an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// FromEntries rebuilds a store from previously rendered entries, preserving
// their order. A duplicate formula overwrites the earlier context.
func FromEntries(entries []Entry) *Store {
	s := New()
	for _, e := range entries {
		if i, ok := s.index[e.Formula]; ok {
			s.entries[i].Context = e.Context
			continue
		}
		s.index[e.Formula] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return s
}

// Record stores the context window around the formula occurrence at the
// given byte offset into sourceText. The window is symmetric in runes and
// clamped to the document bounds.
func (s *Store) Record(formula, sourceText string, offset int) {
	ctx := window(sourceText, offset, len(formula))
	if i, ok := s.index[formula]; ok {
		s.entries[i].Context = ctx
		return
	}
	s.index[formula] = len(s.entries)
	s.entries = append(s.entries, Entry{Formula: formula, Context: ctx})
}

// Render returns the entries in insertion order. The slice is a copy.
func (s *Store) Render() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports how many distinct formulas are stored.
func (s *Store) Len() int { return len(s.entries) }

// window extracts up to windowRunes runes on either side of the span
// [offset, offset+length) in source, clamped to the document.
func window(source string, offset, length int) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	end := offset + length
	if end > len(source) {
		end = len(source)
	}

	start := offset
	for i := 0; i < windowRunes && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(source[:start])
		start -= size
	}
	for i := 0; i < windowRunes && end < len(source); i++ {
		_, size := utf8.DecodeRuneInString(source[end:])
		end += size
	}
	return source[start:end]
}
