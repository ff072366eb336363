// Package lookup defines the boundary between tap resolution and whatever
// dictionary answers it. The reader hands a backend the tapped sentence and
// the byte offset of the tapped character; everything past that, including
// word segmentation, is the backend's business.
package lookup

import "context"

// Query is one resolved tap.
type Query struct {
	// Sentence is the full sentence containing the tapped character.
	Sentence string
	// ByteOffset is a UTF-8 byte offset into Sentence.
	ByteOffset int
}

// Result is what the overlay renders.
type Result struct {
	Headword string
	Body     string
}

// Backend answers lookup queries.
type Backend interface {
	Lookup(ctx context.Context, q Query) (Result, error)
}

// Echo is the built-in backend. It has no dictionary; it reflects the query
// back so the overlay and the tap pipeline can be exercised end to end.
type Echo struct{}

func (Echo) Lookup(_ context.Context, q Query) (Result, error) {
	head := q.Sentence
	if q.ByteOffset >= 0 && q.ByteOffset < len(head) {
		head = head[q.ByteOffset:]
	}
	// Show a short window starting at the tapped rune.
	if n := runePrefix(head, 8); n < len(head) {
		head = head[:n]
	}
	return Result{Headword: head, Body: q.Sentence}, nil
}

// runePrefix returns the byte length of the first count runes of s.
func runePrefix(s string, count int) int {
	seen := 0
	for i := range s {
		if seen == count {
			return i
		}
		seen++
	}
	return len(s)
}
