package timer

import (
	"fmt"
	"strings"

	"github.com/jzx17/gometer/pkg/types"
)

// Delimiters used when notes are flattened into a single CSV field
const (
	NoteDelimiter     = '\x1e'
	KeyValueDelimiter = '\x1f'
)

// Notes are free-form values attached to a timer, optionally keyed
type Notes struct {
	keyed  bool
	keys   []string
	values []any
}

// NewNotes creates plain notes
func NewNotes(values ...any) *Notes {
	return &Notes{values: append([]any(nil), values...)}
}

// NewKeyedNotes creates keyed notes from alternating keys and values.
// Keys are rendered with fmt.Sprint.
func NewKeyedNotes(pairs ...any) (*Notes, error) {
	if len(pairs)%2 != 0 {
		return nil, types.ErrOddNotes
	}

	n := &Notes{
		keyed:  true,
		keys:   make([]string, 0, len(pairs)/2),
		values: make([]any, 0, len(pairs)/2),
	}
	for i := 0; i < len(pairs); i += 2 {
		n.keys = append(n.keys, fmt.Sprint(pairs[i]))
		n.values = append(n.values, pairs[i+1])
	}
	return n, nil
}

// Keyed reports whether the notes carry keys
func (n *Notes) Keyed() bool {
	return n.keyed
}

// Len returns the number of notes
func (n *Notes) Len() int {
	return len(n.values)
}

// Keys returns a copy of the keys, empty for plain notes
func (n *Notes) Keys() []string {
	return append([]string{}, n.keys...)
}

// Values returns a copy of the values
func (n *Notes) Values() []any {
	return append([]any(nil), n.values...)
}

// Value returns the note at index i
func (n *Notes) Value(i int) any {
	return n.values[i]
}

// StringValue returns the note at index i rendered with fmt.Sprint
func (n *Notes) StringValue(i int) string {
	return fmt.Sprint(n.values[i])
}

// Index returns the position of key, ignoring case, or -1
func (n *Notes) Index(key string) int {
	for i, k := range n.keys {
		if strings.EqualFold(k, key) {
			return i
		}
	}
	return -1
}

// Get returns the value for key, ignoring case. A missing key yields nil.
func (n *Notes) Get(key string) (any, error) {
	if !n.keyed {
		return nil, types.ErrNotKeyed
	}
	if i := n.Index(key); i >= 0 {
		return n.values[i], nil
	}
	return nil, nil
}

// Formatted returns note i as "key=value" for keyed notes or the bare value
func (n *Notes) Formatted(i int) string {
	if n.keyed {
		return n.keys[i] + "=" + fmt.Sprint(n.values[i])
	}
	return fmt.Sprint(n.values[i])
}

// String joins the formatted notes with commas
func (n *Notes) String() string {
	parts := make([]string, n.Len())
	for i := range parts {
		parts[i] = n.Formatted(i)
	}
	return strings.Join(parts, ",")
}

// SingleValue flattens the notes using the default delimiters
func (n *Notes) SingleValue() string {
	return n.SingleValueWith(NoteDelimiter, KeyValueDelimiter)
}

// SingleValueWith flattens the notes using the given delimiters
func (n *Notes) SingleValueWith(noteDelim, kvDelim rune) string {
	var sb strings.Builder
	for i, v := range n.values {
		if i > 0 {
			sb.WriteRune(noteDelim)
		}
		if n.keyed {
			sb.WriteString(n.keys[i])
			sb.WriteRune(kvDelim)
		}
		fmt.Fprint(&sb, v)
	}
	return sb.String()
}

// ParseNotes reverses SingleValue. Parsed values are strings.
func ParseNotes(s string) *Notes {
	return ParseNotesWith(s, NoteDelimiter, KeyValueDelimiter)
}

// ParseNotesWith reverses SingleValueWith. The notes are keyed when the
// first note contains kvDelim after at least one character; later notes
// without the delimiter are skipped.
func ParseNotesWith(s string, noteDelim, kvDelim rune) *Notes {
	if s == "" {
		return NewNotes()
	}

	parts := strings.Split(s, string(noteDelim))
	if strings.IndexRune(parts[0], kvDelim) <= 0 {
		values := make([]any, len(parts))
		for i, p := range parts {
			values[i] = p
		}
		return NewNotes(values...)
	}

	n := &Notes{keyed: true}
	for _, p := range parts {
		key, value, ok := strings.Cut(p, string(kvDelim))
		if !ok {
			continue
		}
		n.keys = append(n.keys, key)
		n.values = append(n.values, value)
	}
	return n
}
