package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/gometer/pkg/types"
)

func TestNotes_Plain(t *testing.T) {
	n := NewNotes("a", 1, true)

	assert.False(t, n.Keyed())
	assert.Equal(t, 3, n.Len())
	assert.Empty(t, n.Keys())
	assert.Equal(t, 1, n.Value(1))
	assert.Equal(t, "true", n.StringValue(2))
	assert.Equal(t, "a", n.Formatted(0))
	assert.Equal(t, "a,1,true", n.String())
	assert.Equal(t, -1, n.Index("a"))

	_, err := n.Get("a")
	assert.ErrorIs(t, err, types.ErrNotKeyed)
}

func TestNotes_Keyed(t *testing.T) {
	n, err := NewKeyedNotes("Table", "users", "rows", 3)
	require.NoError(t, err)

	assert.True(t, n.Keyed())
	assert.Equal(t, 2, n.Len())
	assert.Equal(t, []string{"Table", "rows"}, n.Keys())
	assert.Equal(t, []any{"users", 3}, n.Values())
	assert.Equal(t, "Table=users", n.Formatted(0))
	assert.Equal(t, 0, n.Index("table"))

	v, err := n.Get("TABLE")
	require.NoError(t, err)
	assert.Equal(t, "users", v)

	v, err = n.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = NewKeyedNotes("lonely")
	assert.ErrorIs(t, err, types.ErrOddNotes)
}

func TestNotes_Copies(t *testing.T) {
	n, err := NewKeyedNotes("k", "v")
	require.NoError(t, err)

	n.Keys()[0] = "changed"
	n.Values()[0] = "changed"

	assert.Equal(t, "k=v", n.Formatted(0))
}

func TestNotes_SingleValue(t *testing.T) {
	tests := []struct {
		name  string
		notes func() *Notes
		want  string
	}{
		{
			name:  "plain",
			notes: func() *Notes { return NewNotes("a", "b") },
			want:  "a\x1eb",
		},
		{
			name: "keyed",
			notes: func() *Notes {
				n, _ := NewKeyedNotes("k1", "v1", "k2", 2)
				return n
			},
			want: "k1\x1fv1\x1ek2\x1f2",
		},
		{
			name:  "empty",
			notes: func() *Notes { return NewNotes() },
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.notes()
			flat := n.SingleValue()
			assert.Equal(t, tt.want, flat)

			parsed := ParseNotes(flat)
			assert.Equal(t, n.Keyed(), parsed.Keyed())
			assert.Equal(t, n.Len(), parsed.Len())
			assert.Equal(t, n.Keys(), parsed.Keys())
		})
	}
}

func TestParseNotesWith(t *testing.T) {
	n := ParseNotesWith("a=1;b=2;junk", ';', '=')

	assert.True(t, n.Keyed())
	assert.Equal(t, []string{"a", "b"}, n.Keys())
	assert.Equal(t, "a;b", NewNotes("a", "b").SingleValueWith(';', '='))

	// a delimiter in first position does not make the notes keyed
	plain := ParseNotesWith("=x;y", ';', '=')
	assert.False(t, plain.Keyed())
	assert.Equal(t, 2, plain.Len())
}
