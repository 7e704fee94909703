package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errClosedPipe = errors.New("closed pipe")

func TestCategory(t *testing.T) {
	sql := NewCategory("area", "sql")

	assert.Equal(t, "area", sql.Group())
	assert.Equal(t, "area:sql", sql.String())
	assert.True(t, sql.Enables(NewCategory("area", "sql")))
	assert.False(t, sql.Enables(NewCategory("area", "http")))
	assert.False(t, sql.Enables(NewCategory("other", "sql")))
	assert.False(t, sql.Enables(NewThreshold("area", "sql", 0)))
}

func TestThreshold(t *testing.T) {
	tests := []struct {
		name  string
		level Threshold
		other Level
		want  bool
	}{
		{"lower rank", NewThreshold("log", "info", 1), NewThreshold("log", "debug", 0), true},
		{"same rank", NewThreshold("log", "info", 1), NewThreshold("log", "info", 1), true},
		{"higher rank", NewThreshold("log", "info", 1), NewThreshold("log", "warn", 2), false},
		{"other group", NewThreshold("log", "info", 1), NewThreshold("trace", "debug", 0), false},
		{"category", NewThreshold("log", "info", 1), NewCategory("log", "debug"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.level.Enables(tt.other))
		})
	}

	assert.Equal(t, 1, NewThreshold("log", "info", 1).Rank())
	assert.Equal(t, "log:info", NewThreshold("log", "info", 1).String())
}

func TestLevelSet(t *testing.T) {
	t.Run("categories", func(t *testing.T) {
		s := NewLevelSet()
		sql := NewCategory("area", "sql")

		assert.Nil(t, s.Add(sql))
		assert.Equal(t, sql, s.Add(sql))
		assert.Equal(t, 1, s.Len())
		assert.True(t, s.Enables(sql))
		assert.False(t, s.Enables(NewCategory("area", "http")))
	})

	t.Run("one threshold per group", func(t *testing.T) {
		s := NewLevelSet()
		info := NewThreshold("log", "info", 1)
		warn := NewThreshold("log", "warn", 2)

		assert.Nil(t, s.Add(info))
		assert.Equal(t, info, s.Add(warn))
		assert.Nil(t, s.Add(NewThreshold("trace", "all", 0)))

		assert.Equal(t, 2, s.Len())
		assert.True(t, s.Enables(info))
		assert.True(t, s.Enables(warn))
	})

	t.Run("nested sets are flattened", func(t *testing.T) {
		inner := NewLevelSet(NewCategory("area", "sql"), NewThreshold("log", "info", 1))
		s := NewLevelSet()

		assert.Nil(t, s.Add(inner))
		assert.Nil(t, s.Add(s))
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, "set", s.Group())
	})

	t.Run("add all, remove and clear", func(t *testing.T) {
		sql := NewCategory("area", "sql")
		s := NewLevelSet()

		assert.True(t, s.AddAll(sql, nil))
		assert.False(t, s.AddAll(sql))
		assert.Nil(t, s.Add(nil))
		assert.True(t, s.EnablesAny(NewCategory("area", "http"), sql))
		assert.False(t, s.EnablesAny())

		assert.True(t, s.Remove(sql))
		assert.False(t, s.Remove(sql))

		s.AddAll(sql, NewThreshold("log", "info", 1))
		s.Clear()
		assert.Empty(t, s.Levels())
	})

	t.Run("levels is a copy", func(t *testing.T) {
		s := NewLevelSet(NewCategory("area", "sql"))
		levels := s.Levels()
		levels[0] = NewCategory("area", "http")

		assert.True(t, s.Enables(NewCategory("area", "sql")))
	})
}
