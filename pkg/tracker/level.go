package tracker

import (
	"slices"
	"sync"
)

// Level classifies a timer so a Tracker can filter it
type Level interface {
	// Group identifies the family of comparable levels
	Group() string
	// Enables reports whether this level, when enabled, lets other through
	Enables(other Level) bool
}

// Category is a level that only enables itself
type Category struct {
	group string
	name  string
}

// NewCategory creates a category level
func NewCategory(group, name string) Category {
	return Category{group: group, name: name}
}

func (c Category) Group() string { return c.group }

func (c Category) String() string { return c.group + ":" + c.name }

// Enables reports whether other is the same category
func (c Category) Enables(other Level) bool {
	o, ok := other.(Category)
	return ok && o == c
}

// Threshold is an ordered level. Enabling a threshold enables every
// threshold of the same group with a rank at or below it.
type Threshold struct {
	group string
	name  string
	rank  int
}

// NewThreshold creates a threshold level
func NewThreshold(group, name string, rank int) Threshold {
	return Threshold{group: group, name: name, rank: rank}
}

func (t Threshold) Group() string { return t.group }

func (t Threshold) String() string { return t.group + ":" + t.name }

// Rank returns the position of the threshold in its group
func (t Threshold) Rank() int { return t.rank }

// Enables reports whether other is a threshold of the same group at or below t
func (t Threshold) Enables(other Level) bool {
	o, ok := other.(Threshold)
	return ok && o.group == t.group && t.rank >= o.rank
}

// LevelSet is a mutable collection of enabled levels.
// A group holds at most one threshold.
type LevelSet struct {
	mu     sync.RWMutex
	levels []Level
}

var _ Level = (*LevelSet)(nil)

// NewLevelSet creates a set holding levels
func NewLevelSet(levels ...Level) *LevelSet {
	s := &LevelSet{}
	s.AddAll(levels...)
	return s
}

func (s *LevelSet) Group() string { return "set" }

// Add enables l. For a category it returns the level that already enabled
// it, if any. For a threshold it returns the threshold of the same group that
// it replaced, if any. Adding a LevelSet adds each of its levels.
func (s *LevelSet) Add(l Level) Level {
	if l == nil {
		return nil
	}
	if other, ok := l.(*LevelSet); ok {
		if other == s {
			return nil
		}
		for _, each := range other.Levels() {
			s.Add(each)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if th, ok := l.(Threshold); ok {
		for i, existing := range s.levels {
			if old, ok := existing.(Threshold); ok && old.group == th.group {
				s.levels[i] = th
				return old
			}
		}
		s.levels = append(s.levels, th)
		return nil
	}

	for _, existing := range s.levels {
		if existing.Enables(l) {
			return existing
		}
	}
	s.levels = append(s.levels, l)
	return nil
}

// AddAll adds every level and reports whether any was newly added
func (s *LevelSet) AddAll(levels ...Level) bool {
	added := false
	for _, l := range levels {
		if l != nil && s.Add(l) == nil {
			added = true
		}
	}
	return added
}

// Remove disables l and reports whether it was present
func (s *LevelSet) Remove(l Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.levels, func(existing Level) bool { return existing == l })
	if i < 0 {
		return false
	}
	s.levels = slices.Delete(s.levels, i, i+1)
	return true
}

// Clear disables every level
func (s *LevelSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = nil
}

// Enables reports whether any level in the set enables other
func (s *LevelSet) Enables(other Level) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.ContainsFunc(s.levels, func(l Level) bool { return l.Enables(other) })
}

// EnablesAny reports whether any of levels is enabled
func (s *LevelSet) EnablesAny(levels ...Level) bool {
	return slices.ContainsFunc(levels, s.Enables)
}

// Levels returns a copy of the enabled levels
func (s *LevelSet) Levels() []Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.levels)
}

// Len returns the number of enabled levels
func (s *LevelSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.levels)
}
