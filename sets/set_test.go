package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetBasics(t *testing.T) {
	s := NewSet(1, 2, 3)
	assert.Equal(t, 3, s.Size())
	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(4))

	s.Insert(4)
	assert.True(t, s.Contains(4))

	s.Delete(1)
	assert.False(t, s.Contains(1))
}

func TestSetClear(t *testing.T) {
	s := NewSet("a", "b")
	s.Clear()
	assert.True(t, s.IsEmpty())

	// Still usable after clearing.
	s.Insert("c")
	assert.True(t, s.Contains("c"))
}

func TestSetEquals(t *testing.T) {
	assert.True(t, NewSet(1, 2).Equals(NewSet(2, 1)))
	assert.False(t, NewSet(1, 2).Equals(NewSet(1, 3)))
	assert.False(t, NewSet(1).Equals(NewSet(1, 2)))
}

func TestSetGet(t *testing.T) {
	s := NewSet("x")
	v, ok := s.Get("x").Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.True(t, s.Get("y").IsNone())
}

func TestSetClone(t *testing.T) {
	s := NewSet(1)
	clone := s.Clone()
	clone.Insert(2)
	assert.False(t, s.Contains(2))
}
