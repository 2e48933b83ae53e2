package orderedmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetKeepsInsertionOrder(t *testing.T) {
	m := New[string, int]()
	m.Set("c", 1)
	m.Set("a", 2)
	m.Set("b", 3)

	i, isNew := m.Set("a", 20)
	assert.Equal(t, 1, i)
	assert.False(t, isNew)
	assert.Equal(t, []string{"c", "a", "b"}, m.Keys())
	assert.Equal(t, []int{1, 20, 3}, m.Values())
}

func TestDeleteReindexes(t *testing.T) {
	m := New[string, int]()
	for i, k := range []string{"a", "b", "c", "d"} {
		m.Set(k, i)
	}

	assert.Equal(t, 1, m.Delete("b"))
	assert.Equal(t, -1, m.Delete("b"))
	assert.Equal(t, []string{"a", "c", "d"}, m.Keys())
	assert.Equal(t, 1, m.IndexOf("c"))
	assert.Equal(t, 2, m.IndexOf("d"))
	assert.Equal(t, -1, m.IndexOf("b"))
}

func TestInsertAtSplices(t *testing.T) {
	m := New[string, int]()
	m.Set("b", 2)
	m.Set("d", 4)

	assert.Equal(t, 0, m.InsertAt(0, "a", 1))
	assert.Equal(t, 2, m.InsertAt(m.IndexOf("d"), "c", 3))
	assert.Equal(t, 4, m.InsertAt(m.Len(), "e", 5))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, m.Keys())
	assert.Equal(t, 3, m.IndexOf("d"))

	// existing key is not moved
	assert.Equal(t, 0, m.InsertAt(3, "a", 100))
	v, _ := m.Get("a")
	assert.Equal(t, 1, v)
}

func TestRekeyInPlace(t *testing.T) {
	m := New[string, string]()
	m.Set("x", "one")
	m.Set("temp-1", "draft")
	m.Set("z", "three")

	i, ok := m.Rekey("temp-1", "42", "final")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, []string{"x", "42", "z"}, m.Keys())
	assert.False(t, m.Has("temp-1"))

	_, ok = m.Rekey("x", "z", "clash")
	assert.False(t, ok)
	_, ok = m.Rekey("nope", "y", "")
	assert.False(t, ok)
}

func TestRangeAndLast(t *testing.T) {
	m := New[int, int]()
	_, _, ok := m.Last()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		m.Set(i, i*10)
	}
	assert.Equal(t, []int{30, 40}, m.Range(3, 10))
	assert.Equal(t, []int{0, 10}, m.Range(-2, 2))
	assert.Nil(t, m.Range(4, 4))

	k, v, ok := m.Last()
	assert.True(t, ok)
	assert.Equal(t, 4, k)
	assert.Equal(t, 40, v)
}
