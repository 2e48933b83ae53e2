// Package orderedmap is a map that remembers insertion order.
//
// Order is part of the contract: Set appends new keys at the tail and
// replaces existing keys in place; nothing ever re-sorts. Explicit
// positional insert (InsertAt) exists for splicing older entries in next
// to a known neighbor.
package orderedmap

// Map keys in insertion order
type Map[K comparable, V any] struct {
	keys  []K
	index map[K]int
	vals  map[K]V
}

// New create an empty Map
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		index: make(map[K]int),
		vals:  make(map[K]V),
	}
}

// Len number of entries
func (m *Map[K, V]) Len() int {
	return len(m.keys)
}

// Get value for k
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Has report whether k is present
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.vals[k]
	return ok
}

// IndexOf position of k, -1 when absent
func (m *Map[K, V]) IndexOf(k K) int {
	i, ok := m.index[k]
	if !ok {
		return -1
	}
	return i
}

// At key and value at position i
func (m *Map[K, V]) At(i int) (K, V) {
	k := m.keys[i]
	return k, m.vals[k]
}

// Set append k at the tail, or replace its value in place. Returns the position and whether k is new.
func (m *Map[K, V]) Set(k K, v V) (int, bool) {
	if i, ok := m.index[k]; ok {
		m.vals[k] = v
		return i, false
	}
	m.keys = append(m.keys, k)
	m.index[k] = len(m.keys) - 1
	m.vals[k] = v
	return len(m.keys) - 1, true
}

// InsertAt splice k in at position i (clamped). An existing k is left untouched and its position returned.
func (m *Map[K, V]) InsertAt(i int, k K, v V) int {
	if j, ok := m.index[k]; ok {
		return j
	}
	if i < 0 {
		i = 0
	}
	if i >= len(m.keys) {
		pos, _ := m.Set(k, v)
		return pos
	}
	var zero K
	m.keys = append(m.keys, zero)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = k
	m.vals[k] = v
	m.reindex(i)
	return i
}

// Rekey replace oldKey with newKey at the same position. False when oldKey is absent or newKey is taken.
func (m *Map[K, V]) Rekey(oldKey, newKey K, v V) (int, bool) {
	i, ok := m.index[oldKey]
	if !ok {
		return -1, false
	}
	if oldKey != newKey {
		if _, taken := m.index[newKey]; taken {
			return -1, false
		}
	}
	delete(m.index, oldKey)
	delete(m.vals, oldKey)
	m.keys[i] = newKey
	m.index[newKey] = i
	m.vals[newKey] = v
	return i, true
}

// Delete remove k, returning its former position or -1
func (m *Map[K, V]) Delete(k K) int {
	i, ok := m.index[k]
	if !ok {
		return -1
	}
	copy(m.keys[i:], m.keys[i+1:])
	var zero K
	m.keys[len(m.keys)-1] = zero
	m.keys = m.keys[:len(m.keys)-1]
	delete(m.index, k)
	delete(m.vals, k)
	m.reindex(i)
	return i
}

// Keys copy of keys in order
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Values values in order
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.vals[k])
	}
	return out
}

// Range values in [from, to) clamped to bounds
func (m *Map[K, V]) Range(from, to int) []V {
	if from < 0 {
		from = 0
	}
	if to > len(m.keys) {
		to = len(m.keys)
	}
	if from >= to {
		return nil
	}
	out := make([]V, 0, to-from)
	for _, k := range m.keys[from:to] {
		out = append(out, m.vals[k])
	}
	return out
}

// Last tail entry
func (m *Map[K, V]) Last() (K, V, bool) {
	if len(m.keys) == 0 {
		var k K
		var v V
		return k, v, false
	}
	k := m.keys[len(m.keys)-1]
	return k, m.vals[k], true
}

func (m *Map[K, V]) reindex(from int) {
	for i := from; i < len(m.keys); i++ {
		m.index[m.keys[i]] = i
	}
}
