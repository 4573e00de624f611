// Package index provides an ordered index with exact and nearest-key lookup.
package index

import (
	"cmp"

	"github.com/google/btree"
)

// degree is the btree node degree. Box inventories hold at most a few
// thousand keys per level so a small degree keeps nodes compact.
const degree = 8

// Number is the set of key types with a numeric distance.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

type item[K Number, V any] struct {
	key   K
	value V
}

// Tree is an ordered index from K to V backed by a B-tree.
// Tree is not safe for concurrent use; callers serialise access.
type Tree[K Number, V any] struct {
	bt *btree.BTreeG[item[K, V]]
}

// New creates an empty Tree.
func New[K Number, V any]() *Tree[K, V] {
	return &Tree[K, V]{
		bt: btree.NewG(degree, func(a, b item[K, V]) bool {
			return cmp.Less(a.key, b.key)
		}),
	}
}

// Search returns the value stored under exactly key.
func (t *Tree[K, V]) Search(key K) (V, bool) {
	it, ok := t.bt.Get(item[K, V]{key: key})
	return it.value, ok
}

// SearchClosest returns the entry whose key is nearest to key by absolute
// distance. The match may be smaller or larger than key. When the nearest
// smaller and nearest larger keys are equally distant the larger one is
// returned. ok is false only when the tree is empty.
func (t *Tree[K, V]) SearchClosest(key K) (K, V, bool) {
	pivot := item[K, V]{key: key}

	var (
		above, below       item[K, V]
		hasAbove, hasBelow bool
	)
	t.bt.AscendGreaterOrEqual(pivot, func(it item[K, V]) bool {
		above, hasAbove = it, true
		return false
	})
	if hasAbove && above.key == key {
		return above.key, above.value, true
	}
	t.bt.DescendLessOrEqual(pivot, func(it item[K, V]) bool {
		below, hasBelow = it, true
		return false
	})

	switch {
	case hasAbove && hasBelow:
		if distance(below.key, key) < distance(key, above.key) {
			return below.key, below.value, true
		}
		return above.key, above.value, true
	case hasAbove:
		return above.key, above.value, true
	case hasBelow:
		return below.key, below.value, true
	default:
		var zero K
		var zeroV V
		return zero, zeroV, false
	}
}

// Add inserts value under key, replacing any existing value.
// It reports whether an existing value was replaced.
func (t *Tree[K, V]) Add(key K, value V) bool {
	_, replaced := t.bt.ReplaceOrInsert(item[K, V]{key: key, value: value})
	return replaced
}

// Remove deletes key and reports whether it was present.
func (t *Tree[K, V]) Remove(key K) bool {
	_, removed := t.bt.Delete(item[K, V]{key: key})
	return removed
}

// HasRoot reports whether the tree holds at least one entry.
func (t *Tree[K, V]) HasRoot() bool {
	return t.bt.Len() > 0
}

// Len returns the number of entries.
func (t *Tree[K, V]) Len() int {
	return t.bt.Len()
}

// Ascend calls fn for every entry in key order until fn returns false.
func (t *Tree[K, V]) Ascend(fn func(key K, value V) bool) {
	t.bt.Ascend(func(it item[K, V]) bool {
		return fn(it.key, it.value)
	})
}

// Keys returns all keys in ascending order.
func (t *Tree[K, V]) Keys() []K {
	keys := make([]K, 0, t.bt.Len())
	t.Ascend(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// distance returns hi-lo for hi >= lo.
func distance[K Number](lo, hi K) float64 {
	return float64(hi) - float64(lo)
}
