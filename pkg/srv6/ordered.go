package srv6

import "github.com/google/btree"

// orderedStore keeps values indexed for O(log n) lookup by key via a
// google/btree.BTreeG, while a parallel slice preserves insertion order —
// the contract the configuration pretty-printer depends on (§4.3).
type orderedStore[K comparable, V any] struct {
	tree  *btree.BTreeG[entry[K, V]]
	order []K
}

type entry[K comparable, V any] struct {
	key K
	val V
}

func newOrderedStore[K comparable, V any](less func(a, b K) bool) *orderedStore[K, V] {
	return &orderedStore[K, V]{
		tree: btree.NewG[entry[K, V]](32, func(a, b entry[K, V]) bool {
			return less(a.key, b.key)
		}),
	}
}

// Put inserts or replaces the value for k. It reports whether k already
// existed.
func (s *orderedStore[K, V]) Put(k K, v V) bool {
	_, existed := s.tree.ReplaceOrInsert(entry[K, V]{key: k, val: v})
	if !existed {
		s.order = append(s.order, k)
	}
	return existed
}

func (s *orderedStore[K, V]) Get(k K) (V, bool) {
	e, ok := s.tree.Get(entry[K, V]{key: k})
	return e.val, ok
}

func (s *orderedStore[K, V]) Delete(k K) (V, bool) {
	e, ok := s.tree.Delete(entry[K, V]{key: k})
	if ok {
		for i, kk := range s.order {
			if kk == k {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return e.val, ok
}

func (s *orderedStore[K, V]) Len() int { return len(s.order) }

// InOrder returns every value in insertion order.
func (s *orderedStore[K, V]) InOrder() []V {
	out := make([]V, 0, len(s.order))
	for _, k := range s.order {
		if v, ok := s.Get(k); ok {
			out = append(out, v)
		}
	}
	return out
}

func lessBytes16(a, b [16]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
