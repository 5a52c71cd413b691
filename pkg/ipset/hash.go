package ipset

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// grow once elements exceed 3/4 of the bucket count
	loadFactorNum = 3
	loadFactorDen = 4

	minHashSize = 4
)

var errDestroyed = errors.Wrap(ErrInvalidArgument, "set destroyed")

// bucket is an immutable chain.  Writers never modify a published bucket;
// they publish a modified copy instead.
type bucket[E any] struct {
	elems []E
}

func (b *bucket[E]) len() int {
	if b == nil {
		return 0
	}
	return len(b.elems)
}

// appended returns a copy of b with e at the end.
func (b *bucket[E]) appended(e E) *bucket[E] {
	n := b.len()
	elems := make([]E, n, n+1)
	if n > 0 {
		copy(elems, b.elems)
	}
	return &bucket[E]{elems: append(elems, e)}
}

// replaced returns a copy of b with the i-th element swapped for e.
func (b *bucket[E]) replaced(i int, e E) *bucket[E] {
	elems := make([]E, len(b.elems))
	copy(elems, b.elems)
	elems[i] = e
	return &bucket[E]{elems: elems}
}

// removed returns a copy of b without the i-th element, or nil when b empties.
func (b *bucket[E]) removed(i int) *bucket[E] {
	if len(b.elems) == 1 {
		return nil
	}
	elems := make([]E, 0, len(b.elems)-1)
	elems = append(elems, b.elems[:i]...)
	elems = append(elems, b.elems[i+1:]...)
	return &bucket[E]{elems: elems}
}

// table is one generation of the bucket array.  A resize builds a complete
// new table and publishes it with a single store.
type table[E any] struct {
	buckets []atomic.Pointer[bucket[E]]
	mask    uint32
}

func newTable[E any](size int) *table[E] {
	return &table[E]{
		buckets: make([]atomic.Pointer[bucket[E]], size),
		mask:    uint32(size - 1),
	}
}

// hashTable is the storage engine shared by every set kind.
//
// There is a single writer (add, del, flush, grow), serialized by the caller,
// and any number of lock-free readers.  A reader loads the table pointer once
// and sees that generation for its whole lookup.  Storage of an unlinked
// bucket or a retired table is reclaimed by the garbage collector once the
// last in-flight reader drops it.
type hashTable[E any] struct {
	keys    keyer[E]
	tbl     atomic.Pointer[table[E]]
	count   atomic.Int64
	maxElem int
}

func newHashTable[E any](keys keyer[E], hashSize, maxElem int) *hashTable[E] {
	h := &hashTable[E]{
		keys:    keys,
		maxElem: maxElem,
	}
	h.tbl.Store(newTable[E](roundHashSize(hashSize)))
	return h
}

func roundHashSize(n int) int {
	size := minHashSize
	for size < n && size < MaxHashSize {
		size <<= 1
	}
	return size
}

// do dispatches one element.  For TEST the result reports presence, for ADD
// whether a new element was inserted, for DEL whether one was removed.
func (h *hashTable[E]) do(op Opcode, e *E, flag Flag) (bool, error) {
	switch op {
	case OpAdd:
		return h.add(e, flag)
	case OpDel:
		return h.del(e, flag)
	case OpTest:
		return h.test(e), nil
	}
	return false, errors.Wrapf(ErrInvalidArgument, "unknown opcode %d", int(op))
}

func (h *hashTable[E]) index(b *bucket[E], e *E) int {
	if b == nil {
		return -1
	}
	for i := range b.elems {
		if h.keys.equal(&b.elems[i], e) {
			return i
		}
	}
	return -1
}

func (h *hashTable[E]) slot(t *table[E], e *E) *atomic.Pointer[bucket[E]] {
	return &t.buckets[h.keys.hash(e)&t.mask]
}

func (h *hashTable[E]) add(e *E, flag Flag) (bool, error) {
	t := h.tbl.Load()
	if t == nil {
		return false, errDestroyed
	}

	slot := h.slot(t, e)
	b := slot.Load()
	if i := h.index(b, e); i >= 0 {
		if flag&FlagExist == 0 {
			return false, ErrExists
		}
		slot.Store(b.replaced(i, *e))
		return false, nil
	}

	n := h.count.Load()
	if h.maxElem > 0 && n >= int64(h.maxElem) {
		return false, errors.Wrapf(ErrSetFull, "maxelem %d reached", h.maxElem)
	}
	if (n+1)*loadFactorDen > int64(len(t.buckets))*loadFactorNum {
		if nt := h.grow(t); nt != t {
			slot = h.slot(nt, e)
			b = slot.Load()
		}
	}

	slot.Store(b.appended(*e))
	h.count.Add(1)
	return true, nil
}

func (h *hashTable[E]) del(e *E, flag Flag) (bool, error) {
	t := h.tbl.Load()
	if t == nil {
		return false, errDestroyed
	}

	slot := h.slot(t, e)
	b := slot.Load()
	i := h.index(b, e)
	if i < 0 {
		if flag&FlagExist != 0 {
			return false, nil
		}
		return false, ErrNotFound
	}

	slot.Store(b.removed(i))
	h.count.Add(-1)
	return true, nil
}

func (h *hashTable[E]) test(e *E) bool {
	_, ok := h.lookup(e)
	return ok
}

// lookup returns a copy of the stored element equal to e.
func (h *hashTable[E]) lookup(e *E) (E, bool) {
	var zero E
	t := h.tbl.Load()
	if t == nil {
		return zero, false
	}
	b := h.slot(t, e).Load()
	if i := h.index(b, e); i >= 0 {
		return b.elems[i], true
	}
	return zero, false
}

// grow doubles the bucket array and rehashes every element into it.  The new
// table is private until the final store, so it is filled in place.  At
// MaxHashSize it returns t unchanged.
func (h *hashTable[E]) grow(t *table[E]) *table[E] {
	size := len(t.buckets) << 1
	if size > MaxHashSize {
		klog.V(4).Infof("hash table at max size %d, not growing", len(t.buckets))
		return t
	}

	chains := make([][]E, size)
	mask := uint32(size - 1)
	for i := range t.buckets {
		b := t.buckets[i].Load()
		if b == nil {
			continue
		}
		for j := range b.elems {
			idx := h.keys.hash(&b.elems[j]) & mask
			chains[idx] = append(chains[idx], b.elems[j])
		}
	}

	nt := newTable[E](size)
	for i, c := range chains {
		if len(c) > 0 {
			nt.buckets[i].Store(&bucket[E]{elems: c})
		}
	}
	h.tbl.Store(nt)

	klog.V(4).Infof("hash table resized from %d to %d buckets (%d elements)", len(t.buckets), size, h.count.Load())
	return nt
}

// flush publishes an empty table with the same bucket count.  The cost is
// one allocation of that many buckets; readers see the old table or the
// empty one, never a partly cleared one.
func (h *hashTable[E]) flush() {
	t := h.tbl.Load()
	if t == nil {
		return
	}
	h.tbl.Store(newTable[E](len(t.buckets)))
	h.count.Store(0)
}

// walk visits every element in bucket order.  fn must not retain or modify e.
func (h *hashTable[E]) walk(fn func(e *E)) {
	t := h.tbl.Load()
	if t == nil {
		return
	}
	for i := range t.buckets {
		b := t.buckets[i].Load()
		if b == nil {
			continue
		}
		for j := range b.elems {
			fn(&b.elems[j])
		}
	}
}

func (h *hashTable[E]) destroy() {
	h.tbl.Store(nil)
	h.count.Store(0)
}

func (h *hashTable[E]) len() int {
	return int(h.count.Load())
}

func (h *hashTable[E]) hashSize() int {
	t := h.tbl.Load()
	if t == nil {
		return 0
	}
	return len(t.buckets)
}
