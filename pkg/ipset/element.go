package ipset

import (
	"github.com/cespare/xxhash/v2"

	"github.com/pmlproject9/lbset/pkg/packet"
)

// keyer is what the storage engine needs from an element record type: a hash
// and an equality over the identity fields only.
type keyer[E any] interface {
	hash(e *E) uint32
	equal(a, b *E) bool
}

// elementType binds a record layout to a set kind and address family.
type elementType[E any] interface {
	keyer[E]

	// keyLen is the number of identity bytes hashed per record.
	keyLen() int
	// list converts a stored record into its listing form.
	list(e *E, comment bool) Member
	// adt runs an add, del or test request, expanding ranges for add and del.
	adt(op Opcode, s *hashSet[E], p *Param) (bool, error)
	// test is the per-packet lookup.  It never fails; a malformed view is a miss.
	test(s *hashSet[E], v *packet.View, dir packet.Direction) bool
}

// setImpl is an instantiated hashSet as seen by IPSet.
type setImpl interface {
	adt(op Opcode, p *Param) (bool, error)
	testPacket(v *packet.View, dir packet.Direction) bool
	list(fn func(Member), comment bool)
	flush()
	destroy()
	len() int
	hashSize() int
	keyLen() int
}

// hashSet ties a storage engine to the element type stored in it.
type hashSet[E any] struct {
	*hashTable[E]

	typ     elementType[E]
	family  Family
	comment bool
	// nets tracks stored prefix lengths; nil for kinds that do not store networks.
	nets *netCounter
}

func newHashSet[E any](typ elementType[E], family Family, hashSize, maxElem int, comment bool) *hashSet[E] {
	return &hashSet[E]{
		hashTable: newHashTable[E](typ, hashSize, maxElem),
		typ:       typ,
		family:    family,
		comment:   comment,
	}
}

func (s *hashSet[E]) adt(op Opcode, p *Param) (bool, error) {
	return s.typ.adt(op, s, p)
}

func (s *hashSet[E]) testPacket(v *packet.View, dir packet.Direction) bool {
	if v == nil {
		return false
	}
	return s.typ.test(s, v, dir)
}

func (s *hashSet[E]) list(fn func(Member), comment bool) {
	comment = comment && s.comment
	s.walk(func(e *E) {
		fn(s.typ.list(e, comment))
	})
}

func (s *hashSet[E]) flush() {
	s.hashTable.flush()
	if s.nets != nil {
		s.nets.reset()
	}
}

func (s *hashSet[E]) keyLen() int {
	return s.typ.keyLen()
}

// hashKey folds a 64-bit xxhash of the serialized identity fields.
func hashKey(b []byte) uint32 {
	h := xxhash.Sum64(b)
	return uint32(h) ^ uint32(h>>32)
}
