package ipset

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/pmlproject9/lbset/pkg/packet"
)

type Params struct {
	HashFamily string
	HashSize   int
	MaxElem    int
	Comment    bool
}

// IPSet is one named set.  Add, Del, Flush and Destroy are serialized
// internally; Test and TestPacket never block and may run concurrently with
// them and with each other.  Name, type and family never change; the sizing
// and comment attributes travel with the contents on a swap, see Params.
type IPSet struct {
	Name       string
	HashType   string
	HashFamily string

	family Family
	mu     sync.Mutex
	impl   atomic.Pointer[implRef]
}

// implRef is one generation of set contents with the attributes it was
// created with.  A swap exchanges both with one pointer store.
type implRef struct {
	setImpl

	initSize int
	maxElem  int
	comment  bool
}

func New(name string, hashtype string, param *Params) (*IPSet, error) {
	if param == nil {
		param = &Params{}
	}

	if param.HashFamily == "" {
		param.HashFamily = ProtocolFamilyIPV4
	}
	if param.HashSize == 0 {
		param.HashSize = DefaultHashSize
	}
	if param.MaxElem == 0 {
		param.MaxElem = DefaultMaxElem
	}

	family, err := ParseFamily(param.HashFamily)
	if err != nil {
		return nil, err
	}
	impl, err := newSetImpl(hashtype, family, param.HashSize, param.MaxElem, param.Comment)
	if err != nil {
		return nil, errors.Wrapf(err, "create ipset %s", name)
	}

	ipset := &IPSet{
		Name:       name,
		HashType:   hashtype,
		HashFamily: param.HashFamily,
		family:     family,
	}
	ipset.impl.Store(&implRef{
		setImpl:  impl,
		initSize: param.HashSize,
		maxElem:  param.MaxElem,
		comment:  param.Comment,
	})
	klog.V(2).Infof("created ipset %s type %s family %s hashsize %d", name, hashtype, family, impl.hashSize())
	return ipset, nil
}

func newSetImpl(hashtype string, family Family, hashSize, maxElem int, comment bool) (setImpl, error) {
	switch hashtype {
	case HashIPPort:
		if family == FamilyIPv4 {
			return newHashSet[ipPortElem4](hashIPPort4{}, family, hashSize, maxElem, comment), nil
		}
		return newHashSet[ipPortElem6](hashIPPort6{}, family, hashSize, maxElem, comment), nil
	case HashNet:
		var s *hashSet[netElem]
		if family == FamilyIPv4 {
			s = newHashSet[netElem](hashNet4{}, family, hashSize, maxElem, comment)
		} else {
			s = newHashSet[netElem](hashNet6{}, family, hashSize, maxElem, comment)
		}
		s.nets = newNetCounter()
		return s, nil
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "unsupported set type %q", hashtype)
}

func (s *IPSet) load() setImpl {
	return s.impl.Load().setImpl
}

// Family returns the address family of the set.
func (s *IPSet) Family() Family {
	return s.family
}

// Params returns the attributes of the current contents, suitable for
// creating a set that can be swapped with s.
func (s *IPSet) Params() Params {
	r := s.impl.Load()
	return Params{
		HashFamily: s.HashFamily,
		HashSize:   r.initSize,
		MaxElem:    r.maxElem,
		Comment:    r.comment,
	}
}

// Adt runs one request.  Add and Del expand ranges and stop at the first
// failing element; elements applied before it stay applied.
func (s *IPSet) Adt(op Opcode, p *Param) (bool, error) {
	if p == nil {
		return false, errors.Wrap(ErrInvalidArgument, "nil param")
	}
	switch op {
	case OpAdd, OpDel:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.load().adt(op, p)
	case OpTest:
		return s.load().adt(op, p)
	}
	return false, errors.Wrapf(ErrInvalidArgument, "unknown opcode %d", int(op))
}

func (s *IPSet) Add(p *Param) error {
	_, err := s.Adt(OpAdd, p)
	return err
}

func (s *IPSet) Del(p *Param) error {
	_, err := s.Adt(OpDel, p)
	return err
}

func (s *IPSet) Test(p *Param) (bool, error) {
	return s.Adt(OpTest, p)
}

// TestPacket is the dataplane lookup.  A nil or malformed view is a miss.
func (s *IPSet) TestPacket(v *packet.View, dir packet.Direction) bool {
	return s.load().testPacket(v, dir)
}

// List calls fn for every entry.  The order is bucket order and changes
// across resizes.  Comments are only filled in when withComments is set and
// the set stores them.
func (s *IPSet) List(withComments bool, fn func(Member)) {
	s.load().list(fn, withComments)
}

func (s *IPSet) Members() []Member {
	members := make([]Member, 0, s.Len())
	s.List(true, func(m Member) {
		members = append(members, m)
	})
	return members
}

func (s *IPSet) Len() int {
	return s.load().len()
}

// Buckets is the current bucket count.
func (s *IPSet) Buckets() int {
	return s.load().hashSize()
}

func (s *IPSet) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load().flush()
	klog.V(2).Infof("flushed ipset %s", s.Name)
}

// Destroy drops all entries.  Later writes fail with ErrInvalidArgument and
// lookups miss.
func (s *IPSet) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load().destroy()
	klog.V(2).Infof("destroyed ipset %s", s.Name)
}

// Header describes a set the way `ipset list` prints it.
type Header struct {
	Name     string
	Type     string
	Family   Family
	HashSize int
	MaxElem  int
	Entries  int
	KeyLen   int
	Comment  bool
}

func (s *IPSet) Header() Header {
	r := s.impl.Load()
	return Header{
		Name:     s.Name,
		Type:     s.HashType,
		Family:   s.family,
		HashSize: r.hashSize(),
		MaxElem:  r.maxElem,
		Entries:  r.len(),
		KeyLen:   r.keyLen(),
		Comment:  r.comment,
	}
}

func (h Header) String() string {
	str := fmt.Sprintf("Name: %s\nType: %s\nHeader: family %s hashsize %d maxelem %d",
		h.Name, h.Type, h.Family, h.HashSize, h.MaxElem)
	if h.Comment {
		str += " comment"
	}
	return str + fmt.Sprintf("\nNumber of entries: %d", h.Entries)
}

// swapContents exchanges the entries of a and b.  Readers of either set see
// the old or the new contents, never a mix.
func swapContents(a, b *IPSet) {
	first, second := a, b
	if b.Name < a.Name {
		first, second = b, a
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	ra, rb := a.impl.Load(), b.impl.Load()
	a.impl.Store(rb)
	b.impl.Store(ra)
}
