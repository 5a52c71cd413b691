package ipset

import (
	"net/netip"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/pmlproject9/lbset/pkg/packet"
)

// netElem is the hash:net record for both families; IPv4 uses ip[:4].
// The address is stored masked to cidr.  nomatch is payload: an entry that
// differs only in nomatch is the same entry.
type netElem struct {
	ip   [16]byte
	cidr uint8

	nomatch bool
	comment string
}

// netCounter counts stored entries per prefix length.  The writer owns the
// counts; readers see the published list of lengths in use, longest first.
type netCounter struct {
	counts [129]uint32
	cidrs  atomic.Pointer[[]uint8]
}

func newNetCounter() *netCounter {
	n := &netCounter{}
	n.cidrs.Store(new([]uint8))
	return n
}

func (n *netCounter) inc(cidr uint8) {
	n.counts[cidr]++
	if n.counts[cidr] == 1 {
		n.publish()
	}
}

func (n *netCounter) dec(cidr uint8) {
	if n.counts[cidr] == 0 {
		return
	}
	n.counts[cidr]--
	if n.counts[cidr] == 0 {
		n.publish()
	}
}

func (n *netCounter) publish() {
	cidrs := make([]uint8, 0, 8)
	for c := len(n.counts) - 1; c >= 0; c-- {
		if n.counts[c] > 0 {
			cidrs = append(cidrs, uint8(c))
		}
	}
	n.cidrs.Store(&cidrs)
}

func (n *netCounter) reset() {
	n.counts = [129]uint32{}
	n.publish()
}

func (n *netCounter) load() []uint8 {
	return *n.cidrs.Load()
}

func netList(e *netElem, family Family, comment bool) Member {
	m := Member{CIDR: e.cidr, NoMatch: e.nomatch}
	if family == FamilyIPv4 {
		m.Addr = netip.AddrFrom4([4]byte(e.ip[:4]))
	} else {
		m.Addr = netip.AddrFrom16(e.ip)
	}
	if comment {
		m.Comment = e.comment
	}
	return m
}

func setNetAddr(e *netElem, a netip.Addr, cidr uint8) {
	e.cidr = cidr
	a = maskAddr(a, cidr)
	if a.Is4() {
		b := a.As4()
		e.ip = [16]byte{}
		copy(e.ip[:4], b[:])
		return
	}
	e.ip = a.As16()
}

// doNet applies one block and keeps the prefix length counts current.
func doNet(s *hashSet[netElem], op Opcode, e *netElem, flag Flag) error {
	changed, err := s.do(op, e, flag)
	if err != nil || !changed {
		return err
	}
	switch op {
	case OpAdd:
		s.nets.inc(e.cidr)
	case OpDel:
		s.nets.dec(e.cidr)
	}
	return nil
}

// testNet looks up the exact block; a nomatch entry tests false.
func testNet(s *hashSet[netElem], e *netElem) bool {
	found, ok := s.lookup(e)
	return ok && !found.nomatch
}

// matchNet tries every prefix length in use, longest first; the first stored
// block containing a decides.
func matchNet(s *hashSet[netElem], a netip.Addr) bool {
	var e netElem
	for _, cidr := range s.nets.load() {
		setNetAddr(&e, a, cidr)
		if found, ok := s.lookup(&e); ok {
			return !found.nomatch
		}
	}
	return false
}

type hashNet4 struct{}

func (hashNet4) keyLen() int { return 5 }

func (hashNet4) hash(e *netElem) uint32 {
	k := [5]byte{e.ip[0], e.ip[1], e.ip[2], e.ip[3], e.cidr}
	return hashKey(k[:])
}

func (hashNet4) equal(a, b *netElem) bool {
	return [4]byte(a.ip[:4]) == [4]byte(b.ip[:4]) && a.cidr == b.cidr
}

func (hashNet4) list(e *netElem, comment bool) Member {
	return netList(e, FamilyIPv4, comment)
}

func (hashNet4) adt(op Opcode, s *hashSet[netElem], p *Param) (bool, error) {
	if p.Family != s.family {
		return false, errors.Wrapf(ErrInvalidArgument, "%s entry for %s set", p.Family, s.family)
	}
	if !p.Range.MinAddr.Is4() || p.CIDR > 32 {
		return false, errors.Wrap(ErrInvalidArgument, "bad IPv4 network")
	}

	var e netElem
	if op == OpTest {
		if p.CIDR == 0 {
			return matchNet(s, p.Range.MinAddr), nil
		}
		setNetAddr(&e, p.Range.MinAddr, p.CIDR)
		return testNet(s, &e), nil
	}

	ip, ipTo, ok := p.addrRange4()
	if !ok {
		return false, errors.Wrap(ErrInvalidArgument, "bad IPv4 address range")
	}
	if op == OpAdd {
		if s.comment {
			e.comment = truncateComment(p.Comment)
		}
		e.nomatch = p.NoMatch
	}

	// cover the range with the fewest CIDR blocks
	for {
		last, cidr := rangeToCIDR4(ip, ipTo)
		setNetAddr(&e, uint32ToIP4(ip), cidr)
		if err := doNet(s, op, &e, p.Flag); err != nil {
			return false, errors.Wrapf(err, "%s %s/%d", op, uint32ToIP4(ip), cidr)
		}
		if last >= ipTo {
			break
		}
		ip = last + 1
	}
	return true, nil
}

func (hashNet4) test(s *hashSet[netElem], v *packet.View, dir packet.Direction) bool {
	a := v.Addr(dir)
	if !a.Is4() {
		return false
	}
	return matchNet(s, a)
}

type hashNet6 struct{}

func (hashNet6) keyLen() int { return 17 }

func (hashNet6) hash(e *netElem) uint32 {
	var k [17]byte
	copy(k[:16], e.ip[:])
	k[16] = e.cidr
	return hashKey(k[:])
}

func (hashNet6) equal(a, b *netElem) bool {
	return a.ip == b.ip && a.cidr == b.cidr
}

func (hashNet6) list(e *netElem, comment bool) Member {
	return netList(e, FamilyIPv6, comment)
}

func (hashNet6) adt(op Opcode, s *hashSet[netElem], p *Param) (bool, error) {
	if p.Family != s.family {
		return false, errors.Wrapf(ErrInvalidArgument, "%s entry for %s set", p.Family, s.family)
	}
	if !p.Range.MinAddr.Is6() || p.CIDR > 128 {
		return false, errors.Wrap(ErrInvalidArgument, "bad IPv6 network")
	}

	var e netElem
	if op == OpTest {
		if p.CIDR == 0 {
			return matchNet(s, p.Range.MinAddr), nil
		}
		setNetAddr(&e, p.Range.MinAddr, p.CIDR)
		return testNet(s, &e), nil
	}

	if p.Range.MaxAddr.IsValid() && p.Range.MaxAddr != p.Range.MinAddr {
		return false, errors.Wrap(ErrInvalidArgument, "IPv6 address ranges are not supported")
	}
	cidr := p.CIDR
	if cidr == 0 {
		cidr = 128
	}
	setNetAddr(&e, p.Range.MinAddr, cidr)
	if op == OpAdd {
		if s.comment {
			e.comment = truncateComment(p.Comment)
		}
		e.nomatch = p.NoMatch
	}

	if err := doNet(s, op, &e, p.Flag); err != nil {
		return false, errors.Wrapf(err, "%s %s/%d", op, p.Range.MinAddr, cidr)
	}
	return true, nil
}

func (hashNet6) test(s *hashSet[netElem], v *packet.View, dir packet.Direction) bool {
	a := v.Addr(dir)
	if !a.Is6() {
		return false
	}
	return matchNet(s, a)
}
