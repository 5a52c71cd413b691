package ipset

import (
	"encoding/binary"
	"net/netip"

	"github.com/pkg/errors"

	"github.com/pmlproject9/lbset/pkg/packet"
)

// ipPortElem4 is the hash:ip,port record for IPv4.  Address and port are kept
// in network byte order; comment is payload and never part of the key.
type ipPortElem4 struct {
	ip    [4]byte
	port  [2]byte
	proto uint8

	comment string
}

type hashIPPort4 struct{}

func (hashIPPort4) keyLen() int { return 7 }

func (hashIPPort4) hash(e *ipPortElem4) uint32 {
	k := [7]byte{e.ip[0], e.ip[1], e.ip[2], e.ip[3], e.port[0], e.port[1], e.proto}
	return hashKey(k[:])
}

func (hashIPPort4) equal(a, b *ipPortElem4) bool {
	return a.ip == b.ip && a.port == b.port && a.proto == b.proto
}

func (hashIPPort4) list(e *ipPortElem4, comment bool) Member {
	m := Member{
		Addr:  netip.AddrFrom4(e.ip),
		Port:  binary.BigEndian.Uint16(e.port[:]),
		Proto: e.proto,
	}
	if comment {
		m.Comment = e.comment
	}
	return m
}

func (hashIPPort4) adt(op Opcode, s *hashSet[ipPortElem4], p *Param) (bool, error) {
	if p.Family != s.family {
		return false, errors.Wrapf(ErrInvalidArgument, "%s entry for %s set", p.Family, s.family)
	}

	var e ipPortElem4
	e.proto = p.Proto

	if op == OpTest {
		if !p.Range.MinAddr.Is4() {
			return false, errors.Wrap(ErrInvalidArgument, "missing IPv4 address")
		}
		e.ip = p.Range.MinAddr.As4()
		binary.BigEndian.PutUint16(e.port[:], p.Range.MinPort)
		return s.do(OpTest, &e, 0)
	}

	ip, ipTo, ok := p.addrRange4()
	if !ok {
		return false, errors.Wrap(ErrInvalidArgument, "bad IPv4 address range")
	}
	portFrom, portTo, ok := p.portRange()
	if !ok {
		return false, errors.Wrapf(ErrInvalidArgument, "bad port range %d-%d", p.Range.MinPort, p.Range.MaxPort)
	}

	if s.comment && op == OpAdd {
		e.comment = truncateComment(p.Comment)
	}

	for ; ; ip++ {
		binary.BigEndian.PutUint32(e.ip[:], ip)
		// a wider counter keeps port 65535 from wrapping to 0
		for port := uint32(portFrom); port <= uint32(portTo); port++ {
			binary.BigEndian.PutUint16(e.port[:], uint16(port))
			if _, err := s.do(op, &e, p.Flag); err != nil {
				return false, errors.Wrapf(err, "%s %s,%d", op, uint32ToIP4(ip), port)
			}
		}
		if ip == ipTo {
			break
		}
	}
	return true, nil
}

func (hashIPPort4) test(s *hashSet[ipPortElem4], v *packet.View, dir packet.Direction) bool {
	addr := v.Addr(dir)
	if !addr.Is4() {
		return false
	}
	port, ok := v.Port(dir)
	if !ok {
		return false
	}

	e := ipPortElem4{ip: addr.As4(), proto: v.Proto()}
	binary.BigEndian.PutUint16(e.port[:], port)
	return s.test(&e)
}

// ipPortElem6 is the hash:ip,port record for IPv6.
type ipPortElem6 struct {
	ip    [16]byte
	port  [2]byte
	proto uint8

	comment string
}

type hashIPPort6 struct{}

func (hashIPPort6) keyLen() int { return 19 }

func (hashIPPort6) hash(e *ipPortElem6) uint32 {
	var k [19]byte
	copy(k[:16], e.ip[:])
	k[16], k[17], k[18] = e.port[0], e.port[1], e.proto
	return hashKey(k[:])
}

func (hashIPPort6) equal(a, b *ipPortElem6) bool {
	return a.ip == b.ip && a.port == b.port && a.proto == b.proto
}

func (hashIPPort6) list(e *ipPortElem6, comment bool) Member {
	m := Member{
		Addr:  netip.AddrFrom16(e.ip),
		Port:  binary.BigEndian.Uint16(e.port[:]),
		Proto: e.proto,
	}
	if comment {
		m.Comment = e.comment
	}
	return m
}

func (hashIPPort6) adt(op Opcode, s *hashSet[ipPortElem6], p *Param) (bool, error) {
	if p.Family != s.family {
		return false, errors.Wrapf(ErrInvalidArgument, "%s entry for %s set", p.Family, s.family)
	}
	if !p.Range.MinAddr.Is6() {
		return false, errors.Wrap(ErrInvalidArgument, "missing IPv6 address")
	}

	e := ipPortElem6{ip: p.Range.MinAddr.As16(), proto: p.Proto}

	if op == OpTest {
		binary.BigEndian.PutUint16(e.port[:], p.Range.MinPort)
		return s.do(OpTest, &e, 0)
	}

	// IPv6 entries name a single address; only the port range expands.
	if (p.CIDR != 0 && p.CIDR != 128) || (p.Range.MaxAddr.IsValid() && p.Range.MaxAddr != p.Range.MinAddr) {
		return false, errors.Wrap(ErrInvalidArgument, "IPv6 address ranges are not supported")
	}
	portFrom, portTo, ok := p.portRange()
	if !ok {
		return false, errors.Wrapf(ErrInvalidArgument, "bad port range %d-%d", p.Range.MinPort, p.Range.MaxPort)
	}

	if s.comment && op == OpAdd {
		e.comment = truncateComment(p.Comment)
	}

	for port := uint32(portFrom); port <= uint32(portTo); port++ {
		binary.BigEndian.PutUint16(e.port[:], uint16(port))
		if _, err := s.do(op, &e, p.Flag); err != nil {
			return false, errors.Wrapf(err, "%s %s,%d", op, p.Range.MinAddr, port)
		}
	}
	return true, nil
}

func (hashIPPort6) test(s *hashSet[ipPortElem6], v *packet.View, dir packet.Direction) bool {
	addr := v.Addr(dir)
	if !addr.Is6() {
		return false
	}
	port, ok := v.Port(dir)
	if !ok {
		return false
	}

	e := ipPortElem6{ip: addr.As16(), proto: v.Proto()}
	binary.BigEndian.PutUint16(e.port[:], port)
	return s.test(&e)
}
