package packet

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// Direction selects which side of a packet a lookup uses.
type Direction uint8

const (
	// DirDst uses the destination address and destination port.
	DirDst Direction = 0
	// DirSrc uses the source address and source port.
	DirSrc Direction = 1
)

var (
	ErrTruncated = errors.New("packet too short")
	ErrNotIP     = errors.New("not an IPv4 or IPv6 packet")

	decodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
)

const noL4 = -1

// View is a read-only window on an IP packet: addresses, protocol and the
// offset of the transport header.  It never hands out the underlying bytes.
type View struct {
	data  []byte
	l4off int
	proto uint8
	src   netip.Addr
	dst   netip.Addr
}

// NewView builds a view over headers the caller has already parsed.
func NewView(data []byte, l4off int, proto uint8, src, dst netip.Addr) *View {
	return &View{
		data:  data,
		l4off: l4off,
		proto: proto,
		src:   src,
		dst:   dst,
	}
}

// Decode parses an IPv4 or IPv6 packet starting at the IP header.
func Decode(data []byte) (*View, error) {
	if len(data) == 0 {
		return nil, ErrTruncated
	}

	var first gopacket.LayerType
	switch data[0] >> 4 {
	case 4:
		first = layers.LayerTypeIPv4
	case 6:
		first = layers.LayerTypeIPv6
	default:
		return nil, ErrNotIP
	}

	pkt := gopacket.NewPacket(data, first, decodeOptions)
	v := &View{data: data, l4off: noL4}
	off := 0
	fragment := false

walk:
	for _, layer := range pkt.Layers() {
		switch l := layer.(type) {
		case *layers.IPv4:
			v.src, _ = netip.AddrFromSlice(l.SrcIP.To4())
			v.dst, _ = netip.AddrFromSlice(l.DstIP.To4())
			v.proto = uint8(l.Protocol)
			off += len(l.Contents)
			fragment = l.FragOffset != 0
		case *layers.IPv6:
			v.src, _ = netip.AddrFromSlice(l.SrcIP.To16())
			v.dst, _ = netip.AddrFromSlice(l.DstIP.To16())
			v.proto = uint8(l.NextHeader)
			off += len(l.Contents)
		case *layers.IPv6HopByHop:
			v.proto = uint8(l.NextHeader)
			off += len(l.Contents)
		case *layers.IPv6Destination:
			v.proto = uint8(l.NextHeader)
			off += len(l.Contents)
		case *layers.IPv6Routing:
			v.proto = uint8(l.NextHeader)
			off += len(l.Contents)
		case *layers.IPv6Fragment:
			v.proto = uint8(l.NextHeader)
			off += len(l.Contents)
			fragment = fragment || l.FragmentOffset != 0
		default:
			break walk
		}
	}

	if !v.src.IsValid() || !v.dst.IsValid() {
		if el := pkt.ErrorLayer(); el != nil {
			return nil, errors.Wrap(el.Error(), "decode ip header")
		}
		return nil, ErrTruncated
	}
	// only the first fragment carries the transport header
	if !fragment {
		v.l4off = off
	}
	return v, nil
}

func (v *View) Src() netip.Addr { return v.src }
func (v *View) Dst() netip.Addr { return v.dst }
func (v *View) Proto() uint8    { return v.proto }
func (v *View) L4Offset() int   { return v.l4off }

// Is4 reports whether the packet is IPv4.
func (v *View) Is4() bool { return v.src.Is4() }

// Addr returns the address for the given direction.
func (v *View) Addr(dir Direction) netip.Addr {
	if dir == DirSrc {
		return v.src
	}
	return v.dst
}

// Ports reads the two 16-bit port fields at the transport offset, in host
// byte order.  ok is false when the view is too short to hold them.
func (v *View) Ports() (src, dst uint16, ok bool) {
	if v == nil || v.l4off < 0 || v.l4off > len(v.data)-4 {
		return 0, 0, false
	}
	b := v.data[v.l4off : v.l4off+4]
	return binary.BigEndian.Uint16(b[0:2]), binary.BigEndian.Uint16(b[2:4]), true
}

// Port returns the port for the given direction.
func (v *View) Port(dir Direction) (uint16, bool) {
	src, dst, ok := v.Ports()
	if dir == DirSrc {
		return src, ok
	}
	return dst, ok
}
