package ipset

import (
	"net/netip"
	"unicode/utf8"
)

// Range is the address and port span of a bulk operation.  Ports are host
// byte order and inclusive; a single port has MinPort == MaxPort.  Lookups
// only read MinPort.
type Range struct {
	MinAddr netip.Addr
	MaxAddr netip.Addr
	MinPort uint16
	MaxPort uint16
}

// Param is the parsed form of one add/del/test request.
type Param struct {
	Family Family
	Range  Range
	// CIDR, when non-zero, derives the address range from Range.MinAddr by
	// masking; Range.MaxAddr is then ignored.
	CIDR    uint8
	Proto   uint8
	Flag    Flag
	Comment string
	NoMatch bool
}

// Member is the normalized form of a stored entry handed out by listing.
type Member struct {
	Addr    netip.Addr
	Port    uint16
	Proto   uint8
	CIDR    uint8
	NoMatch bool
	Comment string
}

// truncateComment cuts s to MaxCommentLen bytes without splitting a rune.
func truncateComment(s string) string {
	if len(s) <= MaxCommentLen {
		return s
	}
	n := MaxCommentLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// addrRange4 resolves the IPv4 address span of p, host byte order.
func (p *Param) addrRange4() (from, to uint32, ok bool) {
	if !p.Range.MinAddr.Is4() {
		return 0, 0, false
	}
	from = ip4ToUint32(p.Range.MinAddr)
	if p.CIDR != 0 {
		if p.CIDR > 32 {
			return 0, 0, false
		}
		from, to = maskFromTo4(from, p.CIDR)
		return from, to, true
	}
	if !p.Range.MaxAddr.IsValid() {
		return from, from, true
	}
	if !p.Range.MaxAddr.Is4() {
		return 0, 0, false
	}
	to = ip4ToUint32(p.Range.MaxAddr)
	if to < from {
		return 0, 0, false
	}
	return from, to, true
}

// portRange reports the inclusive port span.
func (p *Param) portRange() (from, to uint16, ok bool) {
	from, to = p.Range.MinPort, p.Range.MaxPort
	return from, to, from <= to
}
