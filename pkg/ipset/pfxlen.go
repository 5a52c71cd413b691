package ipset

import (
	"encoding/binary"
	"net/netip"
)

func ip4ToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToIP4(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

func hostmask4(cidr uint8) uint32 {
	if cidr >= 32 {
		return 0
	}
	return ^uint32(0) >> cidr
}

// maskFromTo4 returns the first and last address of the /cidr network holding ip.
func maskFromTo4(ip uint32, cidr uint8) (from, to uint32) {
	hm := hostmask4(cidr)
	return ip &^ hm, ip | hm
}

// rangeToCIDR4 finds the largest CIDR block starting at from that does not
// pass to.  It returns the block's last address and prefix length.  Blocks
// are at most /1, so the whole address space splits into two halves and every
// block can be written back in entry syntax.
func rangeToCIDR4(from, to uint32) (last uint32, cidr uint8) {
	for cidr = 1; cidr < 32; cidr++ {
		hm := hostmask4(cidr)
		if from&hm == 0 && from|hm <= to {
			return from | hm, cidr
		}
	}
	return from, 32
}

// maskAddr clears the bits of a beyond cidr.
func maskAddr(a netip.Addr, cidr uint8) netip.Addr {
	p, err := a.Prefix(int(cidr))
	if err != nil {
		return a
	}
	return p.Addr()
}
