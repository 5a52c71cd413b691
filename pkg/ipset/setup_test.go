package ipset

import (
	"net/netip"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// abbreviation
var mpa = netip.MustParseAddr

// netip.Addr has unexported fields; compare it by value
var addrComparer = cmp.Comparer(func(a, b netip.Addr) bool { return a == b })

// workLoadN to adjust loops for tests with -short
func workLoadN() int {
	if testing.Short() {
		return 100
	}
	return 1_000
}

func mustNew(t *testing.T, hashType, family string, opts ...func(*Params)) *IPSet {
	t.Helper()
	p := &Params{HashFamily: family}
	for _, o := range opts {
		o(p)
	}
	s, err := New("test-"+hashType, hashType, p)
	if err != nil {
		t.Fatalf("New(%s, %s): %v", hashType, family, err)
	}
	return s
}

func withHashSize(n int) func(*Params) { return func(p *Params) { p.HashSize = n } }
func withMaxElem(n int) func(*Params)  { return func(p *Params) { p.MaxElem = n } }
func withComment(p *Params)            { p.Comment = true }

// ipPort is a single-element param.
func ipPort(addr string, port uint16, proto uint8) *Param {
	a := mpa(addr)
	p := &Param{
		Range: Range{MinAddr: a, MinPort: port, MaxPort: port},
		Proto: proto,
	}
	p.Family = FamilyIPv4
	if a.Is6() {
		p.Family = FamilyIPv6
	}
	return p
}

func mustTest(t *testing.T, s *IPSet, p *Param) bool {
	t.Helper()
	ok, err := s.Test(p)
	if err != nil {
		t.Fatalf("test %+v: %v", p, err)
	}
	return ok
}

func sortMembers(ms []Member) {
	sort.Slice(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.Addr != b.Addr {
			return a.Addr.Less(b.Addr)
		}
		if a.Port != b.Port {
			return a.Port < b.Port
		}
		if a.Proto != b.Proto {
			return a.Proto < b.Proto
		}
		return a.CIDR < b.CIDR
	})
}
