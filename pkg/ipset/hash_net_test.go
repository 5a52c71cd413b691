package ipset

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pmlproject9/lbset/pkg/packet"
)

func netParam(s string) *Param {
	p := &Param{}
	if pfx, err := netip.ParsePrefix(s); err == nil {
		p.Range.MinAddr = pfx.Addr()
		p.CIDR = uint8(pfx.Bits())
	} else {
		p.Range.MinAddr = mpa(s)
	}
	p.Family = FamilyIPv4
	if p.Range.MinAddr.Is6() {
		p.Family = FamilyIPv6
	}
	return p
}

func TestNetRangeDecomposition(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	p := &Param{
		Family: FamilyIPv4,
		Range:  Range{MinAddr: mpa("10.0.0.1"), MaxAddr: mpa("10.0.0.10")},
	}
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}

	want := []Member{
		{Addr: mpa("10.0.0.1"), CIDR: 32},
		{Addr: mpa("10.0.0.2"), CIDR: 31},
		{Addr: mpa("10.0.0.4"), CIDR: 30},
		{Addr: mpa("10.0.0.8"), CIDR: 31},
		{Addr: mpa("10.0.0.10"), CIDR: 32},
	}
	got := s.Members()
	sortMembers(got)
	if diff := cmp.Diff(want, got, addrComparer); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i <= 10; i++ {
		a := netip.AddrFrom4([4]byte{10, 0, 0, byte(i)})
		if !mustTest(t, s, netParam(a.String())) {
			t.Errorf("%s: got absent, want present", a)
		}
	}
	for _, a := range []string{"10.0.0.0", "10.0.0.11"} {
		if mustTest(t, s, netParam(a)) {
			t.Errorf("%s: got present, want absent", a)
		}
	}

	if err := s.Del(p); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Errorf("len after range del: got %d, want 0", s.Len())
	}
	if len(s.load().(*hashSet[netElem]).nets.load()) != 0 {
		t.Errorf("prefix lengths still tracked after del")
	}
}

func TestNetCIDRIsMasked(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	if err := s.Add(netParam("192.168.1.77/24")); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(netParam("192.168.1.0/24")); !errors.Is(err, ErrExists) {
		t.Errorf("same block unmasked then masked: got %v, want ErrExists", err)
	}
	m := s.Members()
	if len(m) != 1 || m[0].Addr != mpa("192.168.1.0") || m[0].CIDR != 24 {
		t.Errorf("unexpected members %+v", m)
	}
}

func TestNetLongestPrefixMatch(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	for _, entry := range []string{"10.0.0.0/8 ", "10.1.0.0/16 nomatch", "10.1.2.0/24"} {
		p, err := ParseEntry(HashNet, entry)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Add(p); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"10.200.0.1", true}, // /8
		{"10.1.9.9", false},  // /16 nomatch
		{"10.1.2.3", true},   // /24 inside the nomatch /16
		{"11.0.0.1", false},  // outside
		{"10.0.0.0", true},   // network address
		{"10.255.255.255", true},
	}
	for _, tt := range tests {
		if got := mustTest(t, s, netParam(tt.addr)); got != tt.want {
			t.Errorf("%s: got %t, want %t", tt.addr, got, tt.want)
		}
	}

	// an explicit prefix tests that block only
	exact := []struct {
		net  string
		want bool
	}{
		{"10.0.0.0/8", true},
		{"10.1.0.0/16", false}, // stored, but nomatch
		{"10.1.2.0/24", true},
		{"10.1.2.0/25", false},
		{"10.2.0.0/16", false},
	}
	for _, tt := range exact {
		if got := mustTest(t, s, netParam(tt.net)); got != tt.want {
			t.Errorf("%s: got %t, want %t", tt.net, got, tt.want)
		}
	}

	// dropping the /24 exposes the nomatch /16 below it
	if err := s.Del(netParam("10.1.2.0/24")); err != nil {
		t.Fatal(err)
	}
	if mustTest(t, s, netParam("10.1.2.3")) {
		t.Errorf("10.1.2.3 matched after its block was removed")
	}
}

func TestNetExistReplacesNoMatch(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	p := netParam("172.16.0.0/12")
	p.NoMatch = true
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if mustTest(t, s, netParam("172.16.5.5")) {
		t.Fatalf("nomatch block matched")
	}

	p = netParam("172.16.0.0/12")
	if err := s.Add(p); !errors.Is(err, ErrExists) {
		t.Fatalf("add without exist: got %v, want ErrExists", err)
	}
	p.Flag = FlagExist
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if !mustTest(t, s, netParam("172.16.5.5")) {
		t.Errorf("block still nomatch after replace")
	}
	if s.Len() != 1 {
		t.Errorf("len: got %d, want 1", s.Len())
	}
}

func TestNetDelKeepsSharedPrefixLength(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	for _, n := range []string{"10.0.0.0/24", "10.0.1.0/24"} {
		if err := s.Add(netParam(n)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Del(netParam("10.0.0.0/24")); err != nil {
		t.Fatal(err)
	}
	if !mustTest(t, s, netParam("10.0.1.1")) {
		t.Errorf("remaining /24 no longer matches")
	}
	if err := s.Del(netParam("10.0.0.0/24")); !errors.Is(err, ErrNotFound) {
		t.Errorf("second del: got %v, want ErrNotFound", err)
	}

	// a failed or no-op del must not drop the /24 count
	p := netParam("10.0.0.0/24")
	p.Flag = FlagExist
	if err := s.Del(p); err != nil {
		t.Fatal(err)
	}
	if !mustTest(t, s, netParam("10.0.1.1")) {
		t.Errorf("no-op del dropped the prefix length")
	}
}

func TestNetFlushResetsPrefixLengths(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	if err := s.Add(netParam("10.0.0.0/8")); err != nil {
		t.Fatal(err)
	}
	s.Flush()
	if mustTest(t, s, netParam("10.1.1.1")) {
		t.Errorf("match after flush")
	}
	if err := s.Add(netParam("10.0.0.0/16")); err != nil {
		t.Fatal(err)
	}
	if !mustTest(t, s, netParam("10.0.1.1")) {
		t.Errorf("no match after re-add")
	}
	if mustTest(t, s, netParam("10.1.1.1")) {
		t.Errorf("flushed /8 still matches")
	}
}

// TestNetWholeAddressSpaceReloads adds every IPv4 address as one range and
// reloads the listing into a fresh set through the entry syntax.
func TestNetWholeAddressSpaceReloads(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)

	p := &Param{
		Family: FamilyIPv4,
		Range:  Range{MinAddr: mpa("0.0.0.0"), MaxAddr: mpa("255.255.255.255")},
	}
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}

	want := []Member{
		{Addr: mpa("0.0.0.0"), CIDR: 1},
		{Addr: mpa("128.0.0.0"), CIDR: 1},
	}
	got := s.Members()
	sortMembers(got)
	if diff := cmp.Diff(want, got, addrComparer); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}

	reloaded := mustNew(t, HashNet, ProtocolFamilyIPV4)
	for _, m := range got {
		entry := FormatMember(HashNet, m)
		p, err := ParseEntry(HashNet, entry)
		if err != nil {
			t.Fatalf("ParseEntry(%q): %v", entry, err)
		}
		if err := reloaded.Add(p); err != nil {
			t.Fatalf("re-add %q: %v", entry, err)
		}
	}
	for _, a := range []string{"0.0.0.0", "10.1.2.3", "127.255.255.255", "128.0.0.0", "255.255.255.255"} {
		if !mustTest(t, reloaded, netParam(a)) {
			t.Errorf("%s: got absent after reload, want present", a)
		}
	}
}

func TestNetIPv6(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV6, withComment)

	p := netParam("2001:db8::/32")
	p.Comment = "documentation"
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(netParam("2001:db8:1::/48")); err != nil {
		t.Fatal(err)
	}
	ex := netParam("2001:db8:1:2::/64")
	ex.NoMatch = true
	if err := s.Add(ex); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(netParam("2001:db8:ffff::1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		addr string
		want bool
	}{
		{"2001:db8::1", true},
		{"2001:db8:1::1", true},
		{"2001:db8:1:2::1", false},
		{"2001:db9::1", false},
		{"2001:db8:ffff::1", true},
	}
	for _, tt := range tests {
		if got := mustTest(t, s, netParam(tt.addr)); got != tt.want {
			t.Errorf("%s: got %t, want %t", tt.addr, got, tt.want)
		}
	}

	var host Member
	s.List(true, func(m Member) {
		if m.Addr == mpa("2001:db8:ffff::1") {
			host = m
		}
	})
	if host.CIDR != 128 {
		t.Errorf("bare address stored as /%d, want /128", host.CIDR)
	}

	bad := &Param{Family: FamilyIPv6, Range: Range{MinAddr: mpa("2001:db8::1"), MaxAddr: mpa("2001:db8::5")}}
	if err := s.Add(bad); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("v6 range: got %v, want ErrInvalidArgument", err)
	}
	if err := s.Add(netParam("10.0.0.0/8")); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("v4 block in v6 set: got %v, want ErrInvalidArgument", err)
	}

	h := s.Header()
	if h.KeyLen != 17 || h.Entries != 4 {
		t.Errorf("unexpected header %+v", h)
	}
}

func TestNetTestPacket(t *testing.T) {
	t.Parallel()
	s := mustNew(t, HashNet, ProtocolFamilyIPV4)
	if err := s.Add(netParam("192.0.2.0/24")); err != nil {
		t.Fatal(err)
	}

	// ports do not matter and a missing transport header is fine
	v := packet.NewView(nil, -1, 1, mpa("198.51.100.7"), mpa("192.0.2.99"))
	if !s.TestPacket(v, packet.DirDst) {
		t.Errorf("dst side: got miss, want hit")
	}
	if s.TestPacket(v, packet.DirSrc) {
		t.Errorf("src side: got hit, want miss")
	}
	v6 := packet.NewView(nil, -1, 1, mpa("2001:db8::1"), mpa("2001:db8::2"))
	if s.TestPacket(v6, packet.DirDst) {
		t.Errorf("v6 packet matched a v4 set")
	}
}

func TestNetCounter(t *testing.T) {
	t.Parallel()
	n := newNetCounter()

	n.inc(24)
	n.inc(8)
	n.inc(24)
	n.inc(32)
	if diff := cmp.Diff([]uint8{32, 24, 8}, n.load()); diff != "" {
		t.Errorf("lengths mismatch (-want +got):\n%s", diff)
	}

	n.dec(24)
	n.dec(32)
	n.dec(16) // never added
	if diff := cmp.Diff([]uint8{24, 8}, n.load()); diff != "" {
		t.Errorf("lengths after dec mismatch (-want +got):\n%s", diff)
	}

	held := n.load()
	n.reset()
	if len(n.load()) != 0 {
		t.Errorf("reset left %v", n.load())
	}
	if len(held) != 2 {
		t.Errorf("published slice modified in place: %v", held)
	}
}
