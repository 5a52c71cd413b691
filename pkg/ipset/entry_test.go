package ipset

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hashType string
		entry    string
		want     Param
	}{
		{
			hashType: HashIPPort,
			entry:    "10.0.0.1,80",
			want: Param{
				Family: FamilyIPv4,
				Range:  Range{MinAddr: mpa("10.0.0.1"), MinPort: 80, MaxPort: 80},
				Proto:  IPProtoTCP,
			},
		},
		{
			hashType: HashIPPort,
			entry:    `10.0.0.0/30,udp:100-102 comment "web tier"`,
			want: Param{
				Family:  FamilyIPv4,
				Range:   Range{MinAddr: mpa("10.0.0.0"), MinPort: 100, MaxPort: 102},
				CIDR:    30,
				Proto:   IPProtoUDP,
				Comment: "web tier",
			},
		},
		{
			hashType: HashIPPort,
			entry:    "10.0.0.1-10.0.0.5,SCTP:9",
			want: Param{
				Family: FamilyIPv4,
				Range:  Range{MinAddr: mpa("10.0.0.1"), MaxAddr: mpa("10.0.0.5"), MinPort: 9, MaxPort: 9},
				Proto:  IPProtoSCTP,
			},
		},
		{
			hashType: HashIPPort,
			entry:    "2001:db8::1,udplite:0",
			want: Param{
				Family: FamilyIPv6,
				Range:  Range{MinAddr: mpa("2001:db8::1")},
				Proto:  IPProtoUDPLite,
			},
		},
		{
			hashType: HashIPPort,
			entry:    "192.0.2.1,47:0",
			want: Param{
				Family: FamilyIPv4,
				Range:  Range{MinAddr: mpa("192.0.2.1")},
				Proto:  47,
			},
		},
		{
			hashType: HashNet,
			entry:    `  10.0.0.0/8 comment "a \"quoted\" word" nomatch `,
			want: Param{
				Family:  FamilyIPv4,
				Range:   Range{MinAddr: mpa("10.0.0.0")},
				CIDR:    8,
				Comment: `a "quoted" word`,
				NoMatch: true,
			},
		},
		{
			hashType: HashNet,
			entry:    "2001:db8::/32",
			want: Param{
				Family: FamilyIPv6,
				Range:  Range{MinAddr: mpa("2001:db8::")},
				CIDR:   32,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := ParseEntry(tt.hashType, tt.entry)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, *got, addrComparer); diff != "" {
				t.Errorf("param mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEntryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hashType string
		entry    string
	}{
		{HashIPPort, ""},
		{HashIPPort, "10.0.0.1"},
		{HashIPPort, "10.0.0.1,"},
		{HashIPPort, "10.0.0.1,70000"},
		{HashIPPort, "10.0.0.1,10-5"},
		{HashIPPort, "10.0.0.1,gre:80"},
		{HashIPPort, "10.0.0.1,tcp:80 nomatch"},
		{HashIPPort, "10.0.0.1,80 timeout 30"},
		{HashIPPort, "10.0.0.1,80 comment unquoted"},
		{HashIPPort, "10.0.0.300,80"},
		{HashIPPort, "10.0.0.5-10.0.0.1,80"},
		{HashIPPort, "10.0.0.1-2001:db8::1,80"},
		{HashNet, "0.0.0.0/0"},
		{HashNet, "10.0.0.0/33"},
		{HashNet, "not-an-address"},
		{"hash:mac", "10.0.0.1"},
	}

	for _, tt := range tests {
		if _, err := ParseEntry(tt.hashType, tt.entry); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseEntry(%s, %q): got %v, want ErrInvalidArgument", tt.hashType, tt.entry, err)
		}
	}
}

func TestFormatMemberRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		hashType string
		member   Member
		want     string
	}{
		{HashIPPort, Member{Addr: mpa("10.0.0.1"), Port: 80, Proto: IPProtoTCP}, "10.0.0.1,tcp:80"},
		{HashIPPort, Member{Addr: mpa("2001:db8::1"), Port: 53, Proto: IPProtoUDP, Comment: "dns"}, `2001:db8::1,udp:53 comment "dns"`},
		{HashIPPort, Member{Addr: mpa("10.0.0.1"), Port: 0, Proto: 47}, "10.0.0.1,47:0"},
		{HashNet, Member{Addr: mpa("10.1.0.0"), CIDR: 16, NoMatch: true}, "10.1.0.0/16 nomatch"},
		{HashNet, Member{Addr: mpa("2001:db8::"), CIDR: 32, Comment: "doc"}, `2001:db8::/32 comment "doc"`},
		{HashNet, Member{Addr: mpa("0.0.0.0"), CIDR: 1}, "0.0.0.0/1"},
		{HashNet, Member{Addr: mpa("128.0.0.0"), CIDR: 1}, "128.0.0.0/1"},
	}

	for _, tt := range tests {
		got := FormatMember(tt.hashType, tt.member)
		if got != tt.want {
			t.Errorf("FormatMember: got %q, want %q", got, tt.want)
			continue
		}

		p, err := ParseEntry(tt.hashType, got)
		if err != nil {
			t.Errorf("ParseEntry(%q): %v", got, err)
			continue
		}
		if p.Range.MinAddr != tt.member.Addr || p.Range.MinPort != tt.member.Port ||
			p.Comment != tt.member.Comment || p.NoMatch != tt.member.NoMatch {
			t.Errorf("%q did not round trip: %+v", got, p)
		}
		if tt.hashType == HashIPPort && p.Proto != tt.member.Proto {
			t.Errorf("%q: proto got %d, want %d", got, p.Proto, tt.member.Proto)
		}
		if tt.hashType == HashNet && p.CIDR != tt.member.CIDR {
			t.Errorf("%q: cidr got %d, want %d", got, p.CIDR, tt.member.CIDR)
		}
	}
}
