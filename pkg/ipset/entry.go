package ipset

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	netutils "k8s.io/utils/net"
)

// ParseEntry parses an entry in ipset save syntax for the given set type:
//
//	hash:ip,port  ADDR[-ADDR|/CIDR],[PROTO:]PORT[-PORT]
//	hash:net      ADDR[/CIDR|-ADDR]
//
// optionally followed by `comment "text"` and, for hash:net, `nomatch`.
// The family is taken from the address.
func ParseEntry(hashType string, entry string) (*Param, error) {
	value, rest, _ := strings.Cut(strings.TrimSpace(entry), " ")
	if value == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "empty entry")
	}

	p := &Param{}
	if err := parseOptions(p, rest); err != nil {
		return nil, errors.Wrapf(err, "entry %q", entry)
	}

	var err error
	switch hashType {
	case HashIPPort:
		err = parseIPPort(p, value)
	case HashNet:
		err = parseAddrRange(p, value)
	default:
		err = errors.Wrapf(ErrInvalidArgument, "unsupported set type %q", hashType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "entry %q", entry)
	}
	if p.NoMatch && hashType != HashNet {
		return nil, errors.Wrapf(ErrInvalidArgument, "entry %q: nomatch needs a %s set", entry, HashNet)
	}
	return p, nil
}

func parseOptions(p *Param, rest string) error {
	for rest = strings.TrimSpace(rest); rest != ""; rest = strings.TrimSpace(rest) {
		var tok string
		tok, rest, _ = strings.Cut(rest, " ")
		switch tok {
		case "nomatch":
			p.NoMatch = true
		case "comment":
			rest = strings.TrimSpace(rest)
			quoted, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return errors.Wrap(ErrInvalidArgument, "comment must be a quoted string")
			}
			p.Comment, _ = strconv.Unquote(quoted)
			rest = rest[len(quoted):]
		default:
			return errors.Wrapf(ErrInvalidArgument, "unknown option %q", tok)
		}
	}
	return nil
}

func parseIPPort(p *Param, value string) error {
	i := strings.LastIndexByte(value, ',')
	if i < 0 {
		return errors.Wrap(ErrInvalidArgument, "missing port")
	}
	if err := parseAddrRange(p, value[:i]); err != nil {
		return err
	}

	p.Proto = IPProtoTCP
	ports := value[i+1:]
	if proto, rest, ok := strings.Cut(ports, ":"); ok {
		n, err := parseProto(proto)
		if err != nil {
			return err
		}
		p.Proto, ports = n, rest
	}

	lo, hi, isRange := strings.Cut(ports, "-")
	minPort, err := netutils.ParsePort(lo, true)
	if err != nil {
		return errors.Wrap(ErrInvalidArgument, err.Error())
	}
	maxPort := minPort
	if isRange {
		if maxPort, err = netutils.ParsePort(hi, true); err != nil {
			return errors.Wrap(ErrInvalidArgument, err.Error())
		}
		if maxPort < minPort {
			return errors.Wrapf(ErrInvalidArgument, "inverted port range %s", ports)
		}
	}
	p.Range.MinPort, p.Range.MaxPort = uint16(minPort), uint16(maxPort)
	return nil
}

func parseProto(s string) (uint8, error) {
	if n, ok := protocolNumbers[strings.ToLower(s)]; ok {
		return n, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown protocol %q", s)
	}
	return uint8(n), nil
}

// parseAddrRange fills family, address range and CIDR from ADDR, ADDR/CIDR or
// ADDR-ADDR.
func parseAddrRange(p *Param, s string) error {
	if strings.Contains(s, "/") {
		pfx, err := netip.ParsePrefix(s)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, err.Error())
		}
		if pfx.Bits() == 0 {
			return errors.Wrapf(ErrInvalidArgument, "zero prefix length in %s", s)
		}
		p.Range.MinAddr = pfx.Addr()
		p.CIDR = uint8(pfx.Bits())
	} else if lo, hi, ok := strings.Cut(s, "-"); ok {
		from, err := netip.ParseAddr(lo)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, err.Error())
		}
		to, err := netip.ParseAddr(hi)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, err.Error())
		}
		if from.Is4() != to.Is4() || to.Less(from) {
			return errors.Wrapf(ErrInvalidArgument, "bad address range %s", s)
		}
		p.Range.MinAddr, p.Range.MaxAddr = from, to
	} else {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return errors.Wrap(ErrInvalidArgument, err.Error())
		}
		p.Range.MinAddr = a
	}

	p.Family = FamilyIPv4
	if p.Range.MinAddr.Is6() {
		p.Family = FamilyIPv6
	}
	return nil
}

func protoName(proto uint8) string {
	for name, n := range protocolNumbers {
		if n == proto {
			return name
		}
	}
	return strconv.Itoa(int(proto))
}

// FormatMember renders a listed member in the syntax ParseEntry accepts.
func FormatMember(hashType string, m Member) string {
	var b strings.Builder
	switch hashType {
	case HashIPPort:
		fmt.Fprintf(&b, "%s,%s:%d", m.Addr, protoName(m.Proto), m.Port)
	default:
		fmt.Fprintf(&b, "%s/%d", m.Addr, m.CIDR)
	}
	if m.Comment != "" {
		b.WriteString(" comment ")
		b.WriteString(strconv.Quote(m.Comment))
	}
	if m.NoMatch {
		b.WriteString(" nomatch")
	}
	return b.String()
}
