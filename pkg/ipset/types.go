package ipset

import (
	"fmt"
)

const (
	// HashIPPort represents the `hash:ip,port` type ipset.  The hash:ip,port set stores IP address,
	// protocol and port triples.  Bulk add/del expands address ranges (or CIDR blocks) and port ranges
	// into individual entries.
	HashIPPort string = "hash:ip,port"

	// HashNet represents the `hash:net` type ipset.  The hash:net set stores network blocks; a lookup
	// matches the longest stored block containing the address, and a block flagged nomatch is an
	// exception inside a wider block.
	HashNet string = "hash:net"
)

const (
	DefaultHashSize = 1024
	DefaultMaxElem  = 65536
	DefaultSetType  = HashNet

	// MaxHashSize caps bucket growth; past it chains lengthen instead.
	MaxHashSize = 1 << 24

	// MaxCommentLen is the longest comment stored with an entry, in bytes.
	MaxCommentLen = 255
)

const (
	// ProtocolFamilyIPV4 represents IPv4 protocol.
	ProtocolFamilyIPV4 = "inet"
	// ProtocolFamilyIPV6 represents IPv6 protocol.
	ProtocolFamilyIPV6 = "inet6"
	// ProtocolTCP represents TCP protocol.
	ProtocolTCP = "tcp"
	// ProtocolUDP represents UDP protocol.
	ProtocolUDP = "udp"
	// ProtocolSCTP represents SCTP protocol.
	ProtocolSCTP = "sctp"
	// ProtocolUDPLite represents UDP-Lite protocol.
	ProtocolUDPLite = "udplite"
)

// IANA protocol numbers for the port-carrying protocols.
const (
	IPProtoTCP     uint8 = 6
	IPProtoUDP     uint8 = 17
	IPProtoSCTP    uint8 = 132
	IPProtoUDPLite uint8 = 136
)

var protocolNumbers = map[string]uint8{
	ProtocolTCP:     IPProtoTCP,
	ProtocolUDP:     IPProtoUDP,
	ProtocolSCTP:    IPProtoSCTP,
	ProtocolUDPLite: IPProtoUDPLite,
}

// ValidIPSetTypes defines the supported ip set type.
var ValidIPSetTypes = []string{
	HashIPPort,
	HashNet,
}

// Family is the address family of a set.
type Family uint8

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return ProtocolFamilyIPV4
	case FamilyIPv6:
		return ProtocolFamilyIPV6
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// Bits is the address width of the family.
func (f Family) Bits() int {
	if f == FamilyIPv6 {
		return 128
	}
	return 32
}

// ParseFamily converts "inet"/"inet6" into a Family.
func ParseFamily(s string) (Family, error) {
	switch s {
	case ProtocolFamilyIPV4, "":
		return FamilyIPv4, nil
	case ProtocolFamilyIPV6:
		return FamilyIPv6, nil
	}
	return 0, fmt.Errorf("unknown family %q: %w", s, ErrInvalidArgument)
}

// Opcode is a per-element operation.
type Opcode int

const (
	OpAdd Opcode = iota
	OpDel
	OpTest
)

func (op Opcode) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDel:
		return "del"
	case OpTest:
		return "test"
	}
	return fmt.Sprintf("opcode(%d)", int(op))
}

// Flag modifies ADD and DEL.
type Flag uint32

const (
	// FlagExist makes ADD of a present entry replace its payload and DEL of an
	// absent entry succeed, like ipset's -exist.
	FlagExist Flag = 1 << iota
)

// IsValidType reports whether hashType is a supported set type.
func IsValidType(hashType string) bool {
	for _, t := range ValidIPSetTypes {
		if t == hashType {
			return true
		}
	}
	return false
}
