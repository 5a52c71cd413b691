package ipset

import "errors"

var (
	// ErrInvalidArgument reports caller input the set cannot act on: a family
	// mismatch, an inverted range, an unknown opcode or set type.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrExists is returned by ADD without FlagExist when the entry is present.
	ErrExists = errors.New("element already exists")
	// ErrNotFound is returned by DEL without FlagExist when the entry is absent.
	ErrNotFound = errors.New("element not found")
	// ErrSetFull is returned when an ADD would exceed the set's maxelem.
	ErrSetFull = errors.New("set is full")
)
