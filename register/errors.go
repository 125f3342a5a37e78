package register

import "github.com/arloliu/go-ivi/ivierr"

var (
	// ErrDuplicateKey indicates that an entry with the same key already exists.
	ErrDuplicateKey = ivierr.New("register: duplicate key", ivierr.ErrProtocolViolation)

	// ErrNotFound indicates that no entry matches the requested enum value or reading.
	ErrNotFound = ivierr.New("register: item not found", ivierr.ErrProtocolViolation)

	// ErrUnknownKey indicates that a bitmask key was probed without being registered.
	ErrUnknownKey = ivierr.New("register: unknown bitmask key", ivierr.ErrProtocolViolation)

	// ErrBitConflict indicates that a mask shares bits with an existing entry.
	ErrBitConflict = ivierr.New("register: mask overlaps an existing entry", ivierr.ErrProtocolViolation)

	// ErrInvalidMask indicates a mask without any set bit.
	ErrInvalidMask = ivierr.New("register: mask must have at least one bit set", ivierr.ErrProtocolViolation)
)
