package kv

import (
	"github.com/greydoubt/cozo/internal/util"
)

const plainMarker byte = 0x01

// Envelope optionally frames stored values with a CRC32 trailer. Durable
// backends use it so that a torn or bit-rotted value surfaces as
// ErrCorrupted instead of a misdecoded tuple.
type Envelope struct {
	Checksum bool
}

// Seal frames value for storage. Without checksums a single marker byte is
// appended instead, so an empty value is never stored as zero bytes; bbolt
// cannot tell those apart from a missing key.
func (e Envelope) Seal(value []byte) []byte {
	if e.Checksum {
		return util.Frame(value)
	}
	out := make([]byte, len(value)+1)
	copy(out, value)
	out[len(value)] = plainMarker
	return out
}

// Open validates and strips a stored value.
func (e Envelope) Open(stored []byte) ([]byte, error) {
	if e.Checksum {
		data, err := util.Unframe(stored)
		if err != nil {
			return nil, ErrCorrupted
		}
		return data, nil
	}
	if len(stored) == 0 || stored[len(stored)-1] != plainMarker {
		return nil, ErrCorrupted
	}
	return stored[:len(stored)-1], nil
}
