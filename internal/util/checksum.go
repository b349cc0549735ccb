package util

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// TrailerSize is the width of the checksum appended to framed values.
const TrailerSize = 4

var (
	castagnoli = crc32.MakeTable(crc32.Castagnoli)

	// ErrShortFrame is returned for values too short to carry a trailer.
	ErrShortFrame = errors.New("checksum: frame shorter than trailer")
	// ErrChecksumMismatch is returned when the trailer does not match.
	ErrChecksumMismatch = errors.New("checksum: mismatch")
)

// Checksum computes the CRC32-C of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Frame returns a copy of data followed by its big-endian checksum.
func Frame(data []byte) []byte {
	out := make([]byte, len(data), len(data)+TrailerSize)
	copy(out, data)
	return binary.BigEndian.AppendUint32(out, Checksum(data))
}

// Unframe checks and strips the trailer. The returned slice aliases framed.
func Unframe(framed []byte) ([]byte, error) {
	if len(framed) < TrailerSize {
		return nil, ErrShortFrame
	}
	n := len(framed) - TrailerSize
	data := framed[:n]
	if binary.BigEndian.Uint32(framed[n:]) != Checksum(data) {
		return nil, ErrChecksumMismatch
	}
	return data, nil
}
