package types

import (
	"encoding/binary"
	"strconv"
)

type Uint24 struct{ data [3]uint8 } // Stored in big endian.

// NOTE: This truncates the most significant byte from u32.
func NewUint24(u32 uint32) Uint24 {
	return Uint24{data: [3]uint8{
		uint8(u32 >> 16),
		uint8(u32 >> 8),
		uint8(u32),
	}}
}

func (u24 Uint24) Raw() [3]uint8 { return u24.data }

func (u24 Uint24) Uint32() uint32 {
	b := append([]byte{0}, u24.data[:]...)
	return binary.BigEndian.Uint32(b)
}

func (u24 Uint24) String() string {
	return strconv.FormatUint(uint64(u24.Uint32()), 10)
}
