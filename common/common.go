// Package common holds types shared between the protocol core and its
// algorithm catalogs.
package common

import "github.com/pkg/errors"

// ErrNeedMoreBytes is returned by decoders that ran out of input before a
// complete structure was available. It never indicates malformed input.
var ErrNeedMoreBytes = errors.New("need more bytes")

func ToBigEndianBytes(n uint, byteLen uint8) []byte {
	if byteLen > 8 {
		panic("cannot make more than 8 bytes")
	}

	b := make([]byte, byteLen)
	for i := range b {
		shift := uint(8 * (len(b) - 1 - i))
		b[i] = uint8(n >> shift)
	}

	return b
}
