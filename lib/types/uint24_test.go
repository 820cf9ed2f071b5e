package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint24(t *testing.T) {
	u := NewUint24(0x012345)

	assert.Equal(t, [3]uint8{0x01, 0x23, 0x45}, u.Raw())
	assert.Equal(t, uint32(0x012345), u.Uint32())
	assert.Equal(t, "74565", u.String())
}

func TestUint24Truncates(t *testing.T) {
	u := NewUint24(0xFF012345)
	assert.Equal(t, uint32(0x012345), u.Uint32())
}
