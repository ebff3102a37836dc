package unsafer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceToBytes(t *testing.T) {
	input := []uint32{0x04030201, 0x08070605}

	bytes := SliceToBytes(input)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, bytes)

	// Same backing memory, not a copy.
	bytes[0] = 0xFF
	assert.Equal(t, uint32(0x040302FF), input[0])
}

func TestSliceToBytesStructs(t *testing.T) {
	type pair struct {
		A uint16
		B uint16
	}
	input := []pair{{A: 1, B: 2}, {A: 3, B: 4}}

	bytes := SliceToBytes(input)
	assert.Len(t, bytes, 8)
}
