package optional

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionalZeroValueIsUnset(t *testing.T) {
	var opt Optional[uint32]

	assert.False(t, opt.HasValue())
	assert.Equal(t, uint32(0), opt.Get())
}

func TestOptionalSet(t *testing.T) {
	var opt Optional[uint32]

	opt.Set(7)
	assert.True(t, opt.HasValue())
	assert.Equal(t, uint32(7), opt.Get())

	opt.Set(0)
	assert.True(t, opt.HasValue(), "setting the zero value still counts as set")
	assert.Equal(t, uint32(0), opt.Get())
}
