package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(10, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, float32(1.5), Clamp(float32(1.5), 0, 2))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(64), AlignUp(uint32(33), 64))
	assert.Equal(t, uint32(64), AlignUp(uint32(64), 64))
	assert.Equal(t, uint64(0), AlignUp(uint64(0), 32))
	assert.Equal(t, uint64(7), AlignUp(uint64(7), 0))
}
