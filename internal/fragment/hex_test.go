package fragment_test

import (
	"testing"

	"github.com/mbarlow/cellasm/internal/fragment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSliceBitsWithTerminator(t *testing.T) {
	bits, err := fragment.ParseSliceBits("x5")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 1, 1}, bits) // 0101 + implicit terminator
}

func TestParseSliceBitsSuppressedTerminator(t *testing.T) {
	bits, err := fragment.ParseSliceBits("x5_")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 1}, bits)
}

func TestParseSliceBitsRejectsMissingPrefix(t *testing.T) {
	_, err := fragment.ParseSliceBits("5_")
	assert.Error(t, err)
}

func TestPackBitsZeroPads(t *testing.T) {
	out := fragment.PackBits([]byte{0, 1, 0, 1})
	assert.Equal(t, []byte{0x50}, out)
}
