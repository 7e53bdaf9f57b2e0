package boc_test

import (
	"bytes"
	"testing"

	"github.com/mbarlow/cellasm/internal/boc"
	"github.com/mbarlow/cellasm/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(t *testing.T, data ...byte) *cell.Cell {
	t.Helper()
	b := cell.NewBuilder()
	require.NoError(t, b.AppendBytes(data))
	return b.Finalize()
}

func TestWriteReadRoundTripFlat(t *testing.T) {
	c := leaf(t, 0x77, 0x80, 0x0F, 0x30)

	var buf bytes.Buffer
	require.NoError(t, boc.Write(&buf, c))

	got, err := boc.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, c.Hash(), got.Hash())
	assert.Equal(t, c.Bytes(), got.Bytes())
}

func TestWriteReadRoundTripWithReferencesAndSharing(t *testing.T) {
	shared := leaf(t, 0xF2, 0xC0, 0x64)

	b := cell.NewBuilder()
	require.NoError(t, b.AppendBytes([]byte{0xE3, 0x0F}))
	require.NoError(t, b.AppendReference(shared))
	require.NoError(t, b.AppendReference(shared))
	root := b.Finalize()

	var buf bytes.Buffer
	require.NoError(t, boc.Write(&buf, root))

	got, err := boc.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, root.Hash(), got.Hash())
	require.Equal(t, 2, got.RefsCount())

	r0, err := got.Reference(0)
	require.NoError(t, err)
	r1, err := got.Reference(1)
	require.NoError(t, err)
	assert.Equal(t, shared.Hash(), r0.Hash())
	assert.Equal(t, shared.Hash(), r1.Hash())
}

func TestWriteReadRoundTripPartialByte(t *testing.T) {
	b := cell.NewBuilder()
	require.NoError(t, b.AppendBits(0x5, 4)) // 0101
	c := b.Finalize()

	var buf bytes.Buffer
	require.NoError(t, boc.Write(&buf, c))

	got, err := boc.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, got.BitsUsed())
	assert.Equal(t, c.Hash(), got.Hash())
}

func TestReadRejectsBadMagic(t *testing.T) {
	_, err := boc.Read(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x00}))
	assert.ErrorIs(t, err, boc.ErrBadMagic)
}

func TestReadRejectsTruncatedInput(t *testing.T) {
	c := leaf(t, 0x00)
	var buf bytes.Buffer
	require.NoError(t, boc.Write(&buf, c))

	truncated := buf.Bytes()[:buf.Len()-2]
	_, err := boc.Read(bytes.NewReader(truncated))
	assert.Error(t, err)
}
