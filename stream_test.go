package mat5

import (
	"bytes"
	"io"
	"testing"

	kzlib "github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameReadRespectsLengthAndEatsPadding(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3, 0, 0, 0, 0, 0, 9, 9})
	f := newFrame(src, 3, 5, false, nil)

	buf := make([]byte, 3)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, buf)

	// Payload is exhausted; a further Read reports EOF, and the 5 padding
	// bytes behind it were consumed as a side effect of draining to 0.
	n, err = f.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	// The two bytes after the padding belong to whatever comes next on src,
	// not to this frame.
	rest, _ := io.ReadAll(src)
	assert.Equal(t, []byte{9, 9}, rest)
}

func TestFrameUnreadBytesAndClose(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3, 4, 0, 0, 0, 0})
	f := newFrame(src, 4, 4, false, DiscardLogger())
	assert.EqualValues(t, 8, f.UnreadBytes())

	// Closing before reading anything drains and discards the remainder.
	require.NoError(t, f.Close())
	assert.EqualValues(t, 0, f.UnreadBytes())

	// Close is idempotent.
	require.NoError(t, f.Close())
}

func TestFrameCompressedReadsThroughZlib(t *testing.T) {
	// A zlib stream of the bytes "hello", produced independently of this
	// package's own writer so the test exercises decompression against a
	// known-good encoder.
	var compressed bytes.Buffer
	zw := kzlib.NewWriter(&compressed)
	_, err := zw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	f := newFrame(bytes.NewReader(compressed.Bytes()), uint32(compressed.Len()), 0, true, nil)
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	require.NoError(t, f.Close())
}
