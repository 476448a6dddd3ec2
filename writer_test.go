package mat5

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTagPicksSmallLayoutAtOrUnderFourBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTag(&buf, Int8, 1))
	assert.Equal(t, 4, buf.Len())
	word := binary.LittleEndian.Uint32(buf.Bytes())
	assert.Equal(t, uint32(Int8), word&0xFFFF)
	assert.Equal(t, uint32(1), word>>16)
}

func TestWriteTagPicksNormalLayoutOverFourBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTag(&buf, Double, 48))
	assert.Equal(t, 8, buf.Len())
	assert.Equal(t, uint32(Double), binary.LittleEndian.Uint32(buf.Bytes()[0:4]))
	assert.Equal(t, uint32(48), binary.LittleEndian.Uint32(buf.Bytes()[4:8]))
}

func TestWritePaddingAlignsSmallAndNormalElements(t *testing.T) {
	var small bytes.Buffer
	require.NoError(t, writePadding(&small, 1))
	assert.Equal(t, 3, small.Len())

	var normal bytes.Buffer
	require.NoError(t, writePadding(&normal, 9))
	assert.Equal(t, 7, normal.Len())

	var aligned bytes.Buffer
	require.NoError(t, writePadding(&aligned, 48))
	assert.Equal(t, 0, aligned.Len())
}

func TestWriteArrayNameUsesSmallElementLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeArrayName(&buf, "A"))
	require.Equal(t, 8, buf.Len())
	word := binary.LittleEndian.Uint32(buf.Bytes()[0:4])
	assert.Equal(t, uint32(Int8), word&0xFFFF)
	assert.Equal(t, uint32(1), word>>16)
	assert.Equal(t, byte('A'), buf.Bytes()[4])
	assert.Equal(t, []byte{0, 0, 0}, buf.Bytes()[5:8])
}

func TestFileScratchRoundTripsThroughTempFile(t *testing.T) {
	fs, err := newFileScratch()
	require.NoError(t, err)
	defer fs.Close()
	_, err = fs.Write([]byte("abc"))
	require.NoError(t, err)
	got, err := fs.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

// TestBeginNumArrayProducesExpectedWireLayout builds a 2x3 double array
// named "A" at the top level (no header, to keep the assertions independent
// of the timestamp in writeHeader's description text) and checks every
// field of the resulting miMATRIX element against spec.md §3's layout.
func TestBeginNumArrayProducesExpectedWireLayout(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(nil)
	require.NoError(t, w.AttachSink(&sink, false, false))

	require.NoError(t, w.BeginNumArray([]int32{2, 3}, ClassDouble, false, "A"))
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		require.NoError(t, w.AddNumArrayElement(v))
	}
	require.NoError(t, w.EndNumArray(false))

	b := sink.Bytes()
	require.Equal(t, uint32(Matrix), binary.LittleEndian.Uint32(b[0:4]))
	matrixLen := binary.LittleEndian.Uint32(b[4:8])
	assert.EqualValues(t, 96, matrixLen)
	require.Len(t, b, 8+int(matrixLen))

	body := b[8:]
	// array flags: tag(UInt32,8) + class + zero
	assert.Equal(t, uint32(UInt32), binary.LittleEndian.Uint32(body[0:4]))
	assert.EqualValues(t, 8, binary.LittleEndian.Uint32(body[4:8]))
	assert.Equal(t, uint32(ClassDouble), binary.LittleEndian.Uint32(body[8:12]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(body[12:16]))

	// dims: tag(Int32,8) + [2,3]
	dims := body[16:32]
	assert.Equal(t, uint32(Int32), binary.LittleEndian.Uint32(dims[0:4]))
	assert.EqualValues(t, 8, binary.LittleEndian.Uint32(dims[4:8]))
	assert.EqualValues(t, 2, binary.LittleEndian.Uint32(dims[8:12]))
	assert.EqualValues(t, 3, binary.LittleEndian.Uint32(dims[12:16]))

	// name: small element, "A" + 3 bytes padding
	name := body[32:40]
	nameWord := binary.LittleEndian.Uint32(name[0:4])
	assert.Equal(t, uint32(Int8), nameWord&0xFFFF)
	assert.EqualValues(t, 1, nameWord>>16)
	assert.Equal(t, byte('A'), name[4])

	// data: tag(Double,48) + six little-endian float64 values
	data := body[40:]
	assert.Equal(t, uint32(Double), binary.LittleEndian.Uint32(data[0:4]))
	assert.EqualValues(t, 48, binary.LittleEndian.Uint32(data[4:8]))
	values := data[8:56]
	for i := 0; i < 6; i++ {
		got := math.Float64frombits(binary.LittleEndian.Uint64(values[i*8 : i*8+8]))
		assert.Equal(t, float64(i+1), got)
	}
}

func TestEndNumArrayRejectsIncompleteArray(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(nil)
	require.NoError(t, w.AttachSink(&sink, false, false))
	require.NoError(t, w.BeginNumArray([]int32{1, 2}, ClassDouble, false, "x"))
	require.NoError(t, w.AddNumArrayElement(float64(1)))
	assert.Error(t, w.EndNumArray(false))
}

func TestWriteCellRejectsHeterogeneousList(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(nil)
	require.NoError(t, w.AttachSink(&sink, false, false))
	err := w.WriteCell([]interface{}{float64(1), int32(2)}, "x")
	assert.Error(t, err)
}

func TestWriteCellRejectsEmptyList(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriter(nil)
	require.NoError(t, w.AttachSink(&sink, false, false))
	err := w.WriteCell([]interface{}{}, "x")
	assert.Error(t, err)
}
