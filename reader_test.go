package mat5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueToSliceNormalizesShapes(t *testing.T) {
	assert.Equal(t, []interface{}{uint32(7)}, valueToSlice(uint32(7)))
	assert.Equal(t, []interface{}{int8(1), int8(2)}, valueToSlice([]interface{}{int8(1), int8(2)}))
	assert.Nil(t, valueToSlice(nil))

	b := valueToSlice([]byte{'a', 'b'})
	require := assert.New(t)
	require.Len(b, 2)
	require.Equal(byte('a'), b[0])
	require.Equal(byte('b'), b[1])
}

func TestToInt64AcceptsEveryNumericKind(t *testing.T) {
	cases := []interface{}{int8(1), uint8(1), int16(1), uint16(1), int32(1), uint32(1), int64(1), uint64(1), float32(1), float64(1)}
	for _, c := range cases {
		n, ok := toInt64(c)
		assert.True(t, ok, "%T", c)
		assert.Equal(t, int64(1), n)
	}
	_, ok := toInt64("nope")
	assert.False(t, ok)
}

func TestConvertRealPartReinterpretsInt8Bytes(t *testing.T) {
	raw := []byte{0xFF, 0x01}

	signed := convertRealPart(raw, ClassInt8, 0)
	assert.Equal(t, []interface{}{int32(-1), int32(1)}, signed)

	unsigned := convertRealPart(raw, ClassUInt8, 0)
	assert.Equal(t, []interface{}{uint32(0xFF), uint32(1)}, unsigned)
}

func TestConvertRealPartHonorsLimit(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	out := convertRealPart(raw, ClassUInt8, 2)
	assert.Len(t, out, 2)
}

func TestConvertRealPartPassesThroughDecodedSlices(t *testing.T) {
	in := []interface{}{float64(1), float64(2)}
	assert.Equal(t, in, convertRealPart(in, ClassDouble, 0))
	assert.Equal(t, []interface{}{float64(9)}, convertRealPart(float64(9), ClassDouble, 0))
}

func TestSplitNamesStopsAtNulAndRespectsStride(t *testing.T) {
	blob := []byte("ax\x00\x00byz\x00\x00\x00")
	names := splitNames(blob, 4)
	assert.Equal(t, []string{"ax", "byz"}, names)
}

func TestSplitNamesEmptyChunkLenIsNoNames(t *testing.T) {
	assert.Nil(t, splitNames([]byte("whatever"), 0))
}

// TestReadMatrixToleratesEndMatrixWhereFlagsExpected exercises the
// documented leniency for a miMATRIX payload with no array-flags element at
// all: the reader must treat it as an empty result, not an error.
func TestReadMatrixToleratesEndMatrixWhereFlagsExpected(t *testing.T) {
	p := NewParser(nil)
	r := NewReader(p, nil)
	// Force PeekToken to report TokenEndMatrix without any lexer machinery,
	// by priming the parser's one-slot peek buffer directly.
	p.peeked = &Token{Type: TokenEndMatrix}
	v := r.readMatrix()
	assert.Nil(t, v)
	assert.False(t, r.HasError())
}

func TestReadArrayFlagsRejectsWrongShape(t *testing.T) {
	p := NewParser(nil)
	r := NewReader(p, nil)
	p.peeked = &Token{Type: TokenValue, Value: uint32(6)} // single value, not a pair
	_, _, _, _, ok := r.readArrayFlags()
	assert.False(t, ok)
}

func TestReadArrayFlagsDecodesClassAndBits(t *testing.T) {
	p := NewParser(nil)
	r := NewReader(p, nil)
	flagsWord := int64(flagComplex | flagGlobal | int(ClassDouble))
	p.peeked = &Token{Type: TokenValue, Value: []interface{}{flagsWord, int64(0)}}
	class, logical, global, complex, ok := r.readArrayFlags()
	assert.True(t, ok)
	assert.Equal(t, ClassDouble, class)
	assert.False(t, logical)
	assert.True(t, global)
	assert.True(t, complex)
}
