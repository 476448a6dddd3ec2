package mat5

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFileRoundTripsNumericArray writes a 2x3 double array through Create
// and reads it back through Open/ReadAll, exercising the full
// stream/lexer/parser/reader/writer stack end to end.
func TestFileRoundTripsNumericArray(t *testing.T) {
	var buf bytes.Buffer
	w, err := Create(&buf, false, nil)
	require.NoError(t, err)
	require.NoError(t, w.BeginNumArray([]int32{2, 3}, ClassDouble, false, "A"))
	for _, v := range []float64{1, 2, 3, 4, 5, 6} {
		require.NoError(t, w.AddNumArrayElement(v))
	}
	require.NoError(t, w.EndNumArray(false))
	require.NoError(t, w.Close())

	f, err := Open(bytes.NewReader(buf.Bytes()), false, nil)
	require.NoError(t, err)
	defer f.Close()
	require.Contains(t, f.Header.Text, "MATLAB 5.0 MAT-file")

	v, ok := f.GetVar("A")
	require.True(t, ok)
	arr, ok := v.(*NumericArray)
	require.True(t, ok)
	assert.Equal(t, ClassDouble, arr.Class)
	assert.Equal(t, []int32{2, 3}, arr.Dims)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, arr.FloatSlice())
}

// TestFileRoundTripsCompressedNumericArray exercises the miCOMPRESSED path
// on both the write and read side.
func TestFileRoundTripsCompressedNumericArray(t *testing.T) {
	var buf bytes.Buffer
	w, err := Create(&buf, false, nil)
	require.NoError(t, err)
	require.NoError(t, w.BeginNumArray([]int32{1, 4}, ClassInt32, false, "C"))
	require.NoError(t, w.AddNumArrayElement([]interface{}{int32(10), int32(20), int32(30), int32(40)}))
	require.NoError(t, w.EndNumArray(true))
	require.NoError(t, w.Close())

	f, err := Open(bytes.NewReader(buf.Bytes()), false, nil)
	require.NoError(t, err)
	defer f.Close()

	v, ok := f.GetVar("C")
	require.True(t, ok)
	arr := v.(*NumericArray)
	assert.Equal(t, []int64{10, 20, 30, 40}, arr.IntSlice())
}

// TestFileRoundTripsStruct builds a 1-row struct with a numeric and a char
// field and confirms both the field order and field values survive the
// round trip.
func TestFileRoundTripsStruct(t *testing.T) {
	var buf bytes.Buffer
	w, err := Create(&buf, false, nil)
	require.NoError(t, err)
	require.NoError(t, w.BeginStructure([]string{"a", "b"}, 1, false, "S"))
	require.NoError(t, w.AddStructureRow([]interface{}{float64(1), "hi"}))
	require.NoError(t, w.EndStructure(false))
	require.NoError(t, w.Close())

	f, err := Open(bytes.NewReader(buf.Bytes()), false, nil)
	require.NoError(t, err)
	defer f.Close()

	v, ok := f.GetVar("S")
	require.True(t, ok)
	s, ok := v.(*Structure)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s.FieldOrder)

	aVal := s.GetArray("a")
	require.NotNil(t, aVal)
	assert.Equal(t, []float64{1}, aVal.FloatSlice())

	bStr := s.GetString("b")
	assert.Equal(t, "hi", bStr)
}

// TestFileNextStreamsWithoutCachingVariables exercises the streaming
// surface (as opposed to ReadAll/GetVar) directly.
func TestFileNextStreamsWithoutCachingVariables(t *testing.T) {
	var buf bytes.Buffer
	w, err := Create(&buf, false, nil)
	require.NoError(t, err)
	require.NoError(t, w.AddCharArray("hi", "greeting"))
	require.NoError(t, w.Close())

	f, err := Open(bytes.NewReader(buf.Bytes()), false, nil)
	require.NoError(t, err)
	defer f.Close()

	v, err := f.Next()
	require.NoError(t, err)
	str, ok := v.(*String)
	require.True(t, ok)
	assert.Equal(t, "hi", str.Text)
	assert.Equal(t, "greeting", str.Name)

	_, err = f.Next()
	assert.Equal(t, io.EOF, err)
}
