package mat5

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(t *testing.T, payload []byte) *frame {
	t.Helper()
	return newFrame(bytes.NewReader(payload), uint32(len(payload)), 0, false, DiscardLogger())
}

func TestReadFixedCollapsesSingleScalar(t *testing.T) {
	p := NewParser(nil)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, 42)
	f := frameOf(t, buf)
	tok := p.readFixed(f, 4, 0, func(b []byte) interface{} { return binary.LittleEndian.Uint32(b) }, "miUINT32")
	assert.Equal(t, TokenValue, tok.Type)
	assert.Equal(t, uint32(42), tok.Value)
}

func TestReadFixedReturnsSliceForMultiple(t *testing.T) {
	p := NewParser(nil)
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	binary.LittleEndian.PutUint32(buf[4:8], 2)
	binary.LittleEndian.PutUint32(buf[8:12], 3)
	f := frameOf(t, buf)
	tok := p.readFixed(f, 4, 0, func(b []byte) interface{} { return binary.LittleEndian.Uint32(b) }, "miUINT32")
	vals, ok := tok.Value.([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{uint32(1), uint32(2), uint32(3)}, vals)
}

func TestReadFixedHonorsLimitAndDrainsRemainder(t *testing.T) {
	p := NewParser(nil)
	buf := make([]byte, 20) // five uint32 values
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(i+1))
	}
	f := frameOf(t, buf)
	tok := p.readFixed(f, 4, 2, func(b []byte) interface{} { return binary.LittleEndian.Uint32(b) }, "miUINT32")
	vals, ok := tok.Value.([]interface{})
	require.True(t, ok)
	// Only the first two decoded values are kept; the rest were drained,
	// never decoded, matching the limit semantics in SPEC_FULL.md.
	assert.Equal(t, []interface{}{uint32(1), uint32(2)}, vals)
}

func TestReadUTF16DecodesBasicString(t *testing.T) {
	p := NewParser(nil)
	units := []uint16{'h', 'i'}
	buf := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], u)
	}
	f := frameOf(t, buf)
	tok := p.readUTF16(f, binary.LittleEndian)
	assert.Equal(t, TokenValue, tok.Type)
	assert.Equal(t, "hi", tok.Value)
}

func TestReadUTF32DecodesBasicString(t *testing.T) {
	p := NewParser(nil)
	runes := []rune{'o', 'k'}
	buf := make([]byte, len(runes)*4)
	for i, r := range runes {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], uint32(r))
	}
	f := frameOf(t, buf)
	tok := p.readUTF32(f, binary.LittleEndian)
	assert.Equal(t, "ok", tok.Value)
}

func TestPeekTokenCachesUntilNextToken(t *testing.T) {
	p := NewParser(nil)
	assert.Equal(t, TokenNull, p.PeekToken().Type)
	assert.Equal(t, TokenNull, p.NextToken().Type)
}
