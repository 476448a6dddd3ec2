package mat5

import (
	"bytes"
	"fmt"
)

// classMask selects the low byte of the array-flags word: the mxClass
// code. The three flag bits live above it (spec.md §3).
const (
	flagLogical = 0x200
	flagGlobal  = 0x400
	flagComplex = 0x800
	classMask   = 0xff
)

// Reader turns a Parser's token stream into the semantic values of
// value.go, replicating original_source/MatReader.cpp's readMatrix and
// readFields (spec.md §4.4).
//
// A Reader is not safe for concurrent use; each goroutine reading a MAT
// file needs its own Reader over its own Parser (spec.md §7).
type Reader struct {
	parser *Parser
	logger Logger
	err    string
}

// NewReader constructs a Reader over an already-attached Parser.
func NewReader(p *Parser, logger Logger) *Reader {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Reader{parser: p, logger: logger}
}

// GetError returns the message set by the most recent NextElement call
// that failed, or "" if it succeeded.
func (r *Reader) GetError() string { return r.err }

// HasError reports whether the most recent NextElement call failed.
func (r *Reader) HasError() bool { return r.err != "" }

func (r *Reader) fail(msg string) interface{} {
	r.err = msg
	return nil
}

// NextElement reads and returns the next top-level value: a bare scalar,
// string or byte slice if the file stores one outside of any matrix
// (unusual but legal), or one of NumericArray, *String, *Structure,
// *CellArray, *SparseArray, *Undocumented for a miMATRIX element. It
// returns nil with GetError empty at end of stream, and nil with GetError
// naming the failure on a malformed element.
func (r *Reader) NextElement() interface{} {
	r.err = ""
	t := r.parser.NextToken()
	switch t.Type {
	case TokenValue:
		return t.Value
	case TokenBeginMatrix:
		v := r.readMatrix()
		if r.err != "" {
			return nil
		}
		t = r.parser.NextToken()
		if t.Type != TokenEndMatrix {
			return r.fail("Invalid matrix end")
		}
		return v
	case TokenError:
		r.err = fmt.Sprint(t.Value)
		return nil
	default:
		// TokenNull (end of stream) or a stray TokenEndMatrix: both mean
		// there is nothing more to read at the top level.
		return nil
	}
}

// readMatrix decodes one miMATRIX payload — array flags, dimensions, name,
// and the class-specific remainder — starting right after the BeginMatrix
// token that announced it, and stopping right before the matching
// EndMatrix (which the caller consumes).
func (r *Reader) readMatrix() interface{} {
	limit := r.parser.Limit()

	// A handful of real-world files emit an EndMatrix where array flags
	// are expected; tolerate it as an empty result rather than an error
	// (original_source/MatReader.cpp: "Das kommt tatsächlich vor").
	if r.parser.PeekToken().Type == TokenEndMatrix {
		return nil
	}

	class, logical, global, complex, ok := r.readArrayFlags()
	if !ok {
		return r.fail("Invalid array flags")
	}

	t := r.parser.NextToken()
	dimVals := valueToSlice(t.Value)
	if class <= ClassUInt64 && (t.Type != TokenValue || len(dimVals) == 0) {
		return r.fail("Invalid array dimensions")
	}
	dims := make([]int32, len(dimVals))
	for i, v := range dimVals {
		n, _ := toInt64(v)
		dims[i] = int32(n)
	}
	totalCount := dimsProduct(dims)

	t = r.parser.NextToken()
	nameBytes, isBytes := t.Value.([]byte)
	if t.Type != TokenValue || !isBytes {
		return r.fail("Invalid array name")
	}
	name := string(nameBytes)

	attrs := Attrs{Name: name, Logical: logical, Global: global, Complex: complex, Valid: true}

	switch {
	case class.IsNumeric():
		return r.readNumericArray(attrs, class, dims, totalCount, limit)
	case class == ClassSparse:
		return r.readSparseArray(attrs, dims, complex)
	case class == ClassCell:
		return r.readCellArray(attrs, dims, limit)
	case class == ClassChar:
		return r.readCharArray(attrs, totalCount)
	case class == ClassStruct:
		return r.readStruct(attrs)
	case class == ClassObject:
		return r.readObject(attrs)
	case class == ClassUndocumented16, class == ClassUndocumented17:
		return r.readUndocumented(attrs, class)
	}

	r.logger.Warn("mat5: invalid array type", "class", uint8(class))
	return r.fail("Invalid array type")
}

func (r *Reader) readArrayFlags() (class Class, logical, global, complex, ok bool) {
	t := r.parser.NextToken()
	vals := valueToSlice(t.Value)
	if t.Type != TokenValue || len(vals) != 2 {
		return 0, false, false, false, false
	}
	f, _ := toInt64(vals[0])
	logical = f&flagLogical != 0
	global = f&flagGlobal != 0
	complex = f&flagComplex != 0
	class = Class(f & classMask)
	return class, logical, global, complex, true
}

func (r *Reader) readNumericArray(attrs Attrs, class Class, dims []int32, totalCount int64, limit int) interface{} {
	if len(dims) < 2 {
		return r.fail("At least two dimensions required")
	}
	t := r.parser.NextToken()
	real := convertRealPart(t.Value, class, limit)
	if t.Type != TokenValue || (limit == 0 && int64(len(real)) != totalCount) {
		return r.fail("Invalid array real part")
	}
	arr := &NumericArray{Attrs: attrs, Class: class, Dims: dims, Real: real}
	if attrs.Complex {
		t = r.parser.NextToken()
		imag := convertRealPart(t.Value, class, limit)
		if t.Type != TokenValue || (limit == 0 && int64(len(imag)) != totalCount) {
			return r.fail("Invalid array complex part")
		}
		arr.Imag = imag
	}
	return arr
}

// readSparseArray discards a sparse matrix's row-index, column-index, and
// real (and imaginary) sub-elements; this codec parses sparse matrices
// only far enough to skip over them (spec.md Non-goals).
func (r *Reader) readSparseArray(attrs Attrs, dims []int32, complex bool) interface{} {
	if len(dims) > 2 {
		return r.fail("Invalid sparse array dimensions")
	}
	r.parser.NextToken() // ir
	r.parser.NextToken() // jc
	r.parser.NextToken() // pr
	if complex {
		r.parser.NextToken() // pi
	}
	r.logger.Warn("mat5: sparse arrays not yet supported", "name", attrs.Name)
	return &SparseArray{Attrs: attrs}
}

func (r *Reader) readCellArray(attrs Attrs, dims []int32, limit int) interface{} {
	if len(dims) < 2 {
		return r.fail("At least two dimensions required")
	}
	a := &CellArray{Attrs: attrs, Dims: dims}
	i := 0
	for r.parser.PeekToken().Type == TokenBeginMatrix {
		r.parser.NextToken() // eat BeginMatrix
		v := r.readMatrix()
		if r.err != "" {
			return nil
		}
		a.Cells = append(a.Cells, v)
		t := r.parser.NextToken()
		if t.Type != TokenEndMatrix {
			return r.fail("Invalid cell end")
		}
		i++
		if limit != 0 && i >= limit {
			r.parser.SkipLevel()
			break
		}
	}
	return a
}

func (r *Reader) readCharArray(attrs Attrs, totalCount int64) interface{} {
	t := r.parser.NextToken()
	text, isString := t.Value.(string)
	if t.Type != TokenValue || !isString || int64(len([]rune(text))) != totalCount {
		return r.fail("Invalid char array")
	}
	return &String{Attrs: attrs, Text: text}
}

func (r *Reader) readStruct(attrs Attrs) interface{} {
	t := r.parser.NextToken()
	nameLength, isInt := toInt64(t.Value)
	if t.Type != TokenValue || !isInt {
		return r.fail("Invalid struct format")
	}
	t = r.parser.NextToken()
	blob, isBytes := t.Value.([]byte)
	if t.Type != TokenValue || !isBytes {
		return r.fail("Invalid struct format")
	}
	names := splitNames(blob, int(nameLength))
	s := &Structure{Attrs: attrs, Fields: map[string][]interface{}{}}
	if !r.readFields(s, names) {
		return nil
	}
	return s
}

func (r *Reader) readObject(attrs Attrs) interface{} {
	t := r.parser.NextToken()
	classNameBytes, isBytes := t.Value.([]byte)
	if t.Type != TokenValue || !isBytes {
		return r.fail("Invalid class format")
	}
	t = r.parser.NextToken()
	nameLength, isInt := toInt64(t.Value)
	if t.Type != TokenValue || !isInt {
		return r.fail("Invalid class format")
	}
	t = r.parser.NextToken()
	blob, isBytes := t.Value.([]byte)
	if t.Type != TokenValue || !isBytes {
		return r.fail("Invalid class format")
	}
	names := splitNames(blob, int(nameLength))
	s := &Structure{Attrs: attrs, ClassName: string(classNameBytes), Fields: map[string][]interface{}{}}
	if !r.readFields(s, names) {
		return nil
	}
	return s
}

// readFields decodes the sequence of per-row field matrices shared by
// struct and object arrays, enforcing the invariant that the number of
// field values read is an exact multiple of the number of names
// (original_source/MatReader.cpp readFields).
func (r *Reader) readFields(s *Structure, names []string) bool {
	if len(names) == 0 {
		return true
	}
	s.FieldOrder = append([]string(nil), names...)
	limit := r.parser.Limit() * len(names)
	n := 0
	for r.parser.PeekToken().Type == TokenBeginMatrix {
		r.parser.NextToken() // eat BeginMatrix
		v := r.readMatrix()
		if r.err != "" {
			return false
		}
		field := names[n%len(names)]
		s.Fields[field] = append(s.Fields[field], v)
		t := r.parser.NextToken()
		if t.Type != TokenEndMatrix {
			r.fail("Invalid field end")
			return false
		}
		n++
		if limit != 0 && n >= limit {
			r.parser.SkipLevel()
			break
		}
	}
	if n != len(names) && n%len(names) != 0 {
		r.fail("Fields and names not consistent")
		return false
	}
	return true
}

func (r *Reader) readUndocumented(attrs Attrs, class Class) interface{} {
	u := &Undocumented{Attrs: attrs}
	if class == ClassUndocumented17 {
		t := r.parser.NextToken()
		if t.Type != TokenValue {
			return r.fail("Invalid type 17 start")
		}
		u.Value = t.Value
	}
	t := r.parser.NextToken()
	if t.Type != TokenBeginMatrix {
		return r.fail("Invalid type 17 start")
	}
	u.Sub = r.readMatrix()
	if r.err != "" {
		return nil
	}
	t = r.parser.NextToken()
	if t.Type != TokenEndMatrix {
		return r.fail("Invalid type 17 end")
	}
	return u
}

// valueToSlice normalizes a Token.Value into a slice: the parser collapses
// single-element sequences to a bare scalar, so call sites that need to
// count elements (array flags, dimensions) must undo that collapse.
func valueToSlice(v interface{}) []interface{} {
	switch t := v.(type) {
	case []interface{}:
		return t
	case []byte:
		out := make([]interface{}, len(t))
		for i, b := range t {
			out[i] = b
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{t}
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int8:
		return int64(t), true
	case uint8:
		return int64(t), true
	case int16:
		return int64(t), true
	case uint16:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint32:
		return int64(t), true
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case float32:
		return int64(t), true
	case float64:
		return int64(t), true
	}
	return 0, false
}

// convertRealPart interprets a numeric array's real (or imaginary) part
// token. A raw miINT8 byte slice — shared wire type for both the int8 and
// uint8 classes — is reinterpreted signed or unsigned according to class;
// any other width arrives already decoded by the parser as a scalar or
// []interface{}, and limit has already been applied there.
func convertRealPart(v interface{}, class Class, limit int) []interface{} {
	switch t := v.(type) {
	case []byte:
		n := len(t)
		if limit != 0 && n > limit {
			n = limit
		}
		out := make([]interface{}, n)
		signed := class != ClassUInt8
		for i := 0; i < n; i++ {
			if signed {
				out[i] = int32(int8(t[i]))
			} else {
				out[i] = uint32(t[i])
			}
		}
		return out
	case []interface{}:
		return t
	case nil:
		return nil
	default:
		return []interface{}{t}
	}
}

// splitNames splits a null-padded, fixed-stride field-name table (as
// stored in a struct/object's field-name sub-element) into individual
// names, per original_source/MatReader.cpp's _split. A trailing remainder
// shorter than chunkLen is not a table entry and is ignored.
func splitNames(blob []byte, chunkLen int) []string {
	var names []string
	if chunkLen <= 0 {
		return names
	}
	for pos := 0; pos+chunkLen <= len(blob); pos += chunkLen {
		chunk := blob[pos : pos+chunkLen]
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			chunk = chunk[:i]
		}
		names = append(names, string(chunk))
	}
	return names
}
