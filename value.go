package mat5

// Attrs holds the attributes every semantic value carries in common:
// name, the logical/global/complex flags, and whether the value was
// successfully parsed (spec.md §3).
//
// The Reader sets Valid on every value it builds. The tolerated empty
// result for an EndMatrix where array flags were expected (spec.md §4.4
// step 1) — a real-world encoder quirk, not an error — is a nil value,
// not a value with Valid == false.
type Attrs struct {
	Name    string
	Logical bool
	Global  bool
	Complex bool
	Valid   bool
}

// NumericArray is a numeric (double/single/intN/uintN) matrix.
type NumericArray struct {
	Attrs
	Class Class
	Dims  []int32
	Real  []interface{}
	// Imag is non-nil only when Attrs.Complex is set.
	Imag []interface{}
}

// totalCount returns the product of Dims, matching MATLAB's
// row-major-is-not-the-point column ordering used throughout indexing.
func (n *NumericArray) totalCount() int64 {
	return dimsProduct(n.Dims)
}

func dimsProduct(dims []int32) int64 {
	var total int64 = 1
	for _, d := range dims {
		total *= int64(d)
	}
	return total
}

// GetReal returns the i'th element of Real, or nil if i is out of range.
func (n *NumericArray) GetReal(i int) interface{} {
	if i < 0 || i >= len(n.Real) {
		return nil
	}
	return n.Real[i]
}

// GetReal2D returns the element at (row, col) of a 2-D array using
// MATLAB's column-major layout: index = row + col*dims[0].
func (n *NumericArray) GetReal2D(row, col int) interface{} {
	if len(n.Dims) != 2 {
		return nil
	}
	return n.GetReal(row + col*int(n.Dims[0]))
}

// GetReal3D returns the element at (row, col, z) of a 2-D or 3-D array,
// following original_source/MatReader.cpp's NumericArray::getReal(row,col,z).
func (n *NumericArray) GetReal3D(row, col, z int) interface{} {
	if len(n.Dims) == 2 {
		if z == 0 {
			return n.GetReal2D(row, col)
		}
		return nil
	}
	if len(n.Dims) != 3 {
		return nil
	}
	idx := int(n.Dims[0])*int(n.Dims[1])*z + col*int(n.Dims[0]) + row
	return n.GetReal(idx)
}

// IntSlice returns Real reinterpreted as int64, for the eight
// signed/unsigned integer classes; Imag is not included. It panics if an
// element of Real is not an integer — callers that don't know the class
// ahead of time should switch on Class themselves.
func (n *NumericArray) IntSlice() []int64 {
	out := make([]int64, 0, len(n.Real))
	for _, v := range n.Real {
		switch e := v.(type) {
		case int8:
			out = append(out, int64(e))
		case uint8:
			out = append(out, int64(e))
		case int16:
			out = append(out, int64(e))
		case uint16:
			out = append(out, int64(e))
		case int32:
			out = append(out, int64(e))
		case uint32:
			out = append(out, int64(e))
		case int64:
			out = append(out, e)
		case uint64:
			out = append(out, int64(e))
		default:
			panic("mat5: NumericArray.IntSlice: non-integer element")
		}
	}
	return out
}

// FloatSlice returns Real reinterpreted as float64, for Double/Single.
func (n *NumericArray) FloatSlice() []float64 {
	out := make([]float64, 0, len(n.Real))
	for _, v := range n.Real {
		switch e := v.(type) {
		case float64:
			out = append(out, e)
		case float32:
			out = append(out, float64(e))
		default:
			panic("mat5: NumericArray.FloatSlice: non-float element")
		}
	}
	return out
}

// String is a character-array matrix (MATLAB char / string type).
type String struct {
	Attrs
	Text string
}

// Structure is a (possibly 1x1) table of named fields. A Structure whose
// ClassName is non-empty is an Object (spec.md §3); Object is not a
// distinct Go type, matching original_source/MatReader.h folding Object
// into Structure via isObject().
type Structure struct {
	Attrs
	ClassName string
	Dims      []int32
	Fields    map[string][]interface{}
	// FieldOrder preserves the field declaration order, since Go map
	// iteration order is random and MATLAB field order is meaningful.
	FieldOrder []string
}

// IsObject reports whether this Structure is in fact an Object (a
// structure tagged with a class name).
func (s *Structure) IsObject() bool { return s.ClassName != "" }

// GetValue returns the first value of the named field, or nil.
func (s *Structure) GetValue(field string) interface{} {
	vs := s.Fields[field]
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// GetString returns the first value of the named field as a String's text,
// or the empty string if the field is absent or not a String.
func (s *Structure) GetString(field string) string {
	if str, ok := s.GetValue(field).(*String); ok {
		return str.Text
	}
	return ""
}

// GetStruct returns the first value of the named field as a *Structure, or
// nil if absent or of a different type.
func (s *Structure) GetStruct(field string) *Structure {
	v, _ := s.GetValue(field).(*Structure)
	return v
}

// GetArray returns the first value of the named field as a *NumericArray,
// or nil if absent or of a different type.
func (s *Structure) GetArray(field string) *NumericArray {
	v, _ := s.GetValue(field).(*NumericArray)
	return v
}

// GetArrayValue returns the i'th real element of the named field's first
// NumericArray value, or nil.
func (s *Structure) GetArrayValue(field string, i int) interface{} {
	a := s.GetArray(field)
	if a == nil {
		return nil
	}
	return a.GetReal(i)
}

// GetArrayLen returns len(Real) of the named field's first NumericArray
// value, or 0.
func (s *Structure) GetArrayLen(field string) int {
	a := s.GetArray(field)
	if a == nil {
		return 0
	}
	return len(a.Real)
}

// CellArray is a rectangular array of arbitrary nested values.
type CellArray struct {
	Attrs
	Dims  []int32
	Cells []interface{}
}

// GetValue returns the i'th cell, or nil if out of range.
func (c *CellArray) GetValue(i int) interface{} {
	if i < 0 || i >= len(c.Cells) {
		return nil
	}
	return c.Cells[i]
}

// GetValue2D returns the cell at (row, col) of a 2-D cell array using
// MATLAB's column-major layout.
func (c *CellArray) GetValue2D(row, col int) interface{} {
	if len(c.Dims) != 2 {
		return nil
	}
	return c.GetValue(row + col*int(c.Dims[0]))
}

// GetStruct2D returns the cell at (row, col) as a *Structure, or nil.
func (c *CellArray) GetStruct2D(row, col int) *Structure {
	v, _ := c.GetValue2D(row, col).(*Structure)
	return v
}

// GetString returns the i'th cell as a String's text, or "" if absent or
// of a different type.
func (c *CellArray) GetString(i int) string {
	if s, ok := c.GetValue(i).(*String); ok {
		return s.Text
	}
	return ""
}

// GetString2D returns the cell at (row, col) as a String's text, or "".
func (c *CellArray) GetString2D(row, col int) string {
	if len(c.Dims) != 2 {
		return ""
	}
	return c.GetString(row + col*int(c.Dims[0]))
}

// SparseArray records that a sparse matrix was present; its payload is
// parsed only enough to be skipped (spec.md Non-goals).
type SparseArray struct {
	Attrs
}

// Undocumented holds the empirically-reverse-engineered class-16/17
// matrices found in .fig files (spec.md §3).
type Undocumented struct {
	Attrs
	// Value is set only for class 17.
	Value interface{}
	Sub   interface{}
}
