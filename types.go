// Package mat5 reads and writes MATLAB Level-5 MAT-files: the binary
// container MATLAB uses for named, typed, possibly nested numeric arrays,
// strings, cell arrays, structures, objects and sparse arrays.
//
// The package is organized bottom-up, mirroring the wire format's own
// layering: stream.go frames a byte source into length-bounded,
// padding-eating (and optionally zlib-compressed) sub-streams; lexer.go
// turns those into a stream of tagged data elements; parser.go turns
// elements into a token stream; reader.go turns tokens into the semantic
// values in value.go; writer.go is the inverse of all four.
package mat5

import "fmt"

// DataType is a wire-level element type code (the "mi" constants in the
// MATLAB documentation). It is distinct from Class, which is the
// MATLAB-level semantic type of a matrix.
type DataType uint32

// Wire element type codes, as they appear in a normal or small-data-element
// tag.
const (
	DataTypeUnknown DataType = iota
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Single
	_ // 8: reserved
	Double
	_  // 10: reserved
	_  // 11: reserved
	Int64
	UInt64
	Matrix
	Compressed
	UTF8
	UTF16
	UTF32
)

// String implements fmt.Stringer.
func (d DataType) String() string {
	switch d {
	case Int8:
		return "miINT8"
	case UInt8:
		return "miUINT8"
	case Int16:
		return "miINT16"
	case UInt16:
		return "miUINT16"
	case Int32:
		return "miINT32"
	case UInt32:
		return "miUINT32"
	case Single:
		return "miSINGLE"
	case Double:
		return "miDOUBLE"
	case Int64:
		return "miINT64"
	case UInt64:
		return "miUINT64"
	case Matrix:
		return "miMATRIX"
	case Compressed:
		return "miCOMPRESSED"
	case UTF8:
		return "miUTF8"
	case UTF16:
		return "miUTF16"
	case UTF32:
		return "miUTF32"
	default:
		return fmt.Sprintf("miUNKNOWN(%d)", uint32(d))
	}
}

// NumBytes returns the fixed per-element byte width of a scalar wire type.
// It panics for the two variable-length sentinel types (Matrix, Compressed),
// which have no fixed width by construction.
func (d DataType) NumBytes() int {
	switch d {
	case Int8, UInt8, UTF8:
		return 1
	case Int16, UInt16, UTF16:
		return 2
	case Int32, UInt32, UTF32, Single:
		return 4
	case Double, Int64, UInt64:
		return 8
	}
	panic("mat5: NumBytes of variable-length type " + d.String())
}

// Valid reports whether d is one of the 1..18 wire type codes this codec
// understands.
func (d DataType) Valid() bool {
	return d >= Int8 && d <= UTF32 && d != 8 && d != 10 && d != 11
}

// Class is the MATLAB-level semantic type of a matrix (the "mx" constants).
type Class uint8

// Array classes, per the array-flags sub-element's low byte.
const (
	ClassUnknown Class = iota
	ClassCell
	ClassStruct
	ClassObject
	ClassChar
	ClassSparse
	ClassDouble
	ClassSingle
	ClassInt8
	ClassUInt8
	ClassInt16
	ClassUInt16
	ClassInt32
	ClassUInt32
	ClassInt64
	ClassUInt64
	// ClassUndocumented16 and ClassUndocumented17 are empirically observed
	// in .fig files; MATLAB does not document them. See DESIGN.md.
	ClassUndocumented16
	ClassUndocumented17
)

// String implements fmt.Stringer.
func (c Class) String() string {
	switch c {
	case ClassCell:
		return "cell"
	case ClassStruct:
		return "struct"
	case ClassObject:
		return "object"
	case ClassChar:
		return "char"
	case ClassSparse:
		return "sparse"
	case ClassDouble:
		return "double"
	case ClassSingle:
		return "single"
	case ClassInt8:
		return "int8"
	case ClassUInt8:
		return "uint8"
	case ClassInt16:
		return "int16"
	case ClassUInt16:
		return "uint16"
	case ClassInt32:
		return "int32"
	case ClassUInt32:
		return "uint32"
	case ClassInt64:
		return "int64"
	case ClassUInt64:
		return "uint64"
	case ClassUndocumented16:
		return "undocumented16"
	case ClassUndocumented17:
		return "undocumented17"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// IsNumeric reports whether c is one of the documented numeric classes
// (double, single, and the eight signed/unsigned integer widths).
func (c Class) IsNumeric() bool {
	return c >= ClassDouble && c <= ClassUInt64
}

// wireTypeFor maps a numeric Class to its wire DataType and per-element
// byte width, the inverse of what the reader uses to interpret a payload.
// This is the writer's "meta-type" lookup: a pure total function from
// enumerated scalar kinds to (wire type, class code, bytes-per-element),
// with no hidden global registry (spec.md Design Note).
func wireTypeFor(c Class) (DataType, int, error) {
	switch c {
	case ClassDouble:
		return Double, 8, nil
	case ClassSingle:
		return Single, 4, nil
	case ClassInt8:
		return Int8, 1, nil
	case ClassUInt8:
		return UInt8, 1, nil
	case ClassInt16:
		return Int16, 2, nil
	case ClassUInt16:
		return UInt16, 2, nil
	case ClassInt32:
		return Int32, 4, nil
	case ClassUInt32:
		return UInt32, 4, nil
	case ClassInt64:
		return Int64, 8, nil
	case ClassUInt64:
		return UInt64, 8, nil
	default:
		return DataTypeUnknown, 0, fmt.Errorf("mat5: class %s has no numeric wire type", c)
	}
}
