package mat5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	kzlib "github.com/klauspost/compress/zlib"
)

// scratchBuf is the per-matrix-level staging area a Writer accumulates a
// matrix's bytes into before it knows the matrix's total length (needed for
// the tag that precedes it). memScratch backs ordinary matrices; fileScratch
// backs ones opened with the large flag, for callers writing arrays too big
// to comfortably hold twice in memory (once in the scratch buffer, once in
// the parent it gets copied into).
//
// original_source/MatWriter.cpp plays the same trick with a QBuffer or
// QTemporaryFile and an explicit seek-to-0-and-reread; Bytes() here plays
// the same role without exposing a Seek-based device API to the rest of the
// writer.
type scratchBuf interface {
	io.Writer
	Bytes() ([]byte, error)
	Close() error
}

type memScratch struct {
	buf bytes.Buffer
}

func (m *memScratch) Write(p []byte) (int, error) { return m.buf.Write(p) }
func (m *memScratch) Bytes() ([]byte, error) { return m.buf.Bytes(), nil }
func (m *memScratch) Close() error { return nil }

type fileScratch struct {
	f *os.File
}

func newFileScratch() (*fileScratch, error) {
	f, err := os.CreateTemp("", "mat5-*.scratch")
	if err != nil {
		return nil, fmt.Errorf("mat5: creating scratch file: %w", err)
	}
	return &fileScratch{f: f}, nil
}

func (s *fileScratch) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *fileScratch) Bytes() ([]byte, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(s.f)
}

func (s *fileScratch) Close() error {
	name := s.f.Name()
	s.f.Close()
	return os.Remove(name)
}

// level is one entry in the Writer's matrix nesting stack: level 0 is the
// attached sink itself, and every BeginMatrix call pushes a fresh scratch
// level that EndMatrix later drains into the level beneath it.
type level struct {
	root io.Writer  // set only for level 0
	out  scratchBuf // set for every level BeginMatrix pushed

	mxType    Class
	dims      []int32
	miType    DataType
	elemWidth int
	remaining int64 // elements (numeric array) or rows (structure) left to write
}

func (l *level) Write(p []byte) (int, error) {
	if l.out != nil {
		return l.out.Write(p)
	}
	return l.root.Write(p)
}

// Writer is the inverse of Reader: it builds a Level-5 MAT-file one matrix
// at a time, mirroring original_source/MatWriter.cpp's begin/add/end
// triplets for structures and numeric arrays, plus the cell-dispatch logic
// of writeCell (spec.md §4.5).
//
// A Writer is not safe for concurrent use.
type Writer struct {
	levels     []*level
	closer     io.Closer
	compressor func(w io.Writer) (io.WriteCloser, error)
	logger     Logger
}

// NewWriter constructs a Writer with no sink attached yet. The default
// compressor is klauspost/compress/zlib at its default level, a drop-in for
// the original's QtIOCompressor-wrapped deflate stream.
func NewWriter(logger Logger) *Writer {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Writer{
		logger: logger,
		compressor: func(w io.Writer) (io.WriteCloser, error) {
			return kzlib.NewWriter(w), nil
		},
	}
}

// SetCompressor overrides the compressor used by a compress=true EndMatrix
// (and its EndStructure/EndNumArray wrappers), e.g. to pick a different
// compression level via kzlib.NewWriterLevel.
func (w *Writer) SetCompressor(fn func(io.Writer) (io.WriteCloser, error)) {
	w.compressor = fn
}

// AttachSink attaches the root output device. own controls whether Close
// closes sink. If writeHeader is true, the 128-byte Level-5 prologue is
// written immediately.
func (w *Writer) AttachSink(sink io.Writer, own, writeHeader bool) error {
	if err := w.release(); err != nil {
		return err
	}
	w.levels = append(w.levels, &level{root: sink})
	if c, ok := sink.(io.Closer); ok && own {
		w.closer = c
	}
	if writeHeader {
		return w.writeHeader()
	}
	return nil
}

// Close releases every open scratch level and closes the sink if this
// Writer owns it.
func (w *Writer) Close() error {
	return w.release()
}

func (w *Writer) release() error {
	var err error
	for i, l := range w.levels {
		if i == 0 || l.out == nil {
			continue
		}
		if cerr := l.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
		w.closer = nil
	}
	w.levels = nil
	return err
}

func (w *Writer) top() *level {
	return w.levels[len(w.levels)-1]
}

// writeHeader writes the MATLAB 5.0 MAT-file description, a zeroed
// subsystem-data-offset field, and the version/endian marker. This codec
// always writes little-endian files and marks them as such with the "IM"
// flag bytes (see the comment on the byte-order switch in lexer.go's
// readFileHeader), rather than reproducing the original's
// host-order-dependent platform string and flag write.
func (w *Writer) writeHeader() error {
	root := w.levels[0]
	text := fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: %s, Created on: %s",
		runtime.GOOS, time.Now().Format("Mon Jan 2 15:04:05 2006"))
	buf := []byte(text)
	if len(buf) > headerTextLen {
		buf = buf[:headerTextLen]
	}
	if _, err := root.Write(buf); err != nil {
		return err
	}
	if _, err := root.Write(make([]byte, headerTextLen-len(buf))); err != nil {
		return err
	}
	if _, err := root.Write(make([]byte, headerSubsysLen)); err != nil {
		return err
	}
	if err := binary.Write(root, binary.LittleEndian, uint16(headerVersionWord)); err != nil {
		return err
	}
	_, err := root.Write([]byte{'I', 'M'})
	return err
}

// BeginMatrix opens a new nested matrix level, staging its bytes in memory
// (large=false) or in a temporary file (large=true) until the matching
// EndMatrix knows the matrix's total length.
func (w *Writer) BeginMatrix(large bool) error {
	if len(w.levels) == 0 {
		return fmt.Errorf("mat5: BeginMatrix: no sink attached")
	}
	var sb scratchBuf
	if large {
		fs, err := newFileScratch()
		if err != nil {
			return err
		}
		sb = fs
	} else {
		sb = &memScratch{}
	}
	w.levels = append(w.levels, &level{out: sb})
	return nil
}

// EndMatrix closes the current matrix level, wrapping its bytes in a
// miMATRIX tag (or a miCOMPRESSED-wrapped miMATRIX, if compress is true)
// and copying the result into the enclosing level.
func (w *Writer) EndMatrix(compress bool) error {
	if len(w.levels) < 2 {
		return fmt.Errorf("mat5: EndMatrix: no matching BeginMatrix")
	}
	top := w.levels[len(w.levels)-1]
	parent := w.levels[len(w.levels)-2]
	payload, err := top.out.Bytes()
	if err != nil {
		return err
	}
	if cerr := top.out.Close(); cerr != nil {
		w.logger.Warn("mat5: closing scratch buffer", "err", cerr)
	}
	w.levels = w.levels[:len(w.levels)-1]

	if compress {
		return w.writeCompressedMatrix(parent, payload)
	}
	if err := writeTag(parent, Matrix, uint32(len(payload))); err != nil {
		return err
	}
	if _, err := parent.Write(payload); err != nil {
		return err
	}
	return writePadding(parent, len(payload))
}

func (w *Writer) writeCompressedMatrix(parent io.Writer, payload []byte) error {
	var inner bytes.Buffer
	if err := writeTag(&inner, Matrix, uint32(len(payload))); err != nil {
		return err
	}
	inner.Write(payload)
	if err := writePadding(&inner, len(payload)); err != nil {
		return err
	}

	var compressed bytes.Buffer
	zw, err := w.compressor(&compressed)
	if err != nil {
		return fmt.Errorf("mat5: opening compressor: %w", err)
	}
	if _, err := zw.Write(inner.Bytes()); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	if err := writeTag(parent, Compressed, uint32(compressed.Len())); err != nil {
		return err
	}
	_, err = parent.Write(compressed.Bytes())
	return err
}

// BeginStructure opens a struct matrix of rowCount rows, each expected to
// supply exactly len(fieldNames) values via AddStructureRow, in field
// order.
func (w *Writer) BeginStructure(fieldNames []string, rowCount int, large bool, name string) error {
	if len(fieldNames) == 0 || rowCount < 1 {
		return fmt.Errorf("mat5: BeginStructure: need at least one field and one row")
	}
	if err := w.BeginMatrix(large); err != nil {
		return err
	}
	lvl := w.top()
	lvl.mxType = ClassStruct
	lvl.dims = []int32{int32(rowCount), int32(len(fieldNames))}
	lvl.remaining = int64(rowCount)

	if err := writeArrayFlags(lvl, ClassStruct); err != nil {
		return err
	}
	if err := writeArrayDims(lvl, []int32{int32(rowCount), 1}); err != nil {
		return err
	}
	if err := writeArrayName(lvl, name); err != nil {
		return err
	}

	nameLen := 0
	for _, n := range fieldNames {
		if len(n) > nameLen {
			nameLen = len(n)
		}
	}
	if nameLen > 31 {
		nameLen = 31
	}
	nameLen++
	names := make([]byte, 0, nameLen*len(fieldNames))
	for _, n := range fieldNames {
		trimmed := n
		if len(trimmed) > 31 {
			trimmed = trimmed[:31]
		}
		names = append(names, trimmed...)
		names = append(names, make([]byte, nameLen-len(trimmed))...)
	}
	if err := writeTag(lvl, Int32, 4); err != nil {
		return err
	}
	if err := binary.Write(lvl, binary.LittleEndian, int32(nameLen)); err != nil {
		return err
	}
	return writeDataElement(lvl, Int8, names)
}

// AddStructureRow writes one row of field values, in the field order
// BeginStructure was given.
func (w *Writer) AddStructureRow(values []interface{}) error {
	lvl := w.top()
	if lvl.mxType != ClassStruct || len(lvl.dims) < 2 {
		return fmt.Errorf("mat5: AddStructureRow: no open structure")
	}
	if int32(len(values)) != lvl.dims[1] {
		return fmt.Errorf("mat5: AddStructureRow: got %d values, want %d", len(values), lvl.dims[1])
	}
	if lvl.remaining <= 0 {
		return fmt.Errorf("mat5: AddStructureRow: too many rows written")
	}
	for _, v := range values {
		if err := w.WriteCell(v, ""); err != nil {
			return err
		}
	}
	lvl.remaining--
	return nil
}

// EndStructure closes a struct matrix opened with BeginStructure. It is an
// error to call it before every row has been written.
func (w *Writer) EndStructure(compress bool) error {
	lvl := w.top()
	if lvl.mxType != ClassStruct {
		return fmt.Errorf("mat5: EndStructure: no open structure")
	}
	if lvl.remaining > 0 {
		return fmt.Errorf("mat5: EndStructure: %d rows not yet written", lvl.remaining)
	}
	return w.EndMatrix(compress)
}

// BeginNumArray opens a numeric matrix of the given class and dimensions,
// expecting exactly dimsProduct(dims) scalars (or an equivalent []byte, for
// class ClassUInt8) via AddNumArrayElement.
func (w *Writer) BeginNumArray(dims []int32, class Class, large bool, name string) error {
	if !class.IsNumeric() {
		return fmt.Errorf("mat5: BeginNumArray: class %s is not numeric", class)
	}
	miType, width, err := wireTypeFor(class)
	if err != nil {
		return err
	}
	if err := w.BeginMatrix(large); err != nil {
		return err
	}
	lvl := w.top()
	lvl.mxType = class
	lvl.dims = append([]int32(nil), dims...)
	lvl.miType = miType
	lvl.elemWidth = width
	lvl.remaining = dimsProduct(dims)

	if err := writeArrayFlags(lvl, class); err != nil {
		return err
	}
	if err := writeArrayDims(lvl, dims); err != nil {
		return err
	}
	if err := writeArrayName(lvl, name); err != nil {
		return err
	}
	return writeTag(lvl, miType, uint32(lvl.remaining)*uint32(width))
}

// AddNumArrayElement writes one or more scalars of the array's declared
// class: a single scalar, a []interface{} of scalars, or (for a
// ClassUInt8 array only) a raw []byte.
func (w *Writer) AddNumArrayElement(v interface{}) error {
	lvl := w.top()
	if !lvl.mxType.IsNumeric() {
		return fmt.Errorf("mat5: AddNumArrayElement: no open numeric array")
	}
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if err := w.writeNumScalar(lvl, e); err != nil {
				return err
			}
		}
		lvl.remaining -= int64(len(t))
	case []byte:
		if lvl.mxType != ClassUInt8 {
			return fmt.Errorf("mat5: AddNumArrayElement: cannot add byte data to %s array", lvl.mxType)
		}
		if _, err := lvl.Write(t); err != nil {
			return err
		}
		lvl.remaining -= int64(len(t))
	default:
		if err := w.writeNumScalar(lvl, v); err != nil {
			return err
		}
		lvl.remaining--
	}
	return nil
}

func (w *Writer) writeNumScalar(lvl *level, v interface{}) error {
	ok := false
	switch lvl.mxType {
	case ClassDouble:
		_, ok = v.(float64)
	case ClassSingle:
		_, ok = v.(float32)
	case ClassInt8:
		_, ok = v.(int8)
	case ClassUInt8:
		_, ok = v.(uint8)
	case ClassInt16:
		_, ok = v.(int16)
	case ClassUInt16:
		_, ok = v.(uint16)
	case ClassInt32:
		_, ok = v.(int32)
	case ClassUInt32:
		_, ok = v.(uint32)
	case ClassInt64:
		_, ok = v.(int64)
	case ClassUInt64:
		_, ok = v.(uint64)
	}
	if !ok {
		return fmt.Errorf("mat5: incompatible element type %T for %s array", v, lvl.mxType)
	}
	return binary.Write(lvl, binary.LittleEndian, v)
}

// EndNumArray closes a numeric matrix opened with BeginNumArray. It is an
// error to call it before every element has been written.
func (w *Writer) EndNumArray(compress bool) error {
	lvl := w.top()
	if !lvl.mxType.IsNumeric() {
		return fmt.Errorf("mat5: EndNumArray: no open numeric array")
	}
	if lvl.remaining > 0 {
		return fmt.Errorf("mat5: EndNumArray: %d elements not yet written", lvl.remaining)
	}
	total := int(dimsProduct(lvl.dims)) * lvl.elemWidth
	if err := writePadding(lvl, total); err != nil {
		return err
	}
	return w.EndMatrix(compress)
}

// AddCharArray writes a complete 1xN char matrix in one call.
func (w *Writer) AddCharArray(text, name string) error {
	if err := w.BeginMatrix(false); err != nil {
		return err
	}
	lvl := w.top()
	runes := []rune(text)
	if err := writeArrayFlags(lvl, ClassChar); err != nil {
		return err
	}
	if err := writeArrayDims(lvl, []int32{1, int32(len(runes))}); err != nil {
		return err
	}
	if err := writeArrayName(lvl, name); err != nil {
		return err
	}
	if err := writeDataElement(lvl, UTF8, []byte(text)); err != nil {
		return err
	}
	return w.EndMatrix(false)
}

// WriteCell writes a single value as a complete 1x1 (or 1xN, for strings
// and byte slices) matrix, dispatching on val's Go type the way
// original_source/MatWriter.cpp's writeCell dispatches on QVariant::Type.
// Cell arrays of cells, objects, and sparse matrices are not supported, matching
// spec.md's Non-goals.
func (w *Writer) WriteCell(val interface{}, name string) error {
	switch t := val.(type) {
	case string:
		return w.AddCharArray(t, name)
	case []byte:
		if err := w.BeginNumArray([]int32{1, int32(len(t))}, ClassUInt8, false, name); err != nil {
			return err
		}
		if err := w.AddNumArrayElement(t); err != nil {
			return err
		}
		return w.EndNumArray(false)
	case []interface{}:
		if len(t) == 0 {
			return fmt.Errorf("mat5: WriteCell: empty lists not supported")
		}
		class, ok := classOfScalar(t[0])
		if !ok {
			return fmt.Errorf("mat5: WriteCell: cell arrays not yet supported")
		}
		for _, e := range t[1:] {
			c2, ok2 := classOfScalar(e)
			if !ok2 || c2 != class {
				return fmt.Errorf("mat5: WriteCell: cell arrays not yet supported")
			}
		}
		if err := w.BeginNumArray([]int32{int32(len(t)), 1}, class, false, name); err != nil {
			return err
		}
		if err := w.AddNumArrayElement(t); err != nil {
			return err
		}
		return w.EndNumArray(false)
	default:
		class, ok := classOfScalar(val)
		if !ok {
			return fmt.Errorf("mat5: WriteCell: value type %T not yet supported", val)
		}
		if err := w.BeginNumArray([]int32{1, 1}, class, false, name); err != nil {
			return err
		}
		if err := w.AddNumArrayElement(val); err != nil {
			return err
		}
		return w.EndNumArray(false)
	}
}

func classOfScalar(v interface{}) (Class, bool) {
	switch v.(type) {
	case float64:
		return ClassDouble, true
	case float32:
		return ClassSingle, true
	case int8:
		return ClassInt8, true
	case uint8:
		return ClassUInt8, true
	case int16:
		return ClassInt16, true
	case uint16:
		return ClassUInt16, true
	case int32:
		return ClassInt32, true
	case uint32:
		return ClassUInt32, true
	case int64:
		return ClassInt64, true
	case uint64:
		return ClassUInt64, true
	}
	return ClassUnknown, false
}

func writeTag(w io.Writer, miType DataType, byteLen uint32) error {
	if byteLen <= smallElementMaxLen {
		val := uint32(miType) | (byteLen << 16)
		return binary.Write(w, binary.LittleEndian, val)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(miType)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, byteLen)
}

func writePadding(w io.Writer, length int) error {
	var padding int
	if length <= smallElementMaxLen {
		padding = smallElementAligned - length
	} else {
		padding = (normalAlignment - length%normalAlignment) % normalAlignment
	}
	if padding <= 0 {
		return nil
	}
	_, err := w.Write(make([]byte, padding))
	return err
}

func writeDataElement(w io.Writer, miType DataType, data []byte) error {
	if err := writeTag(w, miType, uint32(len(data))); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return writePadding(w, len(data))
}

func writeArrayFlags(w io.Writer, class Class) error {
	if err := writeTag(w, UInt32, 8); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(class)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(0))
}

func writeArrayDims(w io.Writer, dims []int32) error {
	buf := make([]byte, 4*len(dims))
	for i, d := range dims {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(d))
	}
	return writeDataElement(w, Int32, buf)
}

func writeArrayName(w io.Writer, name string) error {
	return writeDataElement(w, Int8, []byte(name))
}
