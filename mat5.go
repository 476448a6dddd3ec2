package mat5

import (
	"fmt"
	"io"
)

// File ties a Lexer, Parser and Reader together into the read side of
// spec.md §2's top-level surface: open a source once, then either stream
// top-level elements one at a time or read every variable up front and
// look them up by name, mirroring the teacher's own File/readAll/GetVar
// trio in matlab.go.
type File struct {
	Header *Header

	parser *Parser
	reader *Reader
	logger Logger

	hasReadAll bool
	vars       map[string]interface{}
	order      []string
}

// Open constructs a File from r and reads its 128-byte header. own
// controls whether Close closes r.
func Open(r io.Reader, own bool, logger Logger) (*File, error) {
	if logger == nil {
		logger = DiscardLogger()
	}
	p := NewParser(logger)
	h, err := p.AttachSource(r, own)
	if err != nil {
		return nil, err
	}
	f := &File{
		Header: h,
		parser: p,
		reader: NewReader(p, logger),
		logger: logger,
		vars:   map[string]interface{}{},
	}
	return f, nil
}

// SetLimit sets the per-primitive-array element cap used by every
// subsequent read (0 = unlimited). It has no effect on variables already
// read into f.vars by ReadAll.
func (f *File) SetLimit(n int) { f.parser.SetLimit(n) }

// Close releases the underlying Parser (and, if this File owns it, the
// original byte source).
func (f *File) Close() error {
	return f.parser.Close()
}

// Next reads and returns the next top-level element without caching it,
// for callers that want to stream a large file rather than materialize
// every variable at once. It returns nil, io.EOF once the stream is
// exhausted, or nil and a non-nil error naming a malformed element
// (a message from reader.go, or a parser token error from parser.go).
func (f *File) Next() (interface{}, error) {
	v := f.reader.NextElement()
	if f.reader.HasError() {
		return nil, fmt.Errorf("mat5: %s", f.reader.GetError())
	}
	if v == nil {
		return nil, io.EOF
	}
	return v, nil
}

// ReadAll reads every remaining top-level variable into memory, indexed by
// name. It is idempotent: calling it again after it has already succeeded
// is a no-op, matching matlab.go's hasReadAll guard.
func (f *File) ReadAll() error {
	if f.hasReadAll {
		return nil
	}
	for {
		v, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := nameOf(v)
		if _, dup := f.vars[name]; !dup {
			f.order = append(f.order, name)
		}
		f.vars[name] = v
	}
	f.hasReadAll = true
	return nil
}

// GetVar returns the named top-level variable and whether it was found.
// It implicitly calls ReadAll on first use.
func (f *File) GetVar(name string) (interface{}, bool) {
	if !f.hasReadAll {
		f.ReadAll()
	}
	v, ok := f.vars[name]
	return v, ok
}

// GetVarNames returns every top-level variable name, in file order. It
// implicitly calls ReadAll on first use.
func (f *File) GetVarNames() []string {
	if !f.hasReadAll {
		f.ReadAll()
	}
	return append([]string(nil), f.order...)
}

// nameOf extracts the Name field from whichever value type NextElement
// produced; bare scalars (a matrix-less top-level element) have no name.
func nameOf(v interface{}) string {
	switch t := v.(type) {
	case *NumericArray:
		return t.Name
	case *String:
		return t.Name
	case *Structure:
		return t.Name
	case *CellArray:
		return t.Name
	case *SparseArray:
		return t.Name
	case *Undocumented:
		return t.Name
	default:
		return ""
	}
}

// Create constructs a File-shaped Writer over w and writes the 128-byte
// header immediately. own controls whether Close closes w.
func Create(w io.Writer, own bool, logger Logger) (*Writer, error) {
	wr := NewWriter(logger)
	if err := wr.AttachSink(w, own, true); err != nil {
		return nil, err
	}
	return wr, nil
}
