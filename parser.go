package mat5

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// TokenType is the parser's output alphabet (spec.md §3).
type TokenType uint8

const (
	TokenNull TokenType = iota
	TokenValue
	TokenBeginMatrix
	TokenEndMatrix
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenNull:
		return "Null"
	case TokenValue:
		return "Value"
	case TokenBeginMatrix:
		return "BeginMatrix"
	case TokenEndMatrix:
		return "EndMatrix"
	case TokenError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Token is one unit of the parser's output stream.
//
// For TokenValue, Value is one of:
//   - a single scalar (uint8, int16, uint16, int32, uint32, float32,
//     float64, int64, or uint64) when the decoded sequence has length 1;
//   - a []interface{} of the same scalar kinds when length != 1;
//   - []byte for a miINT8 element (names and small integer arrays share
//     this wire type, and are preserved verbatim — not collapsed to a
//     scalar even when length 1, since callers distinguish "one byte" from
//     "the empty name" by slice identity, not scalar-ness);
//   - a string for miUTF8/miUTF16/miUTF32.
//
// For TokenError, Value is a short message string: "Lexer Error" for a
// truncated or malformed tag, "Invalid type" for an unknown wire type,
// "miCOMPRESSED" for nested compression, or the wire type name (e.g.
// "miUINT32") whose payload could not be decoded.
type Token struct {
	Type  TokenType
	Value interface{}
}

// Parser turns an element stream into a token stream, maintaining a stack
// of Lexers (one per currently-open matrix nesting level) and decoding
// primitive sub-streams into typed scalar sequences (spec.md §4.3).
type Parser struct {
	lexers []*Lexer
	peeked *Token
	limit  int
	logger Logger
}

// NewParser constructs a Parser with no device attached yet.
func NewParser(logger Logger) *Parser {
	if logger == nil {
		logger = DiscardLogger()
	}
	return &Parser{logger: logger}
}

// AttachSource attaches the root byte source, reading and validating the
// Level-5 header. own controls whether Close closes src.
func (p *Parser) AttachSource(src io.Reader, own bool) (*Header, error) {
	p.releaseAll()
	root := NewLexer(false, p.logger)
	h, err := root.AttachSource(src, own, true)
	if err != nil {
		return nil, err
	}
	p.lexers = append(p.lexers, root)
	return h, nil
}

// Limit returns the current per-primitive-array element cap (0 = unlimited).
func (p *Parser) Limit() int { return p.limit }

// SetLimit sets the per-primitive-array element cap.
func (p *Parser) SetLimit(n int) { p.limit = n }

// Close releases every Lexer on the stack.
func (p *Parser) Close() error {
	return p.releaseAll()
}

func (p *Parser) releaseAll() error {
	var err error
	for _, l := range p.lexers {
		if e := l.Release(); e != nil && err == nil {
			err = e
		}
	}
	p.lexers = nil
	return err
}

// rootByteSwap returns the byte-swap flag negotiated at the root header —
// the authority for every scalar read, regardless of nesting depth
// (spec.md Invariant 1; see SPEC_FULL.md §6.2).
func (p *Parser) rootByteSwap() bool {
	if len(p.lexers) == 0 {
		return false
	}
	return p.lexers[0].NeedsByteSwap()
}

// NextToken returns the next token in the stream.
func (p *Parser) NextToken() Token {
	if p.peeked != nil {
		t := *p.peeked
		p.peeked = nil
		return t
	}
	return p.advance()
}

// PeekToken returns the next token without consuming it; the following
// NextToken call returns the same token.
func (p *Parser) PeekToken() Token {
	if p.peeked == nil {
		t := p.advance()
		p.peeked = &t
	}
	return *p.peeked
}

// SkipLevel discards the remainder of the current nested matrix's element
// stream, used by the reader when a struct/cell's element count exceeds
// the configured limit.
func (p *Parser) SkipLevel() {
	if len(p.lexers) > 1 {
		top := p.lexers[len(p.lexers)-1]
		drainLexer(top)
	}
}

// drainLexer reads and discards every remaining element from l, the
// equivalent of MatLexer::readAll in original_source/MatLexer.cpp.
func drainLexer(l *Lexer) {
	for {
		e := l.NextElement()
		if e.End || e.Err != nil {
			return
		}
		if e.Stream != nil {
			io.Copy(io.Discard, e.Stream)
			e.Stream.Close()
		}
	}
}

func (p *Parser) advance() Token {
	if len(p.lexers) == 0 {
		return Token{Type: TokenNull}
	}
	top := p.lexers[len(p.lexers)-1]
	e := top.NextElement()

	if e.End {
		if len(p.lexers) > 1 {
			top.Release()
			p.lexers = p.lexers[:len(p.lexers)-1]
			return Token{Type: TokenEndMatrix}
		}
		return Token{Type: TokenNull}
	}
	if e.Err != nil {
		p.logger.Warn("mat5: lexer error", "err", e.Err)
		return Token{Type: TokenError, Value: "Lexer Error"}
	}

	switch e.Type {
	case Matrix:
		nested := NewLexer(p.rootByteSwap(), p.logger)
		nested.AttachFrame(e.Stream)
		p.lexers = append(p.lexers, nested)
		return Token{Type: TokenBeginMatrix}
	case Compressed:
		// The lexer unwraps every miCOMPRESSED element itself; seeing one
		// here means the file nests compression beneath compression,
		// which this codec does not support (spec.md §4.3).
		return Token{Type: TokenError, Value: "miCOMPRESSED"}
	default:
		return p.readValue(e.Stream, e.Type)
	}
}

func (p *Parser) readValue(f *frame, typ DataType) Token {
	swap := p.rootByteSwap()
	order := orderFor(swap)
	switch typ {
	case Int8:
		buf, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Token{Type: TokenError, Value: "miINT8"}
		}
		return Token{Type: TokenValue, Value: buf}
	case UInt8:
		return p.readFixed(f, 1, p.limit, func(b []byte) interface{} { return b[0] }, "miUINT8")
	case Int16:
		return p.readFixed(f, 2, p.limit, func(b []byte) interface{} { return int16(order.Uint16(b)) }, "miINT16")
	case UInt16:
		return p.readFixed(f, 2, p.limit, func(b []byte) interface{} { return order.Uint16(b) }, "miUINT16")
	case Int32:
		return p.readFixed(f, 4, p.limit, func(b []byte) interface{} { return int32(order.Uint32(b)) }, "miINT32")
	case UInt32:
		return p.readFixed(f, 4, p.limit, func(b []byte) interface{} { return order.Uint32(b) }, "miUINT32")
	case Single:
		return p.readFixed(f, 4, p.limit, func(b []byte) interface{} { return math.Float32frombits(order.Uint32(b)) }, "miSINGLE")
	case Double:
		return p.readFixed(f, 8, p.limit, func(b []byte) interface{} { return math.Float64frombits(order.Uint64(b)) }, "miDOUBLE")
	case Int64:
		return p.readFixed(f, 8, p.limit, func(b []byte) interface{} { return int64(order.Uint64(b)) }, "miINT64")
	case UInt64:
		return p.readFixed(f, 8, p.limit, func(b []byte) interface{} { return order.Uint64(b) }, "miUINT64")
	case UTF8:
		buf, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return Token{Type: TokenError, Value: "miUTF8"}
		}
		if !utf8.Valid(buf) {
			p.logger.Warn("mat5: invalid utf8 in element")
		}
		return Token{Type: TokenValue, Value: string(buf)}
	case UTF16:
		return p.readUTF16(f, order)
	case UTF32:
		return p.readUTF32(f, order)
	default:
		return Token{Type: TokenError, Value: "Invalid type"}
	}
}

// readFixed decodes a sequence of fixed-width scalars from f, honoring the
// parser's element limit: once reached, the remainder of f is drained
// (never returned), matching original_source/MatParser.cpp's `_read`.
// A single decoded scalar collapses to a bare value instead of a
// one-element slice (spec.md §3).
func (p *Parser) readFixed(f *frame, width, limit int, decode func([]byte) interface{}, name string) Token {
	buf := make([]byte, width)
	var vals []interface{}
	count := 0
	for {
		if limit != 0 && count >= limit {
			io.Copy(io.Discard, f)
			break
		}
		n, err := io.ReadFull(f, buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return Token{Type: TokenError, Value: name}
		}
		vals = append(vals, decode(buf))
		count++
	}
	f.Close()
	if len(vals) == 1 {
		return Token{Type: TokenValue, Value: vals[0]}
	}
	return Token{Type: TokenValue, Value: vals}
}

func (p *Parser) readUTF16(f *frame, order binary.ByteOrder) Token {
	buf := make([]byte, 2)
	var units []uint16
	for {
		n, err := io.ReadFull(f, buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return Token{Type: TokenError, Value: "miUTF16"}
		}
		units = append(units, order.Uint16(buf))
	}
	f.Close()
	return Token{Type: TokenValue, Value: string(utf16.Decode(units))}
}

func (p *Parser) readUTF32(f *frame, order binary.ByteOrder) Token {
	buf := make([]byte, 4)
	var runes []rune
	for {
		n, err := io.ReadFull(f, buf)
		if n == 0 && err == io.EOF {
			break
		}
		if err != nil {
			f.Close()
			return Token{Type: TokenError, Value: "miUTF32"}
		}
		runes = append(runes, rune(order.Uint32(buf)))
	}
	f.Close()
	return Token{Type: TokenValue, Value: string(runes)}
}
