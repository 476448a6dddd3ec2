package mat5

import (
	"fmt"
	"io"

	kzlib "github.com/klauspost/compress/zlib"
)

// frame wraps an underlying byte source as a length-bounded, padding-eating
// sub-stream, optionally layering a streaming zlib decompressor beneath it
// for compressed elements. It implements spec.md §4.1 (Framed Input
// Stream) and corresponds to original_source/MatLexer.h's InStream.
//
// A frame is sequential and non-seekable: consumers must treat it as a
// plain io.Reader and read it to completion (or Close it early, which for
// an uncompressed frame drains and discards the remainder and logs a
// diagnostic if any bytes were left unread).
type frame struct {
	in         io.Reader // the reader this frame pulls bytes from
	remaining  uint32    // L: payload bytes not yet delivered to the caller
	padding    uint32    // P: trailing zero-padding bytes not yet consumed
	compressed bool
	zr         io.ReadCloser // non-nil once the zlib decompressor has been opened
	logger     Logger
	closed     bool
}

// newFrame constructs a frame of exactly `length` payload bytes followed by
// `padding` bytes, reading from in. If compressed is true, in is treated as
// a raw zlib stream of unknown decompressed length; length bounds the
// *compressed* bytes consumed from the parent, and padding is ignored (a
// compressed element carries no trailing padding — spec.md Invariant 3).
func newFrame(in io.Reader, length, padding uint32, compressed bool, logger Logger) *frame {
	if logger == nil {
		logger = DiscardLogger()
	}
	f := &frame{in: in, remaining: length, padding: padding, compressed: compressed, logger: logger}
	if compressed {
		// The compressed payload itself is bounded to `length` bytes from
		// the parent; the decompressor reads through that bound lazily.
		f.zr = nil // opened lazily on first Read, see openZlib.
	}
	return f
}

// openZlib lazily wraps the bounded compressed byte range in a zlib reader.
// Lazy construction matters because zlib.NewReader reads the 2-byte header
// eagerly; doing that at frame-construction time instead of first-Read time
// would not change correctness here, but keeping it lazy matches the
// pull-based, nothing-happens-until-asked discipline the rest of the codec
// follows.
func (f *frame) openZlib() error {
	if f.zr != nil {
		return nil
	}
	bounded := io.LimitReader(f.in, int64(f.remaining))
	zr, err := kzlib.NewReader(bounded)
	if err != nil {
		return fmt.Errorf("mat5: opening compressed element: %w", err)
	}
	f.zr = zr
	return nil
}

// BytesAvailable reports the number of payload bytes not yet delivered.
// For a compressed frame this is necessarily approximate (the decompressor
// does not know its own remaining output length ahead of time), so it
// always reports 0 — callers must rely on EOF, not this
// count, to know when a compressed frame is exhausted.
func (f *frame) BytesAvailable() uint32 {
	if f.compressed {
		return 0
	}
	return f.remaining
}

// UnreadBytes reports payload+padding bytes this frame has not yet
// delivered or consumed. A non-zero value after the frame's owner is done
// with it indicates the caller stopped reading early.
func (f *frame) UnreadBytes() uint32 {
	if f.compressed {
		return 0
	}
	return f.remaining + f.padding
}

// Read implements io.Reader.
func (f *frame) Read(p []byte) (int, error) {
	if f.compressed {
		if err := f.openZlib(); err != nil {
			return 0, err
		}
		return f.zr.Read(p)
	}
	if f.remaining == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if uint32(n) > f.remaining {
		n = int(f.remaining)
	}
	read, err := f.in.Read(p[:n])
	f.remaining -= uint32(read)
	if f.remaining == 0 && err == nil {
		if eatErr := f.eatPadding(); eatErr != nil {
			return read, eatErr
		}
	}
	return read, err
}

// eatPadding silently consumes and discards the trailing padding bytes once
// the payload has been fully delivered. Non-zero padding content is a
// warning, not an error (spec.md Design Note: padding diagnostics).
func (f *frame) eatPadding() error {
	if f.padding == 0 {
		return nil
	}
	buf := make([]byte, f.padding)
	n, err := io.ReadFull(f.in, buf)
	f.padding = 0
	if n > 0 {
		for _, b := range buf[:n] {
			if b != 0 {
				f.logger.Warn("mat5: non-zero padding byte", "value", b)
				break
			}
		}
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	return nil
}

// Close drains and discards any unread payload/padding, warning if there
// was anything beyond what a clean consumer would have left (i.e. any
// unread bytes at all — this mirrors InStream::~InStream's unconditional
// "deleted with N bytes unread" diagnostic). A compressed frame's Close
// only closes the decompressor: compressed bytes not yet read are left
// unread in the parent source, and no diagnostic is logged.
func (f *frame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.compressed {
		if f.zr != nil {
			return f.zr.Close()
		}
		return nil
	}
	unread := f.remaining + f.padding
	if unread > 0 {
		f.logger.Warn("mat5: frame closed with unread bytes", "unread", unread)
		buf := make([]byte, 4096)
		for f.remaining+f.padding > 0 {
			n, err := f.Read(buf)
			if n == 0 || err != nil {
				break
			}
		}
	}
	return nil
}
