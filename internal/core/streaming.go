package core

// streaming.go turns an uploaded byte stream into parser input.
//
// Exports from the source system arrive in a few shapes:
//   - UTF-8 with a BOM, as written by Excel on Windows
//   - Windows-1251, as written by older Cyrillic desktop tools
//   - Binary spreadsheets that were renamed or accepted by extension only
//
// ReadText normalizes the first two to a UTF-8 string and rejects the third.

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrBinarySpreadsheet is returned for .xls/.xlsx content, which the
	// parser cannot read.
	ErrBinarySpreadsheet = errors.New("binary spreadsheet content is not supported, export as CSV")

	// ErrInputTooLarge is returned when the stream exceeds the read limit.
	ErrInputTooLarge = errors.New("input exceeds maximum size")
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte{'P', 'K', 0x03, 0x04}             // xlsx
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1} // xls
)

// TextOptions configures ReadText.
type TextOptions struct {
	// MaxBytes bounds the bytes read; 0 means MaxImportBytes.
	MaxBytes int64

	// Total is the expected size for progress reporting, 0 if unknown.
	Total int64

	// Fallback decodes input that is not valid UTF-8. Nil means Windows-1251.
	Fallback encoding.Encoding

	// OnProgress is called after each read with the bytes consumed so far.
	OnProgress func(read, total int64)
}

// ReadText reads an import stream into a UTF-8 string.
func ReadText(r io.Reader, opts TextOptions) (string, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = MaxImportBytes
	}

	counter := NewCountingReader(io.LimitReader(r, limit+1), opts.Total)
	counter.OnRead = opts.OnProgress

	data, err := io.ReadAll(counter)
	if err != nil {
		return "", fmt.Errorf("read import: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w (%d bytes)", ErrInputTooLarge, limit)
	}

	if bytes.HasPrefix(data, zipMagic) || bytes.HasPrefix(data, oleMagic) {
		return "", ErrBinarySpreadsheet
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return string(data), nil
	}

	fallback := opts.Fallback
	if fallback == nil {
		fallback = charmap.Windows1251
	}
	decoded, err := fallback.NewDecoder().Bytes(data)
	if err != nil {
		// Not decodable either; keep what is valid.
		return string(bytes.ToValidUTF8(data, []byte("�"))), nil
	}
	return string(decoded), nil
}

// CountingReader tracks bytes read for progress reporting.
type CountingReader struct {
	reader io.Reader
	read   atomic.Int64
	Total  int64 // 0 if unknown

	OnRead func(read, total int64)
}

// NewCountingReader wraps r with an optional expected total.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	if n > 0 {
		read := c.read.Add(int64(n))
		if c.OnRead != nil {
			c.OnRead(read, c.Total)
		}
	}
	return n, err
}

// BytesRead returns the bytes consumed so far.
func (c *CountingReader) BytesRead() int64 {
	return c.read.Load()
}

// Progress returns the read progress as a percentage (0-100), or 0 when the
// total is unknown.
func (c *CountingReader) Progress() int {
	if c.Total <= 0 {
		return 0
	}
	p := int(c.read.Load() * 100 / c.Total)
	if p > 100 {
		p = 100
	}
	return p
}
