package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
)

const (
	// DefaultMaxContentBytes is the hard ceiling on the text analyzed per file.
	DefaultMaxContentBytes = 5 * 1024 * 1024
	// DefaultChunkSize is the size of a single read.
	DefaultChunkSize = 64 * 1024
)

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var ErrContentTooLarge = errors.New("content exceeds byte ceiling")

// ReadOptions bounds a content read.
type ReadOptions struct {
	MaxBytes  int
	ChunkSize int
	// Strict fails with ErrContentTooLarge instead of truncating.
	Strict bool
}

func (o ReadOptions) withDefaults() ReadOptions {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxContentBytes
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkSize > o.MaxBytes {
		o.ChunkSize = o.MaxBytes
	}
	return o
}

// ReadContent reads at most MaxBytes of text from r in ChunkSize pieces.
// zstd-compressed input is decompressed on the fly and the ceiling applies
// to the decompressed text. The second result reports whether the text was
// cut; a cut never splits a UTF-8 sequence.
func ReadContent(r io.Reader, opts ReadOptions) (string, bool, error) {
	opts = opts.withDefaults()

	br := bufio.NewReaderSize(r, opts.ChunkSize)
	var src io.Reader = br
	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return "", false, fmt.Errorf("open zstd stream: %w", err)
		}
		defer dec.Close()
		src = dec
	}

	// one byte past the ceiling tells a full read from a cut one
	limited := io.LimitReader(src, int64(opts.MaxBytes)+1)
	buf := make([]byte, 0, min(opts.MaxBytes+1, 4*opts.ChunkSize))
	chunk := make([]byte, opts.ChunkSize)
	for {
		n, err := limited.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", false, fmt.Errorf("read content: %w", err)
		}
	}

	if len(buf) <= opts.MaxBytes {
		return string(buf), false, nil
	}
	if opts.Strict {
		return "", true, ErrContentTooLarge
	}
	return string(trimPartialRune(buf[:opts.MaxBytes])), true, nil
}

// ReadFile opens path and reads it with ReadContent.
func ReadFile(path string, opts ReadOptions) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	return ReadContent(f, opts)
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return b
		}
		return b[:len(b)-i]
	}
	return b
}
