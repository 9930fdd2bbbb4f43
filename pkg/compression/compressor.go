// Package compression provides streaming codecs for message output and for
// downloaded bulk result files.
//
// # Overview
//
// The compression package provides:
//   - Multiple compression algorithms (Gzip, Zstd, LZ4, Snappy, S2)
//   - Configurable compression levels (Fastest, Default, Better, Best)
//   - Detection of the codec of a payload from its magic bytes
//
// # Basic Usage
//
//	// Compress a JSON lines stream
//	zw, err := compression.NewWriter(os.Stdout, compression.Zstd, compression.Default)
//	if err != nil {
//	    return err
//	}
//	defer zw.Close()
//
//	// Decompress whatever arrived
//	br := bufio.NewReader(body)
//	zr, err := compression.NewReader(br, compression.Detect(br))
//
// # Algorithm Selection
//
// Speed (fastest to slowest): LZ4 > Snappy/S2 > Zstd > Gzip.
// Compression ratio (best to worst): Zstd > Gzip > S2 > Snappy > LZ4.
package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Zstd, LZ4, Snappy, S2}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// ParseAlgorithm resolves a name, case-insensitively. The empty string is None.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return None, nil
	}
	for _, a := range Algorithms {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unsupported compression algorithm: %s", name)
}

// Extension returns the conventional file suffix of a, including the dot.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	case Snappy:
		return ".sz"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// NewWriter wraps w so that everything written is compressed with alg.
// Close flushes the codec but never closes w.
func NewWriter(w io.Writer, alg Algorithm, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzipLevel(level))
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
	case LZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
			return nil, fmt.Errorf("failed to configure lz4: %w", err)
		}
		return zw, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case S2:
		return s2.NewWriter(w, s2Options(level)...), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

// NewReader wraps r so that reads return the data decompressed with alg.
func NewReader(r io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip payload: %w", err)
		}
		return zr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd payload: %w", err)
		}
		return zr.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Snappy, S2:
		// the s2 reader also decodes snappy framed streams
		return io.NopCloser(s2.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", alg)
	}
}

var magics = []struct {
	alg   Algorithm
	magic []byte
}{
	{Gzip, []byte{0x1f, 0x8b}},
	{Zstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{LZ4, []byte{0x04, 0x22, 0x4d, 0x18}},
	{Snappy, []byte("\xff\x06\x00\x00sNaPpY")},
	{S2, []byte("\xff\x06\x00\x00S2sTwO")},
}

// Detect peeks at the head of br and reports the codec whose magic bytes it
// starts with, or None. No bytes are consumed.
func Detect(br *bufio.Reader) Algorithm {
	head, _ := br.Peek(10)
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.alg
		}
	}
	return None
}

func gzipLevel(l Level) int {
	switch {
	case l <= Fastest:
		return gzip.BestSpeed
	case l >= Best:
		return gzip.BestCompression
	case l >= Better:
		return 7
	default:
		return gzip.DefaultCompression
	}
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch {
	case l <= Fastest:
		return zstd.SpeedFastest
	case l >= Best:
		return zstd.SpeedBestCompression
	case l >= Better:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}

func lz4Level(l Level) lz4.CompressionLevel {
	switch {
	case l <= Fastest:
		return lz4.Fast
	case l >= Best:
		return lz4.Level9
	case l >= Better:
		return lz4.Level7
	default:
		return lz4.Level5
	}
}

func s2Options(l Level) []s2.WriterOption {
	switch {
	case l >= Best:
		return []s2.WriterOption{s2.WriterBestCompression()}
	case l >= Better:
		return []s2.WriterOption{s2.WriterBetterCompression()}
	default:
		return nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
