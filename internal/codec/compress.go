package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/optilayer/optilayer/pkg/errors"
)

// Supported compression algorithms.
const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
	AlgorithmLZ4  = "lz4"
)

// Compressor compresses and decompresses cache payloads using a fixed
// algorithm and level. Safe for concurrent use.
type Compressor struct {
	algorithm string
	level     int

	// zstd keeps long-lived coder state; the other algorithms are
	// constructed per call.
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
}

// NewCompressor creates a compressor for the given algorithm. Level is
// interpreted per algorithm; zero selects the algorithm default.
func NewCompressor(algorithm string, level int) (*Compressor, error) {
	c := &Compressor{algorithm: algorithm, level: level}

	switch algorithm {
	case AlgorithmGzip, AlgorithmLZ4:
	case AlgorithmZstd:
		encLevel := zstd.SpeedDefault
		if level > 0 {
			encLevel = zstd.EncoderLevelFromZstd(level)
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeCompressionFailed, "zstd encoder init failed").
				WithComponent("codec").WithCause(err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeCompressionFailed, "zstd decoder init failed").
				WithComponent("codec").WithCause(err)
		}
		c.zstdEnc = enc
		c.zstdDec = dec
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown compression algorithm %q", algorithm).
			WithComponent("codec")
	}

	return c, nil
}

// Algorithm returns the configured algorithm name.
func (c *Compressor) Algorithm() string {
	return c.algorithm
}

// Compress returns the compressed form of data.
func (c *Compressor) Compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZstd:
		return c.zstdEnc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
	case AlgorithmGzip:
		return c.compressStream(data, func(buf *bytes.Buffer) (io.WriteCloser, error) {
			level := c.level
			if level == 0 {
				level = gzip.DefaultCompression
			}
			return gzip.NewWriterLevel(buf, level)
		})
	case AlgorithmLZ4:
		return c.compressStream(data, func(buf *bytes.Buffer) (io.WriteCloser, error) {
			return lz4.NewWriter(buf), nil
		})
	}
	return nil, errors.Newf(errors.ErrCodeCompressionFailed, "unknown algorithm %q", c.algorithm)
}

// Decompress reverses Compress.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case AlgorithmZstd:
		out, err := c.zstdDec.DecodeAll(data, nil)
		if err != nil {
			return nil, c.wrapError("zstd decompression failed", err)
		}
		return out, nil
	case AlgorithmGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, c.wrapError("gzip decompression failed", err)
		}
		defer func() { _ = r.Close() }()
		return c.readAll(r)
	case AlgorithmLZ4:
		return c.readAll(lz4.NewReader(bytes.NewReader(data)))
	}
	return nil, errors.Newf(errors.ErrCodeCompressionFailed, "unknown algorithm %q", c.algorithm)
}

func (c *Compressor) compressStream(data []byte, open func(*bytes.Buffer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := open(&buf)
	if err != nil {
		return nil, c.wrapError("compressor init failed", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, c.wrapError("compression write failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, c.wrapError("compression close failed", err)
	}
	return buf.Bytes(), nil
}

func (c *Compressor) readAll(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, c.wrapError(fmt.Sprintf("%s decompression failed", c.algorithm), err)
	}
	return out, nil
}

func (c *Compressor) wrapError(msg string, cause error) error {
	return errors.NewError(errors.ErrCodeCompressionFailed, msg).
		WithComponent("codec").
		WithDetail("algorithm", c.algorithm).
		WithCause(cause)
}
