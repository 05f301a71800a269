// Package compression provides the record and posting codecs. A codec is
// chosen once, by name, when a store is first created and is then persisted
// with that store's metadata; readers never guess or fall back.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

// Codec names a compression scheme. The string form is what gets persisted.
type Codec string

const (
	None     Codec = "none"
	LZ4      Codec = "lz4"       // fast
	LZ4HC    Codec = "lz4hc"     // lz4 frame, high-compression level
	Zstd     Codec = "zstd"      // zstd default level
	ZstdBest Codec = "zstd-best" // zstd best compression
)

// Parse validates a codec name. An empty name selects LZ4.
func Parse(name string) (Codec, error) {
	switch c := Codec(name); c {
	case "":
		return LZ4, nil
	case None, LZ4, LZ4HC, Zstd, ZstdBest:
		return c, nil
	default:
		return "", fmt.Errorf("compression codec %q: %w", name, apperrors.ErrUnsupportedSchema)
	}
}

// Compressor compresses and decompresses whole buffers. Implementations are
// safe for concurrent use.
type Compressor interface {
	Codec() Codec
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// New resolves c into a Compressor.
func New(c Codec) (Compressor, error) {
	switch c {
	case None:
		return noneCompressor{}, nil
	case LZ4:
		return lz4Compressor{codec: LZ4, level: lz4.Fast}, nil
	case LZ4HC:
		return lz4Compressor{codec: LZ4HC, level: lz4.Level9}, nil
	case Zstd:
		return newZstdCompressor(Zstd, zstd.SpeedDefault)
	case ZstdBest:
		return newZstdCompressor(ZstdBest, zstd.SpeedBestCompression)
	default:
		return nil, fmt.Errorf("compression codec %q: %w", c, apperrors.ErrUnsupportedSchema)
	}
}

type noneCompressor struct{}

func (noneCompressor) Codec() Codec { return None }

func (noneCompressor) Compress(src []byte) ([]byte, error) {
	return append([]byte{}, src...), nil
}

func (noneCompressor) Decompress(src []byte) ([]byte, error) {
	return append([]byte{}, src...), nil
}

type lz4Compressor struct {
	codec Codec
	level lz4.CompressionLevel
}

func (c lz4Compressor) Codec() Codec { return c.codec }

func (c lz4Compressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(c.level)); err != nil {
		return nil, fmt.Errorf("configuring lz4 writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c lz4Compressor) Decompress(src []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(src)))
	if err != nil {
		return nil, apperrors.Decodef("lz4 decompress: %v", err)
	}
	return out, nil
}

type zstdCompressor struct {
	codec Codec
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newZstdCompressor(codec Codec, level zstd.EncoderLevel) (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &zstdCompressor{codec: codec, enc: enc, dec: dec}, nil
}

func (c *zstdCompressor) Codec() Codec { return c.codec }

func (c *zstdCompressor) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, nil), nil
}

func (c *zstdCompressor) Decompress(src []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, apperrors.Decodef("zstd decompress: %v", err)
	}
	return out, nil
}
