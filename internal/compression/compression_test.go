package compression

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Term-Index-Engine/pkg/errors"
)

func TestRoundTripAllCodecs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, 4096)
	rng.Read(random)
	inputs := map[string][]byte{
		"empty":      {},
		"short":      []byte("hi"),
		"repetitive": bytes.Repeat([]byte("the cat sat on the mat "), 500),
		"random":     random,
	}
	for _, codec := range []Codec{None, LZ4, LZ4HC, Zstd, ZstdBest} {
		c, err := New(codec)
		if err != nil {
			t.Fatalf("New(%s): %v", codec, err)
		}
		if c.Codec() != codec {
			t.Errorf("Codec() = %s, want %s", c.Codec(), codec)
		}
		for name, in := range inputs {
			packed, err := c.Compress(in)
			if err != nil {
				t.Fatalf("%s/%s compress: %v", codec, name, err)
			}
			out, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("%s/%s decompress: %v", codec, name, err)
			}
			if !bytes.Equal(out, in) {
				t.Errorf("%s/%s round trip mismatch", codec, name)
			}
		}
	}
}

func TestCompressionShrinksRepetitiveInput(t *testing.T) {
	in := bytes.Repeat([]byte("metaphor source target "), 1000)
	for _, codec := range []Codec{LZ4, LZ4HC, Zstd, ZstdBest} {
		c, _ := New(codec)
		packed, err := c.Compress(in)
		if err != nil {
			t.Fatal(err)
		}
		if len(packed) >= len(in)/4 {
			t.Errorf("%s: %d -> %d bytes", codec, len(in), len(packed))
		}
	}
}

func TestParse(t *testing.T) {
	if c, err := Parse(""); err != nil || c != LZ4 {
		t.Errorf("Parse(\"\") = %q, %v", c, err)
	}
	if _, err := Parse("zlib"); !errors.Is(err, apperrors.ErrUnsupportedSchema) {
		t.Errorf("Parse(zlib) err = %v", err)
	}
}

func TestDecompressGarbage(t *testing.T) {
	for _, codec := range []Codec{LZ4, Zstd} {
		c, _ := New(codec)
		if _, err := c.Decompress([]byte("definitely not compressed")); !errors.Is(err, apperrors.ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", codec, err)
		}
	}
}
