package cache

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// Compress encodes data with brotli.
func Compress(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := brotli.NewWriterLevel(buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes brotli data.
func Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}
