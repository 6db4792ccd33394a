package util

import (
	"bytes"
	"fmt"
	"github.com/klauspost/compress/gzip"
	"io"
)

func GzipCompressData(data []byte) ([]byte, error) {
	var out bytes.Buffer
	w := gzip.NewWriter(&out)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return out.Bytes(), nil
}

// GzipDecompressData inflates data, refusing output larger than limit bytes.
func GzipDecompressData(data []byte, limit int64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	defer func(r io.ReadCloser) {
		_ = r.Close()
	}(r)

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("decompressed data exceeds %d bytes", limit)
	}

	return out.Bytes(), nil
}
