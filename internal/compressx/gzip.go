// Package compressx compresses attachment payloads with gzip.
package compressx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/klauspost/compress/gzip"
)

// MaxInflatedSize bounds the output of Gunzip.
var MaxInflatedSize int64 = 1 << 30

// Gzip compresses data at the default level.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, &common.CompressionError{Err: err}
	}
	if _, err := zw.Write(data); err != nil {
		return nil, &common.CompressionError{Err: err}
	}
	if err := zw.Close(); err != nil {
		return nil, &common.CompressionError{Err: err}
	}
	return buf.Bytes(), nil
}

// Gunzip decompresses data. Corrupt input and output larger than
// MaxInflatedSize yield a *common.CompressionError.
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &common.CompressionError{Err: err}
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, MaxInflatedSize+1))
	if err != nil {
		return nil, &common.CompressionError{Err: err}
	}
	if int64(len(out)) > MaxInflatedSize {
		return nil, &common.CompressionError{Err: fmt.Errorf("inflated payload exceeds %d bytes", MaxInflatedSize)}
	}
	return out, nil
}
