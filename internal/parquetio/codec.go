package parquetio

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Compression codec names accepted by the extract command.
//
// "lzo" is recognized for compatibility with the historical flag surface but is
// rejected with a configuration error: no Go parquet implementation ships an
// LZO codec. The error message points at lz4 as the replacement.
const (
	CompressionSnappy = "snappy"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionLz4    = "lz4"
	CompressionNone   = "none"
)

// Codec resolves a codec name to the parquet-go compression codec.
//
// Validation happens here and nowhere else; callers are expected to call this
// (directly or via ValidateCompression) before opening any database connection.
func Codec(name string) (compress.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CompressionSnappy, "":
		return &parquet.Snappy, nil
	case CompressionGzip:
		return &parquet.Gzip, nil
	case CompressionZstd:
		return &parquet.Zstd, nil
	case CompressionLz4:
		return &parquet.Lz4Raw, nil
	case CompressionNone, "uncompressed":
		return &parquet.Uncompressed, nil
	case "lzo":
		return nil, fmt.Errorf("compression %q is not supported by the parquet writer; use %q", name, CompressionLz4)
	default:
		return nil, fmt.Errorf("unsupported compression %q (want snappy|gzip|zstd|lz4|none)", name)
	}
}

// ValidateCompression checks a codec name without resolving it.
func ValidateCompression(name string) error {
	_, err := Codec(name)
	return err
}
