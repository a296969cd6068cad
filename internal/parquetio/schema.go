package parquetio

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Kind is the neutral column type used between the database readers and the
// parquet writer. It deliberately collapses driver-specific widths: everything
// integral becomes INT64, everything fractional DOUBLE, everything textual
// BYTE_ARRAY/UTF8. That matches what the distributed engine in the original
// pipeline produced and keeps restore-side type mapping simple.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
	KindBytes
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindBytes:
		return "bytes"
	default:
		return "string"
	}
}

// Column is one field of the file set schema.
type Column struct {
	Name string
	Kind Kind
}

// Schema builds a parquet schema where every column is optional.
//
// All columns are nullable because source nullability is not reliably reported
// by database drivers, and a spurious NOT NULL would make valid extractions
// fail at write time.
func Schema(name string, cols []Column) (*parquet.Schema, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("parquetio: empty schema")
	}
	group := parquet.Group{}
	for _, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("parquetio: column with empty name")
		}
		if _, dup := group[c.Name]; dup {
			return nil, fmt.Errorf("parquetio: duplicate column %q", c.Name)
		}
		group[c.Name] = parquet.Optional(nodeFor(c.Kind))
	}
	return parquet.NewSchema(name, group), nil
}

func nodeFor(k Kind) parquet.Node {
	switch k {
	case KindInt:
		return parquet.Int(64)
	case KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case KindTime:
		return parquet.Timestamp(parquet.Millisecond)
	case KindBytes:
		return parquet.Leaf(parquet.ByteArrayType)
	default:
		return parquet.String()
	}
}

// NormalizeValue converts a scanned database value into the representation the
// writer stores for the column kind. Unknown combinations fall back to their
// string form rather than failing the extraction.
func NormalizeValue(k Kind, v any) any {
	if v == nil {
		return nil
	}
	switch k {
	case KindInt:
		switch n := v.(type) {
		case int64:
			return n
		case int32:
			return int64(n)
		case int:
			return int64(n)
		case uint64:
			return int64(n)
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b
		}
	case KindTime:
		if t, ok := v.(time.Time); ok {
			return t
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return b
		}
	case KindString:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			// Drivers commonly hand textual columns back as []byte.
			return string(s)
		}
	}
	return fmt.Sprint(v)
}
