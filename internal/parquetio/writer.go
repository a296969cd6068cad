package parquetio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Write modes for an existing file set directory.
const (
	ModeOverwrite = "overwrite"
	ModeAppend    = "append"
	ModeError     = "error"
)

// flushEvery bounds the per-partition row buffer handed to the parquet writer.
const flushEvery = 1024

// hiveNullPartition is the directory name used for NULL partition values,
// matching the convention of the distributed engine that wrote the original
// file sets.
const hiveNullPartition = "__HIVE_DEFAULT_PARTITION__"

// WriterOptions configures a FileSetWriter.
type WriterOptions struct {
	// Compression is one of the codec names accepted by Codec.
	Compression string

	// PartitionBy lists columns whose values become hive-style
	// "name=value" subdirectories. Partition columns are carried in the
	// directory names only, not in the row groups.
	PartitionBy []string

	// Mode controls how an existing non-empty output directory is treated:
	// overwrite (default), append, or error.
	Mode string
}

// FileSetWriter writes rows into a directory of parquet part files,
// splitting by partition values when configured.
//
// Not safe for concurrent use; each extraction run owns exactly one writer.
type FileSetWriter struct {
	path  string
	codec compress.Codec
	mode  string

	dataCols []Column
	partCols []Column
	schema   *parquet.Schema

	parts map[string]*partWriter
	rows  int64

	// fileSuffix makes append-mode part names unique across runs.
	fileSuffix string
}

type partWriter struct {
	f   *os.File
	w   *parquet.GenericWriter[map[string]any]
	buf []map[string]any
}

// NewFileSetWriter validates options, prepares the output directory per the
// write mode, and returns a writer for the given schema.
func NewFileSetWriter(path string, cols []Column, opts WriterOptions) (*FileSetWriter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("parquetio: empty output path")
	}

	codec, err := Codec(opts.Compression)
	if err != nil {
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeOverwrite
	}
	switch mode {
	case ModeOverwrite, ModeAppend, ModeError:
	default:
		return nil, fmt.Errorf("parquetio: unsupported write mode %q (want overwrite|append|error)", opts.Mode)
	}

	dataCols, partCols, err := splitPartitionColumns(cols, opts.PartitionBy)
	if err != nil {
		return nil, err
	}

	schema, err := Schema("extract", dataCols)
	if err != nil {
		return nil, err
	}

	if err := prepareDir(path, mode); err != nil {
		return nil, err
	}

	suffix := ""
	if mode == ModeAppend {
		suffix = fmt.Sprintf("-%d", time.Now().UnixNano())
	}

	return &FileSetWriter{
		path:       path,
		codec:      codec,
		mode:       mode,
		dataCols:   dataCols,
		partCols:   partCols,
		schema:     schema,
		parts:      make(map[string]*partWriter),
		fileSuffix: suffix,
	}, nil
}

// Write routes one row to its partition's part file. The row map must use the
// schema column names; partition column values are consumed for the directory
// name and removed from the stored row.
func (w *FileSetWriter) Write(row map[string]any) error {
	rel, err := w.partitionDir(row)
	if err != nil {
		return err
	}

	pw, err := w.part(rel)
	if err != nil {
		return err
	}

	if len(w.partCols) > 0 {
		stored := make(map[string]any, len(w.dataCols))
		for _, c := range w.dataCols {
			if v, ok := row[c.Name]; ok && v != nil {
				stored[c.Name] = v
			}
		}
		row = stored
	} else {
		for k, v := range row {
			if v == nil {
				delete(row, k)
			}
		}
	}

	pw.buf = append(pw.buf, row)
	w.rows++
	if len(pw.buf) >= flushEvery {
		return flushPart(pw)
	}
	return nil
}

// Rows returns the number of rows accepted so far.
func (w *FileSetWriter) Rows() int64 { return w.rows }

// Close flushes and closes every open part file. The file set is not valid
// until Close returns nil.
//
// A zero-row extraction still yields one schema-bearing empty part file, so
// the file set stays readable by the reader and the engine glob.
func (w *FileSetWriter) Close() error {
	var firstErr error
	if len(w.parts) == 0 {
		if _, err := w.part(""); err != nil {
			return err
		}
	}
	// Deterministic close order keeps failure output stable.
	keys := make([]string, 0, len(w.parts))
	for k := range w.parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		pw := w.parts[k]
		if err := flushPart(pw); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := pw.w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close parquet writer: %w", err)
		}
		if err := pw.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close part file: %w", err)
		}
	}
	w.parts = nil
	return firstErr
}

func flushPart(pw *partWriter) error {
	if len(pw.buf) == 0 {
		return nil
	}
	if _, err := pw.w.Write(pw.buf); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	pw.buf = pw.buf[:0]
	return nil
}

// partitionDir returns the relative hive directory for a row ("" when the file
// set is unpartitioned).
func (w *FileSetWriter) partitionDir(row map[string]any) (string, error) {
	if len(w.partCols) == 0 {
		return "", nil
	}
	segs := make([]string, len(w.partCols))
	for i, c := range w.partCols {
		v, ok := row[c.Name]
		if !ok {
			return "", fmt.Errorf("row missing partition column %q", c.Name)
		}
		segs[i] = c.Name + "=" + encodePartitionValue(v)
	}
	return filepath.Join(segs...), nil
}

func (w *FileSetWriter) part(rel string) (*partWriter, error) {
	if pw, ok := w.parts[rel]; ok {
		return pw, nil
	}

	dir := filepath.Join(w.path, rel)
	if rel != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create partition dir: %w", err)
		}
	}

	name := fmt.Sprintf("part-%05d%s.parquet", len(w.parts), w.fileSuffix)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("create part file: %w", err)
	}

	pw := &partWriter{
		f: f,
		w: parquet.NewGenericWriter[map[string]any](f, w.schema, parquet.Compression(w.codec)),
	}
	w.parts[rel] = pw
	return pw, nil
}

// splitPartitionColumns separates the schema into stored and partition
// columns, preserving order, and rejects unknown partition names.
func splitPartitionColumns(cols []Column, partitionBy []string) (data, part []Column, err error) {
	if len(partitionBy) == 0 {
		return cols, nil, nil
	}

	wanted := make(map[string]bool, len(partitionBy))
	for _, p := range partitionBy {
		wanted[p] = true
	}

	byName := make(map[string]Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
		if !wanted[c.Name] {
			data = append(data, c)
		}
	}
	for _, p := range partitionBy {
		c, ok := byName[p]
		if !ok {
			return nil, nil, fmt.Errorf("partition column %q not in result schema", p)
		}
		part = append(part, c)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("partitioning by every column leaves nothing to store")
	}
	return data, part, nil
}

// encodePartitionValue renders a partition value as a directory-safe segment.
// NULLs map to the hive default partition name; unsafe bytes are
// percent-encoded the way the original engine escaped partition paths.
func encodePartitionValue(v any) string {
	if v == nil {
		return hiveNullPartition
	}
	s := fmt.Sprint(v)
	if s == "" {
		return hiveNullPartition
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// prepareDir applies the write mode to the output directory.
func prepareDir(path, mode string) error {
	switch mode {
	case ModeOverwrite:
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear output path: %w", err)
		}
	case ModeError:
		entries, err := os.ReadDir(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("inspect output path: %w", err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("output path %s already exists and is not empty", path)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output path: %w", err)
	}
	return nil
}
