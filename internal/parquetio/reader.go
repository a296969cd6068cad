package parquetio

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// ReadFileSet reads every part file under path (a single file or a directory
// tree) and returns all rows. Hive "name=value" directory segments are decoded
// and merged back into each row as strings, mirroring how the extractor moved
// partition columns out of the row groups.
//
// This reader loads everything into memory. It exists for verification and
// tests; the analyze and restore paths go through the embedded engine instead.
func ReadFileSet(path string) ([]map[string]any, error) {
	files, err := listPartFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parquet files under %s", path)
	}

	var out []map[string]any
	for _, f := range files {
		rows, err := readPartFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		parts := partitionValues(path, f)
		for _, r := range rows {
			for k, v := range parts {
				r[k] = v
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func listPartFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".parquet") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func readPartFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// Map rows cannot supply a schema, so read with the file's own.
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	r := parquet.NewGenericReader[map[string]any](f, pf.Schema())
	defer r.Close()

	var out []map[string]any
	buf := make([]map[string]any, 64)
	for {
		for i := range buf {
			buf[i] = map[string]any{}
		}
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i])
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// partitionValues decodes hive segments between root and file into a map.
func partitionValues(root, file string) map[string]string {
	rel, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil || rel == "." || rel == "" {
		return nil
	}

	out := map[string]string{}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		name, val, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		if val == hiveNullPartition {
			continue // NULL partitions stay absent from the row
		}
		out[name] = decodePartitionValue(val)
	}
	return out
}

func decodePartitionValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			var c byte
			if _, err := fmt.Sscanf(s[i+1:i+3], "%02X", &c); err == nil {
				b.WriteByte(c)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
