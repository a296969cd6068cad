package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"sqlparquet/internal/parquetio"
	"sqlparquet/internal/warehouse"
)

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("t", []string{"a", "b"}, [][]any{
		{1, "x"},
		{2, "y"},
	})
	want := `INSERT INTO "t" ("a", "b") VALUES (?, ?), (?, ?)`
	if q != want {
		t.Fatalf("sql=%q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args=%v", args)
	}
}

func TestTableIdent_DropsSchema(t *testing.T) {
	t.Parallel()

	if got := tableIdent("main.imports"); got != `"imports"` {
		t.Fatalf("tableIdent=%q", got)
	}
}

// Full round trip against a real database file: open, load in a transaction,
// read back outside it.
func TestRepoLoadRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "wh.db")

	wh, err := New(ctx, warehouse.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New err=%v", err)
	}
	defer wh.Close()

	cols := []warehouse.Column{
		{Name: "id", Kind: parquetio.KindInt},
		{Name: "name", Kind: parquetio.KindString},
	}
	rows := [][]any{{int64(1), "ada"}, {int64(2), "bob"}, {int64(3), nil}}

	n, err := warehouse.Load(ctx, wh, "people", warehouse.ModeFail, cols, rows, 2)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if n != 3 {
		t.Fatalf("loaded=%d, want 3", n)
	}

	// fail mode now errors, and the transaction leaves the table untouched.
	if _, err := warehouse.Load(ctx, wh, "people", warehouse.ModeFail, cols, rows, 0); err == nil {
		t.Fatalf("second fail-mode Load err=nil, want exists error")
	}

	// append adds to the existing rows.
	if _, err := warehouse.Load(ctx, wh, "people", warehouse.ModeAppend, cols, rows[:1], 0); err != nil {
		t.Fatalf("append Load err=%v", err)
	}
	if got := countRows(t, wh, "people"); got != 4 {
		t.Fatalf("rows after append=%d, want 4", got)
	}

	// replace starts over.
	if _, err := warehouse.Load(ctx, wh, "people", warehouse.ModeReplace, cols, rows[:2], 0); err != nil {
		t.Fatalf("replace Load err=%v", err)
	}
	if got := countRows(t, wh, "people"); got != 2 {
		t.Fatalf("rows after replace=%d, want 2", got)
	}
}

func countRows(t *testing.T, wh warehouse.Warehouse, table string) int {
	t.Helper()

	r, ok := wh.(*Repo)
	if !ok {
		t.Fatalf("warehouse is %T, want *Repo", wh)
	}
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM "` + table + `"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
