// Package warehouse defines the backend-agnostic interface the restore
// command writes through, plus the factory registry the backends register
// with. Each backend implements the same semantics in its own dialect
// (bracket identifiers and @pN parameters on SQL Server, $N on Postgres,
// ? on SQLite).
package warehouse

import (
	"context"
	"fmt"
	"sync"

	"sqlparquet/internal/parquetio"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
}

// WriteMode governs how a restore treats a pre-existing target table.
type WriteMode string

const (
	ModeReplace WriteMode = "replace" // drop and recreate
	ModeAppend  WriteMode = "append"  // insert into existing (create when missing)
	ModeFail    WriteMode = "fail"    // error when the table exists
)

// ParseWriteMode validates a user-supplied mode string.
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case ModeReplace, ModeAppend, ModeFail:
		return WriteMode(s), nil
	case "":
		return ModeFail, nil
	default:
		return "", fmt.Errorf("unsupported write mode %q (want replace|append|fail)", s)
	}
}

// Column is one column of the target table, using the same neutral kinds the
// parquet layer uses. Backends map kinds onto their own types.
type Column struct {
	Name string
	Kind parquetio.Kind
}

// Session is the transactional surface a backend exposes to the load logic.
// All methods run inside the transaction opened by Warehouse.Tx.
type Session interface {
	TableExists(ctx context.Context, table string) (bool, error)
	DropTable(ctx context.Context, table string) error
	CreateTable(ctx context.Context, table string, cols []Column) error

	// InsertRows inserts one batch. Implementations split the batch further
	// when it would exceed the backend's statement parameter limit.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Warehouse is a connected target database.
type Warehouse interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// Tx runs fn inside a single transaction, committing when fn returns nil
	// and rolling back otherwise. The restore command performs the whole run
	// (existence check, drop/create, every batch) in one Tx call so a failed
	// run leaves the target unchanged.
	Tx(ctx context.Context, fn func(Session) error) error
}

// ---- backend factory registry ----

type factory func(ctx context.Context, cfg Config) (Warehouse, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "sqlserver"). Backend
// packages call this from init; registering a kind twice panics so ambiguous
// selection fails fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Warehouse for the configured kind.
func New(ctx context.Context, cfg Config) (Warehouse, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported kind %q", cfg.Kind)
	}
	return f(ctx, cfg)
}
