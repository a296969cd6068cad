package warehouse

import (
	"context"
	"fmt"
)

// Load writes rows into table under the given write mode, batching inserts by
// batchSize rows per statement. The whole load runs in one transaction: if any
// batch fails, previously written batches are rolled back with it.
//
// Mode semantics:
//   - fail:    error when the table already exists; the table is never touched.
//   - replace: drop an existing table, then create and fill it.
//   - append:  create the table when missing, then insert.
func Load(ctx context.Context, wh Warehouse, table string, mode WriteMode, cols []Column, rows [][]any, batchSize int) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("warehouse: empty table name")
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("warehouse: no columns to load")
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var total int64
	err := wh.Tx(ctx, func(s Session) error {
		exists, err := s.TableExists(ctx, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}

		switch {
		case exists && mode == ModeFail:
			return fmt.Errorf("table %s already exists", table)
		case exists && mode == ModeReplace:
			if err := s.DropTable(ctx, table); err != nil {
				return fmt.Errorf("drop table %s: %w", table, err)
			}
			exists = false
		}

		if !exists {
			if err := s.CreateTable(ctx, table, cols); err != nil {
				return fmt.Errorf("create table %s: %w", table, err)
			}
		}

		for start := 0; start < len(rows); start += batchSize {
			end := start + batchSize
			if end > len(rows) {
				end = len(rows)
			}
			n, err := s.InsertRows(ctx, table, names, rows[start:end])
			if err != nil {
				return fmt.Errorf("insert batch at row %d: %w", start, err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
