package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Upsert loads a record batch into the destination table. Without a unique
// key it is a transactional bulk append. With one, the batch is first
// de-duplicated in memory (last occurrence wins), then applied in a single
// transaction: stage the batch, delete destination rows matching any
// staged key, insert the staged rows, drop staging. Re-running the same
// batch leaves the destination byte-identical, and a superseding row fully
// replaces its predecessor instead of duplicating it.
//
// The transaction is the pipeline's only critical section; concurrent
// writers to the same destination table must be serialized by the caller.
func (db *DB) Upsert(ctx context.Context, table TableSpec, rs *lake.RecordSet) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if rs.Len() == 0 {
		return nil
	}

	if err := db.EnsureSchema(ctx, table.Schema); err != nil {
		return err
	}

	records := rs.Records
	if len(table.UniqueKey) > 0 {
		records = dedupLastWins(records, table.UniqueKey)
	}

	tx, err := db.Conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, table.createSQL()); err != nil {
		return fmt.Errorf("ensure table %s.%s: %w", table.Schema, table.Name, err)
	}

	if len(table.UniqueKey) == 0 {
		if err := copyInto(ctx, tx, table.Schema, table.Name, table.columnNames(), records); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit append to %s.%s: %w", table.Schema, table.Name, err)
		}
		db.logLoad(table, "append", len(records))
		return nil
	}

	staging := stagingName(table.Name)
	qualifiedStaging := pq.QuoteIdentifier(table.Schema) + "." + pq.QuoteIdentifier(staging)

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s)", qualifiedStaging, table.qualified())); err != nil {
		return fmt.Errorf("create staging for %s.%s: %w", table.Schema, table.Name, err)
	}
	if err := copyInto(ctx, tx, table.Schema, staging, table.columnNames(), records); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, table.deleteMatchingSQL(qualifiedStaging)); err != nil {
		return fmt.Errorf("delete superseded rows in %s.%s: %w", table.Schema, table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, table.insertFromSQL(qualifiedStaging)); err != nil {
		return fmt.Errorf("insert staged rows into %s.%s: %w", table.Schema, table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+qualifiedStaging); err != nil {
		return fmt.Errorf("drop staging for %s.%s: %w", table.Schema, table.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert to %s.%s: %w", table.Schema, table.Name, err)
	}
	db.logLoad(table, "upsert", len(records))
	return nil
}

func (db *DB) logLoad(table TableSpec, mode string, rows int) {
	if db.Logger == nil {
		return
	}
	db.Logger.Info("warehouse load complete",
		zap.String("table", table.Schema+"."+table.Name),
		zap.String("mode", mode),
		zap.Int("rows", rows),
	)
}

// stagingName derives a collision-free staging table name.
func stagingName(table string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "__stg_" + table + "_" + suffix
}

// copyInto bulk-loads records through COPY.
func copyInto(ctx context.Context, tx *sqlx.Tx, schema, table string, columns []string, records []lake.Record) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(schema, table, columns...))
	if err != nil {
		return fmt.Errorf("prepare copy into %s.%s: %w", schema, table, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = rec[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("copy row into %s.%s: %w", schema, table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy into %s.%s: %w", schema, table, err)
	}
	return nil
}

// dedupLastWins removes in-batch duplicates by unique key, keeping the
// last occurrence of each key at the position of its first.
func dedupLastWins(records []lake.Record, uniqueKey []string) []lake.Record {
	index := map[string]int{}
	out := make([]lake.Record, 0, len(records))
	for _, rec := range records {
		k := keyOf(rec, uniqueKey)
		if at, ok := index[k]; ok {
			out[at] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}

// keyOf renders the unique-key tuple of a record. The unit separator keeps
// composite keys unambiguous.
func keyOf(rec lake.Record, uniqueKey []string) string {
	parts := make([]string, len(uniqueKey))
	for i, k := range uniqueKey {
		parts[i] = rec.StringAt(k)
	}
	return strings.Join(parts, "\x1f")
}
