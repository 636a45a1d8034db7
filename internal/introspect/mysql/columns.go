// Package mysql implements the Column Descriptor (spec §4.1): it
// inspects a live table's columns via information_schema and produces
// the concatenation-safe expression list the rest of the sync engine
// fingerprints rows with.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"tablesync/internal/core"
)

// Describe queries information_schema.columns for tableName, in
// declaration order, and returns one ColumnExpression per column. Any
// column whose type can't be made concatenation-safe by the four rules
// is a programmer error (spec §4.1) — in practice BuildColumnExpression
// never rejects a column, so this only happens if the query itself
// returns a column with an empty name, which would indicate database
// corruption rather than a normal edge case.
func Describe(ctx context.Context, db *sql.DB, tableName string) ([]core.ColumnExpression, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, IS_NULLABLE, COLUMN_TYPE, COLLATION_NAME
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, tableName)
	if err != nil {
		return nil, fmt.Errorf("introspect mysql: describe columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	var out []core.ColumnExpression
	for rows.Next() {
		var name, isNullable, columnType string
		var collation sql.NullString
		if err := rows.Scan(&name, &isNullable, &columnType, &collation); err != nil {
			return nil, fmt.Errorf("introspect mysql: scan column of %s: %w", tableName, err)
		}

		expr, err := core.BuildColumnExpression(core.ColumnMeta{
			Name:       name,
			Nullable:   isNullable == "YES",
			ColumnType: columnType,
			Collation:  collation.String,
		})
		if err != nil {
			return nil, &core.ProgrammerError{Msg: fmt.Sprintf(
				"column %s.%s could not be made concatenation-safe: %v", tableName, name, err)}
		}
		out = append(out, expr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("introspect mysql: iterate columns of %s: %w", tableName, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("introspect mysql: table %s has no columns (does it exist?)", tableName)
	}
	return out, nil
}

// MaxID returns MAX(idCol) for tableName, or 0 when the table is empty
// (spec §3 TableSide.max_id).
func MaxID(ctx context.Context, db *sql.DB, tableName, idCol string) (int64, error) {
	var maxID sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(`%s`) FROM `%s`", idCol, tableName)
	if err := db.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("introspect mysql: max id for %s.%s: %w", tableName, idCol, err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

// TableExists reports whether tableName is present in the connected
// database.
func TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`, tableName).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("introspect mysql: table existence check for %s: %w", tableName, err)
	}
	return n > 0, nil
}

// ShowCreateTable returns the CREATE TABLE statement for tableName, as
// emitted by the server itself (used to bootstrap a missing downstream
// table and, by the Schema Differ, to extract individual column
// fragments).
func ShowCreateTable(ctx context.Context, db *sql.DB, tableName string) (string, error) {
	var name, createSQL string
	query := fmt.Sprintf("SHOW CREATE TABLE `%s`", tableName)
	if err := db.QueryRowContext(ctx, query).Scan(&name, &createSQL); err != nil {
		return "", fmt.Errorf("introspect mysql: show create table %s: %w", tableName, err)
	}
	return createSQL, nil
}
