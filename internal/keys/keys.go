// Package keys strips constraints that would otherwise block a
// one-way sync from loading rows out of referential order: foreign
// keys (fk.py) and unique keys (uk.py) on a target database, bootstrap
// steps that run once before a downstream is first synced.
package keys

import (
	"context"
	"database/sql"
	"fmt"

	"tablesync/internal/report"
)

// StripForeignKeys drops every foreign key constraint in the connected
// database (spec §3 "foreign-key/unique-key strippers", grounded on
// fk.py:strip_fk). Loads via the Loader would otherwise fail or
// reorder rows to satisfy FK constraints the upstream schema may not
// even still enforce by the time a row-range transfer runs.
func StripForeignKeys(ctx context.Context, db *sql.DB, database string, rep *report.Reporter) error {
	rep.Emitf("[Dropping foreign keys from database: %s]", database)
	scope := rep.Scope()
	defer scope()

	rows, err := db.QueryContext(ctx, `
		SELECT CONSTRAINT_NAME, TABLE_NAME
		FROM information_schema.referential_constraints
		WHERE constraint_schema = ?
	`, database)
	if err != nil {
		return fmt.Errorf("keys: listing foreign keys of %s: %w", database, err)
	}
	type constraint struct{ name, table string }
	var constraints []constraint
	for rows.Next() {
		var c constraint
		if err := rows.Scan(&c.name, &c.table); err != nil {
			rows.Close()
			return fmt.Errorf("keys: scanning foreign key row: %w", err)
		}
		constraints = append(constraints, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, c := range constraints {
		query := fmt.Sprintf("ALTER TABLE `%s` DROP FOREIGN KEY `%s`", c.table, c.name)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("keys: dropping foreign key %s on %s: %w", c.name, c.table, err)
		}
		rep.Emitf("dropped %s on %s", c.name, c.table)
	}
	return nil
}

// StripUniqueKeys drops every UNIQUE constraint in the connected
// database (grounded on uk.py:strip_uk). A one-way loader can produce
// transient duplicate rows mid-batch when a predicate's delete and
// load straddle a uniqueness check that upstream itself no longer
// enforces the same way.
func StripUniqueKeys(ctx context.Context, db *sql.DB, database string, rep *report.Reporter) error {
	rep.Emitf("[Dropping unique keys from database: %s]", database)
	scope := rep.Scope()
	defer scope()

	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT constraint_name, table_name
		FROM information_schema.table_constraints
		WHERE constraint_type = 'UNIQUE' AND table_schema = ?
	`, database)
	if err != nil {
		return fmt.Errorf("keys: listing unique keys of %s: %w", database, err)
	}
	type constraint struct{ name, table string }
	var constraints []constraint
	for rows.Next() {
		var c constraint
		if err := rows.Scan(&c.name, &c.table); err != nil {
			rows.Close()
			return fmt.Errorf("keys: scanning unique key row: %w", err)
		}
		constraints = append(constraints, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, c := range constraints {
		query := fmt.Sprintf("DROP INDEX `%s` ON `%s`", c.name, c.table)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("keys: dropping unique key %s on %s: %w", c.name, c.table, err)
		}
		rep.Emitf("dropped %s on %s", c.name, c.table)
	}
	return nil
}
