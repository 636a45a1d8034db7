// Package schemasync implements the Table Twin (spec §4.2) and Schema
// Differ (spec §4.3): opening a paired upstream/downstream table view,
// bootstrapping a missing downstream table, comparing checksums, and
// reconciling column-level schema drift.
package schemasync

import (
	"context"
	"database/sql"
	"fmt"

	introspectmysql "tablesync/internal/introspect/mysql"
	"tablesync/internal/report"

	"tablesync/internal/core"
)

// Open builds a TableTwin for tableName, creating the downstream table
// from upstream's SHOW CREATE TABLE if it doesn't exist yet (spec §4.2
// "open" side effect).
func Open(ctx context.Context, upstream, downstream *sql.DB, tableName, idCol string, rep *report.Reporter) (*core.TableTwin, error) {
	rep.Emit(fmt.Sprintf("[Upstream %s]", tableName))
	upSide, err := loadSide(ctx, upstream, tableName, idCol, rep.Scope())
	if err != nil {
		return nil, fmt.Errorf("schemasync: load upstream side of %s: %w", tableName, err)
	}

	if err := createIfMissing(ctx, upstream, downstream, tableName, rep); err != nil {
		return nil, err
	}

	rep.Emit(fmt.Sprintf("[Downstream %s]", tableName))
	downSide, err := loadSide(ctx, downstream, tableName, idCol, rep.Scope())
	if err != nil {
		return nil, fmt.Errorf("schemasync: load downstream side of %s: %w", tableName, err)
	}

	return &core.TableTwin{
		Name:       tableName,
		IDCol:      idCol,
		Upstream:   upSide,
		Downstream: downSide,
	}, nil
}

func loadSide(ctx context.Context, db *sql.DB, tableName, idCol string, done func()) (core.TableSide, error) {
	defer done()

	cols, err := introspectmysql.Describe(ctx, db, tableName)
	if err != nil {
		return core.TableSide{}, err
	}

	maxID, err := introspectmysql.MaxID(ctx, db, tableName, idCol)
	if err != nil {
		return core.TableSide{}, err
	}

	return core.TableSide{Name: tableName, IDCol: idCol, Columns: cols, MaxID: maxID}, nil
}

func createIfMissing(ctx context.Context, upstream, downstream *sql.DB, tableName string, rep *report.Reporter) error {
	rep.Emit(fmt.Sprintf("[Checking for table existence: %s]", tableName))
	exists, err := introspectmysql.TableExists(ctx, downstream, tableName)
	if err != nil {
		return fmt.Errorf("schemasync: checking existence of %s: %w", tableName, err)
	}
	if exists {
		return nil
	}

	done := rep.Scope()
	defer done()
	rep.Emit("It does not exist, creating it")

	createSQL, err := introspectmysql.ShowCreateTable(ctx, upstream, tableName)
	if err != nil {
		return fmt.Errorf("schemasync: reading upstream create statement for %s: %w", tableName, err)
	}
	if _, err := downstream.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("schemasync: creating downstream table %s: %w", tableName, err)
	}
	return nil
}

// IsSynced compares CHECKSUM TABLE on both sides (spec §4.2). A true
// result is authoritative: every row matches byte-for-byte per the
// server's own checksum.
func IsSynced(ctx context.Context, upstream, downstream *sql.DB, tableName string) (bool, error) {
	upChecksum, err := checksumTable(ctx, upstream, tableName)
	if err != nil {
		return false, fmt.Errorf("schemasync: checksum upstream %s: %w", tableName, err)
	}
	downChecksum, err := checksumTable(ctx, downstream, tableName)
	if err != nil {
		return false, fmt.Errorf("schemasync: checksum downstream %s: %w", tableName, err)
	}
	return upChecksum == downChecksum, nil
}

func checksumTable(ctx context.Context, db *sql.DB, tableName string) (sql.NullInt64, error) {
	var name string
	var checksum sql.NullInt64
	query := fmt.Sprintf("CHECKSUM TABLE `%s`", tableName)
	if err := db.QueryRowContext(ctx, query).Scan(&name, &checksum); err != nil {
		return sql.NullInt64{}, err
	}
	return checksum, nil
}

// TrySyncSchema runs the Schema Differ and applies its operations
// downstream. When throw is false, failures are swallowed and logged —
// the intended pre-data-sync mode, where column mismatches are the
// expected cause of an early failure that a later retry may fix.
func TrySyncSchema(ctx context.Context, upstream, downstream *sql.DB, twin *core.TableTwin, throw bool, rep *report.Reporter) error {
	rep.Emit(fmt.Sprintf("[Comparing upstream/downstream schemas for table: %s]", twin.Name))
	done := rep.Scope()
	defer done()

	if twin.SchemaSynced {
		rep.Emit("...schemas are in sync")
		return nil
	}

	changes, err := Diff(ctx, upstream, downstream, twin.Name)
	if err != nil {
		if !throw {
			rep.Emit("Error occurred while syncing schema, but errors were suppressed")
			rep.Emit("Will retry schema sync after data sync")
			rep.Emit(err.Error())
			return nil
		}
		return err
	}

	if changes.Empty() {
		twin.SchemaSynced = true
		rep.Emit("...schemas are in sync")
		return nil
	}

	reportSchemaChange(twin.Name, changes, rep)
	twin.SchemaSynced = true
	rep.Emit("...schemas were NOT in sync, changes applied downstream")
	return nil
}

func reportSchemaChange(tableName string, c *ColumnChanges, rep *report.Reporter) {
	msg := fmt.Sprintf("%s : schema changed (added=%v removed=%v modified=%v)",
		tableName, columnNames(c.Added), columnNames(c.Removed), columnNames(c.Modified))
	rep.AppendSummary(msg)
	rep.Emit(msg)
}

func columnNames[T interface{ ColumnName() string }](items []T) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.ColumnName()
	}
	return names
}
