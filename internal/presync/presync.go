// Package presync implements Pre-sync (spec §4.6): the two cheap
// passes that run before any fingerprint scanning — extending the
// downstream id range to match upstream (or pruning it back), and
// pulling rows upstream has touched more recently than downstream's
// own modified_time watermark.
package presync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"tablesync/internal/core"
	"tablesync/internal/report"
	"tablesync/internal/schemasync"
)

// Options configures a Pre-sync pass. Lite skips the interim
// is_synced() checksum call after presync (spec §4.6): in that mode
// NeedsWork is true only when presync transferred nothing at all, so a
// run that found no fast-path work still falls through to the full
// zoom recursion rather than being reported UNVERIFIED without ever
// having scanned anything.
type Options struct {
	Lite bool
}

// Result is the outcome of a Pre-sync pass for one table.
type Result struct {
	Twin       *core.TableTwin
	NeedsWork  bool
	Preposition string // human-readable "after X & Y" summary fragment
	Verified   bool    // true when is_synced() actually ran (not skipped by Lite)
}

// Run executes Pre-sync for tableName: open the twin, try the schema
// sync non-fatally, pull missing ids, pull modified-time changes, then
// decide whether zoom recursion is still needed (spec §4.6).
func Run(
	ctx context.Context,
	upstream, downstream *sql.DB,
	tableName, idCol string,
	dumper core.Dumper,
	loader core.Loader,
	batchRows int64,
	condition string,
	dumpPath string,
	opts Options,
	rep *report.Reporter,
) (*Result, error) {
	rep.Emitf("[Examining table: %s]", tableName)
	scope := rep.Scope()
	defer scope()

	twin, err := schemasync.Open(ctx, upstream, downstream, tableName, idCol, rep)
	if err != nil {
		return nil, err
	}

	if err := schemasync.TrySyncSchema(ctx, upstream, downstream, twin, false, rep); err != nil {
		return nil, err
	}

	var lastTouched sql.NullString
	if twin.Upstream.HasColumn("modified_time") {
		lastTouched, err = lastModifiedTime(ctx, downstream, tableName)
		if err != nil {
			return nil, fmt.Errorf("presync: reading downstream modified_time watermark for %s: %w", tableName, err)
		}
	}

	var presyncTypes []string

	if twin.Upstream.HasColumn(idCol) {
		rep.Emitf("[syncing (on '%s') table: %s]", idCol, tableName)
		transferred, err := PullMissingIDs(ctx, upstream, downstream, twin, dumper, loader, batchRows, condition, dumpPath, rep)
		if err != nil {
			return nil, err
		}
		if transferred {
			presyncTypes = append(presyncTypes, "missing-id comparison")
		}
	}

	if twin.Upstream.HasColumn("modified_time") && lastTouched.Valid {
		rep.Emitf("[syncing (on 'modified_time') table: %s]", tableName)
		transferred, err := PullModificationsSince(ctx, upstream, downstream, twin, lastTouched.String, dumper, loader, condition, dumpPath, rep)
		if err != nil {
			return nil, err
		}
		if transferred {
			presyncTypes = append(presyncTypes, "modified_time comparison")
		}
	}

	if len(presyncTypes) == 0 {
		presyncTypes = append(presyncTypes, "not finding any changes")
	}
	preposition := "after " + strings.Join(presyncTypes, " & ")

	result := &Result{Twin: twin, Preposition: preposition}

	if opts.Lite {
		rep.Emit("Skipped interim equality check due to lite mode")
		result.NeedsWork = len(presyncTypes) == 1 && presyncTypes[0] == "not finding any changes"
		twin.NeedsWork = result.NeedsWork
		return result, nil
	}

	rep.Emitf("[Interim equality check for table %s]", tableName)
	synced, err := schemasync.IsSynced(ctx, upstream, downstream, tableName)
	if err != nil {
		return nil, err
	}
	result.Verified = true
	result.NeedsWork = !synced
	twin.NeedsWork = result.NeedsWork
	return result, nil
}

func lastModifiedTime(ctx context.Context, db *sql.DB, tableName string) (sql.NullString, error) {
	var v sql.NullString
	query := fmt.Sprintf("SELECT MAX(`modified_time`) FROM `%s`", tableName)
	if err := db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return sql.NullString{}, err
	}
	return v, nil
}

// PullMissingIDs extends downstream to match upstream's id range, or
// prunes it back if downstream is ahead (spec §4.6 step 1, grounded on
// sync.py:pull_missing_ids). Returns whether any rows were moved.
func PullMissingIDs(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	dumper core.Dumper,
	loader core.Loader,
	batchRows int64,
	condition string,
	dumpPath string,
	rep *report.Reporter,
) (bool, error) {
	makeSpaceDownstream := func() error {
		where := fmt.Sprintf("%s > %d", quoted(twin.IDCol), twin.Upstream.MaxID)
		if condition != "" {
			where += " AND " + condition
		}
		query := fmt.Sprintf("DELETE FROM `%s` WHERE %s", twin.Name, where)
		_, err := downstream.ExecContext(ctx, query)
		return err
	}

	if twin.Downstream.MaxID == twin.Upstream.MaxID {
		rep.Emit("Nothing to sync")
		return false, nil
	}

	if twin.Downstream.MaxID > twin.Upstream.MaxID {
		rep.Emit("Downstream db has more rows, deleting them.")
		if err := makeSpaceDownstream(); err != nil {
			return false, fmt.Errorf("presync: pruning downstream rows of %s: %w", twin.Name, err)
		}
		return true, nil
	}

	rep.Emit("Upstream db has more rows, pulling them.")
	minID := twin.Downstream.MaxID + 1
	if twin.Downstream.MaxID == 0 {
		minID = 0
	}

	batches := idBatches(minID, twin.Upstream.MaxID, batchRows)
	for i, batch := range batches {
		where := fmt.Sprintf("%s BETWEEN %d AND %d", quoted(twin.IDCol), batch.Start, batch.End)
		if condition != "" {
			where += " AND " + condition
		}
		if err := dumper.Dump(ctx, twin.Name, where, i > 0, dumpPath); err != nil {
			return false, fmt.Errorf("presync: dumping id range %s: %w", batch, err)
		}
	}

	rep.Emit("Making space downstream")
	if err := makeSpaceDownstream(); err != nil {
		return false, fmt.Errorf("presync: pruning downstream rows of %s: %w", twin.Name, err)
	}

	rep.Emit("Loading updated rows")
	if err := loader.Load(ctx, dumpPath); err != nil {
		return false, fmt.Errorf("presync: loading dump for %s: %w", twin.Name, err)
	}
	if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("presync: cleaning up dump file %s: %w", dumpPath, err)
	}

	return true, nil
}

// PullModificationsSince pulls rows upstream whose modified_time column
// is newer than date (spec §4.6 step 2, grounded on
// sync.py:pull_modifications_since).
func PullModificationsSince(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	date string,
	dumper core.Dumper,
	loader core.Loader,
	condition string,
	dumpPath string,
	rep *report.Reporter,
) (bool, error) {
	rep.Emitf("syncing rows from %s with modified_time newer than %s", twin.Name, date)

	selectWhere := fmt.Sprintf("`modified_time` > '%s'", date)
	if condition != "" {
		selectWhere += " AND " + condition
	}
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE %s", quoted(twin.IDCol), twin.Name, selectWhere)

	rows, err := upstream.QueryContext(ctx, query)
	if err != nil {
		return false, fmt.Errorf("presync: finding modified rows of %s: %w", twin.Name, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return false, fmt.Errorf("presync: scanning modified id of %s: %w", twin.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return false, err
	}
	rows.Close()

	if len(ids) == 0 {
		rep.Emit("No recent modifications found")
		return false, nil
	}
	rep.Emitf("Found %d such rows", len(ids))

	chunks := core.PartitionInt64(core.BatchConditions, ids)
	rep.Emitf("Proceeding in %d batches", len(chunks))
	scope := rep.Scope()
	defer scope()

	for _, chunk := range chunks {
		idsCondition := fmt.Sprintf("%s IN (%s)", quoted(twin.IDCol), joinIDs(chunk))

		if err := dumper.Dump(ctx, twin.Name, idsCondition, false, dumpPath); err != nil {
			return false, fmt.Errorf("presync: dumping modified rows of %s: %w", twin.Name, err)
		}

		deleteQuery := fmt.Sprintf("DELETE FROM `%s` WHERE %s", twin.Name, idsCondition)
		if _, err := downstream.ExecContext(ctx, deleteQuery); err != nil {
			return false, fmt.Errorf("presync: clearing modified rows of %s: %w", twin.Name, err)
		}

		if err := loader.Load(ctx, dumpPath); err != nil {
			return false, fmt.Errorf("presync: loading modified rows of %s: %w", twin.Name, err)
		}
	}
	if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("presync: cleaning up dump file %s: %w", dumpPath, err)
	}

	return true, nil
}

func idBatches(minID, maxID, batchRows int64) []core.Interval {
	if batchRows <= 0 {
		batchRows = core.BatchRows
	}
	var batches []core.Interval
	for start := minID; start <= maxID; start += batchRows {
		end := start + batchRows - 1
		if end > maxID {
			end = maxID
		}
		batches = append(batches, core.Interval{Start: start, End: end})
	}
	return batches
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func quoted(name string) string {
	return "`" + name + "`"
}
