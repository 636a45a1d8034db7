// Package zoom implements the Zoom Recursion (spec §4.7), the
// `general` function of the original tool: drives a ZoomMap from
// coarse to fine, fingerprinting progressively smaller row-ranges
// until only genuinely mismatching rows are left, then transfers them.
package zoom

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"tablesync/internal/core"
	"tablesync/internal/fingerprint"
	"tablesync/internal/presync"
	"tablesync/internal/report"
	"tablesync/internal/rowdiff"
	"tablesync/internal/schemasync"
)

// Sync runs Pre-sync, then — if it wasn't sufficient — the full zoom
// recursion down to magnifications[len-1] (typically 1, individual
// rows), transferring whatever's left mismatching.
//
// schemaDumper may be nil; when set, a dump failure whose message
// matches MySQL's "Column count doesn't match" error triggers the
// schema-drift fallback (spec §4.7): dump upstream's schema for this
// table alone, drop the downstream table, recreate it, and retry
// Pre-sync once.
func Sync(
	ctx context.Context,
	upstream, downstream *sql.DB,
	tableName, idCol string,
	magnifications []int64,
	dumper core.Dumper,
	loader core.Loader,
	schemaDumper core.SchemaDumper,
	batchRows int64,
	condition string,
	dumpPath, schemaDumpPath string,
	opts presync.Options,
	rep *report.Reporter,
) error {
	result, err := presync.Run(ctx, upstream, downstream, tableName, idCol, dumper, loader, batchRows, condition, dumpPath, opts, rep)
	if err != nil {
		if !isSchemaDriftError(err) || schemaDumper == nil {
			return err
		}
		rep.Emit("Upstream schema differs, pulling it down")
		if derr := dropAndRecreate(ctx, downstream, schemaDumper, tableName, schemaDumpPath, loader, rep); derr != nil {
			return derr
		}
		rep.Emit("[New schema loaded, downstream table is empty]")
		result, err = presync.Run(ctx, upstream, downstream, tableName, idCol, dumper, loader, batchRows, condition, dumpPath, opts, rep)
		if err != nil {
			return core.NewSchemaDriftError(tableName, err)
		}
	}

	twin := result.Twin
	if !result.NeedsWork {
		rep.Emit("Sync: 'general' finished early: presync was sufficient")
		return nil
	}

	rep.Emit("[Sync: 'general' top-level recursion]")
	scope := rep.Scope()
	defer scope()

	zm := core.NewZoomMap(magnifications, twin.Upstream.MaxID)

	budget, err := discoverBudget(ctx, upstream, downstream)
	if err != nil {
		return err
	}
	rep.Emitf("[group_concat budget negotiated: %s per query]", report.ByteSize(budget.Bytes))

	return recurse(ctx, upstream, downstream, twin, zm, condition, budget, dumper, loader, dumpPath, rep)
}

func recurse(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	zm *core.ZoomMap,
	condition string,
	budget core.GroupConcatBudget,
	dumper core.Dumper,
	loader core.Loader,
	dumpPath string,
	rep *report.Reporter,
) error {
	granularity, scopes, ok := zm.NextToScan()
	if !ok {
		return transfer(ctx, upstream, downstream, twin, zm.Finest(), condition, dumper, loader, dumpPath, rep)
	}

	rep.Emitf("[Given %d larger-granules, making smaller granules of size %d and fingerprinting them]", len(scopes), granularity)
	scope := rep.Scope()

	// new sessions, reset group_concat (default is oddly low).
	if err := fingerprint.SetBudget(ctx, upstream, budget.Bytes); err != nil {
		scope()
		return err
	}
	if err := fingerprint.SetBudget(ctx, downstream, budget.Bytes); err != nil {
		scope()
		return err
	}

	addrs, errc := rowdiff.Find(ctx, upstream, downstream, twin, scopes, granularity, condition, rep)
	var next []core.Interval
	for addr := range addrs {
		next = append(next, addr)
	}
	if err := <-errc; err != nil {
		scope()
		return err
	}
	scope()

	if len(next) == 0 {
		rep.Emit("Found no ranges with diffs. Nothing to do.")
		rep.Emit("If the tables were truly identical, TABLE CHECKSUM would have prevented sync from getting this far.")
		rep.Emit("Perhaps some columns were ignored during the scan?")
		rep.AppendSummary(fmt.Sprintf("%s : IDENTICAL? (TABLE CHECKSUM failed but a custom MD5 scan found no diffs)", twin.Name))
		return nil
	}

	zm.Populate(granularity, next)
	rep.Emit("[Another 'general' recursion]")
	next2 := rep.Scope()
	defer next2()
	return recurse(ctx, upstream, downstream, twin, zm, condition, budget, dumper, loader, dumpPath, rep)
}

func transfer(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	finest core.ZoomLevel,
	condition string,
	dumper core.Dumper,
	loader core.Loader,
	dumpPath string,
	rep *report.Reporter,
) error {
	rep.Emit("Zoom-level map fully populated, no more 'general' recursions will follow")

	scopes := finest.Scopes
	var conditions []string
	var candidateRows int64

	if finest.Granularity <= 1 {
		rep.Emit("Scanned down to individual rows")
		ids := make([]int64, len(scopes))
		for i, s := range scopes {
			ids[i] = s.Start
		}
		candidateRows = int64(len(ids))
		for _, batch := range core.PartitionInt64(core.BatchFingerprints, ids) {
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", quoted(twin.IDCol), joinIDs(batch)))
		}
	} else {
		rep.Emitf("Scanned down to row-ranges of size %d", finest.Granularity)
		for _, iv := range scopes {
			candidateRows += iv.End - iv.Start + 1
		}
		for _, batch := range core.PartitionInt64(core.BatchFingerprints, scopes) {
			parts := make([]string, len(batch))
			for i, iv := range batch {
				parts[i] = fmt.Sprintf("%s BETWEEN %d AND %d", quoted(twin.IDCol), iv.Start, iv.End)
			}
			conditions = append(conditions, strings.Join(parts, " OR "))
		}
	}

	rep.Emitf("[Transfer proceeding in %d batches, %s candidate rows]", len(conditions), report.RowCount(int(candidateRows)))
	scope := rep.Scope()
	for _, cond := range conditions {
		fullCondition := cond
		if condition != "" {
			fullCondition = condition + " AND (" + cond + ")"
		}

		if err := dumper.Dump(ctx, twin.Name, fullCondition, false, dumpPath); err != nil {
			scope()
			return fmt.Errorf("zoom: dumping %s transfer predicate: %w", twin.Name, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM `%s` WHERE %s", twin.Name, fullCondition)
		if _, err := downstream.ExecContext(ctx, deleteQuery); err != nil {
			scope()
			return fmt.Errorf("zoom: clearing %s transfer predicate: %w", twin.Name, err)
		}
		if err := loader.Load(ctx, dumpPath); err != nil {
			scope()
			return fmt.Errorf("zoom: loading %s transfer predicate: %w", twin.Name, err)
		}
	}
	scope()
	if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("zoom: cleaning up dump file %s: %w", dumpPath, err)
	}

	synced, err := schemasync.IsSynced(ctx, upstream, downstream, twin.Name)
	if err != nil {
		return err
	}
	if synced {
		rep.AppendSummary(fmt.Sprintf("%s : IDENTICAL (after general sync)", twin.Name))
	} else {
		rep.AppendSummary(fmt.Sprintf(
			"%s : DIFFERS (after general sync) (Attempts exhausted, were changes made during sync?)", twin.Name))
	}

	return schemasync.TrySyncSchema(ctx, upstream, downstream, twin, true, rep)
}

func discoverBudget(ctx context.Context, upstream, downstream *sql.DB) (core.GroupConcatBudget, error) {
	upBudget, err := fingerprint.Budget(ctx, upstream)
	if err != nil {
		return core.GroupConcatBudget{}, fmt.Errorf("zoom: discovering upstream group_concat budget: %w", err)
	}
	downBudget, err := fingerprint.Budget(ctx, downstream)
	if err != nil {
		return core.GroupConcatBudget{}, fmt.Errorf("zoom: discovering downstream group_concat budget: %w", err)
	}
	return upBudget.Min(downBudget), nil
}

func dropAndRecreate(
	ctx context.Context,
	downstream *sql.DB,
	schemaDumper core.SchemaDumper,
	tableName, schemaDumpPath string,
	loader core.Loader,
	rep *report.Reporter,
) error {
	scope := rep.Scope()
	defer scope()

	if err := schemaDumper.DumpSchema(ctx, tableName, schemaDumpPath); err != nil {
		return fmt.Errorf("zoom: dumping schema for %s: %w", tableName, err)
	}
	if _, err := downstream.ExecContext(ctx, fmt.Sprintf("DROP TABLE `%s`", tableName)); err != nil {
		return fmt.Errorf("zoom: dropping downstream table %s: %w", tableName, err)
	}
	if err := loader.Load(ctx, schemaDumpPath); err != nil {
		return fmt.Errorf("zoom: recreating downstream table %s: %w", tableName, err)
	}
	return nil
}

func isSchemaDriftError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Column count doesn't match")
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
