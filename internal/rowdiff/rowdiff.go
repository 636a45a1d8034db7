// Package rowdiff implements the Diff Finder (spec §4.5): given a set
// of scopes and a granularity, fingerprint both sides and stream back
// the addresses (single row ids at granularity 1, row-ranges above it)
// where the fingerprints disagree or are missing on one side.
package rowdiff

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"tablesync/internal/core"
	"tablesync/internal/fingerprint"
	"tablesync/internal/report"
)

// Find streams every address within scopes whose upstream and
// downstream fingerprints disagree, at the given granularity. It is
// grounded on db.py:find_diffs, reimplemented as a channel-based
// generator rather than a Python generator: the caller ranges over
// addrs until it closes, then checks errc for a single terminal error
// (nil if the scan completed cleanly). The producing goroutine stops
// as soon as ctx is canceled.
func Find(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	scopes []core.Interval,
	granularity int64,
	condition string,
	rep *report.Reporter,
) (<-chan core.Interval, <-chan error) {
	addrs := make(chan core.Interval)
	errc := make(chan error, 1)

	go func() {
		defer close(addrs)
		defer close(errc)
		errc <- find(ctx, upstream, downstream, twin, scopes, granularity, condition, rep, addrs)
	}()

	return addrs, errc
}

func find(
	ctx context.Context,
	upstream, downstream *sql.DB,
	twin *core.TableTwin,
	scopes []core.Interval,
	granularity int64,
	condition string,
	rep *report.Reporter,
	addrs chan<- core.Interval,
) error {
	conditions := make([]string, len(scopes))
	for i, scope := range scopes {
		conditions[i] = fmt.Sprintf("%s BETWEEN %d AND %d", quoted(twin.IDCol), scope.Start, scope.End)
	}

	thing := "range"
	if granularity <= 1 {
		thing = "row"
	}

	batches := core.PartitionInt64(core.BatchFingerprints, conditions)
	rep.Emitf("[Generating %s fingerprint of size %d across %d scope(s)]", thing, granularity, len(scopes))
	scope := rep.Scope()
	defer scope()

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		rep.Emitf("[ Batch %d of %d ]", i+1, len(batches))
		batchCondition := strings.Join(batch, " OR ")
		if condition != "" {
			batchCondition = condition + " AND (" + batchCondition + ")"
		}

		downFp, upFp, err := scanBoth(ctx, upstream, downstream, twin, batchCondition, granularity)
		if err != nil {
			return err
		}

		addresses := unionKeys(downFp, upFp)

		markScope := rep.Scope()
		for _, addr := range addresses {
			downVal, downOK := downFp[addr]
			upVal, upOK := upFp[addr]
			changed := !downOK || !upOK || downVal != upVal
			rep.Mark(changed)
			if changed {
				select {
				case addrs <- addr:
				case <-ctx.Done():
					markScope()
					return ctx.Err()
				}
			}
		}
		markScope()
	}

	return nil
}

func scanBoth(ctx context.Context, upstream, downstream *sql.DB, twin *core.TableTwin, condition string, granularity int64) (down, up core.FingerprintMap, err error) {
	if granularity <= 1 {
		downRows, err := fingerprint.Rows(ctx, downstream, twin.Downstream, condition)
		if err != nil {
			return nil, nil, err
		}
		upRows, err := fingerprint.Rows(ctx, upstream, twin.Upstream, condition)
		if err != nil {
			return nil, nil, err
		}
		return toFingerprintMap(downRows), toFingerprintMap(upRows), nil
	}

	down, err = fingerprint.RowRanges(ctx, downstream, twin.Downstream, condition, granularity)
	if err != nil {
		return nil, nil, err
	}
	up, err = fingerprint.RowRanges(ctx, upstream, twin.Upstream, condition, granularity)
	if err != nil {
		return nil, nil, err
	}
	return down, up, nil
}

func toFingerprintMap(rows map[int64]string) core.FingerprintMap {
	out := make(core.FingerprintMap, len(rows))
	for id, fp := range rows {
		out[core.Interval{Start: id, End: id}] = fp
	}
	return out
}

func unionKeys(a, b core.FingerprintMap) []core.Interval {
	seen := make(map[core.Interval]struct{}, len(a)+len(b))
	out := make([]core.Interval, 0, len(a)+len(b))
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func quoted(name string) string {
	return "`" + name + "`"
}
