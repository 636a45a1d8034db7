// Package fingerprint implements the server-side MD5 fingerprinting
// primitives the zoom scanner and row differ build on (spec §4.4):
// per-row fingerprints, per-range fingerprints via GROUP_CONCAT, and
// the GROUP_CONCAT budget negotiation that keeps range queries from
// being silently truncated.
package fingerprint

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"tablesync/internal/core"
)

// Budget discovers how many row fingerprints a server is willing to
// GROUP_CONCAT in one query, grounded on db.py's get_group_concat: ask
// for a large group_concat_max_len, then measure what the server
// actually granted and back-compute a safe row count from the width of
// a single hex MD5 plus its separator.
func Budget(ctx context.Context, db *sql.DB) (core.GroupConcatBudget, error) {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET SESSION group_concat_max_len = %d", core.GroupConcatTry)); err != nil {
		return core.GroupConcatBudget{}, fmt.Errorf("fingerprint: requesting group_concat_max_len: %w", err)
	}

	var varName string
	var grantedBytes int64
	err := db.QueryRowContext(ctx, "SHOW VARIABLES WHERE Variable_name = 'group_concat_max_len'").
		Scan(&varName, &grantedBytes)
	if err != nil {
		return core.GroupConcatBudget{}, fmt.Errorf("fingerprint: reading group_concat_max_len: %w", err)
	}

	var md5Bytes int64
	err = db.QueryRowContext(ctx, "SELECT length(concat(md5('foo'), ',')) AS md5_bytes").Scan(&md5Bytes)
	if err != nil {
		return core.GroupConcatBudget{}, fmt.Errorf("fingerprint: measuring md5 width: %w", err)
	}

	rows := int64(math.Floor(float64(grantedBytes) / float64(md5Bytes)))
	return core.GroupConcatBudget{Rows: rows, Bytes: grantedBytes}, nil
}

// SetBudget reasserts a previously discovered group_concat_max_len —
// used when reconnecting, so every session in the pool agrees on the
// same safe row count (db.py's set_group_concat / reup_maxes).
func SetBudget(ctx context.Context, db *sql.DB, bytes int64) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("SET SESSION group_concat_max_len = %d", bytes))
	if err != nil {
		return fmt.Errorf("fingerprint: setting group_concat_max_len: %w", err)
	}
	return nil
}

// Rows fingerprints each row individually (granularity == 1; spec
// §4.4's finest zoom level), grounded on table.py:md5_rows. Returned
// map keys are row ids.
func Rows(ctx context.Context, db *sql.DB, side core.TableSide, condition string) (map[int64]string, error) {
	query := fmt.Sprintf(`
		SELECT %s AS id, MD5(CONCAT_WS('|', %s)) AS fingerprint
		FROM %s
		WHERE %s
		ORDER BY %s
	`, quoted(side.IDCol), strings.Join(side.ColumnExprList(), ","), quoted(side.Name), condition, quoted(side.IDCol))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: row scan of %s: %w", side.Name, err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, fmt.Errorf("fingerprint: scanning row of %s: %w", side.Name, err)
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// RowRanges fingerprints contiguous row-ranges of the given
// granularity (> 1) via a single GROUP_CONCAT query, grounded on
// table.py:md5_row_ranges. Returned map keys are the address of each
// range (granularity-sized interval).
func RowRanges(ctx context.Context, db *sql.DB, side core.TableSide, condition string, granularity int64) (core.FingerprintMap, error) {
	if granularity <= 1 {
		return nil, fmt.Errorf("fingerprint: RowRanges called with trivial granularity %d", granularity)
	}

	query := fmt.Sprintf(`
		SELECT MD5(GROUP_CONCAT(row_fingerprint ORDER BY id)) AS range_fingerprint,
		       row_group * %d AS range_begin,
		       (row_group + 1) * %d - 1 AS range_end
		FROM (
		    SELECT MD5(CONCAT_WS('|', %s)) AS row_fingerprint,
		           FLOOR(%s / %d) AS row_group,
		           %s AS id
		    FROM %s
		    WHERE %s
		    ORDER BY %s
		) AS r
		GROUP BY row_group
	`, granularity, granularity, strings.Join(side.ColumnExprList(), ","),
		quoted(side.IDCol), granularity, quoted(side.IDCol), quoted(side.Name), condition, quoted(side.IDCol))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: range scan of %s: %w", side.Name, err)
	}
	defer rows.Close()

	out := make(core.FingerprintMap)
	for rows.Next() {
		var fp string
		var begin, end int64
		if err := rows.Scan(&fp, &begin, &end); err != nil {
			return nil, fmt.Errorf("fingerprint: scanning range of %s: %w", side.Name, err)
		}
		interval, err := core.NewInterval(begin, end)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: range bounds of %s: %w", side.Name, err)
		}
		out[interval] = fp
	}
	return out, rows.Err()
}

func quoted(name string) string {
	return "`" + name + "`"
}
