// Package engine ties a Slice's configuration to the sync passes
// (Pre-sync/Zoom for single-id tables, group sync for composite-key
// ones), grounded on slice.py:main's per-table driving loop and
// example_sync.py:get_steps's table -> sync-lambda dispatch, made
// declarative instead of a hand-written lambda dict.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"tablesync/internal/composite"
	"tablesync/internal/config"
	"tablesync/internal/core"
	"tablesync/internal/dbio"
	"tablesync/internal/keys"
	"tablesync/internal/presync"
	"tablesync/internal/report"
	"tablesync/internal/zoom"
)

// Options configures a slice run beyond what's in the TOML itself:
// where scratch dump files live, and whether foreign/unique keys
// should be stripped from downstream before syncing (a one-time
// bootstrap step, not something every run repeats).
type Options struct {
	DumpDir          string
	StripForeignKeys bool
	StripUniqueKeys  bool
}

// RunSlice opens both sides of s, optionally strips downstream
// constraints, then syncs every non-skipped table in declaration
// order, reporting a final summary roll-up.
func RunSlice(ctx context.Context, s *config.Slice, opts Options, rep *report.Reporter) error {
	upstream, downstream, err := openBoth(ctx, s)
	if err != nil {
		return err
	}
	defer upstream.Close()
	defer downstream.Close()

	if err := stripKeys(ctx, downstream, s, opts, rep); err != nil {
		return err
	}

	dumper := dbio.MySQLDumper{Args: s.Upstream}
	loader := dbio.MySQLLoader{Args: s.Downstream}

	rep.Emitf("[Slice: %s]", s.Name)
	sliceScope := rep.Scope()
	defer sliceScope()
	defer rep.FlushSummary()

	var failed []string
	for _, t := range s.Tables {
		if t.Skip {
			rep.Emitf("%s : skipped", t.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return &core.CancellationError{Table: t.Name}
		}
		if err := syncTable(ctx, upstream, downstream, dumper, loader, s, t, opts, rep); err != nil {
			// A cancellation signal aborts every remaining table; any
			// other failure is this table's alone, reported in the
			// summary roll-up, and the loop moves on.
			if ctx.Err() != nil {
				return &core.CancellationError{Table: t.Name}
			}
			rep.Emitf("%s : sync failed: %v", t.Name, err)
			rep.AppendSummary(fmt.Sprintf("%s : FAILED (%v)", t.Name, err))
			failed = append(failed, t.Name)
			continue
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("engine: %d table(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// StripKeysOnly opens s's connections and applies opts' key-stripping
// steps without syncing any table — the bootstrap path for a brand
// new downstream, run once ahead of the first real sync.
func StripKeysOnly(ctx context.Context, s *config.Slice, opts Options, rep *report.Reporter) error {
	upstream, downstream, err := openBoth(ctx, s)
	if err != nil {
		return err
	}
	defer upstream.Close()
	defer downstream.Close()

	return stripKeys(ctx, downstream, s, opts, rep)
}

func openBoth(ctx context.Context, s *config.Slice) (upstream, downstream *sql.DB, err error) {
	upstream, err = sql.Open("mysql", s.Upstream.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("engine: opening upstream: %w", err)
	}
	downstream, err = sql.Open("mysql", s.Downstream.DSN())
	if err != nil {
		upstream.Close()
		return nil, nil, fmt.Errorf("engine: opening downstream: %w", err)
	}
	if err = upstream.PingContext(ctx); err != nil {
		upstream.Close()
		downstream.Close()
		return nil, nil, fmt.Errorf("engine: pinging upstream: %w", err)
	}
	if err = downstream.PingContext(ctx); err != nil {
		upstream.Close()
		downstream.Close()
		return nil, nil, fmt.Errorf("engine: pinging downstream: %w", err)
	}
	return upstream, downstream, nil
}

func stripKeys(ctx context.Context, downstream *sql.DB, s *config.Slice, opts Options, rep *report.Reporter) error {
	if opts.StripForeignKeys {
		if err := keys.StripForeignKeys(ctx, downstream, s.Downstream.Database, rep); err != nil {
			return err
		}
	}
	if opts.StripUniqueKeys {
		if err := keys.StripUniqueKeys(ctx, downstream, s.Downstream.Database, rep); err != nil {
			return err
		}
	}
	return nil
}

func syncTable(
	ctx context.Context,
	upstream, downstream *sql.DB,
	dumper dbio.MySQLDumper,
	loader dbio.MySQLLoader,
	s *config.Slice,
	t config.TableSpec,
	opts Options,
	rep *report.Reporter,
) error {
	dumpPath := filepath.Join(opts.DumpDir, t.Name+".sql")
	defer os.Remove(dumpPath)

	if t.IsComposite() {
		return composite.Sync(ctx, upstream, downstream, t.Name, t.CompositeKeys, dumper, loader, t.Condition, dumpPath, rep)
	}

	schemaDumpPath := filepath.Join(opts.DumpDir, t.Name+".schema.sql")
	defer os.Remove(schemaDumpPath)

	idCol := t.IDColumn
	if idCol == "" {
		idCol = "id"
	}

	return zoom.Sync(
		ctx, upstream, downstream,
		t.Name, idCol, t.ZoomLevels,
		dumper, loader, dumper,
		core.BatchRows, t.Condition,
		dumpPath, schemaDumpPath,
		presync.Options{Lite: s.Lite},
		rep,
	)
}
