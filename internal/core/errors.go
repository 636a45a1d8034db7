package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// SchemaMisalignedError is returned when a column exists under the same
// name on both sides but the Schema Differ cannot reconcile it (spec
// §4.3/§7). Fatal for the table.
type SchemaMisalignedError struct {
	Table  string
	Column string
}

func (e *SchemaMisalignedError) Error() string {
	return fmt.Sprintf("schema misaligned for %s.%s: column present on both sides "+
		"but positions/types could not be reconciled", e.Table, e.Column)
}

// SchemaDriftError wraps a dump failure caused by a column-count
// mismatch (spec §4.7 schema-drift fallback, §7 SchemaDrift). The
// original driver error is preserved via pkg/errors so the fallback
// path's retry-once logic can still inspect the root cause if the
// second attempt also fails.
type SchemaDriftError struct {
	Table string
	cause error
}

// NewSchemaDriftError wraps cause, tagging it as a schema-drift failure
// for table.
func NewSchemaDriftError(table string, cause error) *SchemaDriftError {
	return &SchemaDriftError{Table: table, cause: errors.Wrap(cause, "column count mismatch")}
}

func (e *SchemaDriftError) Error() string {
	return fmt.Sprintf("schema drift on table %s: %v", e.Table, e.cause)
}

func (e *SchemaDriftError) Unwrap() error { return e.cause }

// Cause returns the innermost wrapped error, for callers that want the
// original driver diagnostic rather than this package's framing.
func (e *SchemaDriftError) Cause() error { return errors.Cause(e.cause) }

// ProgrammerError marks a granularity/operation mismatch or unknown
// column type: a bug, not a runtime condition a re-run can fix.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Msg }

// ConfigInvalidError marks a fatal, pre-sync configuration problem:
// missing required argument, unreadable socket, invalid cipher.
type ConfigInvalidError struct {
	Msg string
}

func (e *ConfigInvalidError) Error() string { return "invalid configuration: " + e.Msg }

// UnreconciledError records that, after all passes, is_synced() still
// returns false. Not fatal — surfaced in the summary as HAS CHANGES.
type UnreconciledError struct {
	Table string
}

func (e *UnreconciledError) Error() string {
	return fmt.Sprintf("table %s still has changes after all sync passes", e.Table)
}

// CancellationError is raised when a suspension point (db round trip,
// dump/load subprocess) observes a cancellation signal.
type CancellationError struct {
	Table string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("sync of table %s was cancelled", e.Table)
}
