package core

import "context"

// Dumper is the external collaborator that exports a slice of rows to
// a portable SQL script (spec §6): no schema, no GTID, no table locks.
// Implementations shell out to a real dump binary; the sync engine
// only depends on this interface so tests can substitute a fake.
type Dumper interface {
	Dump(ctx context.Context, table, whereClause string, appendMode bool, outputPath string) error
}

// Loader is the external collaborator that applies a dump file's SQL
// script against a target database (spec §6).
type Loader interface {
	Load(ctx context.Context, inputPath string) error
}

// SchemaDumper is the narrower collaborator the schema-drift fallback
// needs (spec §4.7): dump a single table's CREATE TABLE statement so
// it can be recreated downstream from scratch.
type SchemaDumper interface {
	DumpSchema(ctx context.Context, table, outputPath string) error
}
