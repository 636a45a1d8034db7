package core

// TableSide is one side (upstream or downstream) of a synced table, as
// captured at the start of its sync. MaxID is read once and never
// refreshed for the lifetime of the Twin — extra upstream rows that
// show up mid-run are a later run's problem.
type TableSide struct {
	Name    string
	IDCol   string
	Columns []ColumnExpression
	MaxID   int64
}

// ColumnExprList renders Columns as the comma-joined expression list
// consumed by GROUP_CONCAT / CONCAT_WS.
func (s TableSide) ColumnExprList() []string {
	exprs := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		exprs[i] = c.Expr
	}
	return exprs
}

// HasColumn reports whether name is one of Columns, by name. Used by
// Pre-sync to decide whether the id-extension and modified-time passes
// apply to this table at all (spec §4.6).
func (s TableSide) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// TableTwin is the paired upstream/downstream view of one table.
type TableTwin struct {
	Name         string
	IDCol        string
	Upstream     TableSide
	Downstream   TableSide
	NeedsWork    bool
	SchemaSynced bool
}

// CompositeTwin is a TableTwin for a table without a single monotonic
// id column; it's identified by a composite key instead (spec §4.8).
type CompositeTwin struct {
	Name       string
	Keys       []string // Keys[0] is the cardinality/grouping key
	Upstream   TableSide
	Downstream TableSide
}
