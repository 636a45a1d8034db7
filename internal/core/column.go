package core

import (
	"fmt"
	"strings"
)

// ColumnExpression pairs a column's bare name with a SQL expression
// that renders it safe to embed inside GROUP_CONCAT / CONCAT_WS: never
// NULL, never silently mis-ordered by collation, never raw binary
// bytes that would upset the client's charset.
type ColumnExpression struct {
	Name string
	Expr string
}

// ColumnMeta is what the Column Descriptor needs from information_schema
// to decide which of the four concatenation rules apply.
type ColumnMeta struct {
	Name       string
	Nullable   bool
	ColumnType string // e.g. "varchar(255)", "binary(16)"
	Collation  string // empty/"NULL" for non-string columns
}

// DefaultCollation is the collation the concatenation rules treat as
// "no special handling needed".
const DefaultCollation = "utf8_general_ci"

// BuildColumnExpression applies the four ordered rules from spec §3/§4.1:
//  1. Base: backquoted name.
//  2. Nullable columns are wrapped in IFNULL(x,'NULL').
//  3. A non-default, non-empty collation forces a BINARY prefix.
//  4. A binary(...) column type is wrapped in hex(...).
func BuildColumnExpression(m ColumnMeta) (ColumnExpression, error) {
	if m.Name == "" {
		return ColumnExpression{}, fmt.Errorf("core: column descriptor requires a name")
	}

	expr := fmt.Sprintf("`%s`", m.Name)

	if m.Nullable {
		expr = fmt.Sprintf("IFNULL(%s,'NULL')", expr)
	}

	if m.Collation != "" && m.Collation != "NULL" && m.Collation != DefaultCollation {
		expr = "BINARY " + expr
	}

	if strings.Contains(m.ColumnType, "binary(") {
		expr = fmt.Sprintf("hex(%s)", expr)
	}

	return ColumnExpression{Name: m.Name, Expr: expr}, nil
}
