package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildColumnExpressionBareColumn(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{Name: "id"})
	require.NoError(t, err)
	assert.Equal(t, "`id`", expr.Expr)
}

func TestBuildColumnExpressionNullable(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{Name: "notes", Nullable: true})
	require.NoError(t, err)
	assert.Equal(t, "IFNULL(`notes`,'NULL')", expr.Expr)
}

func TestBuildColumnExpressionNonDefaultCollation(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{Name: "name", Collation: "utf8mb4_unicode_ci"})
	require.NoError(t, err)
	assert.Equal(t, "BINARY `name`", expr.Expr)
}

func TestBuildColumnExpressionDefaultCollationUnaffected(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{Name: "name", Collation: DefaultCollation})
	require.NoError(t, err)
	assert.Equal(t, "`name`", expr.Expr)
}

func TestBuildColumnExpressionBinaryType(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{Name: "token", ColumnType: "binary(16)"})
	require.NoError(t, err)
	assert.Equal(t, "hex(`token`)", expr.Expr)
}

func TestBuildColumnExpressionAllRulesCombine(t *testing.T) {
	expr, err := BuildColumnExpression(ColumnMeta{
		Name:       "token",
		Nullable:   true,
		Collation:  "utf8mb4_bin",
		ColumnType: "binary(16)",
	})
	require.NoError(t, err)
	assert.Equal(t, "hex(BINARY IFNULL(`token`,'NULL'))", expr.Expr)
}

func TestBuildColumnExpressionRequiresName(t *testing.T) {
	_, err := BuildColumnExpression(ColumnMeta{})
	assert.Error(t, err)
}
