package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMinimalSlice(t *testing.T) {
	doc := `
name = "billing"

[upstream]
host = "upstream.db"
user = "reader"
database = "billing"

[downstream]
host = "downstream.db"
user = "writer"
database = "billing"

[[tables]]
name = "invoices"
zoom_levels = [1000, 1]
`
	s, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "billing", s.Name)
	assert.False(t, s.Lite)
	require.Len(t, s.Tables, 1)
	assert.Equal(t, "invoices", s.Tables[0].Name)
	assert.Equal(t, "id", s.Tables[0].IDColumn) // default backfilled
	assert.False(t, s.Tables[0].IsComposite())
}

func TestDecodeCompositeKeyTable(t *testing.T) {
	doc := `
name = "tenant-scoped"

[upstream]
socket = "/var/run/mysqld/mysqld.sock"
user = "reader"
database = "app"

[downstream]
socket = "/var/run/mysqld/mysqld.sock"
user = "writer"
database = "app"

[[tables]]
name = "tenant_settings"
composite_keys = ["tenant_id", "setting_key"]
`
	s, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, s.Tables, 1)
	assert.True(t, s.Tables[0].IsComposite())
	assert.Equal(t, []string{"tenant_id", "setting_key"}, s.Tables[0].CompositeKeys)
}

func TestDecodeRejectsMissingName(t *testing.T) {
	doc := `
[upstream]
host = "a"
[downstream]
host = "b"
[[tables]]
name = "t"
zoom_levels = [1]
`
	_, err := Decode(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeRejectsConnectionWithNoHostOrSocket(t *testing.T) {
	doc := `
name = "x"
[upstream]
user = "reader"
[downstream]
host = "b"
[[tables]]
name = "t"
zoom_levels = [1]
`
	_, err := Decode(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeRejectsNoTables(t *testing.T) {
	doc := `
name = "x"
[upstream]
host = "a"
[downstream]
host = "b"
`
	_, err := Decode(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeRejectsTableWithNoSyncStrategy(t *testing.T) {
	doc := `
name = "x"
[upstream]
host = "a"
[downstream]
host = "b"
[[tables]]
name = "orphan"
`
	_, err := Decode(strings.NewReader(doc))
	assert.Error(t, err)
}

func TestDecodeAllowsSkippedTableWithNoSyncStrategy(t *testing.T) {
	doc := `
name = "x"
[upstream]
host = "a"
[downstream]
host = "b"
[[tables]]
name = "ignored"
skip = true
`
	s, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.True(t, s.Tables[0].Skip)
}

func TestConnArgsDSNPrefersSocket(t *testing.T) {
	a := ConnArgs{Socket: "/tmp/mysql.sock", User: "u", Password: "p", Database: "db"}
	assert.Contains(t, a.DSN(), "unix(/tmp/mysql.sock)")
}

func TestConnArgsDSNDefaultsPort(t *testing.T) {
	a := ConnArgs{Host: "localhost", User: "u", Password: "p", Database: "db"}
	assert.Contains(t, a.DSN(), "tcp(localhost:3306)")
}

func TestConnArgsDSNExplicitPort(t *testing.T) {
	a := ConnArgs{Host: "localhost", Port: 3307, User: "u", Password: "p", Database: "db"}
	assert.Contains(t, a.DSN(), "tcp(localhost:3307)")
}
