package schemasync

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"tablesync/internal/core"
)

func setupDifferPair(t *testing.T) (upstream, downstream *sql.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	open := func() *sql.DB {
		container, err := mysql.Run(ctx, "mysql:8.0",
			mysql.WithDatabase("testdb"),
			mysql.WithUsername("root"),
			mysql.WithPassword("testpass"),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(container); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		dsn, err := container.ConnectionString(ctx, "parseTime=true")
		require.NoError(t, err)

		db, err := sql.Open("mysql", dsn)
		require.NoError(t, err)
		require.NoError(t, db.PingContext(ctx))
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	return open(), open()
}

func TestDiffAddsMissingColumn(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	_, err := upstream.ExecContext(ctx, "CREATE TABLE people (id BIGINT PRIMARY KEY, name VARCHAR(32) NOT NULL, age INT NULL)")
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, "CREATE TABLE people (id BIGINT PRIMARY KEY, name VARCHAR(32) NOT NULL)")
	require.NoError(t, err)

	changes, err := Diff(ctx, upstream, downstream, "people")
	require.NoError(t, err)

	require.Len(t, changes.Added, 1)
	assert.Equal(t, "age", changes.Added[0].Name)
	assert.Empty(t, changes.Removed)
	assert.Empty(t, changes.Modified)

	var dataType string
	require.NoError(t, downstream.QueryRowContext(ctx,
		"SELECT data_type FROM information_schema.columns WHERE table_schema=DATABASE() AND table_name='people' AND column_name='age'",
	).Scan(&dataType))
	assert.Equal(t, "int", dataType)
}

func TestDiffDropsExtraColumn(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	_, err := upstream.ExecContext(ctx, "CREATE TABLE sessions (id BIGINT PRIMARY KEY, token VARCHAR(32) NOT NULL)")
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, "CREATE TABLE sessions (id BIGINT PRIMARY KEY, token VARCHAR(32) NOT NULL, legacy_flag TINYINT NULL)")
	require.NoError(t, err)

	changes, err := Diff(ctx, upstream, downstream, "sessions")
	require.NoError(t, err)

	require.Len(t, changes.Removed, 1)
	assert.Equal(t, "legacy_flag", changes.Removed[0].Name)

	var count int
	require.NoError(t, downstream.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.columns WHERE table_schema=DATABASE() AND table_name='sessions' AND column_name='legacy_flag'",
	).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestDiffModifiesChangedType(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	_, err := upstream.ExecContext(ctx, "CREATE TABLE products (id BIGINT PRIMARY KEY, price DECIMAL(10,2) NOT NULL)")
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, "CREATE TABLE products (id BIGINT PRIMARY KEY, price INT NOT NULL)")
	require.NoError(t, err)

	changes, err := Diff(ctx, upstream, downstream, "products")
	require.NoError(t, err)

	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "price", changes.Modified[0].Name)

	var dataType string
	require.NoError(t, downstream.QueryRowContext(ctx,
		"SELECT data_type FROM information_schema.columns WHERE table_schema=DATABASE() AND table_name='products' AND column_name='price'",
	).Scan(&dataType))
	assert.Equal(t, "decimal", dataType)
}

func TestDiffAddsAdjacentColumnsInDeclarationOrder(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	// colB is AFTER colA, and colA is itself newly added: applying the
	// adds out of order would have MySQL reject "ADD COLUMN colB ...
	// AFTER colA" before colA exists. Run it enough times that map
	// iteration's randomized order would eventually surface the bug if
	// it were still present.
	_, err := upstream.ExecContext(ctx,
		"CREATE TABLE rows_ordered (id BIGINT PRIMARY KEY, col_a INT NOT NULL, col_b INT NOT NULL)")
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, "CREATE TABLE rows_ordered (id BIGINT PRIMARY KEY)")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		changes, err := Diff(ctx, upstream, downstream, "rows_ordered")
		if i == 0 {
			require.NoError(t, err)
			require.Len(t, changes.Added, 2)
			assert.Equal(t, "col_a", changes.Added[0].Name)
			assert.Equal(t, "col_b", changes.Added[1].Name)
		} else {
			require.NoError(t, err)
			assert.True(t, changes.Empty())
		}
	}
}

func TestDiffNoOpWhenIdentical(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	ddl := "CREATE TABLE tags (id BIGINT PRIMARY KEY, label VARCHAR(16) NOT NULL)"
	_, err := upstream.ExecContext(ctx, ddl)
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, ddl)
	require.NoError(t, err)

	changes, err := Diff(ctx, upstream, downstream, "tags")
	require.NoError(t, err)
	assert.True(t, changes.Empty())
}

func TestDiffTreatsColumnRenameAsDropAndAdd(t *testing.T) {
	upstream, downstream := setupDifferPair(t)
	ctx := context.Background()

	// Column matching is by name, so a rename on one side looks like
	// the old name disappearing and the new one appearing fresh.
	_, err := upstream.ExecContext(ctx, "CREATE TABLE cards (id BIGINT PRIMARY KEY, suit VARCHAR(8) NOT NULL)")
	require.NoError(t, err)
	_, err = downstream.ExecContext(ctx, "CREATE TABLE cards (id BIGINT PRIMARY KEY, suite VARCHAR(8) NOT NULL)")
	require.NoError(t, err)

	changes, err := Diff(ctx, upstream, downstream, "cards")
	require.NoError(t, err)

	require.Len(t, changes.Added, 1)
	assert.Equal(t, "suit", changes.Added[0].Name)
	require.Len(t, changes.Removed, 1)
	assert.Equal(t, "suite", changes.Removed[0].Name)
}

func TestSchemaMisalignedErrorMessage(t *testing.T) {
	err := &core.SchemaMisalignedError{Table: "cards", Column: "suit"}
	assert.Contains(t, err.Error(), "cards")
	assert.Contains(t, err.Error(), "suit")
}
