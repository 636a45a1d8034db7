package keys

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"tablesync/internal/report"
)

func setupKeysDB(t *testing.T) (db *sql.DB, dbName string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

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

	db, err = sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	t.Cleanup(func() { _ = db.Close() })

	return db, "testdb"
}

func TestStripForeignKeysRemovesConstraint(t *testing.T) {
	db, dbName := setupKeysDB(t)
	ctx := context.Background()
	rep := report.New(io.Discard, false)

	_, err := db.ExecContext(ctx, "CREATE TABLE parents (id BIGINT PRIMARY KEY)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE children (
			id BIGINT PRIMARY KEY,
			parent_id BIGINT NOT NULL,
			CONSTRAINT fk_parent FOREIGN KEY (parent_id) REFERENCES parents(id)
		)
	`)
	require.NoError(t, err)

	require.NoError(t, StripForeignKeys(ctx, db, dbName, rep))

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.referential_constraints WHERE constraint_schema = ?", dbName,
	).Scan(&count))
	assert.Equal(t, 0, count)

	// the constraint is gone, so a dangling reference is now allowed.
	_, err = db.ExecContext(ctx, "INSERT INTO children VALUES (1, 999)")
	assert.NoError(t, err)
}

func TestStripForeignKeysNoOpWhenNoneExist(t *testing.T) {
	db, dbName := setupKeysDB(t)
	ctx := context.Background()
	rep := report.New(io.Discard, false)

	_, err := db.ExecContext(ctx, "CREATE TABLE standalone (id BIGINT PRIMARY KEY)")
	require.NoError(t, err)

	assert.NoError(t, StripForeignKeys(ctx, db, dbName, rep))
}

func TestStripUniqueKeysRemovesConstraint(t *testing.T) {
	db, dbName := setupKeysDB(t)
	ctx := context.Background()
	rep := report.New(io.Discard, false)

	_, err := db.ExecContext(ctx, `
		CREATE TABLE accounts (
			id BIGINT PRIMARY KEY,
			email VARCHAR(64) NOT NULL,
			UNIQUE KEY uq_email (email)
		)
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO accounts VALUES (1, 'a@example.com')")
	require.NoError(t, err)

	require.NoError(t, StripUniqueKeys(ctx, db, dbName, rep))

	// the unique constraint is gone, so a duplicate email is now allowed.
	_, err = db.ExecContext(ctx, "INSERT INTO accounts VALUES (2, 'a@example.com')")
	assert.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.table_constraints WHERE constraint_type = 'UNIQUE' AND table_schema = ? AND table_name = 'accounts'", dbName,
	).Scan(&count))
	assert.Equal(t, 0, count)
}
