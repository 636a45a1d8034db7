package dbio

import (
	"context"
	"database/sql"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"tablesync/internal/config"
)

func requireClientBinaries(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("mysqldump"); err != nil {
		t.Skip("mysqldump binary not available on this host")
	}
	if _, err := exec.LookPath("mysql"); err != nil {
		t.Skip("mysql client binary not available on this host")
	}
}

func setupDbioDB(t *testing.T) (driverDB *sql.DB, args config.ConnArgs) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	requireClientBinaries(t)
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
	driverDB, err = sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, driverDB.PingContext(ctx))
	t.Cleanup(func() { _ = driverDB.Close() })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	args = config.ConnArgs{
		Host:     host,
		Port:     mappedPort.Int(),
		User:     "root",
		Password: "testpass",
		Database: "testdb",
	}
	return driverDB, args
}

func TestDumpAndLoadRoundTripsRows(t *testing.T) {
	db, args := setupDbioDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE widgets (id BIGINT PRIMARY KEY, label VARCHAR(32) NOT NULL)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO widgets VALUES (1,'a'),(2,'b'),(3,'c')")
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "widgets.sql")
	dumper := MySQLDumper{Args: args}
	require.NoError(t, dumper.Dump(ctx, "widgets", "id <= 2", false, dumpPath))

	contents, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "INSERT INTO")

	_, err = db.ExecContext(ctx, "DELETE FROM widgets")
	require.NoError(t, err)

	loader := MySQLLoader{Args: args}
	require.NoError(t, loader.Load(ctx, dumpPath))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM widgets").Scan(&count))
	assert.Equal(t, 2, count) // only the id<=2 rows were dumped and reloaded
}

func TestDumpAppendModeAccumulatesBatches(t *testing.T) {
	db, args := setupDbioDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE batches (id BIGINT PRIMARY KEY)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO batches VALUES (1),(2),(3),(4)")
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "batches.sql")
	dumper := MySQLDumper{Args: args}
	require.NoError(t, dumper.Dump(ctx, "batches", "id <= 2", false, dumpPath))
	require.NoError(t, dumper.Dump(ctx, "batches", "id > 2", true, dumpPath))

	contents, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.Equal(t, 2, countOccurrences(string(contents), "INSERT INTO"))
}

func TestDumpSchemaWritesCreateTableOnly(t *testing.T) {
	db, args := setupDbioDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE schema_only (id BIGINT PRIMARY KEY, v INT NOT NULL)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO schema_only VALUES (1,1)")
	require.NoError(t, err)

	dumpPath := filepath.Join(t.TempDir(), "schema_only.sql")
	dumper := MySQLDumper{Args: args}
	require.NoError(t, dumper.DumpSchema(ctx, "schema_only", dumpPath))

	contents, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "CREATE TABLE")
	assert.NotContains(t, string(contents), "INSERT INTO")
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}
