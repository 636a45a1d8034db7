package dbio

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"tablesync/internal/config"
)

// DumpSchema writes table's CREATE TABLE statement to outputPath (spec
// §4.7 schema-drift fallback, grounded on cli.py's
// mysqldump_schema_nofk). Foreign key clauses are left in the dumped
// DDL, not stripped. Used to recreate a downstream table from scratch
// after a column-count mismatch.
func (d MySQLDumper) DumpSchema(ctx context.Context, table, outputPath string) error {
	args := []string{
		"--no-data",
		"--skip-add-locks",
		"--compact",
		"--user=" + d.Args.User,
		d.Args.Database,
		table,
	}
	if d.Args.Socket != "" {
		args = append(args, "--socket="+d.Args.Socket)
	} else {
		args = append(args, fmt.Sprintf("--host=%s", d.Args.Host), fmt.Sprintf("--port=%d", port(d.Args)))
	}
	if d.Args.Cipher != "" {
		args = append(args, "--ssl-cipher="+d.Args.Cipher)
	}

	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+d.Args.Password)

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("dbio: opening schema output %s: %w", outputPath, err)
	}
	defer out.Close()
	cmd.Stdout = out

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("dbio: attaching mysqldump stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("dbio: starting schema dump for %s: %w", table, err)
	}
	errOutput := drain(stderr)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("dbio: schema dump for %s failed: %w: %s", table, err, errOutput)
	}
	// A dangling FK referencing another table survives this single-table
	// dump; internal/keys.StripForeignKeys runs separately to remove it
	// rather than this function trying to parse CONSTRAINT clauses out
	// of the dump text itself.
	return nil
}
