package dbio

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"tablesync/internal/config"
)

// MySQLLoader applies a dump file's INSERT script against one
// ConnArgs target via the mysql client (spec §6 Loader).
type MySQLLoader struct {
	Args config.ConnArgs
}

// Load pipes inputPath into the mysql client's stdin.
func (l MySQLLoader) Load(ctx context.Context, inputPath string) error {
	args := []string{
		"--user=" + l.Args.User,
		l.Args.Database,
	}
	if l.Args.Socket != "" {
		args = append(args, "--socket="+l.Args.Socket)
	} else {
		args = append(args, fmt.Sprintf("--host=%s", l.Args.Host), fmt.Sprintf("--port=%d", port(l.Args)))
	}
	if l.Args.Cipher != "" {
		args = append(args, "--ssl-cipher="+l.Args.Cipher)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("dbio: opening load input %s: %w", inputPath, err)
	}
	defer in.Close()

	cmd := exec.CommandContext(ctx, "mysql", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+l.Args.Password)
	cmd.Stdin = in

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("dbio: attaching mysql stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("dbio: starting mysql load: %w", err)
	}
	errOutput := drain(stderr)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("dbio: mysql load failed: %w: %s", err, errOutput)
	}
	return nil
}
