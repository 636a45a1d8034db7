// Package main contains the cli implementation of the tool. It uses the
// cobra package for cli tool implementation, following smf's cmd layout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"tablesync/internal/config"
	"tablesync/internal/engine"
	"tablesync/internal/report"
)

type syncFlags struct {
	dumpDir          string
	stripForeignKeys bool
	stripUniqueKeys  bool
	lite             bool
}

type stripKeysFlags struct {
	foreignKeys bool
	uniqueKeys  bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "tablesync",
		Short: "One-way incremental row sync between MySQL-compatible databases",
	}

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(stripKeysCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func syncCmd() *cobra.Command {
	flags := &syncFlags{}
	cmd := &cobra.Command{
		Use:   "sync <slice.toml>",
		Short: "Bring downstream in sync with upstream, table by table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runSync(args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.dumpDir, "dump-dir", os.TempDir(), "Scratch directory for dump files")
	cmd.Flags().BoolVar(&flags.stripForeignKeys, "strip-foreign-keys", false, "Drop all foreign keys on downstream before syncing")
	cmd.Flags().BoolVar(&flags.stripUniqueKeys, "strip-unique-keys", false, "Drop all unique keys on downstream before syncing")
	cmd.Flags().BoolVar(&flags.lite, "lite", false, "Override the slice file's lite setting to true")

	return cmd
}

func runSync(path string, flags *syncFlags) error {
	slice, err := config.Load(path)
	if err != nil {
		return err
	}
	if flags.lite {
		slice.Lite = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	rep := report.New(os.Stderr, isTerminal(os.Stderr))

	opts := engine.Options{
		DumpDir:          flags.dumpDir,
		StripForeignKeys: flags.stripForeignKeys,
		StripUniqueKeys:  flags.stripUniqueKeys,
	}
	return engine.RunSlice(ctx, slice, opts, rep)
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <slice.toml>",
		Short: "Validate a slice file without connecting to either database",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := config.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Println("slice is valid")
			return nil
		},
	}
	return cmd
}

func stripKeysCmd() *cobra.Command {
	flags := &stripKeysFlags{}
	cmd := &cobra.Command{
		Use:   "strip-keys <slice.toml>",
		Short: "Drop foreign and/or unique keys on a slice's downstream database",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runStripKeys(args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.foreignKeys, "foreign-keys", true, "Drop foreign keys")
	cmd.Flags().BoolVar(&flags.uniqueKeys, "unique-keys", false, "Drop unique keys")

	return cmd
}

func runStripKeys(path string, flags *stripKeysFlags) error {
	slice, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rep := report.New(os.Stderr, isTerminal(os.Stderr))

	opts := engine.Options{
		DumpDir:          os.TempDir(),
		StripForeignKeys: flags.foreignKeys,
		StripUniqueKeys:  flags.uniqueKeys,
	}
	return engine.StripKeysOnly(ctx, slice, opts, rep)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
