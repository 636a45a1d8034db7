package dbio

import "io"

// drain reads r to completion and returns what it saw, swallowing read
// errors — used only to annotate a subprocess failure with whatever it
// printed to stderr, so a read problem there must never mask the
// original exit-status error.
func drain(r io.Reader) string {
	b, _ := io.ReadAll(r)
	return string(b)
}
