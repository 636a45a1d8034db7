package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitIndentsNestedScopes(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)

	rep.Emit("top")
	done := rep.Scope()
	rep.Emit("nested")
	done()
	rep.Emit("top again")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "top", lines[0])
	assert.Equal(t, "  nested", lines[1])
	assert.Equal(t, "top again", lines[2])
}

func TestScopeReleaseIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)

	done := rep.Scope()
	done()
	done() // second release must not double-decrement
	rep.Emit("back to zero")

	assert.Equal(t, "back to zero\n", buf.String())
}

func TestMarkWrapsAtHundredColumns(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)

	for i := 0; i < 100; i++ {
		rep.Mark(i%7 == 0)
	}

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Len(t, strings.TrimRight(out, "\n"), 100)
}

func TestEmitAfterMarkStartsNewLine(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)

	rep.Mark(true)
	rep.Mark(false)
	rep.Emit("done scanning")

	out := buf.String()
	assert.Equal(t, "!.\ndone scanning\n", out)
}

func TestFlushSummaryEmitsBufferedLinesInOrder(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)

	rep.AppendSummary("t1 : IDENTICAL (after general sync)")
	rep.AppendSummary("t2 : HAS CHANGES (not fully implemented)")
	rep.FlushSummary()

	out := buf.String()
	assert.Contains(t, out, "[Summary: 2 table(s)]")
	assert.Contains(t, out, "t1 : IDENTICAL (after general sync)")
	assert.Contains(t, out, "t2 : HAS CHANGES (not fully implemented)")
}

func TestFlushSummaryClearsBuffer(t *testing.T) {
	var buf bytes.Buffer
	rep := New(&buf, false)
	rep.AppendSummary("only one")
	rep.FlushSummary()

	buf.Reset()
	rep.FlushSummary()
	assert.Contains(t, buf.String(), "[Summary: 0 table(s)]")
}

func TestRowCountAndByteSize(t *testing.T) {
	assert.Equal(t, "12,345", RowCount(12345))
	assert.Equal(t, "1.0 MB", ByteSize(1_000_000))
}
