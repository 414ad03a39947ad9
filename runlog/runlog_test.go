package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_Line(t *testing.T) {
	e := Entry{
		Time:   time.Date(2026, 10, 19, 8, 30, 0, 0, time.FixedZone("X", 3600)),
		RunID:  "r1",
		Event:  "done",
		Fields: map[string]string{"idea": "space invaders", "bytes": "42", "empty": ""},
	}
	assert.Equal(t, `2026-10-19T07:30:00Z run=r1 event=done bytes=42 empty="" idea="space invaders"`, e.Line())
}

func TestEventLog_AppendAndTail(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLog(filepath.Join(dir, "logs"))
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	lines, err := l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(Entry{RunID: fmt.Sprint(i), Event: "start"}))
	}

	lines, err = l.Tail(3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2026-01-02T03:04:05Z run=2 event=start",
		"2026-01-02T03:04:05Z run=3 event=start",
		"2026-01-02T03:04:05Z run=4 event=start",
	}, lines)

	lines, err = l.Tail(0)
	require.NoError(t, err)
	assert.Nil(t, lines)
}

func TestEventLog_ConcurrentAppendsStayWhole(t *testing.T) {
	l := NewEventLog(t.TempDir())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(Entry{RunID: fmt.Sprint(i), Event: "e", Fields: map[string]string{"pad": strings.Repeat("x", 500)}}))
		}(i)
	}
	wg.Wait()

	lines, err := l.Tail(100)
	require.NoError(t, err)
	require.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, strings.Repeat("x", 500)))
	}
}

func TestContentLog_Append(t *testing.T) {
	dir := t.TempDir()
	l := NewContentLog(dir)
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, l.Append("r1", "snake", "old", "new\n"))

	raw, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t, "=== 2026-01-02T03:04:05Z run=r1 idea=\"snake\"\n--- before\nold\n--- after\nnew\n", string(raw))
}

func TestAppend_UnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	l := NewEventLog(filepath.Join(blocker, "sub"))
	assert.Error(t, l.Append(Entry{RunID: "r", Event: "e"}))
}
