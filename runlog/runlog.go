// Package runlog keeps the longer-lived, line-oriented record of pipeline runs:
// an event log with one timestamped line per event and a content log holding
// the full before/after text of each run.
package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	EventFile   = "pipeline.log"
	ContentFile = "pipeline_content.log"
)

// Entry is one event line.
type Entry struct {
	Time   time.Time
	RunID  string
	Event  string
	Fields map[string]string
}

// Line renders e as `<RFC3339> run=<id> event=<event> k=v ...` with keys sorted.
func (e Entry) Line() string {
	var sb strings.Builder
	sb.WriteString(e.Time.UTC().Format(time.RFC3339))
	sb.WriteString(" run=")
	sb.WriteString(e.RunID)
	sb.WriteString(" event=")
	sb.WriteString(e.Event)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteByte(' ')
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(quote(e.Fields[k]))
	}
	return sb.String()
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\r\"=") {
		return strconv.Quote(v)
	}
	return v
}

// EventLog appends Entry lines to a file.
type EventLog struct {
	path string
	now  func() time.Time
}

func NewEventLog(dir string) *EventLog {
	return &EventLog{path: filepath.Join(dir, EventFile), now: time.Now}
}

// Path returns the log file path.
func (l *EventLog) Path() string { return l.path }

// Append writes one entry. A zero Time is stamped with now.
func (l *EventLog) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	return appendLocked(l.path, e.Line()+"\n")
}

// Tail returns up to n of the most recent lines, oldest first. A missing
// file yields no lines.
func (l *EventLog) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("runlog: scan: %w", err)
	}
	return ring, nil
}

// ContentLog appends full before/after text blocks per run.
type ContentLog struct {
	path string
	now  func() time.Time
}

func NewContentLog(dir string) *ContentLog {
	return &ContentLog{path: filepath.Join(dir, ContentFile), now: time.Now}
}

func (l *ContentLog) Path() string { return l.path }

// Append records the content of one run.
func (l *ContentLog) Append(runID, idea, before, after string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s run=%s idea=%s\n", l.now().UTC().Format(time.RFC3339), runID, strconv.Quote(idea))
	sb.WriteString("--- before\n")
	sb.WriteString(before)
	if !strings.HasSuffix(before, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString("--- after\n")
	sb.WriteString(after)
	if !strings.HasSuffix(after, "\n") {
		sb.WriteByte('\n')
	}
	return appendLocked(l.path, sb.String())
}

func appendLocked(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("runlog: mkdir: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("runlog: lock: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("runlog: open: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		return fmt.Errorf("runlog: write: %w", err)
	}
	return f.Close()
}
