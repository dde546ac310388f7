package runner

import (
	"fmt"
	"strings"
	"time"
)

// ReasoningLog buffers decision rationale in step order and is flushed
// into the run record exactly once at run end. Appends happen only on the
// run's own sequential flow, so there is no lock.
type ReasoningLog struct {
	entries []string
}

// Appendf adds one timestamped entry.
func (l *ReasoningLog) Appendf(format string, args ...any) {
	entry := fmt.Sprintf("%s  %s", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	l.entries = append(l.entries, entry)
}

// String flushes the buffer as one text block.
func (l *ReasoningLog) String() string {
	return strings.Join(l.entries, "\n")
}
