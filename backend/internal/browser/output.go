package browser

// OutputLog keeps the last N lines of transfer output.
type OutputLog struct {
	lines []string
	limit int
}

func NewOutputLog(limit int) *OutputLog {
	if limit <= 0 {
		limit = DefaultOutputLines
	}
	return &OutputLog{limit: limit, lines: make([]string, 0, limit)}
}

// Append adds line, evicting the oldest one past the limit.
func (l *OutputLog) Append(line string) {
	if len(l.lines) == l.limit {
		copy(l.lines, l.lines[1:])
		l.lines = l.lines[:l.limit-1]
	}
	l.lines = append(l.lines, line)
}

// Lines returns a copy, oldest first.
func (l *OutputLog) Lines() []string {
	return append([]string(nil), l.lines...)
}

func (l *OutputLog) Len() int { return len(l.lines) }
