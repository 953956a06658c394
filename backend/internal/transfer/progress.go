package transfer

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
)

var toCheckRe = regexp.MustCompile(`to-chk=(\d+)/(\d+)`)

// ParseProgress extracts done/total from an rsync progress line carrying "to-chk=remaining/total".
func ParseProgress(line string) (done, total int, ok bool) {
	m := toCheckRe.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, false
	}
	remaining, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return total - remaining, total, true
}

const (
	StatusComplete = "transfer complete"
	StatusFailed   = "transfer failed"
)

func ProgressStatus(done, total int) string {
	return fmt.Sprintf("progress: %d/%d", done, total)
}

// ScanLines is a bufio.SplitFunc that ends a line at either '\r' or '\n', so each in-place
// progress redraw from rsync becomes its own line. Empty lines are dropped.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	i := 0
	for i < len(data) && (data[i] == '\r' || data[i] == '\n') {
		i++
	}
	if i > 0 {
		return i, nil, nil
	}
	if j := bytes.IndexAny(data, "\r\n"); j >= 0 {
		return j + 1, data[:j], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
