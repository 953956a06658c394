package browser

import (
	"rsynctui/backend/internal/remotefs"
	"rsynctui/backend/internal/types"
)

const (
	DefaultPageSize    = 20
	DefaultOutputLines = 30
)

// State is everything the browser shows. It is owned by the UI loop and never touched from
// another goroutine.
type State struct {
	currentPath string
	entries     []types.DirectoryEntry
	cursor      int
	pageStart   int
	pageSize    int

	// marked is keyed by entry name; markOrder keeps the order marks were made in.
	marked    map[string]struct{}
	markOrder []string

	status        string
	progressDone  int
	progressTotal int

	output *OutputLog
}

func New(path string, pageSize, outputLines int) *State {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if outputLines <= 0 {
		outputLines = DefaultOutputLines
	}
	return &State{
		currentPath: remotefs.CleanPath(path),
		pageSize:    pageSize,
		marked:      make(map[string]struct{}),
		output:      NewOutputLog(outputLines),
	}
}

func (s *State) CurrentPath() string { return s.currentPath }

func (s *State) Entries() []types.DirectoryEntry { return s.entries }

func (s *State) Cursor() int { return s.cursor }

func (s *State) PageStart() int { return s.pageStart }

func (s *State) PageSize() int { return s.pageSize }

// SetEntries installs a fresh listing for path. Cursor, page and marks are reset.
func (s *State) SetEntries(path string, entries []types.DirectoryEntry) {
	s.currentPath = remotefs.CleanPath(path)
	s.entries = entries
	s.cursor = 0
	s.pageStart = 0
	s.ClearMarks()
}

// Reload replaces the entries of the current directory. Marks whose entry still exists are
// kept and the cursor is clamped.
func (s *State) Reload(entries []types.DirectoryEntry) {
	s.entries = entries
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		names[e.Name] = struct{}{}
	}
	kept := s.markOrder[:0]
	for _, name := range s.markOrder {
		if _, ok := names[name]; ok {
			kept = append(kept, name)
		} else {
			delete(s.marked, name)
		}
	}
	s.markOrder = kept
	s.clamp()
}

// Selected returns the entry under the cursor.
func (s *State) Selected() (types.DirectoryEntry, bool) {
	if len(s.entries) == 0 {
		return types.DirectoryEntry{}, false
	}
	return s.entries[s.cursor], true
}

func (s *State) Up() {
	if s.cursor > 0 {
		s.cursor--
		if s.cursor < s.pageStart {
			s.pageStart = s.cursor
		}
	}
	s.clamp()
}

func (s *State) Down() {
	if s.cursor < len(s.entries)-1 {
		s.cursor++
		if s.cursor >= s.pageStart+s.pageSize {
			s.pageStart = s.cursor - s.pageSize + 1
		}
	}
	s.clamp()
}

func (s *State) PageUp() {
	if s.cursor > 0 {
		s.cursor = max(0, s.cursor-s.pageSize)
		s.pageStart = max(0, s.pageStart-s.pageSize)
	}
	s.clamp()
}

// PageDown keeps the last page full when there are enough entries.
func (s *State) PageDown() {
	n := len(s.entries)
	if s.cursor < n-1 {
		s.cursor = min(n-1, s.cursor+s.pageSize)
		s.pageStart = min(max(0, n-s.pageSize), s.pageStart+s.pageSize)
		if s.cursor >= s.pageStart+s.pageSize {
			s.pageStart = s.cursor - s.pageSize + 1
		}
	}
	s.clamp()
}

// clamp restores 0 <= cursor < len(entries) and pageStart <= cursor < pageStart+pageSize.
func (s *State) clamp() {
	if len(s.entries) == 0 {
		s.cursor, s.pageStart = 0, 0
		return
	}
	s.cursor = min(max(0, s.cursor), len(s.entries)-1)
	if s.cursor < s.pageStart {
		s.pageStart = s.cursor
	}
	if s.cursor >= s.pageStart+s.pageSize {
		s.pageStart = s.cursor - s.pageSize + 1
	}
	s.pageStart = max(0, s.pageStart)
}

// Visible returns the rows of the current page.
func (s *State) Visible() []types.DirectoryEntry {
	if len(s.entries) == 0 {
		return nil
	}
	end := min(len(s.entries), s.pageStart+s.pageSize)
	return s.entries[s.pageStart:end]
}

// ToggleMark flips the mark on the entry under the cursor. The ".." row cannot be marked.
func (s *State) ToggleMark() {
	e, ok := s.Selected()
	if !ok || e.IsParent() {
		return
	}
	if _, marked := s.marked[e.Name]; marked {
		delete(s.marked, e.Name)
		for i, name := range s.markOrder {
			if name == e.Name {
				s.markOrder = append(s.markOrder[:i], s.markOrder[i+1:]...)
				break
			}
		}
		return
	}
	s.marked[e.Name] = struct{}{}
	s.markOrder = append(s.markOrder, e.Name)
}

func (s *State) IsMarked(name string) bool {
	_, ok := s.marked[name]
	return ok
}

// Marked returns the marked names in the order they were marked.
func (s *State) Marked() []string {
	return append([]string(nil), s.markOrder...)
}

func (s *State) ClearMarks() {
	clear(s.marked)
	s.markOrder = nil
}

// EnterTarget is the directory the confirm key leads to from the cursor: the parent for ".."
// (the root stays the root), a child for a directory. ok is false for anything else.
func (s *State) EnterTarget() (string, bool) {
	e, ok := s.Selected()
	if !ok {
		return "", false
	}
	if e.IsParent() {
		return remotefs.Parent(s.currentPath), true
	}
	if e.IsDir() {
		return remotefs.Join(s.currentPath, e.Name), true
	}
	return "", false
}

// RemotePath is the absolute remote path of name in the current directory.
func (s *State) RemotePath(name string) string {
	return remotefs.Join(s.currentPath, name)
}

func (s *State) Status() string { return s.status }

// SetStatus replaces the status line and drops any progress.
func (s *State) SetStatus(msg string) {
	s.status = msg
	s.progressDone, s.progressTotal = 0, 0
}

// SetProgress sets a "progress: done/total" status with its numbers.
func (s *State) SetProgress(msg string, done, total int) {
	s.status = msg
	s.progressDone, s.progressTotal = done, total
}

// Progress returns the fraction done, and false when no progress is known.
func (s *State) Progress() (float64, bool) {
	if s.progressTotal <= 0 {
		return 0, false
	}
	return float64(s.progressDone) / float64(s.progressTotal), true
}

func (s *State) ClearStatus() { s.SetStatus("") }

func (s *State) AppendOutput(line string) { s.output.Append(line) }

func (s *State) Output() []string { return s.output.Lines() }
