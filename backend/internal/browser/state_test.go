package browser

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsynctui/backend/internal/types"
)

func entries(n int) []types.DirectoryEntry {
	out := make([]types.DirectoryEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, types.DirectoryEntry{Type: types.TypeRegular, Permissions: "-rw-r--r--", Name: fmt.Sprintf("f%03d", i)})
	}
	return out
}

func withParent(es []types.DirectoryEntry) []types.DirectoryEntry {
	return append([]types.DirectoryEntry{types.ParentEntry()}, es...)
}

func assertInvariants(t *testing.T, s *State) {
	t.Helper()
	n := len(s.Entries())
	assert.GreaterOrEqual(t, s.Cursor(), 0)
	assert.LessOrEqual(t, s.Cursor(), max(0, n-1))
	assert.GreaterOrEqual(t, s.PageStart(), 0)
	if n > 0 {
		assert.LessOrEqual(t, s.PageStart(), s.Cursor())
		assert.Less(t, s.Cursor(), s.PageStart()+s.PageSize())
	}
}

func TestCursorStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 5, 19, 20, 21, 45, 100} {
		s := New("/", 20, 30)
		s.SetEntries("/", entries(n))
		for i := 0; i < 500; i++ {
			switch rng.Intn(4) {
			case 0:
				s.Up()
			case 1:
				s.Down()
			case 2:
				s.PageUp()
			case 3:
				s.PageDown()
			}
			assertInvariants(t, s)
		}
	}
}

func TestDownScrollsPage(t *testing.T) {
	s := New("/", 3, 30)
	s.SetEntries("/", entries(5))
	s.Down()
	s.Down()
	assert.Equal(t, 0, s.PageStart())
	s.Down()
	assert.Equal(t, 3, s.Cursor())
	assert.Equal(t, 1, s.PageStart())
	assert.Equal(t, []string{"f001", "f002", "f003"}, names(s.Visible()))

	s.Down()
	s.Down()
	assert.Equal(t, 4, s.Cursor())

	s.Up()
	s.Up()
	s.Up()
	assert.Equal(t, 1, s.Cursor())
	assert.Equal(t, 1, s.PageStart())
	s.Up()
	assert.Equal(t, 0, s.PageStart())
}

func TestPageDownKeepsLastPageFull(t *testing.T) {
	s := New("/", 20, 30)
	s.SetEntries("/", entries(45))

	s.PageDown()
	assert.Equal(t, 20, s.Cursor())
	assert.Equal(t, 20, s.PageStart())

	s.PageDown()
	assert.Equal(t, 40, s.Cursor())
	assert.Equal(t, 25, s.PageStart())
	assert.Len(t, s.Visible(), 20)

	s.PageDown()
	assert.Equal(t, 44, s.Cursor())
	assert.Equal(t, 25, s.PageStart())

	s.PageUp()
	assert.Equal(t, 24, s.Cursor())
	assert.Equal(t, 5, s.PageStart())
}

func TestEmptyEntries(t *testing.T) {
	s := New("/nope", 20, 30)
	s.SetEntries("/nope", nil)
	s.Down()
	s.PageDown()
	s.ToggleMark()
	_, ok := s.Selected()
	assert.False(t, ok)
	_, ok = s.EnterTarget()
	assert.False(t, ok)
	assert.Empty(t, s.Marked())
	assert.Nil(t, s.Visible())
}

func TestToggleMarkTwiceRestores(t *testing.T) {
	s := New("/home/u", 20, 30)
	s.SetEntries("/home/u", withParent(entries(3)))
	s.Down()
	s.ToggleMark()
	s.Down()
	s.ToggleMark()
	require.Equal(t, []string{"f000", "f001"}, s.Marked())

	s.ToggleMark()
	s.ToggleMark()
	assert.Equal(t, []string{"f000", "f001"}, s.Marked())
	assert.True(t, s.IsMarked("f001"))

	s.ToggleMark()
	assert.Equal(t, []string{"f000"}, s.Marked())
}

func TestParentCannotBeMarked(t *testing.T) {
	s := New("/home/u", 20, 30)
	s.SetEntries("/home/u", withParent(entries(1)))
	s.ToggleMark()
	assert.Empty(t, s.Marked())
}

func TestMarksDoNotSurviveDirectoryChange(t *testing.T) {
	s := New("/home/u", 20, 30)
	s.SetEntries("/home/u", withParent(entries(3)))
	s.Down()
	s.ToggleMark()
	s.Down()
	require.NotEmpty(t, s.Marked())

	s.SetEntries("/home", withParent(entries(3)))
	assert.Empty(t, s.Marked())
	assert.False(t, s.IsMarked("f000"))
	assert.Equal(t, 0, s.Cursor())
	assert.Equal(t, 0, s.PageStart())
}

func TestReloadKeepsSurvivingMarks(t *testing.T) {
	s := New("/d", 20, 30)
	s.SetEntries("/d", withParent(entries(4)))
	for i := 0; i < 4; i++ {
		s.Down()
		s.ToggleMark()
	}
	s.Reload(withParent(entries(2)))
	assert.Equal(t, []string{"f000", "f001"}, s.Marked())
	assert.Equal(t, 2, s.Cursor())
}

func TestEnterTarget(t *testing.T) {
	dir := types.DirectoryEntry{Type: types.TypeDirectory, Permissions: "drwxr-xr-x", Name: "logs"}
	file := types.DirectoryEntry{Type: types.TypeRegular, Permissions: "-rw-r--r--", Name: "a.txt"}

	s := New("/home/u", 20, 30)
	s.SetEntries("/home/u", []types.DirectoryEntry{types.ParentEntry(), dir, file})

	target, ok := s.EnterTarget()
	require.True(t, ok)
	assert.Equal(t, "/home", target)

	s.Down()
	target, ok = s.EnterTarget()
	require.True(t, ok)
	assert.Equal(t, "/home/u/logs", target)

	s.Down()
	_, ok = s.EnterTarget()
	assert.False(t, ok)

	top := New("/home", 20, 30)
	top.SetEntries("/home", []types.DirectoryEntry{types.ParentEntry()})
	target, _ = top.EnterTarget()
	assert.Equal(t, "/", target)

	root := New("/", 20, 30)
	root.SetEntries("/", []types.DirectoryEntry{types.ParentEntry()})
	target, _ = root.EnterTarget()
	assert.Equal(t, "/", target)
}

func TestStatusAndProgress(t *testing.T) {
	s := New("/", 20, 30)
	_, ok := s.Progress()
	assert.False(t, ok)

	s.SetProgress("progress: 90/120", 90, 120)
	frac, ok := s.Progress()
	require.True(t, ok)
	assert.InDelta(t, 0.75, frac, 1e-9)
	assert.Equal(t, "progress: 90/120", s.Status())

	s.SetStatus("transfer complete")
	_, ok = s.Progress()
	assert.False(t, ok)

	s.ClearStatus()
	assert.Empty(t, s.Status())
}

func TestOutputLogEvictsOldest(t *testing.T) {
	s := New("/", 20, 30)
	for i := 0; i < 35; i++ {
		s.AppendOutput(fmt.Sprintf("line %d", i))
	}
	out := s.Output()
	require.Len(t, out, 30)
	assert.Equal(t, "line 5", out[0])
	assert.Equal(t, "line 34", out[29])

	l := NewOutputLog(2)
	l.Append("a")
	assert.Equal(t, 1, l.Len())
	l.Append("b")
	l.Append("c")
	assert.Equal(t, []string{"b", "c"}, l.Lines())
}

func names(es []types.DirectoryEntry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Name)
	}
	return out
}
