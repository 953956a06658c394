package tui

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsynctui/backend/internal/localwatch"
	"rsynctui/backend/internal/transfer"
	"rsynctui/backend/internal/types"
)

type fakeLister struct {
	dirs map[string][]types.DirectoryEntry
}

func (f *fakeLister) List(_ context.Context, path string) []types.DirectoryEntry {
	entries := f.dirs[path]
	if path != "/" {
		entries = append([]types.DirectoryEntry{types.ParentEntry()}, entries...)
	}
	return entries
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []types.TransferRequest
	exit     int
	canceled atomic.Int32
}

func (f *fakeEngine) Pull(_ context.Context, req types.TransferRequest, report transfer.Reporter) transfer.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	report(transfer.Event{Kind: transfer.EventOutput, Text: "receiving incremental file list"})
	report(transfer.Event{Kind: transfer.EventOutput, Text: "logs/x 100% to-chk=0/1"})
	report(transfer.Event{Kind: transfer.EventStatus, Text: transfer.ProgressStatus(1, 1), Done: 1, Total: 1})
	if f.exit == 0 {
		report(transfer.Event{Kind: transfer.EventStatus, Text: transfer.StatusComplete})
		return transfer.Result{Outcome: transfer.Completed}
	}
	report(transfer.Event{Kind: transfer.EventStatus, Text: transfer.StatusFailed})
	return transfer.Result{Outcome: transfer.Failed, ExitCode: f.exit}
}

func (f *fakeEngine) CancelAll() int {
	f.canceled.Add(1)
	return 0
}

func (f *fakeEngine) Requests() []types.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TransferRequest(nil), f.requests...)
}

var (
	logsDir = types.DirectoryEntry{Type: types.TypeDirectory, Permissions: "drwxr-xr-x", Owner: "u", Group: "u", Size: "4096", Name: "logs"}
	aFile   = types.DirectoryEntry{Type: types.TypeRegular, Permissions: "-rw-r--r--", Owner: "u", Group: "u", Size: "12", Name: "a.txt"}
)

func newTestModel(t *testing.T, engine Puller, observer transfer.Reporter) Model {
	t.Helper()
	lister := &fakeLister{dirs: map[string][]types.DirectoryEntry{
		"/home/u":      {logsDir, aFile},
		"/home/u/logs": {{Type: types.TypeRegular, Permissions: "-rw-r--r--", Name: "x.log"}},
		"/home":        {{Type: types.TypeDirectory, Permissions: "drwxr-xr-x", Name: "u"}},
	}}
	m := New(context.Background(), lister, engine, "/home/u", Options{
		Credentials: types.Credentials{User: "u", Host: "box"},
		Port:        22,
		LocalDir:    ".",
		Observer:    observer,
		Logger:      zerolog.Nop(),
	})
	return apply(t, m, m.list("/home/u", false)())
}

func apply(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func press(t *testing.T, m Model, k string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// drainBatch runs the batch command and feeds the inbox into Update until the batch is done.
func drainBatch(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	require.NotNil(t, cmd)
	go cmd()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-m.inbox:
			m = apply(t, m, msg)
			if _, ok := msg.(batchDoneMsg); ok {
				return m
			}
		case <-timeout:
			t.Fatal("batch did not finish")
		}
	}
}

func TestInitialListing(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	s := m.State()
	assert.Equal(t, "/home/u", s.CurrentPath())
	require.Len(t, s.Entries(), 3)
	assert.Equal(t, "..", s.Entries()[0].Name)
	assert.Equal(t, Browsing, m.Mode())
}

func TestDownloadMarkedDirectory(t *testing.T) {
	engine := &fakeEngine{}
	var observed atomic.Int32
	m := newTestModel(t, engine, func(transfer.Event) { observed.Add(1) })

	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")
	require.Equal(t, []string{"logs"}, m.State().Marked())

	m, cmd := press(t, m, "d")
	assert.Equal(t, Transferring, m.Mode())

	m = drainBatch(t, m, cmd)

	reqs := engine.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/home/u/logs", reqs[0].RemotePath)
	assert.Equal(t, ".", reqs[0].LocalPath)
	assert.Equal(t, 22, reqs[0].Port)
	assert.Equal(t, types.Credentials{User: "u", Host: "box"}, reqs[0].Credentials)

	assert.Empty(t, m.State().Marked())
	assert.Equal(t, transfer.StatusComplete, m.State().Status())
	assert.Equal(t, Browsing, m.Mode())
	assert.Equal(t, []string{"receiving incremental file list", "logs/x 100% to-chk=0/1"}, m.State().Output())
	assert.Equal(t, int32(4), observed.Load())
}

func TestBatchRunsInMarkOrderAndContinuesAfterFailure(t *testing.T) {
	engine := &fakeEngine{exit: 23}
	m := newTestModel(t, engine, nil)

	m, _ = press(t, m, "down")
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")
	m, _ = press(t, m, "up")
	m, _ = press(t, m, "space")

	m, cmd := press(t, m, "d")
	m = drainBatch(t, m, cmd)

	reqs := engine.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/home/u/a.txt", reqs[0].RemotePath)
	assert.Equal(t, "/home/u/logs", reqs[1].RemotePath)
	assert.Equal(t, transfer.StatusFailed, m.State().Status())
	assert.Empty(t, m.State().Marked())
}

func TestDownloadWithoutMarksDoesNothing(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, cmd := press(t, m, "d")
	assert.Nil(t, cmd)
	assert.Equal(t, Browsing, m.Mode())
}

func TestSecondBatchIsRefusedWhileTransferring(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")
	m, first := press(t, m, "d")
	require.NotNil(t, first)

	m, second := press(t, m, "d")
	assert.Nil(t, second)
	assert.Equal(t, Transferring, m.Mode())

	// navigation still works mid-batch
	m, _ = press(t, m, "down")
	assert.Equal(t, 2, m.State().Cursor())
}

func TestEnterDirectoryAndGoUp(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")

	m, cmd := press(t, m, "enter")
	require.NotNil(t, cmd)
	m = apply(t, m, cmd())
	assert.Equal(t, "/home/u/logs", m.State().CurrentPath())
	assert.Empty(t, m.State().Marked())
	assert.Equal(t, 0, m.State().Cursor())

	m, cmd = press(t, m, "enter")
	require.NotNil(t, cmd)
	m = apply(t, m, cmd())
	assert.Equal(t, "/home/u", m.State().CurrentPath())
}

func TestEnterOnFileIsNoop(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "down")
	m, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Equal(t, "/home/u", m.State().CurrentPath())
}

func TestStaleListingIsIgnored(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, _ = press(t, m, "down")
	m, toLogs := press(t, m, "enter")
	m, _ = press(t, m, "up")
	m, toParent := press(t, m, "enter")

	m = apply(t, m, toParent())
	m = apply(t, m, toLogs())
	assert.Equal(t, "/home", m.State().CurrentPath())
}

func TestRefreshKeepsMarks(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")
	m, cmd := press(t, m, "r")
	require.NotNil(t, cmd)
	m = apply(t, m, cmd())
	assert.Equal(t, []string{"logs"}, m.State().Marked())
	assert.Equal(t, 1, m.State().Cursor())
}

func TestAnyOtherKeyDismissesStatus(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m = apply(t, m, transferEventMsg(transfer.Event{Kind: transfer.EventStatus, Text: transfer.StatusFailed}))
	require.Equal(t, transfer.StatusFailed, m.State().Status())

	m, _ = press(t, m, "x")
	assert.Empty(t, m.State().Status())
}

func TestQuitCancelsEveryLiveTransfer(t *testing.T) {
	var kills atomic.Int32
	engine := transfer.NewEngine(transfer.Options{
		Kill: func(int) error { kills.Add(1); return nil },
	}, zerolog.Nop())
	engine.Registry().Add("one", types.TransferRequest{RemotePath: "/a"}, 101)
	engine.Registry().Add("two", types.TransferRequest{RemotePath: "/b"}, 102)

	m := newTestModel(t, engine, nil)
	m, cmd := press(t, m, "q")

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, int32(2), kills.Load())
	assert.Equal(t, 2, m.SignalsSent())
	assert.Equal(t, Quitting, m.Mode())
	assert.Empty(t, m.View())

	select {
	case <-m.done:
	default:
		t.Fatal("done channel not closed")
	}
	// background senders no longer block
	m.NotifyLocal(localwatch.Event{Op: "created", Name: "x"})
	for i := 0; i < cap(m.inbox)+1; i++ {
		m.send(tickMsg(time.Now()))
	}
}

func TestInitialListingOfUncleanHome(t *testing.T) {
	lister := &fakeLister{dirs: map[string][]types.DirectoryEntry{"/home/u": {logsDir, aFile}}}
	m := New(context.Background(), lister, &fakeEngine{}, "/home/u/", Options{Logger: zerolog.Nop()})

	cmds := m.Init()
	require.NotNil(t, cmds)
	m = apply(t, m, m.list(m.State().CurrentPath(), false)())

	assert.Equal(t, "/home/u", m.State().CurrentPath())
	require.Len(t, m.State().Entries(), 3)
	assert.Equal(t, "logs", m.State().Entries()[1].Name)
}

func TestLocalEventShownInHeader(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m.NotifyLocal(localwatch.Event{Timestamp: "10:00:00", Op: "created", Name: "/tmp/dl/logs"})
	m = apply(t, m, <-m.inbox)
	assert.Contains(t, m.View(), "created logs")
}

func TestView(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	m = apply(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	m, _ = press(t, m, "down")
	m, _ = press(t, m, "space")
	m = apply(t, m, transferEventMsg(transfer.Event{Kind: transfer.EventStatus, Text: "progress: 90/120", Done: 90, Total: 120}))

	v := m.View()
	assert.Contains(t, v, "u@box:/home/u")
	assert.Contains(t, v, "➤ [*]")
	assert.Contains(t, v, "a.txt")
	assert.Contains(t, v, "progress: 90/120")
}

func TestFormatEntry(t *testing.T) {
	assert.Equal(t, "[ ] ..", FormatEntry(types.ParentEntry(), false))
	row := FormatEntry(aFile, true)
	assert.Contains(t, row, "[*] -rw-r--r--")
	assert.Contains(t, row, "a.txt")
}

func TestTickRearms(t *testing.T) {
	m := newTestModel(t, &fakeEngine{}, nil)
	_, cmd := m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd)
}
