package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"rsynctui/backend/internal/browser"
	"rsynctui/backend/internal/localwatch"
	"rsynctui/backend/internal/transfer"
	"rsynctui/backend/internal/types"
)

// Lister fetches a remote directory. An empty result means the listing failed.
type Lister interface {
	List(ctx context.Context, path string) []types.DirectoryEntry
}

// Puller runs transfers; *transfer.Engine implements it.
type Puller interface {
	Pull(ctx context.Context, req types.TransferRequest, report transfer.Reporter) transfer.Result
	CancelAll() int
}

type Mode int

const (
	Browsing Mode = iota
	Transferring
	Quitting
)

func (m Mode) String() string {
	switch m {
	case Transferring:
		return "transferring"
	case Quitting:
		return "quitting"
	default:
		return "browsing"
	}
}

type Options struct {
	Credentials     types.Credentials
	Port            int
	LocalDir        string
	FollowSymlinks  bool
	PageSize        int
	OutputLines     int
	RefreshInterval time.Duration
	// Observer sees every transfer event, from the transfer goroutine.
	Observer transfer.Reporter
	Logger   zerolog.Logger
}

type (
	listedMsg struct {
		path    string
		entries []types.DirectoryEntry
		reload  bool
	}
	transferEventMsg transfer.Event
	batchDoneMsg     struct{ results []transfer.Result }
	localEventMsg    localwatch.Event
	tickMsg          time.Time
)

// Model is the bubbletea model for the remote browser. All browser state is changed in Update
// only; background work reports back through the inbox channel.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
	logger zerolog.Logger

	lister Lister
	engine Puller

	state       *browser.State
	mode        Mode
	pendingPath string
	lastLocal   string
	signalsSent int

	inbox chan tea.Msg
	done  chan struct{}

	keys   KeyMap
	help   help.Model
	bar    progress.Model
	width  int
	height int
}

func New(ctx context.Context, lister Lister, engine Puller, home string, opts Options) Model {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 200 * time.Millisecond
	}
	if opts.LocalDir == "" {
		opts.LocalDir = "."
	}
	ctx, cancel := context.WithCancel(ctx)
	state := browser.New(home, opts.PageSize, opts.OutputLines)
	return Model{
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "tui").Logger(),
		lister: lister,
		engine: engine,
		state:  state,
		// the normalized path, which is what Init lists
		pendingPath: state.CurrentPath(),
		inbox:       make(chan tea.Msg, 256),
		done:        make(chan struct{}),
		keys:        DefaultKeyMap(),
		help:        help.New(),
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list(m.state.CurrentPath(), false),
		waitForMsg(m.inbox),
		tick(m.opts.RefreshInterval),
	)
}

// State exposes the browser state for the final report and tests.
func (m Model) State() *browser.State { return m.state }

func (m Model) Mode() Mode { return m.mode }

// SignalsSent is how many transfers were killed on quit.
func (m Model) SignalsSent() int { return m.signalsSent }

// NotifyLocal forwards a local watcher event to the UI. Safe from any goroutine.
func (m Model) NotifyLocal(ev localwatch.Event) {
	m.send(localEventMsg(ev))
}

// send delivers msg to the inbox unless the UI is gone.
func (m Model) send(msg tea.Msg) {
	select {
	case m.inbox <- msg:
	case <-m.done:
	case <-m.ctx.Done():
	}
}

// waitForMsg returns a tea.Cmd that blocks until a background goroutine sends a message.
func waitForMsg(inbox <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-inbox
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case listedMsg:
		if msg.path != m.pendingPath {
			// superseded by a later navigation
			return m, nil
		}
		if msg.reload && msg.path == m.state.CurrentPath() {
			m.state.Reload(msg.entries)
		} else {
			m.state.SetEntries(msg.path, msg.entries)
		}
		return m, nil

	case transferEventMsg:
		m.applyEvent(transfer.Event(msg))
		return m, waitForMsg(m.inbox)

	case batchDoneMsg:
		m.state.ClearMarks()
		if m.mode == Transferring {
			m.mode = Browsing
		}
		m.logger.Info().Int("transfers", len(msg.results)).Msg("batch finished")
		return m, waitForMsg(m.inbox)

	case localEventMsg:
		m.lastLocal = localwatch.Event(msg).String()
		return m, waitForMsg(m.inbox)

	case tickMsg:
		if m.mode == Quitting {
			return m, nil
		}
		return m, tick(m.opts.RefreshInterval)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == Quitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Up):
		m.state.Up()
	case key.Matches(msg, m.keys.Down):
		m.state.Down()
	case key.Matches(msg, m.keys.PageUp):
		m.state.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.state.PageDown()
	case key.Matches(msg, m.keys.Mark):
		m.state.ToggleMark()
	case key.Matches(msg, m.keys.Open):
		if target, ok := m.state.EnterTarget(); ok {
			m.pendingPath = target
			return m, m.list(target, false)
		}
	case key.Matches(msg, m.keys.Download):
		return m.startBatch()
	case key.Matches(msg, m.keys.Refresh):
		m.pendingPath = m.state.CurrentPath()
		return m, m.list(m.pendingPath, true)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	default:
		if m.state.Status() != "" {
			m.state.ClearStatus()
		}
	}
	return m, nil
}

func (m Model) list(path string, reload bool) tea.Cmd {
	ctx, lister := m.ctx, m.lister
	return func() tea.Msg {
		return listedMsg{path: path, entries: lister.List(ctx, path), reload: reload}
	}
}

// startBatch pulls every marked entry, one after another, in the order they were marked.
func (m Model) startBatch() (tea.Model, tea.Cmd) {
	if m.mode == Transferring {
		m.logger.Debug().Msg("download ignored, a batch is already running")
		return m, nil
	}
	names := m.state.Marked()
	if len(names) == 0 {
		return m, nil
	}

	reqs := make([]types.TransferRequest, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, types.TransferRequest{
			RemotePath:     m.state.RemotePath(name),
			LocalPath:      m.opts.LocalDir,
			FollowSymlinks: m.opts.FollowSymlinks,
			Port:           m.opts.Port,
			Credentials:    m.opts.Credentials,
		})
	}
	m.mode = Transferring
	m.logger.Info().Int("transfers", len(reqs)).Str("dir", m.state.CurrentPath()).Msg("batch started")

	ctx, engine, observer := m.ctx, m.engine, m.opts.Observer
	report := func(ev transfer.Event) {
		if observer != nil {
			observer(ev)
		}
		m.send(transferEventMsg(ev))
	}
	return m, func() tea.Msg {
		results := make([]transfer.Result, 0, len(reqs))
		for _, req := range reqs {
			if ctx.Err() != nil {
				break
			}
			results = append(results, engine.Pull(ctx, req, report))
		}
		// Through the inbox, so it lands after every event of the batch.
		m.send(batchDoneMsg{results: results})
		return nil
	}
}

// quit kills every live transfer and stops the program.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.mode = Quitting
	m.signalsSent = m.engine.CancelAll()
	m.logger.Info().Int("signals", m.signalsSent).Msg("quitting")
	m.cancel()
	close(m.done)
	return m, tea.Quit
}

func (m *Model) applyEvent(ev transfer.Event) {
	switch ev.Kind {
	case transfer.EventOutput:
		m.state.AppendOutput(ev.Text)
	case transfer.EventStatus:
		if ev.Total > 0 {
			m.state.SetProgress(ev.Text, ev.Done, ev.Total)
		} else {
			m.state.SetStatus(ev.Text)
		}
	}
}
