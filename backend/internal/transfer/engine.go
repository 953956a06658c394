package transfer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"rsynctui/backend/internal/types"
	"rsynctui/backend/pkg/ptyx"
)

type EventKind int

const (
	// EventStatus replaces the status line.
	EventStatus EventKind = iota
	// EventOutput is one raw line of rsync output.
	EventOutput
)

func (k EventKind) String() string {
	if k == EventOutput {
		return "output"
	}
	return "status"
}

// Event is what a running transfer reports. Done and Total are set on progress status events.
type Event struct {
	Kind       EventKind
	Text       string
	TransferID string
	Done       int
	Total      int
}

// Reporter receives events from a background goroutine, in the order they were produced.
// It must be safe to call from any goroutine.
type Reporter func(Event)

type Outcome int

const (
	Completed Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "failed"
}

// Result is the terminal state of one Pull.
type Result struct {
	TransferID string
	Outcome    Outcome
	ExitCode   int
	Canceled   bool
}

// Starter launches a prepared command.
type Starter func(cmd *exec.Cmd) (ptyx.Proc, error)

type Options struct {
	// RsyncPath defaults to "rsync" from PATH.
	RsyncPath    string
	IdentityFile string
	// UsePty runs rsync on a pseudo-terminal so it line-buffers its output. Otherwise a pipe is
	// used and the command is wrapped with `stdbuf -oL` when stdbuf is available.
	UsePty bool
	// DrainTimeout bounds how long output is read after the process exits.
	DrainTimeout time.Duration
	Kill         KillFunc
	Starter      Starter
}

const defaultDrainTimeout = 2 * time.Second

// Engine runs rsync pulls and keeps the live-handle registry.
type Engine struct {
	opts     Options
	stdbuf   string
	registry *Registry
	logger   zerolog.Logger
}

func NewEngine(opts Options, logger zerolog.Logger) *Engine {
	logger = logger.With().Str("component", "transfer").Logger()
	if opts.RsyncPath == "" {
		opts.RsyncPath = "rsync"
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	if opts.Starter == nil {
		if opts.UsePty {
			opts.Starter = ptyx.Start
		} else {
			opts.Starter = ptyx.StartPiped
		}
	}
	e := &Engine{
		opts:     opts,
		registry: NewRegistry(opts.Kill, logger),
		logger:   logger,
	}
	if !opts.UsePty {
		if p, err := exec.LookPath("stdbuf"); err == nil {
			e.stdbuf = p
		}
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.registry }

// CancelAll kills every live transfer and returns the number of signals sent.
func (e *Engine) CancelAll() int { return e.registry.CancelAll() }

// Command returns the exec.Cmd for req.
func (e *Engine) Command(req types.TransferRequest) *exec.Cmd {
	args := BuildArgs(req, e.opts.IdentityFile)
	if e.stdbuf != "" {
		return exec.Command(e.stdbuf, append([]string{"-oL", e.opts.RsyncPath}, args...)...)
	}
	return exec.Command(e.opts.RsyncPath, args...)
}

// Pull runs one rsync invocation to completion. Output lines and progress are reported as they
// arrive; the final event is always the terminal status. Cancelling ctx kills the transfer.
func (e *Engine) Pull(ctx context.Context, req types.TransferRequest, report Reporter) Result {
	if report == nil {
		report = func(Event) {}
	}
	id := uuid.NewString()
	logger := e.logger.With().Str("transfer", id).Str("src", Source(req)).Str("dst", Destination(req)).Logger()

	cmd := e.Command(req)
	proc, err := e.opts.Starter(cmd)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start rsync")
		report(Event{Kind: EventOutput, Text: err.Error(), TransferID: id})
		report(Event{Kind: EventStatus, Text: StatusFailed, TransferID: id})
		return Result{TransferID: id, Outcome: Failed, ExitCode: -1}
	}
	logger.Info().Int("pid", proc.Pid()).Strs("args", cmd.Args).Msg("rsync started")

	h := e.registry.Add(id, req, proc.Pid())
	defer e.registry.Remove(id)

	stop := context.AfterFunc(ctx, func() {
		if _, err := h.Cancel(); err != nil {
			logger.Debug().Err(err).Msg("kill on cancel failed")
		}
	})
	defer stop()

	var waitErr error
	readDone := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		defer close(readDone)
		e.readOutput(proc.Output(), id, report, logger)
	})
	wg.Go(func() {
		waitErr = proc.Wait()
		h.markExited()
		// A grandchild can keep the terminal open after rsync exits.
		select {
		case <-readDone:
		case <-time.After(e.opts.DrainTimeout):
			logger.Warn().Msg("output not closed after exit, closing it")
			_ = proc.Close()
		}
	})
	if r := wg.WaitAndRecover(); r != nil {
		logger.Error().Str("panic", r.String()).Msg("transfer goroutine panicked")
		waitErr = r.AsError()
	}
	_ = proc.Close()

	res := Result{
		TransferID: id,
		ExitCode:   exitCode(waitErr),
		Canceled:   h.CancelRequested(),
	}
	if res.ExitCode == 0 {
		res.Outcome = Completed
		report(Event{Kind: EventStatus, Text: StatusComplete, TransferID: id})
	} else {
		res.Outcome = Failed
		report(Event{Kind: EventStatus, Text: StatusFailed, TransferID: id})
	}
	logger.Info().Stringer("outcome", res.Outcome).Int("exit", res.ExitCode).Bool("canceled", res.Canceled).Msg("rsync finished")
	return res
}

func (e *Engine) readOutput(r io.Reader, id string, report Reporter, logger zerolog.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(ScanLines)
	for sc.Scan() {
		line := sc.Text()
		report(Event{Kind: EventOutput, Text: line, TransferID: id})
		if done, total, ok := ParseProgress(line); ok {
			report(Event{Kind: EventStatus, Text: ProgressStatus(done, total), TransferID: id, Done: done, Total: total})
		}
	}
	// A pty master reports EIO once the child side is gone; that is the normal end.
	if err := sc.Err(); err != nil {
		logger.Debug().Err(err).Msg("output reader stopped")
		// Keep the child from blocking on a full pipe, e.g. after an overlong line.
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
