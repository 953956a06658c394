package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"rsynctui/backend/internal/localwatch"
	"rsynctui/backend/internal/logging"
	"rsynctui/backend/internal/monitor"
	"rsynctui/backend/internal/remotefs"
	"rsynctui/backend/internal/sshmanager"
	"rsynctui/backend/internal/transfer"
	"rsynctui/backend/internal/types"
	"rsynctui/backend/pkg/sshconfig"
	"rsynctui/backend/pkg/utils"
	"rsynctui/backend/service/tui"
	"rsynctui/internal/config"
)

// ErrNotTerminal is returned by Run when stdin is not a terminal.
var ErrNotTerminal = errors.New("rsync-tui needs an interactive terminal")

// App struct
type App struct {
	ctx    context.Context
	host   string
	cfg    *config.Config
	logger zerolog.Logger
	logs   *logging.Handle

	sshManager *sshmanager.Manager
	client     *sshmanager.Client
	engine     *transfer.Engine
	watcherSvc *localwatch.WatcherService
	monitor    *monitor.Hub

	creds    types.Credentials
	port     int
	identity string
	home     string

	stdin  *os.File
	stderr io.Writer
}

// NewApp creates a new App for host.
func NewApp(host string, cfg *config.Config) *App {
	return &App{
		host:   host,
		cfg:    cfg,
		logger: zerolog.Nop(),
		stdin:  os.Stdin,
		stderr: os.Stderr,
	}
}

func (a *App) Ctx() context.Context { return a.ctx }

func (a *App) Home() string { return a.home }

// Startup connects to the host and prepares everything the UI needs. Any error it returns is
// fatal: the UI is never shown.
func (a *App) Startup(ctx context.Context) error {
	a.ctx = ctx

	// --- log file ---
	logOpts := logging.Options{Dir: config.Dir(), Debug: a.cfg.Debug}
	if a.cfg.Debug {
		logOpts.Console = a.stderr
	}
	logger, logs, err := logging.New(logOpts)
	if err != nil {
		fmt.Fprintf(a.stderr, "warning: %v, logging disabled\n", err)
	} else {
		a.logger, a.logs = logger, logs
	}
	a.logger.Info().Str("host", a.host).Msg("-------------------- rsync-tui starting --------------------")

	if _, err := exec.LookPath(a.cfg.RsyncPath); err != nil {
		return &types.RsyncUnavailableError{Local: true}
	}

	resolver, err := sshconfig.NewResolver(sshconfig.DefaultPath())
	if err != nil {
		a.logger.Warn().Err(err).Msg("ignoring unreadable ~/.ssh/config")
	}
	a.sshManager = sshmanager.NewManager(resolver, a.logger)

	if err := a.connect(ctx); err != nil {
		return err
	}

	if err := remotefs.EnsureRsync(ctx, a.client, a.host, a.logger); err != nil {
		return err
	}

	var wd remotefs.Getwder
	if sc, err := a.client.SFTP(); err == nil {
		defer sc.Close()
		wd = sc
	} else {
		a.logger.Debug().Err(err).Msg("sftp unavailable, no home directory fallback")
	}
	a.home = remotefs.HomeDir(ctx, a.client, wd)
	a.logger.Info().Str("home", a.home).Msg("remote home directory")

	a.engine = transfer.NewEngine(transfer.Options{
		RsyncPath:    a.cfg.RsyncPath,
		IdentityFile: a.identity,
		UsePty:       a.cfg.UsePty,
	}, a.logger)

	if a.cfg.MonitorAddr != "" {
		a.monitor = monitor.NewHub(a.logger)
		addr, err := a.monitor.Start(a.cfg.MonitorAddr)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "progress monitor on ws://%s%s\n", addr, monitor.Path)
	}
	return nil
}

// connect dials the exec connection, asking for a password on the terminal when no other
// authentication method works.
func (a *App) connect(ctx context.Context) error {
	user, userSet := a.cfg.EffectiveUser()
	port, portSet := a.cfg.EffectivePort()
	opts := sshmanager.Options{
		Credentials:    types.Credentials{User: user, Host: a.host},
		Port:           port,
		UserSet:        userSet,
		PortSet:        portSet,
		IdentityFile:   a.cfg.IdentityFile,
		Password:       a.cfg.Password,
		KnownHostsPath: a.cfg.KnownHosts,
		Insecure:       a.cfg.Insecure,
		AcceptNew:      a.cfg.AcceptNew,
	}

	client, err := a.sshManager.Dial(ctx, opts)
	if err != nil && opts.Password == "" && needsPassword(err) && term.IsTerminal(int(a.stdin.Fd())) {
		password, perr := a.promptPassword(fmt.Sprintf("Password for %s: ", opts.Credentials))
		if perr != nil {
			return perr
		}
		opts.Password = password
		client, err = a.sshManager.Dial(ctx, opts)
	}
	if err != nil {
		return err
	}

	if a.cfg.SavePassword && opts.Password != "" {
		if err := sshmanager.SavePassword(opts.Credentials, opts.Password); err != nil {
			a.logger.Warn().Err(err).Msg("failed to save password to keyring")
		}
	}

	a.client = client
	cc := client.Config()
	a.creds = types.Credentials{User: cc.User, Host: a.host}
	a.port = cc.Port
	a.identity = cc.IdentityFile
	a.logger.Info().Str("addr", client.Addr()).Str("user", cc.User).Msg("connected")
	return nil
}

func needsPassword(err error) bool {
	var pwErr *types.PasswordRequiredError
	var authErr *types.AuthenticationFailedError
	return errors.As(err, &pwErr) || errors.As(err, &authErr)
}

func (a *App) promptPassword(prompt string) (string, error) {
	fmt.Fprint(a.stderr, prompt)
	b, err := term.ReadPassword(int(a.stdin.Fd()))
	fmt.Fprintln(a.stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// Run shows the browser until the operator quits.
func (a *App) Run() error {
	if !term.IsTerminal(int(a.stdin.Fd())) {
		return ErrNotTerminal
	}

	// Releases background senders however the program ends.
	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	var observer transfer.Reporter
	if a.monitor != nil {
		observer = a.monitor.Publish
	}
	model := tui.New(ctx, remotefs.NewLister(a.client, a.logger), a.engine, a.home, tui.Options{
		Credentials:     a.creds,
		Port:            a.port,
		LocalDir:        a.cfg.LocalDir,
		FollowSymlinks:  a.cfg.FollowSymlinks,
		PageSize:        a.cfg.PageSize,
		OutputLines:     a.cfg.OutputLines,
		RefreshInterval: a.cfg.RefreshInterval,
		Observer:        observer,
		Logger:          a.logger,
	})

	if a.cfg.WatchLocal {
		a.startWatcher(model.NotifyLocal)
	}

	if a.logs != nil {
		a.logs.DetachConsole()
	}
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}
	if m, ok := final.(tui.Model); ok {
		a.logger.Info().Int("signals", m.SignalsSent()).Str("path", m.State().CurrentPath()).Msg("ui closed")
	}
	return nil
}

func (a *App) startWatcher(sink localwatch.Sink) {
	w, err := localwatch.NewWatcherService(a.ctx, sink, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("local watcher disabled")
		return
	}
	if err := w.AddWatch(a.cfg.LocalDir); err != nil {
		a.logger.Warn().Err(err).Msg("local watcher disabled")
	}
	a.watcherSvc = w
	utils.SafeGo(a.logger, "localwatch", w.Start)
}

// Shutdown kills any transfer still running and releases every resource. Safe to call after a
// failed Startup.
func (a *App) Shutdown() {
	a.logger.Info().Msg("app shutdown")
	if a.engine != nil {
		if n := a.engine.CancelAll(); n > 0 {
			a.logger.Info().Int("signals", n).Msg("killed running transfers")
		}
	}
	if a.watcherSvc != nil {
		a.watcherSvc.Stop()
	}
	if a.monitor != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.monitor.Shutdown(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("monitor shutdown")
		}
		cancel()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
