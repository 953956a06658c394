//go:build !windows

package ptyx

import (
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

type unixPty struct {
	f *os.File
	c *exec.Cmd
}

func (p *unixPty) Output() io.Reader { return p.f }

func (p *unixPty) Wait() error { return p.c.Wait() }

func (p *unixPty) Pid() int { return p.c.Process.Pid }

func (p *unixPty) Close() error { return p.f.Close() }

// Start runs cmd on a new pseudo-terminal sized DefaultWinsize. The child becomes a session
// leader (setsid), so its pid is also its process group id.
func Start(cmd *exec.Cmd) (Proc, error) {
	return StartWithSize(cmd, &DefaultWinsize)
}

// StartWithSize is Start with an explicit terminal size; nil means the pty default.
func StartWithSize(cmd *exec.Cmd, ws *Winsize) (Proc, error) {
	var err error
	var f *os.File
	if ws == nil {
		f, err = pty.Start(cmd)
	} else {
		f, err = pty.StartWithSize(cmd, &pty.Winsize{
			Rows: ws.Rows,
			Cols: ws.Cols,
		})
	}
	if err != nil {
		return nil, err
	}
	return &unixPty{f: f, c: cmd}, nil
}

func newProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
