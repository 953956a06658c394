//go:build windows

package ptyx

import (
	"io"
	"os/exec"
	"syscall"

	gopty "github.com/aymanbagabas/go-pty"
	"golang.org/x/sys/windows"
)

type winPty struct {
	p gopty.Pty
	c *gopty.Cmd
}

func (p *winPty) Output() io.Reader { return p.p }

func (p *winPty) Wait() error { return p.c.Wait() }

func (p *winPty) Pid() int { return p.c.Process.Pid }

func (p *winPty) Close() error { return p.p.Close() }

func Start(cmd *exec.Cmd) (Proc, error) {
	return StartWithSize(cmd, &DefaultWinsize)
}

// StartWithSize runs cmd on a ConPTY. Only the path, args, dir and env of cmd are used.
func StartWithSize(cmd *exec.Cmd, ws *Winsize) (Proc, error) {
	p, err := gopty.New()
	if err != nil {
		return nil, err
	}
	if ws != nil {
		_ = p.Resize(int(ws.Cols), int(ws.Rows))
	}
	c := p.Command(cmd.Path, cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env
	if err := c.Start(); err != nil {
		p.Close()
		return nil, err
	}
	cmd.Process = c.Process
	return &winPty{c: c, p: p}, nil
}

func newProcessGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
