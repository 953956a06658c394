package ptyx

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// pipeProc is a child whose stdout and stderr share one os.Pipe.
type pipeProc struct {
	cmd *exec.Cmd
	r   *os.File
}

func (p *pipeProc) Output() io.Reader { return p.r }

func (p *pipeProc) Wait() error { return p.cmd.Wait() }

func (p *pipeProc) Pid() int { return p.cmd.Process.Pid }

func (p *pipeProc) Close() error { return p.r.Close() }

// StartPiped starts cmd with stdout and stderr joined on one pipe, in a new process group.
// Most tools block-buffer their output in this mode; wrap the command with stdbuf or use Start
// when line-buffered output matters.
func StartPiped(cmd *exec.Cmd) (Proc, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdin = nil
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = newProcessGroupAttr()

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go so the reader sees EOF.
	w.Close()
	return &pipeProc{cmd: cmd, r: r}, nil
}
