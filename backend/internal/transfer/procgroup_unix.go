//go:build !windows

package transfer

import (
	"golang.org/x/sys/unix"
)

// KillProcessGroup sends SIGKILL to the process group of pid. When the group cannot be looked up
// (the process likely already exited) pid itself is used as the group id.
func KillProcessGroup(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	// never signal our own group
	if pgid == unix.Getpgrp() {
		return unix.Kill(pid, unix.SIGKILL)
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}
