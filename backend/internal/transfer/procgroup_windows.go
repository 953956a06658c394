//go:build windows

package transfer

import (
	"os/exec"
	"strconv"
)

// KillProcessGroup terminates pid and its whole process tree with taskkill.
func KillProcessGroup(pid int) error {
	// /T takes the child ssh.exe with it, /F forces.
	return exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
}
