package transfer

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"

	"al.essio.dev/pkg/shellescape"

	"rsynctui/backend/internal/types"
)

// rsyncFlags: archive, compress, verbose, per-file progress, keep partial files for resume.
var rsyncFlags = []string{"-avz", "--progress", "--partial"}

// RemoteShell is the ssh command rsync uses as its transport.
func RemoteShell(port int, identityFile string) string {
	shell := "ssh -p " + strconv.Itoa(port) +
		" -o LogLevel=ERROR -o StreamLocalBindUnlink=yes -o ServerAliveInterval=30"
	if identityFile != "" {
		shell += " -i " + shellescape.Quote(identityFile)
	}
	return shell
}

// BuildArgs returns rsync's argument list (without the binary) for one request.
func BuildArgs(req types.TransferRequest, identityFile string) []string {
	args := append([]string{}, rsyncFlags...)
	args = append(args, "-e", RemoteShell(req.Port, identityFile))
	if req.FollowSymlinks {
		args = append(args, "-L")
	}
	return append(args, Source(req), Destination(req))
}

// Source is the user@host:path operand. The remote path is cleaned, so a directory is always
// copied as itself and never as its contents.
func Source(req types.TransferRequest) string {
	remote := path.Clean("/" + req.RemotePath)
	return fmt.Sprintf("%s:%s", req.Credentials, remote)
}

func Destination(req types.TransferRequest) string {
	if req.LocalPath == "" {
		return "."
	}
	return filepath.Clean(req.LocalPath)
}
