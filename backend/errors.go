package backend

import (
	"errors"
	"fmt"

	"rsynctui/backend/internal/types"
	"rsynctui/backend/pkg/sshconfig"
)

// Describe turns a startup error into the message shown to the operator.
func Describe(err error) string {
	var rsyncErr *types.RsyncUnavailableError
	var pwErr *types.PasswordRequiredError
	var authErr *types.AuthenticationFailedError
	var hostKeyErr *types.HostKeyVerificationError
	var cfgErr *sshconfig.ConfigError

	switch {
	case errors.As(err, &rsyncErr):
		return rsyncErr.Error()
	case errors.As(err, &pwErr):
		return fmt.Sprintf("%v: use an identity file, ssh-agent, or set RSYNC_TUI_PASSWORD", pwErr)
	case errors.As(err, &authErr):
		return fmt.Sprintf("%v: check the user and credentials", authErr)
	case errors.As(err, &hostKeyErr):
		if hostKeyErr.Changed {
			return fmt.Sprintf("%v: refusing to connect, fix known_hosts first", hostKeyErr)
		}
		return fmt.Sprintf("%v: connect once with ssh or rerun with --accept-new", hostKeyErr)
	case errors.As(err, &cfgErr):
		return cfgErr.Error()
	case errors.Is(err, ErrNotTerminal):
		return err.Error()
	default:
		return fmt.Sprintf("error: %v", err)
	}
}
