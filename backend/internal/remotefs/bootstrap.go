package remotefs

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"rsynctui/backend/internal/types"
)

// RsyncInstallCommands are tried in order until one exits 0.
var RsyncInstallCommands = []string{
	"sudo apt-get update && sudo apt-get install -y rsync",
	"sudo yum install -y rsync",
	"sudo dnf install -y rsync",
	"sudo apk add rsync",
}

const rsyncProbeCommand = "command -v rsync"

// EnsureRsync makes sure rsync exists on the remote host, installing it when it does not.
// It returns *types.RsyncUnavailableError when every installer fails.
func EnsureRsync(ctx context.Context, exec Execer, host string, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "remotefs").Str("host", host).Logger()

	res, err := exec.Execute(ctx, rsyncProbeCommand)
	if err != nil {
		return err
	}
	if res.OK() {
		logger.Debug().Str("path", strings.TrimSpace(res.Stdout)).Msg("remote rsync found")
		return nil
	}

	logger.Info().Msg("rsync not found on remote host, trying to install it")
	for _, install := range RsyncInstallCommands {
		res, err := exec.Execute(ctx, install)
		if err != nil {
			return err
		}
		if res.OK() {
			logger.Info().Str("cmd", install).Msg("rsync installed")
			return nil
		}
		logger.Debug().Str("cmd", install).Int("status", res.ExitStatus).Str("stderr", strings.TrimSpace(res.Stderr)).Msg("installer failed")
	}
	return &types.RsyncUnavailableError{Host: host}
}

// Getwder reports the remote working directory; *sftp.Client satisfies it.
type Getwder interface {
	Getwd() (string, error)
}

// HomeDir asks the remote shell for $HOME. If that yields nothing it falls back to the SFTP
// server's working directory (when fallback is non-nil), and finally to "/".
func HomeDir(ctx context.Context, exec Execer, fallback Getwder) string {
	res, err := exec.Execute(ctx, "echo $HOME")
	if err == nil && res.OK() {
		if home := strings.TrimSpace(res.Stdout); strings.HasPrefix(home, "/") {
			return CleanPath(home)
		}
	}
	if fallback != nil {
		if wd, err := fallback.Getwd(); err == nil && strings.HasPrefix(wd, "/") {
			return CleanPath(wd)
		}
	}
	return "/"
}
