package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rsynctui/backend"
	"rsynctui/internal/config"
)

var version = "0.0.0"

// errReported marks an error whose message has already been shown.
var errReported = errors.New("reported")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   config.AppName + " HOST",
		Short: "Browse a remote host over SSH and pull files with rsync",
		Long: `rsync-tui opens an interactive listing of a remote host's filesystem.
Mark files with space and press d to download them with rsync into the local directory.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return config.BindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), args[0], cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (default "+config.Dir()+"/config.yaml)")
	f.StringP("user", "u", "", "remote user (default from ~/.ssh/config, else "+config.DefaultUser+")")
	f.IntP("port", "p", 0, "SSH port (default from ~/.ssh/config, else 22)")
	f.StringP("identity-file", "i", "", "private key used for the connection and for rsync")
	f.Bool("save-password", false, "store the password in the system keyring after a successful login")
	f.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	f.Bool("insecure", false, "do not verify the host key")
	f.Bool("accept-new", false, "record unknown host keys instead of refusing them")
	f.Int("page-size", 20, "rows per listing page")
	f.Int("output-lines", 30, "rsync output lines kept in the output pane")
	f.Duration("refresh-interval", 200*time.Millisecond, "UI refresh tick")
	f.StringP("local-dir", "l", ".", "local destination directory")
	f.BoolP("follow-symlinks", "L", false, "pass -L to rsync")
	f.String("rsync-path", "rsync", "local rsync binary")
	f.Bool("use-pty", true, "run rsync in a pseudo-terminal so it streams progress")
	f.String("monitor-addr", "", "serve transfer events over WebSocket on this address, e.g. 127.0.0.1:8765")
	f.Bool("watch-local", true, "show changes in the local directory in the header")
	f.Bool("debug", false, "debug logging, mirrored to stderr until the UI starts")
	return cmd
}

func run(parent context.Context, host string, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := backend.NewApp(host, cfg)
	defer app.Shutdown()

	err := app.Startup(ctx)
	if err == nil {
		err = app.Run()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, backend.Describe(err))
		return errReported
	}
	return nil
}
