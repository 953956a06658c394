package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName     = "rsync-tui"
	EnvPrefix   = "RSYNC_TUI"
	DefaultUser = "root"
	DefaultPort = 22
)

// Config stores all configuration of the application.
// The values are read by viper from flags, RSYNC_TUI_* environment variables and config.yaml.
type Config struct {
	User         string `mapstructure:"user"`
	Port         int    `mapstructure:"port"`
	IdentityFile string `mapstructure:"identity_file"`
	Password     string `mapstructure:"password"`
	SavePassword bool   `mapstructure:"save_password"`
	KnownHosts   string `mapstructure:"known_hosts"`
	Insecure     bool   `mapstructure:"insecure"`
	AcceptNew    bool   `mapstructure:"accept_new"`

	PageSize        int           `mapstructure:"page_size"`
	OutputLines     int           `mapstructure:"output_lines"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	LocalDir       string `mapstructure:"local_dir"`
	FollowSymlinks bool   `mapstructure:"follow_symlinks"`
	RsyncPath      string `mapstructure:"rsync_path"`
	UsePty         bool   `mapstructure:"use_pty"`

	MonitorAddr string `mapstructure:"monitor_addr"`
	WatchLocal  bool   `mapstructure:"watch_local"`
	Debug       bool   `mapstructure:"debug"`
}

// Dir returns the per-user config directory, e.g. ~/.config/rsync-tui.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), AppName)
	}
	return filepath.Join(base, AppName)
}

// SetDefaults registers every key on v so that each one can also come from the environment.
// User and port default to their zero value, which means "not given": ~/.ssh/config may still
// supply them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("user", "")
	v.SetDefault("port", 0)
	v.SetDefault("identity_file", "")
	v.SetDefault("password", "")
	v.SetDefault("save_password", false)
	v.SetDefault("known_hosts", "")
	v.SetDefault("insecure", false)
	v.SetDefault("accept_new", false)
	v.SetDefault("monitor_addr", "")
	v.SetDefault("debug", false)
	v.SetDefault("page_size", 20)
	v.SetDefault("output_lines", 30)
	v.SetDefault("refresh_interval", 200*time.Millisecond)
	v.SetDefault("local_dir", ".")
	v.SetDefault("follow_symlinks", false)
	v.SetDefault("rsync_path", "rsync")
	v.SetDefault("use_pty", true)
	v.SetDefault("watch_local", true)
}

// BindFlags binds each flag to the config key of the same name with '-' turned into '_'.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

// Load reads configuration from configFile (or config.yaml in Dir) and the environment.
// A missing default config file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.OutputLines <= 0 {
		return fmt.Errorf("output_lines must be positive, got %d", c.OutputLines)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be positive, got %s", c.RefreshInterval)
	}
	return nil
}

// EffectiveUser returns the user to connect as and whether it was given explicitly.
func (c *Config) EffectiveUser() (string, bool) {
	if c.User != "" {
		return c.User, true
	}
	return DefaultUser, false
}

// EffectivePort returns the port to connect to and whether it was given explicitly.
func (c *Config) EffectivePort() (int, bool) {
	if c.Port != 0 {
		return c.Port, true
	}
	return DefaultPort, false
}
