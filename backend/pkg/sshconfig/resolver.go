package sshconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// Host 代表从 ~/.ssh/config 中为某个别名解析出的连接参数
type Host struct {
	Alias        string
	HostName     string
	User         string
	Port         int
	IdentityFile string
}

// ConfigError 配置相关错误
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ssh config %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Resolver 解析别名对应的连接参数，无需调用 ssh -G
type Resolver struct {
	filename string
	cfg      *ssh_config.Config
}

// DefaultPath 返回 ~/.ssh/config
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".ssh", "config")
}

// NewResolver 加载配置文件，文件不存在不是错误，只是解析不到任何内容
func NewResolver(filename string) (*Resolver, error) {
	r := &Resolver{filename: expandHomeDir(filename)}
	if r.filename == "" {
		return r, nil
	}

	f, err := os.Open(r.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, &ConfigError{"open", err}
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return nil, &ConfigError{"decode", err}
	}
	r.cfg = cfg
	return r, nil
}

// Resolve 为别名填充 Host。配置中未提及的字段保持零值，
// HostName 除外，它默认为别名本身
func (r *Resolver) Resolve(alias string) Host {
	host := Host{Alias: alias, HostName: alias}
	if r == nil || r.cfg == nil {
		return host
	}

	if v := r.get(alias, "HostName"); v != "" {
		host.HostName = v
	}
	host.User = r.get(alias, "User")
	if v := r.get(alias, "Port"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			host.Port = port
		}
	}
	if v := r.get(alias, "IdentityFile"); v != "" {
		host.IdentityFile = expandHomeDir(v)
	}
	return host
}

func (r *Resolver) get(alias, key string) string {
	v, err := r.cfg.Get(alias, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// expandHomeDir 展开路径中的 ~
func expandHomeDir(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[1:])
}
