package sshmanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/skeema/knownhosts"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"rsynctui/backend/internal/types"
	"rsynctui/backend/pkg/sshconfig"
)

// 定义钥匙串服务的名称
const keyringService = "rsync-tui"

const defaultDialTimeout = 10 * time.Second

// Options 描述命令行上指定的远程账户
type Options struct {
	Credentials types.Credentials
	Port        int
	// UserSet/PortSet 表示该值是否来自显式的 flag，是的话优先于 ~/.ssh/config
	UserSet      bool
	PortSet      bool
	IdentityFile string
	Password     string

	KnownHostsPath string
	// Insecure 完全跳过 known_hosts 校验
	Insecure bool
	// AcceptNew 记录未知的主机密钥而不是报错 (StrictHostKeyChecking=accept-new)
	AcceptNew bool
	Timeout   time.Duration
}

// ConnectionConfig 结构体，用于封装一个完整的SSH客户端配置
type ConnectionConfig struct {
	HostName     string
	Port         int
	User         string
	IdentityFile string
	ClientConfig *ssh.ClientConfig

	// ssh-agent 的连接，随客户端一起关闭
	agentConn io.Closer
}

func (c *ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.HostName, strconv.Itoa(c.Port))
}

// Close 释放认证过程中打开的资源（ssh-agent 连接）
func (c *ConnectionConfig) Close() error {
	if c.agentConn == nil {
		return nil
	}
	err := c.agentConn.Close()
	c.agentConn = nil
	return err
}

// Manager 根据 Options 建立 SSH 客户端
type Manager struct {
	resolver *sshconfig.Resolver
	logger   zerolog.Logger
}

func NewManager(resolver *sshconfig.Resolver, logger zerolog.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		logger:   logger.With().Str("component", "sshmanager").Logger(),
	}
}

// GetConnectionConfig 按优先级尝试所有认证方法
func (m *Manager) GetConnectionConfig(opts Options) (*ConnectionConfig, error) {
	host := m.resolver.Resolve(opts.Credentials.Host)

	user := opts.Credentials.User
	if !opts.UserSet && host.User != "" {
		user = host.User
	}
	port := opts.Port
	if !opts.PortSet && host.Port != 0 {
		port = host.Port
	}
	if port == 0 {
		port = 22
	}
	identityFile := opts.IdentityFile
	if identityFile == "" {
		identityFile = host.IdentityFile
	}

	authMethods, agentConn := m.authMethods(opts, identityFile)
	if len(authMethods) == 0 {
		return nil, &types.PasswordRequiredError{Host: opts.Credentials.Host}
	}

	hostKeyCallback, hostKeyAlgorithms, err := m.hostKeyCallback(opts)
	if err != nil {
		if agentConn != nil {
			agentConn.Close()
		}
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	cc := &ConnectionConfig{
		HostName:     host.HostName,
		Port:         port,
		User:         user,
		IdentityFile: identityFile,
		ClientConfig: &ssh.ClientConfig{
			User:            user,
			Auth:            authMethods,
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
		agentConn: agentConn,
	}
	if hostKeyAlgorithms != nil {
		cc.ClientConfig.HostKeyAlgorithms = hostKeyAlgorithms(cc.Addr())
	}
	return cc, nil
}

func (m *Manager) authMethods(opts Options, identityFile string) ([]ssh.AuthMethod, io.Closer) {
	var authMethods []ssh.AuthMethod
	var agentConn io.Closer

	// 认证优先级 1: 本次显式提供的密码
	if opts.Password != "" {
		authMethods = append(authMethods, ssh.Password(opts.Password))
	}

	// 认证优先级 2: 密钥文件 (flag 或 ~/.ssh/config 中的 IdentityFile)
	var signers []ssh.Signer
	keyFiles := []string{identityFile}
	if identityFile == "" {
		keyFiles = defaultKeyPaths()
	}
	for _, keyFile := range keyFiles {
		if keyFile == "" {
			continue
		}
		signer, err := readSigner(keyFile)
		if err != nil {
			if identityFile != "" {
				m.logger.Warn().Err(err).Str("key", keyFile).Msg("failed to load identity file")
			}
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		authMethods = append(authMethods, ssh.PublicKeys(signers...))
	}

	// 认证优先级 3: ssh-agent
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentConn = conn
			authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			m.logger.Debug().Err(err).Msg("ssh-agent unavailable")
		}
	}

	// 认证优先级 4: 从系统钥匙串中获取已保存的密码
	account := opts.Credentials.String()
	if saved, err := keyring.Get(keyringService, account); err == nil && saved != "" {
		authMethods = append(authMethods, ssh.Password(saved))
	}

	return authMethods, agentConn
}

func (m *Manager) hostKeyCallback(opts Options) (ssh.HostKeyCallback, func(string) []string, error) {
	if opts.Insecure {
		m.logger.Warn().Msg("host key checking disabled")
		return ssh.InsecureIgnoreHostKey(), nil, nil
	}

	path := opts.KnownHostsPath
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		path = filepath.Join(homeDir, ".ssh", "known_hosts")
	}
	if err := ensureFile(path); err != nil {
		return nil, nil, fmt.Errorf("could not prepare known_hosts %s: %w", path, err)
	}

	kh, err := knownhosts.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create known_hosts callback: %w", err)
	}

	var mu sync.Mutex
	callback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := kh.HostKeyCallback()(hostname, remote, key)
		if err == nil {
			return nil
		}
		fingerprint := ssh.FingerprintSHA256(key)
		if knownhosts.IsHostUnknown(err) && opts.AcceptNew {
			mu.Lock()
			defer mu.Unlock()
			if werr := appendKnownHost(path, hostname, remote, key); werr != nil {
				m.logger.Warn().Err(werr).Str("host", hostname).Msg("failed to record new host key")
			} else {
				m.logger.Info().Str("host", hostname).Str("fingerprint", fingerprint).Msg("added new host key to known_hosts")
			}
			return nil
		}
		if knownhosts.IsHostUnknown(err) || knownhosts.IsHostKeyChanged(err) {
			return &types.HostKeyVerificationError{
				Host:        hostname,
				Fingerprint: fingerprint,
				Changed:     knownhosts.IsHostKeyChanged(err),
				Err:         err,
			}
		}
		return err
	}
	return callback, kh.HostKeyAlgorithms, nil
}

// Dial 建立长连接并启动心跳
func (m *Manager) Dial(ctx context.Context, opts Options) (*Client, error) {
	cc, err := m.GetConnectionConfig(opts)
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("addr", cc.Addr()).Str("user", cc.User).Msg("dialing")
	conn, err := ssh.Dial("tcp", cc.Addr(), cc.ClientConfig)
	if err != nil {
		cc.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, &types.AuthenticationFailedError{Host: opts.Credentials.Host, Err: err}
		}
		return nil, fmt.Errorf("SSH dial to %s failed: %w", cc.Addr(), err)
	}

	kaCtx, cancel := context.WithCancel(ctx)
	go StartKeepAlive(conn, kaCtx, m.logger)

	return &Client{
		conn:   conn,
		config: cc,
		cancel: cancel,
		logger: m.logger,
	}, nil
}

// Client 在同一个连接上为每条命令开一个 SSH session
type Client struct {
	conn   *ssh.Client
	config *ConnectionConfig
	cancel context.CancelFunc
	logger zerolog.Logger
}

// Execute 在远端执行命令。非零退出码放在结果中返回，不作为错误；
// 只有命令根本无法执行时才返回 err
func (c *Client) Execute(ctx context.Context, command string) (types.ExecResult, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return types.ExecResult{ExitStatus: -1}, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return types.ExecResult{ExitStatus: -1}, ctx.Err()
	}

	result := types.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitStatus = exitErr.ExitStatus()
		c.logger.Debug().Str("cmd", command).Int("status", result.ExitStatus).Msg("remote command failed")
		return result, nil
	}
	result.ExitStatus = -1
	return result, fmt.Errorf("remote command %q: %w", command, err)
}

// SFTP 在同一个连接上打开 sftp 子系统
func (c *Client) SFTP() (*sftp.Client, error) {
	client, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, fmt.Errorf("SFTP客户端创建失败: %w", err)
	}
	return client, nil
}

func (c *Client) Addr() string { return c.config.Addr() }

// Config 返回建立连接时解析出的配置
func (c *Client) Config() *ConnectionConfig { return c.config }

func (c *Client) Close() error {
	c.cancel()
	err := c.conn.Close()
	c.config.Close()
	return err
}

// SavePassword 将密码安全地存入系统钥匙串
func SavePassword(creds types.Credentials, password string) error {
	return keyring.Set(keyringService, creds.String(), password)
}

func readSigner(path string) (ssh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取私钥文件: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("无法解析私钥: %w", err)
	}
	return signer, nil
}

func defaultKeyPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var paths []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		paths = append(paths, filepath.Join(homeDir, ".ssh", name))
	}
	return paths
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return knownhosts.WriteKnownHost(f, hostname, remote, key)
}
