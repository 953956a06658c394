package sshmanager

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const (
	// SSHKeepAliveInterval 与传给 rsync 的 ServerAliveInterval=30 保持一致
	SSHKeepAliveInterval = 30 * time.Second
	// keepAliveRequestTimeout 必须小于 SSHKeepAliveInterval
	keepAliveRequestTimeout = 10 * time.Second
)

// keepAliveConn 是心跳循环用到的 *ssh.Client 方法
type keepAliveConn interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
	Close() error
}

// StartKeepAlive 定期在连接上发送 keep-alive 请求，以便尽早发现断开的连接。
// 请求失败或超时则关闭客户端，之后的 Execute 会立即失败。
// 该函数会阻塞，需要在独立的 goroutine 中运行
func StartKeepAlive(client *ssh.Client, ctx context.Context, logger zerolog.Logger) {
	keepAlive(client, ctx, SSHKeepAliveInterval, keepAliveRequestTimeout, logger)
}

func keepAlive(client keepAliveConn, ctx context.Context, interval, timeout time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// 半开连接上 SendRequest 可能永远阻塞，所以单独设置超时
			errC := make(chan error, 1)
			go func() {
				_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
				errC <- err
			}()

			select {
			case err := <-errC:
				if err != nil {
					logger.Warn().Err(err).Msg("SSH keep-alive failed, closing connection")
					client.Close()
					return
				}
			case <-time.After(timeout):
				logger.Warn().Dur("timeout", timeout).Msg("SSH keep-alive timed out, closing connection")
				client.Close()
				return
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
