package localwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Event 表示被监控的本地目录中发生的一次变化
type Event struct {
	Timestamp string `json:"timestamp"`
	Op        string `json:"op"`
	Name      string `json:"name"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s %s", e.Timestamp, e.Op, filepath.Base(e.Name))
}

// Sink 在监控 goroutine 中接收事件
type Sink func(Event)

// WatcherService 负责监控本地下载目录
type WatcherService struct {
	ctx     context.Context
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	watched map[string]struct{}
	sink    Sink
	logger  zerolog.Logger
	mu      sync.RWMutex
	stopped chan struct{}
}

// NewWatcherService 是 WatcherService 的构造函数
func NewWatcherService(appCtx context.Context, sink Sink, logger zerolog.Logger) (*WatcherService, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("无法创建文件监控器: %w", err)
	}
	if sink == nil {
		sink = func(Event) {}
	}
	ctx, cancel := context.WithCancel(appCtx)
	return &WatcherService{
		ctx:     ctx,
		cancel:  cancel,
		watcher: watcher,
		watched: make(map[string]struct{}),
		sink:    sink,
		logger:  logger.With().Str("component", "localwatch").Logger(),
		stopped: make(chan struct{}),
	}, nil
}

// Start 运行事件循环直到 Stop 被调用，需要在独立的 goroutine 中运行
func (s *WatcherService) Start() {
	defer close(s.stopped)
	defer s.watcher.Close()
	s.logger.Debug().Msg("watcher started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Msg("watcher stopping")
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Stop 停止监控服务，并等待 Start 的主循环退出（必须在 Start 之后调用）
func (s *WatcherService) Stop() {
	s.cancel()
	<-s.stopped
}

// AddWatch 添加一个要监控的目录
func (s *WatcherService) AddWatch(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.watched[abs]; ok {
		return nil
	}
	if err := s.watcher.Add(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	s.watched[abs] = struct{}{}
	s.logger.Info().Str("dir", abs).Msg("watching local directory")
	return nil
}

func (s *WatcherService) handleEvent(event fsnotify.Event) {
	op := opName(event.Op)
	if op == "" {
		return
	}
	s.sink(Event{
		Timestamp: time.Now().Format("15:04:05"),
		Op:        op,
		Name:      event.Name,
	})
}

// opName 取最主要的操作类型，仅 chmod 的事件被忽略
func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Write):
		return "written"
	case op.Has(fsnotify.Remove):
		return "removed"
	case op.Has(fsnotify.Rename):
		return "renamed"
	default:
		return ""
	}
}
