package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"spread-arb-go/infrastructure/logger"
)

// WatcherConfig 热更新配置
type WatcherConfig struct {
	Cooldown time.Duration // 两次重载的最小间隔，避免编辑器多次写入触发重复加载
}

// Watcher 监听配置文件变化，重新加载并校验后交给回调。
// 监听所在目录而不是文件本身，编辑器以 rename 方式保存时也能收到事件。
type Watcher struct {
	path     string
	config   WatcherConfig
	watcher  *fsnotify.Watcher
	logger   *logger.Logger
	onUpdate func(AppConfig)

	mu         sync.Mutex
	lastReload time.Time
	reloads    int
	failures   int
	now        func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher 创建配置监听器
func NewWatcher(path string, cfg WatcherConfig, log *logger.Logger, onUpdate func(AppConfig)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{
		path:     abs,
		config:   cfg,
		watcher:  fw,
		logger:   log.With(zap.String("component", "config_watcher")),
		onUpdate: onUpdate,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}, nil
}

// Start 启动监听
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	go w.watch(ctx)
	w.logger.Info("Config watcher started", zap.String("path", w.path), zap.Duration("cooldown", w.config.Cooldown))
	return nil
}

// Stop 停止监听，可重复调用
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		select {
		case <-w.doneChan:
		case <-time.After(time.Second):
			// watch goroutine 可能没有启动
		}
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneChan)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.Reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// Reload 重新加载配置；冷却期内或校验失败时保留当前配置，返回是否已应用
func (w *Watcher) Reload() bool {
	w.mu.Lock()
	if !w.lastReload.IsZero() && w.now().Sub(w.lastReload) < w.config.Cooldown {
		w.mu.Unlock()
		return false
	}
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.path)
	if err != nil {
		w.mu.Lock()
		w.failures++
		w.mu.Unlock()
		w.logger.Warn("Failed to reload config, keeping current", zap.Error(err))
		return false
	}

	w.mu.Lock()
	w.lastReload = w.now()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("Config reloaded", zap.String("path", w.path))
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
	return true
}

// Stats 成功与失败的重载次数
func (w *Watcher) Stats() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.failures
}
