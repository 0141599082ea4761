package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StatusSource 查询交易所侧订单状态。Gateway 满足该接口。
type StatusSource interface {
	OrderStatus(orderID string) (Update, error)
}

// LiveOrderSource 提供本地活跃订单及其状态。
type LiveOrderSource interface {
	LiveOrders(ctx context.Context) (map[string]Status, error)
}

// UpdateSink 接收需要回灌的状态更新。
type UpdateSink interface {
	OnOrderStatus(ctx context.Context, u Update) error
}

// SyncerConfig 状态同步配置
type SyncerConfig struct {
	Interval time.Duration // 轮询间隔
}

// Syncer 周期性地向交易所查询本地活跃订单的状态，发现差异时以交易所为准回灌。
type Syncer struct {
	source   StatusSource
	local    LiveOrderSource
	sink     UpdateSink
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	// 统计信息
	totalSyncs        int64
	conflictsResolved int64
	queryErrors       int64
	lastSyncTime      time.Time
}

// SyncerStats 同步统计信息
type SyncerStats struct {
	TotalSyncs        int64
	ConflictsResolved int64
	QueryErrors       int64
	LastSyncTime      time.Time
	Interval          time.Duration
}

// NewSyncer 创建订单状态同步器
func NewSyncer(source StatusSource, local LiveOrderSource, sink UpdateSink, cfg SyncerConfig) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Syncer{
		source:   source,
		local:    local,
		sink:     sink,
		interval: cfg.Interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start 启动轮询
func (s *Syncer) Start(ctx context.Context) error {
	go s.loop(ctx)
	return nil
}

// Stop 停止轮询并等待退出
func (s *Syncer) Stop() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.doneChan
	return nil
}

func (s *Syncer) loop(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			// 错误计入统计，下一轮继续
			_ = s.SyncOnce(ctx)
		}
	}
}

// SyncOnce 执行一次完整同步，返回本轮遇到的所有错误。
func (s *Syncer) SyncOnce(ctx context.Context) error {
	s.mu.Lock()
	s.totalSyncs++
	s.lastSyncTime = time.Now()
	s.mu.Unlock()

	local, err := s.local.LiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list live orders: %w", err)
	}

	var errs []error
	for id, localStatus := range local {
		remote, err := s.source.OrderStatus(id)
		if err != nil {
			s.mu.Lock()
			s.queryErrors++
			s.mu.Unlock()
			errs = append(errs, fmt.Errorf("query order %s: %w", id, err))
			continue
		}
		if remote.Status == localStatus {
			continue
		}
		if remote.OrderID == "" {
			remote.OrderID = id
		}
		if err := s.sink.OnOrderStatus(ctx, remote); err != nil {
			errs = append(errs, fmt.Errorf("apply order %s: %w", id, err))
			continue
		}
		s.mu.Lock()
		s.conflictsResolved++
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// GetStatistics 获取同步统计信息
func (s *Syncer) GetStatistics() SyncerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SyncerStats{
		TotalSyncs:        s.totalSyncs,
		ConflictsResolved: s.conflictsResolved,
		QueryErrors:       s.queryErrors,
		LastSyncTime:      s.lastSyncTime,
		Interval:          s.interval,
	}
}
