package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yuqie6/VirtualSelf/internal/collector"
)

// InboxSource 收件箱事件来源
type InboxSource interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan *collector.InboxItem
	MarkDone(item *collector.InboxItem) error
}

// Ingester 原始输入录入能力
type Ingester interface {
	IngestRawInput(ctx context.Context, input string) (*IngestResult, error)
}

// InboxService 把收件箱中的文本逐条录入经历库
type InboxService struct {
	source     InboxSource
	ingester   Ingester
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	busyRetry  int
	busyDelay  time.Duration
	onIngested func(item *collector.InboxItem, res *IngestResult)
	onFailed   func(item *collector.InboxItem, err error)
}

// NewInboxService 创建收件箱服务
func NewInboxService(source InboxSource, ingester Ingester) *InboxService {
	return &InboxService{
		source:    source,
		ingester:  ingester,
		stopChan:  make(chan struct{}),
		busyRetry: 5,
		busyDelay: 2 * time.Second,
	}
}

// SetOnIngested 录入成功回调
func (s *InboxService) SetOnIngested(fn func(item *collector.InboxItem, res *IngestResult)) {
	s.onIngested = fn
}

// SetOnFailed 录入失败回调（文件保留在收件箱，下次启动时重试）
func (s *InboxService) SetOnFailed(fn func(item *collector.InboxItem, err error)) {
	s.onFailed = fn
}

// Start 启动服务
func (s *InboxService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.source.Start(ctx); err != nil {
		return err
	}
	s.running = true
	slog.Info("收件箱服务启动")

	s.wg.Add(1)
	go s.processLoop(ctx)
	return nil
}

// Stop 停止服务，等待正在处理的条目结束
func (s *InboxService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	slog.Info("正在停止收件箱服务...")
	_ = s.source.Stop()
	close(s.stopChan)
	s.wg.Wait()
	slog.Info("收件箱服务已停止")
	return nil
}

// processLoop 处理循环
func (s *InboxService) processLoop(ctx context.Context) {
	defer s.wg.Done()

	events := s.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case item, ok := <-events:
			if !ok {
				return
			}
			s.handleItem(ctx, item)
		}
	}
}

// handleItem 录入单个文件；其他录入操作进行中时稍后重试
func (s *InboxService) handleItem(ctx context.Context, item *collector.InboxItem) {
	var (
		res *IngestResult
		err error
	)
	for i := 0; ; i++ {
		res, err = s.ingester.IngestRawInput(ctx, item.Text)
		if !errors.Is(err, ErrBusy) || i >= s.busyRetry {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-time.After(s.busyDelay):
		}
	}

	// 档案更新失败时经历已经入库，仍视为已录入
	if res != nil && len(res.Entries) > 0 {
		if markErr := s.source.MarkDone(item); markErr != nil {
			slog.Warn("归档收件箱文件失败", "file", item.Name, "error", markErr)
		}
		slog.Info("收件箱文件已录入", "file", item.Name, "entries", len(res.Entries))
		if s.onIngested != nil {
			s.onIngested(item, res)
		}
		if err == nil {
			return
		}
	}
	if err != nil {
		slog.Error("收件箱文件录入失败", "file", item.Name, "error", err)
		if s.onFailed != nil {
			s.onFailed(item, err)
		}
	}
}
