package bootstrap

import (
	"context"

	"github.com/yuqie6/VirtualSelf/internal/collector"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

// WatchRuntime 收件箱监控运行时：把放进收件箱的文本自动录入
type WatchRuntime struct {
	*Core
	Collector *collector.InboxCollector
	Inbox     *service.InboxService
}

// NewWatchRuntime 构建并启动收件箱监控
func NewWatchRuntime(ctx context.Context, core *Core) (*WatchRuntime, error) {
	if err := core.RequireWritable(); err != nil {
		return nil, err
	}

	ic, err := collector.NewInboxCollector(&collector.InboxConfig{
		Dir:        core.Cfg.Inbox.Dir,
		Extensions: core.Cfg.Inbox.Extensions,
		DebounceMs: core.Cfg.Inbox.DebounceMs,
		MaxBytes:   core.Cfg.Inbox.MaxBytes,
	})
	if err != nil {
		return nil, err
	}

	rt := &WatchRuntime{Core: core, Collector: ic}
	rt.Inbox = service.NewInboxService(ic, core.Services.Companion)
	rt.Inbox.SetOnIngested(func(item *collector.InboxItem, res *service.IngestResult) {
		core.Hub.Publish(eventbus.Event{
			Type: eventbus.TypeInbox,
			Data: map[string]any{"file": item.Name, "ok": true, "count": len(res.Entries)},
		})
	})
	rt.Inbox.SetOnFailed(func(item *collector.InboxItem, err error) {
		core.Hub.Publish(eventbus.Event{
			Type: eventbus.TypeInbox,
			Data: map[string]any{"file": item.Name, "ok": false, "error": service.UserMessage(err)},
		})
	})

	if err := rt.Inbox.Start(ctx); err != nil {
		_ = ic.Stop()
		return nil, err
	}
	return rt, nil
}

// Close 停止监控（不关闭 Core）
func (rt *WatchRuntime) Close() error {
	if rt == nil || rt.Inbox == nil {
		return nil
	}
	return rt.Inbox.Stop()
}
