package eventbus

import (
	"context"
	"sync"
	"time"
)

// 事件类型
const (
	TypeStatus         = "status"          // 流程阶段变化，data.action / data.stage
	TypeNotice         = "notice"          // 需要短暂展示的错误提示，data.message / data.ttl_ms
	TypeEntriesAdded   = "entries_added"   // data.count
	TypeProfileUpdated = "profile_updated" // data.mood / data.affinity
	TypePlanGenerated  = "plan_generated"  // data.tasks
	TypeSpeech         = "speech"          // 分身的一句回应，data.text
	TypeInbox          = "inbox"           // 收件箱文件处理结果，data.file / data.ok
)

// NoticeTTL 错误提示的展示时长
const NoticeTTL = 5 * time.Second

type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// 慢消费者直接丢弃，不阻塞编排流程
		}
	}
}

// Status 发布流程阶段
func (h *Hub) Status(action, stage string) {
	h.Publish(Event{Type: TypeStatus, Data: map[string]any{"action": action, "stage": stage}})
}

// Notice 发布一条临时提示
func (h *Hub) Notice(action, message string) {
	h.Publish(Event{Type: TypeNotice, Data: map[string]any{
		"action":  action,
		"message": message,
		"ttl_ms":  NoticeTTL.Milliseconds(),
	}})
}

func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers 当前订阅数
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
