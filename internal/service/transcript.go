package service

import (
	"strings"
	"sync"
)

// TranscriptAccumulator 语音识别片段累积器
// 最终片段追加到已确认文本；临时片段替换末尾尚未确认的部分
type TranscriptAccumulator struct {
	mu      sync.Mutex
	final   strings.Builder
	interim string
}

// NewTranscriptAccumulator 创建累积器
func NewTranscriptAccumulator() *TranscriptAccumulator {
	return &TranscriptAccumulator{}
}

// Apply 处理一个识别片段，返回当前完整文本
func (a *TranscriptAccumulator) Apply(fragment string, final bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if final {
		a.final.WriteString(fragment)
		a.interim = ""
	} else {
		a.interim = fragment
	}
	return a.final.String() + a.interim
}

// Text 当前完整文本（含未确认部分）
func (a *TranscriptAccumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final.String() + a.interim
}

// Final 只返回已确认文本
func (a *TranscriptAccumulator) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final.String()
}

// Reset 清空
func (a *TranscriptAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.final.Reset()
	a.interim = ""
}
