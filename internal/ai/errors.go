package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyResponse 模型没有返回任何文本
	ErrEmptyResponse = errors.New("AI 返回内容为空")
	// ErrRateLimited 触发限流且重试耗尽
	ErrRateLimited = errors.New("AI 调用被限流")
	// ErrAuthExpired API 密钥无效或不存在，且无法刷新
	ErrAuthExpired = errors.New("API 密钥无效")
	// ErrNotConfigured 未配置 API 密钥
	ErrNotConfigured = errors.New("Gemini API 未配置")
)

// MalformedResponseError 响应有文本但无法解析为期望结构
type MalformedResponseError struct {
	Raw string // 原始响应文本，不做任何修改
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err == nil {
		return "解析 AI 数据失败"
	}
	return "解析 AI 数据失败: " + e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// statusTooMany 只认带状态前缀的 429，避免误中 "$[429]" 或 ":4290"
var statusTooMany = regexp.MustCompile(`(?i)\b(?:error|status|code|http)[\s:=]*429\b`)

// FailureClass 远程调用失败分类（由 RetryPolicy 使用）
type FailureClass int

const (
	ClassTransient FailureClass = iota
	ClassRateLimited
	ClassAuthExpired
)

func (c FailureClass) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassAuthExpired:
		return "auth_expired"
	default:
		return "transient"
	}
}

// Classify 判断远程调用错误的类别
func Classify(err error) FailureClass {
	if err == nil {
		return ClassTransient
	}
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrNotConfigured) {
		return ClassAuthExpired
	}
	if errors.Is(err, ErrRateLimited) {
		return ClassRateLimited
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return ClassTransient
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return ClassRateLimited
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case statusTooMany.MatchString(msg),
		strings.Contains(msg, "RESOURCE_EXHAUSTED"),
		strings.Contains(lower, "quota"):
		return ClassRateLimited
	case strings.Contains(lower, "entity not found"),
		strings.Contains(msg, "API_KEY_INVALID"):
		return ClassAuthExpired
	}
	return ClassTransient
}

// FailureKind 面向用户的失败类型
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureQuota
	FailureFormat
	FailureAuth
)

func (k FailureKind) String() string {
	switch k {
	case FailureQuota:
		return "quota"
	case FailureFormat:
		return "format"
	case FailureAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// PipelineError AI 网关操作失败（展示给用户的统一错误）
type PipelineError struct {
	Op      string
	Kind    FailureKind
	Message string // 用户可读提示
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s (%s): %v", e.Message, e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

var failureMessages = map[FailureKind]string{
	FailureQuota:   "AI 调用额度已用尽，请稍后再试",
	FailureFormat:  "数据解析失败，请重试",
	FailureAuth:    "API 密钥无效，请重新选择密钥",
	FailureUnknown: "AI 服务暂时不可用，请稍后再试",
}

// newPipelineError 把底层错误翻译为 PipelineError
func newPipelineError(op string, err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	kind := FailureUnknown
	var malformed *MalformedResponseError
	switch {
	case errors.Is(err, ErrEmptyResponse), errors.As(err, &malformed):
		kind = FailureFormat
	case errors.Is(err, ErrNotConfigured):
		kind = FailureAuth
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = FailureUnknown
	default:
		switch Classify(err) {
		case ClassRateLimited:
			kind = FailureQuota
		case ClassAuthExpired:
			kind = FailureAuth
		}
	}
	return &PipelineError{Op: op, Kind: kind, Message: failureMessages[kind], Err: err}
}

// GenericFailureMessage 未识别错误的统一提示，原始错误只进日志
const GenericFailureMessage = "操作失败，请稍后再试"

// UserMessage 提取用户可读的错误提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return GenericFailureMessage
}
