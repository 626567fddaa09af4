package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var jsonFence = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON 从模型回复中截取 JSON 文本
// 优先使用 ```json 代码块；否则从第一个 { 或 [ 截到最后一个对应的 } 或 ]
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyResponse
	}

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), nil
	}

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return text, nil
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(text, closer)
	if end < start {
		return text[start:], nil
	}
	return text[start : end+1], nil
}

// RepairJSON 解析模型回复为 map[string]any 或 []any
// 解析失败返回 *MalformedResponseError，不做重试
func RepairJSON(raw string) (any, error) {
	slice, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var v any
	decodeErr := json.Unmarshal([]byte(slice), &v)
	if decodeErr == nil {
		return v, nil
	}

	// 只修复括号包裹的文本（尾逗号、单引号等常见笔误）
	if bracketed(slice) {
		if fixed, repairErr := jsonrepair.JSONRepair(slice); repairErr == nil {
			if err := json.Unmarshal([]byte(fixed), &v); err == nil {
				return v, nil
			}
		}
	}

	return nil, &MalformedResponseError{Raw: raw, Err: decodeErr}
}

func bracketed(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}
