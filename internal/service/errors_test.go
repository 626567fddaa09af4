package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/repository"
)

func TestUserMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"busy", ErrBusy, ErrBusy.Error()},
		{"wrapped domain error", fmt.Errorf("%w: 至少需要 3 条，当前 1 条", ErrNotEnoughEntries), "经历数量不足: 至少需要 3 条，当前 1 条"},
		{"read only", fmt.Errorf("保存档案失败: %w", repository.ErrReadOnly), "保存档案失败: " + repository.ErrReadOnly.Error()},
		{"pipeline", fmt.Errorf("生成成长计划失败: %w", quotaErr), quotaErr.Message},
		{"storage", fmt.Errorf("保存状态失败: %w", errors.New("database is locked (5) (SQLITE_BUSY)")), ai.GenericFailureMessage},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Fatalf("%s: UserMessage=%q, want %q", tc.name, got, tc.want)
		}
	}
}
