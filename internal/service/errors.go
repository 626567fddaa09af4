package service

import (
	"errors"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/repository"
)

var (
	ErrBusy             = errors.New("上一个操作仍在进行中")
	ErrNoProfile        = errors.New("尚未完成初始化，请先运行 onboard")
	ErrNotEnoughEntries = errors.New("经历数量不足")
	ErrEmptyInput       = errors.New("输入为空")
	ErrNothingExtracted = errors.New("未能从输入中提取到经历")
	ErrEntryNotFound    = errors.New("经历不存在")
	ErrTaskNotFound     = errors.New("任务不存在")
	ErrUnknownQuestion  = errors.New("未知的引导问题")
	ErrMissingOOTD      = errors.New("档案缺少穿搭描述，跳过形象生成")
)

// 文本本身就是用户提示的错误，包装后仍原样展示
var userFacing = []error{
	ErrBusy, ErrNoProfile, ErrNotEnoughEntries, ErrEmptyInput, ErrNothingExtracted,
	ErrEntryNotFound, ErrTaskNotFound, ErrUnknownQuestion, ErrMissingOOTD,
	repository.ErrReadOnly,
}

// UserMessage 业务错误展示原文；AI 错误展示其提示；存储等其他错误只给通用提示
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range userFacing {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return ai.UserMessage(err)
}
