package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/bootstrap"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
)

// watchCmd 监控收件箱
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "监控收件箱目录，自动录入放进来的 .txt / .md 文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.RequireAIConfigured(); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			events := core.Hub.Subscribe(ctx, 32)
			rt, err := bootstrap.NewWatchRuntime(ctx, core)
			if err != nil {
				return err
			}
			defer rt.Close()

			fmt.Printf("👀 正在监控 %s（Ctrl+C 退出）\n", rt.Collector.Dir())
			for {
				select {
				case <-ctx.Done():
					fmt.Println("\n👋 已停止监控")
					return nil
				case evt, ok := <-events:
					if !ok {
						return nil
					}
					printEvent(evt)
				}
			}
		},
	}
}

func printEvent(evt eventbus.Event) {
	switch evt.Type {
	case eventbus.TypeInbox:
		if ok, _ := evt.Data["ok"].(bool); ok {
			fmt.Printf("📥 %v → 新增 %v 条经历\n", evt.Data["file"], evt.Data["count"])
		} else {
			fmt.Printf("⚠️  %v 录入失败: %v\n", evt.Data["file"], evt.Data["error"])
		}
	case eventbus.TypeProfileUpdated:
		fmt.Printf("🪞 档案已更新  心情: %v  羁绊: %v\n", evt.Data["mood"], evt.Data["affinity"])
	case eventbus.TypeSpeech:
		fmt.Printf("🗣  %v\n", evt.Data["text"])
	case eventbus.TypeNotice:
		fmt.Printf("❗ %v\n", evt.Data["message"])
	default:
		slog.Debug("事件", "type", evt.Type, "data", evt.Data)
	}
}
