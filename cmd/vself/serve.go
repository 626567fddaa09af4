package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/bootstrap"
	"github.com/yuqie6/VirtualSelf/internal/httpapi"
)

// serveCmd 本地 HTTP API
func serveCmd() *cobra.Command {
	var addr string
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地 HTTP API（含 /api/events 事件流）",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if watch {
				rt, err := bootstrap.NewWatchRuntime(ctx, core)
				if err != nil {
					return err
				}
				defer rt.Close()
			}

			srv, err := httpapi.Start(ctx, core, httpapi.Options{ListenAddr: addr})
			if err != nil {
				return err
			}
			fmt.Printf("🌐 本地 API 已启动: %s（Ctrl+C 退出）\n", srv.BaseURL())
			<-ctx.Done()
			fmt.Println("\n👋 正在关闭...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7420", "监听地址")
	cmd.Flags().BoolVar(&watch, "watch", false, "同时监控收件箱")
	return cmd
}
