package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/bootstrap"
	"github.com/yuqie6/VirtualSelf/internal/pkg/buildinfo"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

var (
	cfgFile  string
	logLevel string
	core     *bootstrap.Core
)

// 不需要打开数据库的命令
const skipCoreAnnotation = "skip-core"

func main() {
	rootCmd := &cobra.Command{
		Use:           "vself",
		Short:         "VirtualSelf - 你的虚拟自我成长伙伴",
		Long:          `VirtualSelf 记录你的经历，维护一个会成长的虚拟分身档案，并据此给出成长计划与每日反馈。`,
		Version:       buildinfo.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipCoreAnnotation] == "true" {
				return nil
			}
			var err error
			core, err = bootstrap.NewCore(bootstrap.Options{
				ConfigPath: cfgFile,
				Refresher:  newTerminalRefresher(),
				LogLevel:   logLevel,
			})
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			if core.Clients.Credentials != nil {
				terminalCreds = core.Clients.Credentials
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if core != nil {
				_ = core.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug/info/warn/error)")

	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(answerCmd())
	rootCmd.AddCommand(libraryCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(avatarCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(checkinCmd())
	rootCmd.AddCommand(weeklyCmd())
	rootCmd.AddCommand(speakCmd())
	rootCmd.AddCommand(talkCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		if core != nil {
			_ = core.Close()
		}
		os.Exit(1)
	}
}

// printError 输出用户可读的错误
func printError(err error) {
	switch {
	case errors.Is(err, service.ErrBusy):
		fmt.Fprintln(os.Stderr, "⏳ 另一个操作正在进行，请稍后再试")
	case errors.Is(err, service.ErrNoProfile):
		fmt.Fprintln(os.Stderr, "👋 还没有创建档案，请先运行 'vself onboard'")
	default:
		var pe *ai.PipelineError
		if errors.As(err, &pe) {
			fmt.Fprintf(os.Stderr, "❌ %s\n", pe.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	}
}

// requireAI 需要调用模型的命令先检查密钥
func requireAI() error {
	if terminalCreds != nil && !terminalCreds.IsConfigured() && isInteractive() {
		if err := promptAPIKey(terminalCreds); err != nil {
			return err
		}
	}
	return core.RequireAIConfigured()
}
