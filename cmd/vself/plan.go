package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

// profileCmd 查看档案
func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "查看虚拟分身档案",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.Services.Companion.Profile(cmd.Context())
			if err != nil {
				return err
			}
			if p == nil {
				return service.ErrNoProfile
			}
			printProfile(p)
			return nil
		},
	}
}

// avatarCmd 重新生成 / 导出形象
func avatarCmd() *cobra.Command {
	var ootd string
	var out string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "重新生成或导出分身形象",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.Services.Companion
			var p *schema.VirtualSelfProfile
			var err error
			if refresh || ootd != "" {
				if err := requireAI(); err != nil {
					return err
				}
				fmt.Println("🎨 正在生成形象...")
				if p, err = svc.RefreshAvatar(cmd.Context(), ootd); err != nil {
					return err
				}
				fmt.Println("✅ 形象已更新")
			} else if p, err = svc.Profile(cmd.Context()); err != nil {
				return err
			}
			if p == nil {
				return service.ErrNoProfile
			}

			if out == "" {
				return nil
			}
			if p.AvatarURL == "" {
				return fmt.Errorf("还没有形象，使用 --refresh 生成")
			}
			mime, data, err := ai.DecodeDataURI(p.AvatarURL)
			if err != nil {
				return err
			}
			if out != "-" && !strings.Contains(out, ".") {
				out += ai.ExtensionFor(mime)
			}
			if err := writeOutput(out, data); err != nil {
				return err
			}
			if out != "-" {
				fmt.Printf("🖼  已导出到 %s\n", out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ootd, "ootd", "", "新的穿搭描述（隐含 --refresh）")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "按档案中的穿搭重新生成")
	cmd.Flags().StringVarP(&out, "out", "o", "", "导出图片路径，'-' 表示标准输出")
	return cmd
}

// planCmd 成长计划
func planCmd() *cobra.Command {
	var regenerate bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "查看或生成成长计划",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.Services.Companion
			plan, err := svc.Plan(cmd.Context())
			if err != nil {
				return err
			}
			if plan == nil || regenerate {
				if err := requireAI(); err != nil {
					return err
				}
				if plan != nil {
					fmt.Println("⚠️  重新生成会替换现有任务，完成记录不会保留")
				}
				fmt.Println("🧭 正在制定成长计划...")
				if plan, _, err = svc.GeneratePlan(cmd.Context()); err != nil {
					return err
				}
			}
			printPlan(plan)
			return nil
		},
	}
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "重新生成计划")
	return cmd
}

func printPlan(p *schema.GrowthPlan) {
	fmt.Println("🧭 成长计划")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("\n💎 核心价值分析\n%s\n", p.CoreValuesAnalysis)
	if len(p.Directions) > 0 {
		fmt.Printf("\n🛤  发展方向\n")
		for _, d := range p.Directions {
			fmt.Printf("  • %s\n    %s\n    适配: %s\n", d.Title, d.Reasoning, d.Fit)
		}
	}
	printList("🎯 短期目标", p.ShortTerm)
	printList("🏔  中期目标", p.MidTerm)
	fmt.Printf("\n📋 行动指南\n%s\n", p.ActionGuide)
	fmt.Println("\n═══════════════════════════════════════")
}

// tasksCmd 任务列表
func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "查看今天的任务",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.Services.Companion
			tasks, err := svc.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("📋 还没有任务")
				fmt.Println("   先使用 'vself plan' 生成成长计划")
				return nil
			}
			today := svc.Today()
			groups := service.GroupTasks(tasks)
			fmt.Printf("📅 %s\n", today)
			printTaskGroup("每日", groups.Daily, today)
			printTaskGroup("每周", groups.Weekly, today)
			printTaskGroup("一次性", groups.Once, today)
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <任务ID>",
		Short: "切换任务今天的完成状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.Services.Companion
			task, err := svc.ToggleTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if task.CompletedOn(svc.Today()) {
				fmt.Printf("✅ %s（累计 %d 次）\n", task.Title, len(task.CompletedDates))
			} else {
				fmt.Printf("↩️  %s 已取消今天的完成\n", task.Title)
			}
			return nil
		},
	})
	return cmd
}

func printTaskGroup(title string, tasks []schema.ActionTask, today string) {
	if len(tasks) == 0 {
		return
	}
	fmt.Printf("\n%s\n", title)
	for _, t := range tasks {
		mark := "⬜"
		if t.CompletedOn(today) {
			mark = "✅"
		}
		fmt.Printf("  %s %s  (累计 %d 次)  id=%s\n", mark, t.Title, len(t.CompletedDates), t.ID)
	}
}

// checkinCmd 打卡反馈
func checkinCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "根据今天的任务完成情况获取分身的反馈",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			res, err := core.Services.Companion.CheckIn(cmd.Context(), out != "")
			if err != nil {
				return err
			}
			fmt.Printf("🗣  %s\n", res.Feedback)
			if out == "" {
				return nil
			}
			if res.AudioErr != nil || len(res.Audio) == 0 {
				fmt.Println("⚠️  朗读失败，仅显示文字")
				return nil
			}
			return saveSpeech(out, res.Audio)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "朗读并保存为 WAV 文件")
	return cmd
}

// weeklyCmd 周回顾
func weeklyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weekly",
		Short: "生成本周回顾",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			fmt.Println("📊 正在生成本周回顾...")
			s, err := core.Services.Companion.WeeklySummary(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("📅 本周回顾 (%s)\n", s.Period)
			fmt.Println("═══════════════════════════════════════")
			fmt.Printf("\n📝 总结\n%s\n", s.Summary)
			fmt.Printf("\n🔄 价值观变化\n%s\n", s.ValueShifts)
			printList("💡 洞察", s.TopInsights)
			fmt.Println("\n═══════════════════════════════════════")
			return nil
		},
	}
}
