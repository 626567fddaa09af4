package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

// onboardCmd 引导问卷
func onboardCmd() *cobra.Command {
	var data schema.OnboardingData
	var gender string

	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "回答引导问卷，创建虚拟分身档案",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			if isInteractive() {
				fmt.Println("🌱 欢迎！先聊几个问题，帮你的分身认识你。")
				gender = ask("性别 (male/female/non_binary)", gender)
				data.BasicInfo = ask("简单介绍一下自己", data.BasicInfo)
				data.Satisfactions = ask("最近让你满意的事", data.Satisfactions)
				data.Anxieties = ask("最近让你焦虑的事", data.Anxieties)
				data.Vision2026 = ask("2026 年你希望成为什么样的人", data.Vision2026)
				data.AntiLife = ask("你最不想过的生活", data.AntiLife)
			}
			data.Gender = schema.Gender(gender)

			fmt.Println("\n✨ 正在创建你的虚拟分身...")
			res, err := core.Services.Companion.Onboard(cmd.Context(), data)
			if err != nil {
				return err
			}
			printProfile(&res.Profile)
			fmt.Printf("\n📚 已记录 %d 条经历\n", len(res.Entries))
			if res.AvatarErr != nil {
				fmt.Println("⚠️  形象生成失败，可稍后运行 'vself avatar' 重试")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gender, "gender", "", "性别 (male/female/non_binary)")
	cmd.Flags().StringVar(&data.BasicInfo, "basic", "", "基本介绍")
	cmd.Flags().StringVar(&data.Satisfactions, "satisfactions", "", "满意的事")
	cmd.Flags().StringVar(&data.Anxieties, "anxieties", "", "焦虑的事")
	cmd.Flags().StringVar(&data.Vision2026, "vision", "", "2026 愿景")
	cmd.Flags().StringVar(&data.AntiLife, "anti-life", "", "最不想过的生活")
	return cmd
}

// ingestCmd 录入自由文本
func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [文本]",
		Short: "记录一段经历（不带参数时从标准输入读取）",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAI(); err != nil {
				return err
			}
			input := strings.Join(args, " ")
			if input == "" {
				var err error
				if input, err = readInput(); err != nil {
					return err
				}
			}

			fmt.Println("🧠 正在整理你的经历...")
			res, err := core.Services.Companion.IngestRawInput(cmd.Context(), input)
			if res != nil {
				fmt.Printf("\n📚 新增 %d 条经历\n", len(res.Entries))
				for _, e := range res.Entries {
					printEntry(e)
				}
			}
			if err != nil {
				if res != nil {
					fmt.Println("\n⚠️  经历已保存，但档案更新失败")
				}
				return err
			}
			if res.Profile != nil {
				fmt.Printf("\n💭 心情: %s  ❤️ 羁绊: %d\n", res.Profile.Mood, res.Profile.Affinity)
			}
			if res.Speech != "" {
				fmt.Printf("\n🗣  %s\n", res.Speech)
			}
			return nil
		},
	}
}

// readInput 从标准输入逐行读取，终端下以空行或 Ctrl-D 结束
func readInput() (string, error) {
	acc := service.NewTranscriptAccumulator()
	if isInteractive() {
		fmt.Println("✍️  说说发生了什么（空行结束）:")
		for {
			line, err := stdinReader.ReadString('\n')
			if strings.TrimSpace(line) == "" {
				break
			}
			acc.Apply(line, true)
			if err != nil {
				break
			}
		}
		return acc.Final(), nil
	}
	b, err := io.ReadAll(stdinReader)
	if err != nil {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	acc.Apply(string(b), true)
	return acc.Final(), nil
}

// questionsCmd 列出引导问题
func questionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "questions",
		Short:       "列出自我探索引导问题",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			for _, q := range schema.GuidedQuestions {
				fmt.Printf("  %s  [%s] %s\n", q.ID, q.Category.Label(), q.Question)
			}
		},
	}
}

// answerCmd 回答引导问题
func answerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer <问题ID> <回答>",
		Short: "回答一个引导问题，直接记为经历",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := core.Services.Companion.AnswerGuidedQuestion(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Println("✅ 已记录")
			printEntry(*entry)
			return nil
		},
	}
}

// libraryCmd 经历库
func libraryCmd() *cobra.Command {
	var category string
	var limit int

	cmd := &cobra.Command{
		Use:   "library",
		Short: "查看经历库",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := core.Services.Companion.Library(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("📚 经历库还是空的")
				fmt.Println("   先使用 'vself ingest' 记录一段经历")
				return nil
			}

			want := schema.ExperienceCategory(strings.ToUpper(category))
			shown := 0
			for _, e := range entries {
				if category != "" && e.Category != want {
					continue
				}
				if limit > 0 && shown >= limit {
					break
				}
				printEntry(e)
				shown++
			}
			fmt.Printf("\n共 %d 条\n", len(entries))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "按分类过滤，例如 JOY")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "最多显示条数")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <ID>",
		Short: "删除一条经历",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Services.Companion.DeleteEntry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("🗑  已删除")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "milestones",
		Short: "按时间顺序查看成长里程碑",
		RunE: func(cmd *cobra.Command, args []string) error {
			ms, err := core.Services.Companion.Milestones(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("🏁 成长里程碑")
			fmt.Println("═══════════════════════════════════════")
			for _, e := range ms {
				fmt.Printf("  %s  %s\n", service.FormatDateMs(e.Timestamp), e.Content)
			}
			return nil
		},
	})
	return cmd
}

func printEntry(e schema.ExperienceEntry) {
	date := time.UnixMilli(e.Timestamp).Format("01-02 15:04")
	tags := ""
	if len(e.Tags) > 0 {
		tags = "  #" + strings.Join(e.Tags, " #")
	}
	fmt.Printf("  [%s] %-6s %s%s\n     id=%s\n", date, e.Category.Label(), e.Content, tags, e.ID)
}

func printProfile(p *schema.VirtualSelfProfile) {
	fmt.Println("🪞 虚拟分身档案")
	fmt.Println("═══════════════════════════════════════")
	fmt.Printf("\n📝 概述\n%s\n", p.Summary)
	fmt.Printf("\n💭 心情: %s   ❤️ 羁绊: %d\n", p.Mood, p.Affinity)
	printList("💎 核心价值", p.CoreValues)
	printList("💪 优势", p.Strengths)
	printList("🔧 短板", p.Shortcomings)
	printList("🌈 快乐来源", p.JoyTriggers)
	printList("🧭 兴趣方向", p.InterestDirections)
	printList("💡 成长建议", p.GrowthSuggestions)
	if p.OOTD != "" {
		fmt.Printf("\n👕 今日穿搭: %s\n", p.OOTD)
	}
	if p.AvatarURL != "" {
		fmt.Println("🖼  已有形象（'vself avatar --out' 导出）")
	}
	fmt.Println("\n═══════════════════════════════════════")
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s\n", title)
	for _, it := range items {
		fmt.Printf("  • %s\n", it)
	}
}

// writeOutput 写文件，path 为 "-" 时写到标准输出
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}
