package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuqie6/VirtualSelf/internal/schema"
)

const companionPersona = `你是一个充满温情、洞察力极强的“虚拟自我”分身。
你的身份：用户的好友、好哥们/好闺蜜。
你的语气：20-30岁，自然、快节奏、口语化。多用“哈”、“嗯”、“对啦”等词。
核心原则：严禁虚构！必须100%忠实于用户提供的原始文字。`

const categoryRule = `category 只能是以下之一：
CAREER(职业/学习) ACHIEVEMENT(成就感) JOY(愉悦投入) CHOICE_REGRET(选择与遗憾)
INTEREST(兴趣尝试) ABILITY_SHORTCOMING(能力与短板) VISION(愿景与未来)
ANXIETY(焦虑与挑战) PERSONAL(个人日常)`

func initProfileInstruction() string {
	return companionPersona + `
任务：基于用户的引导问卷答案创建初始档案。
输出必须是 JSON 对象，包含 profile 和 entries 两个字段：
- profile: coreValues/strengths/shortcomings/growthSuggestions/joyTriggers/interestDirections（字符串数组，各 2-5 条短语），
  summary（一段人格概述），mood（当前心情，一个词），affinity（0-100 的整数，初始羁绊值），
  ootd（一句话描述分身今天的穿搭，用于生成形象）
- entries: 从答案中拆分出的经历（至少 3 条），每条包含 content、category、tags
` + categoryRule
}

func updateProfileInstruction() string {
	return companionPersona + `
任务：根据用户最近的经历更新档案，输出完整的 profile JSON 对象：
coreValues/strengths/shortcomings/growthSuggestions/joyTriggers/interestDirections（字符串数组），
summary、mood、affinity（0-100 整数）、ootd（可选）。`
}

const rawInputInstruction = `将用户输入拆分为一条或多条经历，输出 JSON 数组。
每条包含 content（忠实于原文的描述）、category、tags（1-4 个中文短标签）。
` + categoryRule

const growthPlanInstruction = `你是一位资深的个人成长教练。基于用户档案和经历制定详细的成长计划，输出 JSON 对象：
coreValuesAnalysis（核心价值分析）、directions（2-4 个方向，每个含 title/reasoning/fit）、
shortTerm（短期目标数组）、midTerm（中期目标数组）、actionGuide（行动指南）、
suggestedTasks（3-6 个可执行任务，每个含 title 和 frequency，frequency 只能是 DAILY/WEEKLY/ONCE）。
严禁虚构用户没有提到的经历。`

func weeklySummaryInstruction() string {
	return companionPersona + `
任务：根据本周经历生成回顾，输出 JSON 对象：
period（时间范围描述）、summary（本周总结）、valueShifts（价值观变化）、topInsights（3-5 条洞察）。`
}

func companionInstruction(profile *schema.VirtualSelfProfile) string {
	return fmt.Sprintf("%s\n当前状态：%s\n请用一两句话口语化地回应，不要使用 markdown。", companionPersona, profile.Summary)
}

func checkInInstruction(profile *schema.VirtualSelfProfile) string {
	return fmt.Sprintf("%s\n档案：%s\n请根据任务完成情况给出简短、具体的鼓励或提醒（2-4 句），不要使用 markdown。", companionPersona, profile.Summary)
}

func avatarPrompt(ootd string, gender schema.Gender) string {
	subject := "person"
	switch gender {
	case schema.GenderFemale:
		subject = "girl"
	case schema.GenderMale:
		subject = "boy"
	}
	return fmt.Sprintf("Anime 2D portrait, %s, square 1:1 composition, soft lighting, wearing: %s", subject, strings.TrimSpace(ootd))
}

// entryView 发给模型的经历视图（不含 ID）
type entryView struct {
	Date     string   `json:"date"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

func entriesJSON(entries []schema.ExperienceEntry) string {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView{
			Date:     time.UnixMilli(e.Timestamp).Format("2006-01-02"),
			Content:  e.Content,
			Category: string(e.Category),
			Tags:     e.Tags,
		})
	}
	b, _ := json.Marshal(views)
	return string(b)
}

func profileDigest(p *schema.VirtualSelfProfile) string {
	if p == nil {
		return "（暂无档案）"
	}
	var b strings.Builder
	b.WriteString("概述: " + p.Summary + "\n")
	b.WriteString("核心价值: " + strings.Join(p.CoreValues, "、") + "\n")
	b.WriteString("优势: " + strings.Join(p.Strengths, "、") + "\n")
	b.WriteString("短板: " + strings.Join(p.Shortcomings, "、") + "\n")
	b.WriteString("兴趣方向: " + strings.Join(p.InterestDirections, "、") + "\n")
	return b.String()
}

func tasksDigest(tasks []schema.ActionTask, today string) string {
	if len(tasks) == 0 {
		return "（暂无任务）"
	}
	var b strings.Builder
	for _, t := range tasks {
		mark := "未完成"
		if t.CompletedOn(today) {
			mark = "已完成"
		}
		b.WriteString(fmt.Sprintf("- [%s] %s（%s，累计完成 %d 次）\n", mark, t.Title, t.Frequency, len(t.CompletedDates)))
	}
	return b.String()
}
