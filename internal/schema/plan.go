package schema

import "strings"

// TaskFrequency 任务频率
type TaskFrequency string

const (
	FrequencyDaily  TaskFrequency = "DAILY"
	FrequencyWeekly TaskFrequency = "WEEKLY"
	FrequencyOnce   TaskFrequency = "ONCE"
)

// ParseFrequency 解析模型返回的频率，未知值按 ONCE 处理
func ParseFrequency(s string) TaskFrequency {
	switch TaskFrequency(strings.ToUpper(strings.TrimSpace(s))) {
	case FrequencyDaily:
		return FrequencyDaily
	case FrequencyWeekly:
		return FrequencyWeekly
	default:
		return FrequencyOnce
	}
}

// Direction 成长方向
type Direction struct {
	Title     string `json:"title"`
	Reasoning string `json:"reasoning"`
	Fit       string `json:"fit"`
}

// SuggestedTask 计划建议的任务
type SuggestedTask struct {
	Title     string        `json:"title"`
	Frequency TaskFrequency `json:"frequency"`
}

// GrowthPlan 成长计划（每次生成整体替换）
type GrowthPlan struct {
	CoreValuesAnalysis string          `json:"coreValuesAnalysis"`
	Directions         []Direction     `json:"directions"`
	ShortTerm          []string        `json:"shortTerm"`
	MidTerm            []string        `json:"midTerm"`
	ActionGuide        string          `json:"actionGuide"`
	SuggestedTasks     []SuggestedTask `json:"suggestedTasks"`
}

// ActionTask 可追踪的行动任务
type ActionTask struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Frequency      TaskFrequency `json:"frequency"`
	CompletedDates []string      `json:"completedDates"` // YYYY-MM-DD，不重复
	LastCompleted  string        `json:"lastCompleted,omitempty"`
	CreatedAt      int64         `json:"createdAt"` // 毫秒
}

// CompletedOn 指定日期是否已完成
func (t ActionTask) CompletedOn(date string) bool {
	for _, d := range t.CompletedDates {
		if d == date {
			return true
		}
	}
	return false
}

// WeeklySummary 周回顾（临时生成，不持久化）
type WeeklySummary struct {
	Period      string   `json:"period"`
	Summary     string   `json:"summary"`
	ValueShifts string   `json:"valueShifts"`
	TopInsights []string `json:"topInsights"`
	GeneratedAt int64    `json:"generatedAt"`
}
