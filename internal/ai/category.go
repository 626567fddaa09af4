package ai

import (
	"strings"

	"github.com/yuqie6/VirtualSelf/internal/schema"
)

// 关键词按优先级排列，先匹配先返回
var categoryKeywords = []struct {
	keyword  string
	category schema.ExperienceCategory
}{
	{"CAREER", schema.CategoryCareer},
	{"ACHIEVEMENT", schema.CategoryAchievement},
	{"JOY", schema.CategoryJoy},
	{"REGRET", schema.CategoryChoiceRegret},
	{"INTEREST", schema.CategoryInterest},
	{"ABILITY", schema.CategoryAbilityShortcoming},
	{"VISION", schema.CategoryVision},
	{"ANXIETY", schema.CategoryAnxiety},
}

// NormalizeCategory 将模型返回的任意分类映射到固定枚举，无法识别时为 PERSONAL
func NormalizeCategory(label string) schema.ExperienceCategory {
	c := strings.ToUpper(strings.TrimSpace(label))
	if c == "" {
		return schema.CategoryPersonal
	}
	for _, kw := range categoryKeywords {
		if strings.Contains(c, kw.keyword) {
			return kw.category
		}
	}
	return schema.CategoryPersonal
}
