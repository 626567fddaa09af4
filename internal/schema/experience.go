package schema

// ExperienceCategory 经历分类（封闭枚举）
type ExperienceCategory string

const (
	CategoryCareer             ExperienceCategory = "CAREER"
	CategoryAchievement        ExperienceCategory = "ACHIEVEMENT"
	CategoryJoy                ExperienceCategory = "JOY"
	CategoryChoiceRegret       ExperienceCategory = "CHOICE_REGRET"
	CategoryInterest           ExperienceCategory = "INTEREST"
	CategoryAbilityShortcoming ExperienceCategory = "ABILITY_SHORTCOMING"
	CategoryVision             ExperienceCategory = "VISION"
	CategoryAnxiety            ExperienceCategory = "ANXIETY"
	CategoryPersonal           ExperienceCategory = "PERSONAL"
)

// AllCategories 全部分类（顺序即展示顺序）
var AllCategories = []ExperienceCategory{
	CategoryCareer,
	CategoryAchievement,
	CategoryJoy,
	CategoryChoiceRegret,
	CategoryInterest,
	CategoryAbilityShortcoming,
	CategoryVision,
	CategoryAnxiety,
	CategoryPersonal,
}

var categoryLabels = map[ExperienceCategory]string{
	CategoryCareer:             "职业/学习",
	CategoryAchievement:        "成就感",
	CategoryJoy:                "愉悦投入",
	CategoryChoiceRegret:       "选择与遗憾",
	CategoryInterest:           "兴趣尝试",
	CategoryAbilityShortcoming: "能力与短板",
	CategoryVision:             "愿景与未来",
	CategoryAnxiety:            "焦虑与挑战",
	CategoryPersonal:           "个人日常",
}

// Valid 是否为枚举成员
func (c ExperienceCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label 中文展示名
func (c ExperienceCategory) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return categoryLabels[CategoryPersonal]
}

// ExperienceEntry 一条经历记录
// 创建后不再修改，只允许删除
type ExperienceEntry struct {
	ID        string             `json:"id"`
	Timestamp int64              `json:"timestamp"` // 毫秒
	Content   string             `json:"content"`
	Category  ExperienceCategory `json:"category"`
	Tags      []string           `json:"tags"`
}

// GuidedQuestion 自我探索引导问题
type GuidedQuestion struct {
	ID       string             `json:"id"`
	Question string             `json:"question"`
	Category ExperienceCategory `json:"category"`
}

// GuidedQuestions 内置引导问题
var GuidedQuestions = []GuidedQuestion{
	{ID: "q1", Question: "最近一次做什么事，让你觉得“我做得真不错”？哪怕是小事。", Category: CategoryAchievement},
	{ID: "q2", Question: "有没有一件事，你做的时候会忘记看时间？核心快乐是什么？", Category: CategoryJoy},
	{ID: "q3", Question: "如果不用考虑赚钱，你最想每天花时间做什么？", Category: CategoryInterest},
}

// FindGuidedQuestion 按 ID 查找引导问题
func FindGuidedQuestion(id string) (GuidedQuestion, bool) {
	for _, q := range GuidedQuestions {
		if q.ID == id {
			return q, true
		}
	}
	return GuidedQuestion{}, false
}
