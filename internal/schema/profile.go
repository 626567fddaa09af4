package schema

import "strings"

// Gender 用户声明的性别（引导阶段确定，之后不变）
type Gender string

const (
	GenderMale      Gender = "MALE"
	GenderFemale    Gender = "FEMALE"
	GenderNonBinary Gender = "NON_BINARY"
)

// ParseGender 解析性别，大小写不敏感
func ParseGender(s string) (Gender, bool) {
	switch Gender(strings.ToUpper(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, true
	case GenderFemale:
		return GenderFemale, true
	case GenderNonBinary, "NONBINARY", "NB":
		return GenderNonBinary, true
	}
	return "", false
}

// VirtualSelfProfile 虚拟自我档案
type VirtualSelfProfile struct {
	Gender             Gender   `json:"gender"`
	CoreValues         []string `json:"coreValues"`
	Strengths          []string `json:"strengths"`
	Shortcomings       []string `json:"shortcomings"`
	GrowthSuggestions  []string `json:"growthSuggestions"`
	JoyTriggers        []string `json:"joyTriggers"`
	InterestDirections []string `json:"interestDirections"`
	Summary            string   `json:"summary"`
	Mood               string   `json:"mood"`
	Affinity           int      `json:"affinity"`            // 0-100，不做钳制
	AvatarURL          string   `json:"avatarUrl,omitempty"` // data URI
	OOTD               string   `json:"ootd,omitempty"`      // 形象穿搭描述
	Initialized        bool     `json:"initialized"`
}

// OnboardingData 引导问卷答案
type OnboardingData struct {
	Gender        Gender `json:"gender"`
	BasicInfo     string `json:"basicInfo"`
	Satisfactions string `json:"satisfactions"`
	Anxieties     string `json:"anxieties"`
	Vision2026    string `json:"vision2026"`
	AntiLife      string `json:"antiLife"`
}
