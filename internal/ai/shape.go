package ai

import (
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"
	"google.golang.org/genai"
)

// 输出结构声明：同一份 genai.Schema 既作为 ResponseSchema 发给模型，
// 也用于本地校验解码结果

func str() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }

func strList() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: str()}
}

func object(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func arrayOf(item *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: item}
}

var categoryEnum = []string{
	"CAREER", "ACHIEVEMENT", "JOY", "CHOICE_REGRET", "INTEREST",
	"ABILITY_SHORTCOMING", "VISION", "ANXIETY", "PERSONAL",
}

func categorySchema() *genai.Schema {
	// 不在本地强制 enum，分类由 NormalizeCategory 兜底
	return &genai.Schema{Type: genai.TypeString, Enum: categoryEnum}
}

func entrySchema() *genai.Schema {
	return object(map[string]*genai.Schema{
		"content":  str(),
		"category": categorySchema(),
		"tags":     strList(),
	}, "content", "category")
}

func profileSchema() *genai.Schema {
	return object(map[string]*genai.Schema{
		"coreValues":         strList(),
		"strengths":          strList(),
		"shortcomings":       strList(),
		"growthSuggestions":  strList(),
		"joyTriggers":        strList(),
		"interestDirections": strList(),
		"summary":            str(),
		"mood":               str(),
		"affinity":           {Type: genai.TypeInteger},
		"ootd":               str(),
	}, "coreValues", "strengths", "shortcomings", "growthSuggestions",
		"joyTriggers", "interestDirections", "summary", "mood", "affinity")
}

// ShapeInitialProfile 初始化档案输出
var ShapeInitialProfile = object(map[string]*genai.Schema{
	"profile": profileSchema(),
	"entries": arrayOf(entrySchema()),
}, "profile", "entries")

// ShapeProfile 档案更新输出
var ShapeProfile = profileSchema()

// ShapeRawEntries 原始输入拆分输出
var ShapeRawEntries = arrayOf(entrySchema())

// ShapeGrowthPlan 成长计划输出
var ShapeGrowthPlan = object(map[string]*genai.Schema{
	"coreValuesAnalysis": str(),
	"directions": arrayOf(object(map[string]*genai.Schema{
		"title":     str(),
		"reasoning": str(),
		"fit":       str(),
	}, "title", "reasoning", "fit")),
	"shortTerm":   strList(),
	"midTerm":     strList(),
	"actionGuide": str(),
	"suggestedTasks": arrayOf(object(map[string]*genai.Schema{
		"title":     str(),
		"frequency": {Type: genai.TypeString, Enum: []string{"DAILY", "WEEKLY", "ONCE"}},
	}, "title", "frequency")),
}, "coreValuesAnalysis", "directions", "shortTerm", "midTerm", "actionGuide", "suggestedTasks")

// ShapeWeeklySummary 周回顾输出
var ShapeWeeklySummary = object(map[string]*genai.Schema{
	"period":      str(),
	"summary":     str(),
	"valueShifts": str(),
	"topInsights": strList(),
}, "period", "summary", "valueShifts", "topInsights")

// ValidateShape 按声明结构校验解码值，缺字段或类型不符返回错误
func ValidateShape(v any, s *genai.Schema) error {
	return validateAt(v, s, "$")
}

func validateAt(v any, s *genai.Schema, path string) error {
	if s == nil {
		return nil
	}
	switch s.Type {
	case genai.TypeObject:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: 期望对象，得到 %T", path, v)
		}
		for _, key := range s.Required {
			val, exists := m[key]
			if !exists || val == nil {
				return fmt.Errorf("%s.%s: 缺少必填字段", path, key)
			}
		}
		for key, prop := range s.Properties {
			val, exists := m[key]
			if !exists || val == nil {
				continue
			}
			if err := validateAt(val, prop, path+"."+key); err != nil {
				return err
			}
		}
	case genai.TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s: 期望数组，得到 %T", path, v)
		}
		for i, it := range arr {
			if err := validateAt(it, s.Items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case genai.TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s: 期望字符串，得到 %T", path, v)
		}
	case genai.TypeInteger, genai.TypeNumber:
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%s: 期望数字，得到 %T", path, v)
		}
	case genai.TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%s: 期望布尔值，得到 %T", path, v)
		}
	}
	return nil
}

// decodeShaped 解析 + 校验 + 转换为结构体，任一步失败都是 MalformedResponseError
func decodeShaped(raw string, s *genai.Schema, out any) error {
	v, err := RepairJSON(raw)
	if err != nil {
		return err
	}
	if err := ValidateShape(v, s); err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("创建解码器失败: %w", err)
	}
	if err := dec.Decode(v); err != nil {
		return &MalformedResponseError{Raw: raw, Err: err}
	}
	return nil
}
