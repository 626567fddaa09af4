package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/yuqie6/VirtualSelf/internal/schema"
)

// 语音音色：男声 Puck，其余 Zephyr
const (
	VoiceMale    = "Puck"
	VoiceDefault = "Zephyr"
)

const (
	defaultCompanionLine = "我在听。"
	defaultCheckInLine   = "做得不错！"
)

// VoiceFor 根据性别选择音色
func VoiceFor(gender schema.Gender) string {
	if gender == schema.GenderMale {
		return VoiceMale
	}
	return VoiceDefault
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	FlashModel        string  // 常规操作
	ProModel          string  // 成长计划（更深入的生成）
	ImageModel        string  // 形象生成
	SpeechModel       string  // 语音合成
	EmbeddingModel    string  // 经历向量
	RequestsPerSecond float64 // 0 表示不限速
	Burst             int
	SpeechCacheSize   int
	RecentEntryLimit  int // 更新档案时发送的最近经历条数
}

// DefaultGatewayConfig 默认配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		FlashModel:        "gemini-3-flash-preview",
		ProModel:          "gemini-3-pro-preview",
		ImageModel:        "gemini-2.5-flash-image",
		SpeechModel:       "gemini-2.5-flash-preview-tts",
		EmbeddingModel:    "gemini-embedding-001",
		RequestsPerSecond: 2,
		Burst:             2,
		SpeechCacheSize:   64,
		RecentEntryLimit:  10,
	}
}

// EntryDraft 模型拆分出的经历（ID 与时间戳由调用方分配）
type EntryDraft struct {
	Content  string
	Category schema.ExperienceCategory
	Tags     []string
}

// InitialProfile 引导初始化结果
type InitialProfile struct {
	Profile schema.VirtualSelfProfile
	Entries []schema.ExperienceEntry
}

// rawEntry 模型返回的经历，分类尚未归一化
type rawEntry struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (r rawEntry) draft() EntryDraft {
	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return EntryDraft{
		Content:  strings.TrimSpace(r.Content),
		Category: NormalizeCategory(r.Category),
		Tags:     tags,
	}
}

// Gateway AI 网关：每个操作 = 构建请求 → 重试调用 → 解析修复 → 校验成型
type Gateway struct {
	dialer      Dialer
	retry       *RetryPolicy
	limiter     *rate.Limiter
	speechCache *lru.Cache[string, []byte]
	cfg         GatewayConfig

	now   func() time.Time
	newID func() string
}

// NewGateway 创建网关
func NewGateway(dialer Dialer, retry *RetryPolicy, cfg *GatewayConfig) *Gateway {
	c := DefaultGatewayConfig()
	if cfg != nil {
		if cfg.FlashModel != "" {
			c.FlashModel = cfg.FlashModel
		}
		if cfg.ProModel != "" {
			c.ProModel = cfg.ProModel
		}
		if cfg.ImageModel != "" {
			c.ImageModel = cfg.ImageModel
		}
		if cfg.SpeechModel != "" {
			c.SpeechModel = cfg.SpeechModel
		}
		if cfg.EmbeddingModel != "" {
			c.EmbeddingModel = cfg.EmbeddingModel
		}
		c.RequestsPerSecond = cfg.RequestsPerSecond
		if cfg.Burst > 0 {
			c.Burst = cfg.Burst
		}
		if cfg.SpeechCacheSize > 0 {
			c.SpeechCacheSize = cfg.SpeechCacheSize
		}
		if cfg.RecentEntryLimit > 0 {
			c.RecentEntryLimit = cfg.RecentEntryLimit
		}
	}
	if retry == nil {
		retry = NewRetryPolicy(nil, nil)
	}

	limit := rate.Inf
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
	}
	cache, err := lru.New[string, []byte](c.SpeechCacheSize)
	if err != nil {
		slog.Warn("创建语音缓存失败，禁用缓存", "error", err)
		cache = nil
	}

	return &Gateway{
		dialer:      dialer,
		retry:       retry,
		limiter:     rate.NewLimiter(limit, c.Burst),
		speechCache: cache,
		cfg:         c,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Config 返回生效的配置
func (g *Gateway) Config() GatewayConfig {
	return g.cfg
}

// once 单次尝试：限速 → 按当前凭据新建客户端 → 调用
func (g *Gateway) once(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待限速失败: %w", err)
	}
	gen, err := g.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return gen.Generate(ctx, req)
}

// generateShaped 结构化输出：解析失败也会触发一次新的远程调用
func generateShaped[T any](ctx context.Context, g *Gateway, op string, req *GenerateRequest, shape *genai.Schema) (T, error) {
	req.Schema = shape
	return Retry(ctx, g.retry, op, func(ctx context.Context) (T, error) {
		var out T
		res, err := g.once(ctx, req)
		if err != nil {
			return out, err
		}
		if err := decodeShaped(res.Text, shape, &out); err != nil {
			slog.Warn("AI 响应不符合约定结构", "op", op, "error", err)
			return out, err
		}
		return out, nil
	})
}

// generateProse 纯文本输出，原样返回
func (g *Gateway) generateProse(ctx context.Context, op string, req *GenerateRequest) (string, error) {
	res, err := Retry(ctx, g.retry, op, func(ctx context.Context) (*GenerateResult, error) {
		return g.once(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

// InitializeProfile 根据引导问卷生成初始档案与经历
func (g *Gateway) InitializeProfile(ctx context.Context, data schema.OnboardingData) (*InitialProfile, error) {
	const op = "initializeProfile"
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, newPipelineError(op, fmt.Errorf("序列化问卷失败: %w", err))
	}

	type reply struct {
		Profile schema.VirtualSelfProfile `json:"profile"`
		Entries []rawEntry                `json:"entries"`
	}
	out, err := generateShaped[reply](ctx, g, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          string(payload),
		SystemInstruction: initProfileInstruction(),
	}, ShapeInitialProfile)
	if err != nil {
		return nil, newPipelineError(op, err)
	}

	profile := out.Profile
	profile.Gender = data.Gender
	profile.AvatarURL = ""
	profile.Initialized = false

	now := g.now().UnixMilli()
	entries := make([]schema.ExperienceEntry, 0, len(out.Entries))
	for _, r := range out.Entries {
		d := r.draft()
		if d.Content == "" {
			continue
		}
		entries = append(entries, schema.ExperienceEntry{
			ID:        g.newID(),
			Timestamp: now,
			Content:   d.Content,
			Category:  d.Category,
			Tags:      d.Tags,
		})
	}
	if len(entries) == 0 {
		slog.Warn("初始化档案未拆分出经历", "op", op)
	}

	return &InitialProfile{Profile: profile, Entries: entries}, nil
}

// GenerateAvatar 根据穿搭描述生成形象，返回 data URI
func (g *Gateway) GenerateAvatar(ctx context.Context, ootd string, gender schema.Gender) (string, error) {
	const op = "generateAvatar"
	if strings.TrimSpace(ootd) == "" {
		return "", newPipelineError(op, fmt.Errorf("穿搭描述为空"))
	}
	req := &GenerateRequest{
		Model:    g.cfg.ImageModel,
		Contents: avatarPrompt(ootd, gender),
		Modality: ModalityImage,
	}
	res, err := Retry(ctx, g.retry, op, func(ctx context.Context) (*GenerateResult, error) {
		res, err := g.once(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(res.Data) == 0 {
			return nil, fmt.Errorf("模型未返回图片: %w", ErrEmptyResponse)
		}
		return res, nil
	})
	if err != nil {
		return "", newPipelineError(op, err)
	}

	mime := res.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(res.Data)), nil
}

// GenerateSpeech 合成语音，音色只由性别决定
func (g *Gateway) GenerateSpeech(ctx context.Context, text string, gender schema.Gender) ([]byte, error) {
	const op = "generateSpeech"
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, newPipelineError(op, fmt.Errorf("朗读文本为空"))
	}
	voice := VoiceFor(gender)
	key := voice + "\x00" + text
	if g.speechCache != nil {
		if audio, ok := g.speechCache.Get(key); ok {
			slog.Debug("命中语音缓存", "voice", voice)
			return audio, nil
		}
	}

	req := &GenerateRequest{
		Model:    g.cfg.SpeechModel,
		Contents: text,
		Modality: ModalityAudio,
		Voice:    voice,
	}
	res, err := Retry(ctx, g.retry, op, func(ctx context.Context) (*GenerateResult, error) {
		res, err := g.once(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(res.Data) == 0 {
			return nil, fmt.Errorf("模型未返回音频: %w", ErrEmptyResponse)
		}
		return res, nil
	})
	if err != nil {
		return nil, newPipelineError(op, err)
	}

	if g.speechCache != nil {
		g.speechCache.Add(key, res.Data)
	}
	return res.Data, nil
}

// UpdateProfile 基于经历库重新生成档案
// 只发送最近的若干条经历；头像不在输出中，由调用方重新挂载
func (g *Gateway) UpdateProfile(ctx context.Context, library []schema.ExperienceEntry, gender schema.Gender) (*schema.VirtualSelfProfile, error) {
	const op = "updateProfile"
	recent := library
	if len(recent) > g.cfg.RecentEntryLimit {
		recent = recent[:g.cfg.RecentEntryLimit]
	}

	out, err := generateShaped[schema.VirtualSelfProfile](ctx, g, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          "经历：" + entriesJSON(recent),
		SystemInstruction: updateProfileInstruction(),
	}, ShapeProfile)
	if err != nil {
		return nil, newPipelineError(op, err)
	}

	out.Gender = gender
	out.AvatarURL = ""
	out.Initialized = true
	return &out, nil
}

// GetCompanionSpeech 分身的一句回应，原样返回
func (g *Gateway) GetCompanionSpeech(ctx context.Context, situation string, profile *schema.VirtualSelfProfile) (string, error) {
	const op = "getCompanionSpeech"
	if profile == nil {
		profile = &schema.VirtualSelfProfile{}
	}
	text, err := g.generateProse(ctx, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          situation,
		SystemInstruction: companionInstruction(profile),
	})
	if err != nil {
		return "", newPipelineError(op, err)
	}
	if text == "" {
		return defaultCompanionLine, nil
	}
	return text, nil
}

// ProcessRawInput 将自由文本拆分为经历草稿
func (g *Gateway) ProcessRawInput(ctx context.Context, input string) ([]EntryDraft, error) {
	const op = "processRawInput"
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, newPipelineError(op, fmt.Errorf("输入为空"))
	}

	raws, err := generateShaped[[]rawEntry](ctx, g, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          input,
		SystemInstruction: rawInputInstruction,
	}, ShapeRawEntries)
	if err != nil {
		return nil, newPipelineError(op, err)
	}

	drafts := make([]EntryDraft, 0, len(raws))
	for _, r := range raws {
		d := r.draft()
		if d.Content == "" {
			continue
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// GenerateGrowthPlan 生成成长计划（使用更强的模型）
func (g *Gateway) GenerateGrowthPlan(ctx context.Context, profile *schema.VirtualSelfProfile, library []schema.ExperienceEntry) (*schema.GrowthPlan, error) {
	const op = "generateGrowthPlan"
	contents := fmt.Sprintf("档案：\n%s\n经历：%s", profileDigest(profile), entriesJSON(library))

	plan, err := generateShaped[schema.GrowthPlan](ctx, g, op, &GenerateRequest{
		Model:             g.cfg.ProModel,
		Contents:          contents,
		SystemInstruction: growthPlanInstruction,
	}, ShapeGrowthPlan)
	if err != nil {
		return nil, newPipelineError(op, err)
	}

	for i := range plan.SuggestedTasks {
		plan.SuggestedTasks[i].Title = strings.TrimSpace(plan.SuggestedTasks[i].Title)
		plan.SuggestedTasks[i].Frequency = schema.ParseFrequency(string(plan.SuggestedTasks[i].Frequency))
	}
	return &plan, nil
}

// GetCheckInFeedback 对任务完成情况给出反馈，原样返回
func (g *Gateway) GetCheckInFeedback(ctx context.Context, tasks []schema.ActionTask, profile *schema.VirtualSelfProfile) (string, error) {
	const op = "getCheckInFeedback"
	if profile == nil {
		profile = &schema.VirtualSelfProfile{}
	}
	today := g.now().Format("2006-01-02")
	text, err := g.generateProse(ctx, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          fmt.Sprintf("任务完成反馈（%s）：\n%s", today, tasksDigest(tasks, today)),
		SystemInstruction: checkInInstruction(profile),
	})
	if err != nil {
		return "", newPipelineError(op, err)
	}
	if text == "" {
		return defaultCheckInLine, nil
	}
	return text, nil
}

// GenerateWeeklySummary 生成周回顾；GeneratedAt 由调用方填写
func (g *Gateway) GenerateWeeklySummary(ctx context.Context, library []schema.ExperienceEntry) (*schema.WeeklySummary, error) {
	const op = "generateWeeklySummary"
	now := g.now()
	weekAgo := now.AddDate(0, 0, -7).UnixMilli()

	var recent []schema.ExperienceEntry
	for _, e := range library {
		if e.Timestamp >= weekAgo {
			recent = append(recent, e)
		}
	}
	// 本周没有记录时退回到最近的经历
	if len(recent) == 0 {
		recent = library
		if len(recent) > 20 {
			recent = recent[:20]
		}
	}

	contents := fmt.Sprintf("生成本周回顾（%s 至 %s）\n经历：%s",
		now.AddDate(0, 0, -6).Format("2006-01-02"), now.Format("2006-01-02"), entriesJSON(recent))
	summary, err := generateShaped[schema.WeeklySummary](ctx, g, op, &GenerateRequest{
		Model:             g.cfg.FlashModel,
		Contents:          contents,
		SystemInstruction: weeklySummaryInstruction(),
	}, ShapeWeeklySummary)
	if err != nil {
		return nil, newPipelineError(op, err)
	}
	summary.GeneratedAt = 0
	return &summary, nil
}

// EmbedTexts 生成文本向量（供经历记忆索引使用）
func (g *Gateway) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embed"
	out, err := Retry(ctx, g.retry, op, func(ctx context.Context) ([][]float32, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("等待限速失败: %w", err)
		}
		gen, err := g.dialer.Dial(ctx)
		if err != nil {
			return nil, err
		}
		return gen.Embed(ctx, g.cfg.EmbeddingModel, texts)
	})
	if err != nil {
		return nil, newPipelineError(op, err)
	}
	return out, nil
}
