package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
	"github.com/yuqie6/VirtualSelf/internal/repository"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"golang.org/x/sync/semaphore"
)

// fallbackSpeech 分身回应失败时的默认台词
const fallbackSpeech = "我在听。"

// Action 操作类别，同类操作同一时刻只允许一个
type Action string

const (
	ActionOnboarding Action = "onboarding"
	ActionLibrary    Action = "library" // 经历库与档案的写入
	ActionPlan       Action = "plan"    // 计划与任务
	ActionCheckIn    Action = "checkin" // 打卡反馈与周回顾
	ActionSpeech     Action = "speech"  // 语音与对话
)

// CompanionConfig 编排配置
type CompanionConfig struct {
	MinPlanEntries    int // 生成计划所需的最少经历数
	MinSummaryEntries int
	MilestoneLimit    int
	RecallTopK        int // 对话时召回的相关经历数
}

// DefaultCompanionConfig 默认配置
func DefaultCompanionConfig() CompanionConfig {
	return CompanionConfig{
		MinPlanEntries:    3,
		MinSummaryEntries: 1,
		MilestoneLimit:    30,
		RecallTopK:        3,
	}
}

// CompanionService 编排多步流程并定义部分失败语义
type CompanionService struct {
	ai     Companion
	store  StateStore
	memory MemoryIndex // 可为 nil
	hub    *eventbus.Hub
	cfg    CompanionConfig
	busy   map[Action]*semaphore.Weighted

	now   func() time.Time
	newID func() string
}

// NewCompanionService 创建编排服务；memory 与 hub 可为 nil
func NewCompanionService(companion Companion, store StateStore, memory MemoryIndex, hub *eventbus.Hub, cfg *CompanionConfig) *CompanionService {
	c := DefaultCompanionConfig()
	if cfg != nil {
		if cfg.MinPlanEntries > 0 {
			c.MinPlanEntries = cfg.MinPlanEntries
		}
		if cfg.MinSummaryEntries > 0 {
			c.MinSummaryEntries = cfg.MinSummaryEntries
		}
		if cfg.MilestoneLimit > 0 {
			c.MilestoneLimit = cfg.MilestoneLimit
		}
		if cfg.RecallTopK > 0 {
			c.RecallTopK = cfg.RecallTopK
		}
	}

	busy := make(map[Action]*semaphore.Weighted)
	for _, a := range []Action{ActionOnboarding, ActionLibrary, ActionPlan, ActionCheckIn, ActionSpeech} {
		busy[a] = semaphore.NewWeighted(1)
	}

	return &CompanionService{
		ai:     companion,
		store:  store,
		memory: memory,
		hub:    hub,
		cfg:    c,
		busy:   busy,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// acquire 占用一个或多个操作类别，任一被占用即返回 ErrBusy
func (s *CompanionService) acquire(actions ...Action) (func(), error) {
	held := make([]*semaphore.Weighted, 0, len(actions))
	release := func() {
		for _, sem := range held {
			sem.Release(1)
		}
	}
	for _, a := range actions {
		sem := s.busy[a]
		if !sem.TryAcquire(1) {
			release()
			return nil, fmt.Errorf("%s: %w", a, ErrBusy)
		}
		held = append(held, sem)
	}
	return release, nil
}

// Busy 操作类别当前是否被占用
func (s *CompanionService) Busy(a Action) bool {
	sem, ok := s.busy[a]
	if !ok {
		return false
	}
	if !sem.TryAcquire(1) {
		return true
	}
	sem.Release(1)
	return false
}

// fail 发布临时错误提示并返回原错误
func (s *CompanionService) fail(action Action, err error) error {
	s.hub.Notice(string(action), UserMessage(err))
	return err
}

func (s *CompanionService) requireProfile(ctx context.Context) (*schema.VirtualSelfProfile, error) {
	profile, err := s.store.GetProfile(ctx)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNoProfile
	}
	return profile, nil
}

func (s *CompanionService) indexEntries(ctx context.Context, entries []schema.ExperienceEntry) {
	if s.memory == nil || len(entries) == 0 {
		return
	}
	if err := s.memory.IndexEntries(ctx, entries); err != nil {
		slog.Warn("索引经历失败", "count", len(entries), "error", err)
	}
}

// ===== 引导初始化 =====

// OnboardResult 初始化结果
type OnboardResult struct {
	Profile   schema.VirtualSelfProfile
	Entries   []schema.ExperienceEntry
	AvatarErr error // 形象生成失败不影响整体成功
}

// Onboard 初始化档案：生成档案草稿 → 生成形象（尽力而为）→ 档案与经历一起持久化
// 草稿生成失败时不写入任何数据
func (s *CompanionService) Onboard(ctx context.Context, data schema.OnboardingData) (*OnboardResult, error) {
	gender, ok := schema.ParseGender(string(data.Gender))
	if !ok {
		return nil, fmt.Errorf("无效的性别: %q", data.Gender)
	}
	data.Gender = gender
	release, err := s.acquire(ActionOnboarding, ActionLibrary)
	if err != nil {
		return nil, err
	}
	defer release()

	s.hub.Status(string(ActionOnboarding), "initializing")
	draft, err := s.ai.InitializeProfile(ctx, data)
	if err != nil {
		slog.Error("初始化档案失败", "error", err)
		return nil, s.fail(ActionOnboarding, fmt.Errorf("初始化档案失败: %w", err))
	}
	s.hub.Status(string(ActionOnboarding), "drafted")

	result := &OnboardResult{Profile: draft.Profile, Entries: draft.Entries}
	if result.Entries == nil {
		result.Entries = []schema.ExperienceEntry{}
	}

	if strings.TrimSpace(result.Profile.OOTD) == "" {
		result.AvatarErr = ErrMissingOOTD
	} else {
		avatar, err := s.ai.GenerateAvatar(ctx, result.Profile.OOTD, data.Gender)
		if err != nil {
			result.AvatarErr = err
		} else {
			result.Profile.AvatarURL = avatar
		}
	}
	if result.AvatarErr != nil {
		slog.Warn("形象生成失败，继续使用空形象", "error", result.AvatarErr)
		result.Profile.AvatarURL = ""
	}
	result.Profile.Initialized = true

	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{
		Library: &result.Entries,
		Profile: &result.Profile,
	}); err != nil {
		return nil, s.fail(ActionOnboarding, fmt.Errorf("保存档案失败: %w", err))
	}

	s.indexEntries(ctx, result.Entries)
	s.hub.Status(string(ActionOnboarding), "ready")
	s.hub.Publish(eventbus.Event{Type: eventbus.TypeProfileUpdated, Data: map[string]any{
		"mood": result.Profile.Mood, "affinity": result.Profile.Affinity,
	}})
	slog.Info("初始化完成", "entries", len(result.Entries), "has_avatar", result.Profile.AvatarURL != "")
	return result, nil
}

// ===== 经历录入 =====

// IngestResult 录入结果
type IngestResult struct {
	Entries []schema.ExperienceEntry  // 新增的经历
	Profile *schema.VirtualSelfProfile // 更新后的档案；更新失败时为更新前的档案
	Speech  string
}

// IngestRawInput 录入自由文本：拆分经历 → 前插到经历库并保存 → 更新档案 → 分身回应
// 档案更新失败时新经历仍然保留，档案保持原样，返回结果与错误
func (s *CompanionService) IngestRawInput(ctx context.Context, input string) (*IngestResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	release, err := s.acquire(ActionLibrary)
	if err != nil {
		return nil, err
	}
	defer release()

	prior, err := s.requireProfile(ctx)
	if err != nil {
		return nil, err
	}
	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return nil, err
	}

	s.hub.Status(string(ActionLibrary), "processing")
	drafts, err := s.ai.ProcessRawInput(ctx, input)
	if err != nil {
		return nil, s.fail(ActionLibrary, fmt.Errorf("解析输入失败: %w", err))
	}
	if len(drafts) == 0 {
		return nil, s.fail(ActionLibrary, ErrNothingExtracted)
	}

	now := s.now().UnixMilli()
	added := make([]schema.ExperienceEntry, 0, len(drafts))
	for _, d := range drafts {
		added = append(added, schema.ExperienceEntry{
			ID:        s.newID(),
			Timestamp: now,
			Content:   d.Content,
			Category:  d.Category,
			Tags:      normalizeTags(d.Tags),
		})
	}
	merged := make([]schema.ExperienceEntry, 0, len(added)+len(library))
	merged = append(merged, added...)
	merged = append(merged, library...)

	// 原始记录先落盘，后续步骤失败也不丢
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Library: &merged}); err != nil {
		return nil, s.fail(ActionLibrary, fmt.Errorf("保存经历失败: %w", err))
	}
	s.indexEntries(ctx, added)
	s.hub.Publish(eventbus.Event{Type: eventbus.TypeEntriesAdded, Data: map[string]any{"count": len(added)}})

	result := &IngestResult{Entries: added, Profile: prior}

	s.hub.Status(string(ActionLibrary), "updating_profile")
	updated, err := s.ai.UpdateProfile(ctx, merged, prior.Gender)
	if err != nil {
		slog.Warn("更新档案失败，保留新经历", "entries", len(added), "error", err)
		return result, s.fail(ActionLibrary, fmt.Errorf("更新档案失败（新经历已保存）: %w", err))
	}
	updated.AvatarURL = prior.AvatarURL
	if updated.OOTD == "" {
		updated.OOTD = prior.OOTD
	}

	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Library: &merged, Profile: updated}); err != nil {
		return result, s.fail(ActionLibrary, fmt.Errorf("保存档案失败: %w", err))
	}
	result.Profile = updated
	s.hub.Publish(eventbus.Event{Type: eventbus.TypeProfileUpdated, Data: map[string]any{
		"mood": updated.Mood, "affinity": updated.Affinity,
	}})

	result.Speech = s.companionLine(ctx, s.situationFor(ctx, "用户刚刚记录了：", input, added), updated)
	s.hub.Status(string(ActionLibrary), "done")
	return result, nil
}

// situationFor 分身回应的上下文：新经历 + 召回的相关旧经历
func (s *CompanionService) situationFor(ctx context.Context, lead, input string, added []schema.ExperienceEntry) string {
	var b strings.Builder
	b.WriteString(lead)
	b.WriteString(truncateRunes(input, 300))

	if s.memory == nil {
		return b.String()
	}
	hits, err := s.memory.Recall(ctx, input, s.cfg.RecallTopK+len(added))
	if err != nil {
		slog.Debug("召回相关经历失败", "error", err)
		return b.String()
	}
	skip := make(map[string]struct{}, len(added))
	for _, e := range added {
		skip[e.ID] = struct{}{}
	}
	n := 0
	for _, h := range hits {
		if _, ok := skip[h.EntryID]; ok || n >= s.cfg.RecallTopK {
			continue
		}
		if n == 0 {
			b.WriteString("\n相关的过往经历：")
		}
		b.WriteString(fmt.Sprintf("\n- %s %s", h.Date, truncateRunes(h.Content, 80)))
		n++
	}
	return b.String()
}

// companionLine 分身回应，失败时降级为默认台词
func (s *CompanionService) companionLine(ctx context.Context, situation string, profile *schema.VirtualSelfProfile) string {
	speech, err := s.ai.GetCompanionSpeech(ctx, situation, profile)
	if err != nil || strings.TrimSpace(speech) == "" {
		if err != nil {
			slog.Warn("分身回应失败，使用默认台词", "error", err)
		}
		speech = fallbackSpeech
	}
	s.hub.Publish(eventbus.Event{Type: eventbus.TypeSpeech, Data: map[string]any{"text": speech}})
	return speech
}

// AnswerGuidedQuestion 回答引导问题，答案作为一条 qa 经历保存，不调用 AI
func (s *CompanionService) AnswerGuidedQuestion(ctx context.Context, questionID, answer string) (*schema.ExperienceEntry, error) {
	q, ok := schema.FindGuidedQuestion(questionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyInput
	}
	release, err := s.acquire(ActionLibrary)
	if err != nil {
		return nil, err
	}
	defer release()

	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return nil, err
	}
	entry := schema.ExperienceEntry{
		ID:        s.newID(),
		Timestamp: s.now().UnixMilli(),
		Content:   answer,
		Category:  q.Category,
		Tags:      []string{"qa"},
	}
	merged := append([]schema.ExperienceEntry{entry}, library...)
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Library: &merged}); err != nil {
		return nil, fmt.Errorf("保存经历失败: %w", err)
	}
	s.indexEntries(ctx, []schema.ExperienceEntry{entry})
	s.hub.Publish(eventbus.Event{Type: eventbus.TypeEntriesAdded, Data: map[string]any{"count": 1}})
	return &entry, nil
}

// DeleteEntry 从经历库删除一条经历，档案不随之重算
func (s *CompanionService) DeleteEntry(ctx context.Context, id string) error {
	release, err := s.acquire(ActionLibrary)
	if err != nil {
		return err
	}
	defer release()

	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return err
	}
	kept := make([]schema.ExperienceEntry, 0, len(library))
	for _, e := range library {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(library) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Library: &kept}); err != nil {
		return fmt.Errorf("保存经历失败: %w", err)
	}
	if s.memory != nil {
		if err := s.memory.Remove(ctx, id); err != nil {
			slog.Warn("删除经历索引失败", "id", id, "error", err)
		}
	}
	return nil
}

// Library 经历库（新的在前）
func (s *CompanionService) Library(ctx context.Context) ([]schema.ExperienceEntry, error) {
	return s.store.GetLibrary(ctx)
}

// Profile 当前档案，未初始化时为 nil
func (s *CompanionService) Profile(ctx context.Context) (*schema.VirtualSelfProfile, error) {
	return s.store.GetProfile(ctx)
}

// Milestones 能力树里程碑：成就与职业类经历
func (s *CompanionService) Milestones(ctx context.Context) ([]schema.ExperienceEntry, error) {
	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.ExperienceEntry, 0)
	for _, e := range library {
		if e.Category != schema.CategoryAchievement && e.Category != schema.CategoryCareer {
			continue
		}
		out = append(out, e)
		if len(out) >= s.cfg.MilestoneLimit {
			break
		}
	}
	return out, nil
}

// RefreshAvatar 重新生成形象；ootd 为空时使用档案中的描述；失败时保留原形象
func (s *CompanionService) RefreshAvatar(ctx context.Context, ootd string) (*schema.VirtualSelfProfile, error) {
	release, err := s.acquire(ActionLibrary)
	if err != nil {
		return nil, err
	}
	defer release()

	profile, err := s.requireProfile(ctx)
	if err != nil {
		return nil, err
	}
	if ootd = strings.TrimSpace(ootd); ootd == "" {
		ootd = profile.OOTD
	}
	if ootd == "" {
		return nil, fmt.Errorf("%w: 缺少穿搭描述", ErrEmptyInput)
	}

	avatar, err := s.ai.GenerateAvatar(ctx, ootd, profile.Gender)
	if err != nil {
		return profile, s.fail(ActionLibrary, fmt.Errorf("生成形象失败: %w", err))
	}
	profile.AvatarURL = avatar
	profile.OOTD = ootd
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Profile: profile}); err != nil {
		return nil, fmt.Errorf("保存档案失败: %w", err)
	}
	return profile, nil
}

// ===== 成长计划与任务 =====

// GeneratePlan 生成成长计划并整体替换任务列表（旧任务的完成记录不保留）
func (s *CompanionService) GeneratePlan(ctx context.Context) (*schema.GrowthPlan, []schema.ActionTask, error) {
	release, err := s.acquire(ActionPlan)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	profile, err := s.requireProfile(ctx)
	if err != nil {
		return nil, nil, err
	}
	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(library) < s.cfg.MinPlanEntries {
		return nil, nil, fmt.Errorf("%w: 至少需要 %d 条，当前 %d 条", ErrNotEnoughEntries, s.cfg.MinPlanEntries, len(library))
	}

	s.hub.Status(string(ActionPlan), "generating")
	plan, err := s.ai.GenerateGrowthPlan(ctx, profile, library)
	if err != nil {
		return nil, nil, s.fail(ActionPlan, fmt.Errorf("生成成长计划失败: %w", err))
	}
	tasks := tasksFromPlan(plan, s.now(), s.newID)

	// 只写任务与计划：生成期间经历库和档案可能已被其他操作更新
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{
		Tasks: &tasks,
		Plan:  plan,
	}); err != nil {
		return nil, nil, s.fail(ActionPlan, fmt.Errorf("保存成长计划失败: %w", err))
	}

	s.hub.Publish(eventbus.Event{Type: eventbus.TypePlanGenerated, Data: map[string]any{"tasks": len(tasks)}})
	slog.Info("成长计划已生成", "directions", len(plan.Directions), "tasks", len(tasks))
	return plan, tasks, nil
}

// Plan 当前成长计划，未生成时为 nil
func (s *CompanionService) Plan(ctx context.Context) (*schema.GrowthPlan, error) {
	return s.store.GetPlan(ctx)
}

// Tasks 当前任务列表
func (s *CompanionService) Tasks(ctx context.Context) ([]schema.ActionTask, error) {
	return s.store.GetTasks(ctx)
}

// Today 本地日期
func (s *CompanionService) Today() string {
	return DayKey(s.now())
}

// ToggleTask 切换任务今天的完成状态
func (s *CompanionService) ToggleTask(ctx context.Context, taskID string) (*schema.ActionTask, error) {
	release, err := s.acquire(ActionPlan)
	if err != nil {
		return nil, err
	}
	defer release()

	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, t := range tasks {
		if t.ID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	toggled := ToggleTaskCompletion(tasks[idx], s.Today())
	updated := make([]schema.ActionTask, len(tasks))
	copy(updated, tasks)
	updated[idx] = toggled
	if err := s.store.SaveSnapshot(ctx, repository.Snapshot{Tasks: &updated}); err != nil {
		return nil, fmt.Errorf("保存任务失败: %w", err)
	}
	return &toggled, nil
}

// ===== 反馈与回顾 =====

// CheckInResult 打卡反馈
type CheckInResult struct {
	Feedback string
	Audio    []byte // 仅在请求朗读且合成成功时非空
	AudioErr error
}

// CheckIn 对任务完成情况给出反馈；speak 为真时尝试朗读，朗读失败不影响反馈
func (s *CompanionService) CheckIn(ctx context.Context, speak bool) (*CheckInResult, error) {
	release, err := s.acquire(ActionCheckIn)
	if err != nil {
		return nil, err
	}
	defer release()

	profile, err := s.requireProfile(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return nil, err
	}

	feedback, err := s.ai.GetCheckInFeedback(ctx, tasks, profile)
	if err != nil {
		return nil, s.fail(ActionCheckIn, fmt.Errorf("获取打卡反馈失败: %w", err))
	}
	result := &CheckInResult{Feedback: feedback}
	if speak {
		audio, err := s.ai.GenerateSpeech(ctx, feedback, profile.Gender)
		if err != nil {
			slog.Warn("朗读反馈失败", "error", err)
			result.AudioErr = err
		} else {
			result.Audio = audio
		}
	}
	return result, nil
}

// WeeklySummary 生成周回顾（不持久化）
func (s *CompanionService) WeeklySummary(ctx context.Context) (*schema.WeeklySummary, error) {
	release, err := s.acquire(ActionCheckIn)
	if err != nil {
		return nil, err
	}
	defer release()

	library, err := s.store.GetLibrary(ctx)
	if err != nil {
		return nil, err
	}
	if len(library) < s.cfg.MinSummaryEntries {
		return nil, fmt.Errorf("%w: 至少需要 %d 条", ErrNotEnoughEntries, s.cfg.MinSummaryEntries)
	}

	summary, err := s.ai.GenerateWeeklySummary(ctx, library)
	if err != nil {
		return nil, s.fail(ActionCheckIn, fmt.Errorf("生成周回顾失败: %w", err))
	}
	summary.GeneratedAt = s.now().UnixMilli()
	return summary, nil
}

// ===== 语音与对话 =====

func (s *CompanionService) genderOrDefault(ctx context.Context) schema.Gender {
	profile, err := s.store.GetProfile(ctx)
	if err != nil || profile == nil {
		return schema.GenderNonBinary
	}
	return profile.Gender
}

// Speak 用分身的声音朗读文本
func (s *CompanionService) Speak(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	release, err := s.acquire(ActionSpeech)
	if err != nil {
		return nil, err
	}
	defer release()

	audio, err := s.ai.GenerateSpeech(ctx, text, s.genderOrDefault(ctx))
	if err != nil {
		return nil, s.fail(ActionSpeech, fmt.Errorf("语音合成失败: %w", err))
	}
	return audio, nil
}

// Talk 和分身说一句话，结合相关的过往经历回应
func (s *CompanionService) Talk(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyInput
	}
	release, err := s.acquire(ActionSpeech)
	if err != nil {
		return "", err
	}
	defer release()

	profile, err := s.requireProfile(ctx)
	if err != nil {
		return "", err
	}
	return s.companionLine(ctx, s.situationFor(ctx, "用户对你说：", message, nil), profile), nil
}
