package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
	"github.com/yuqie6/VirtualSelf/internal/repository"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"github.com/yuqie6/VirtualSelf/internal/testutil"
	"gorm.io/gorm"
)

// ===== Mock Implementations =====

type fakeCompanion struct {
	initial   *ai.InitialProfile
	initErr   error
	avatar    string
	avatarErr error
	audio     []byte
	audioErr  error
	updated   *schema.VirtualSelfProfile
	updateErr error
	line      string
	lineErr   error
	drafts    []ai.EntryDraft
	draftErr  error
	plan      *schema.GrowthPlan
	planErr   error
	feedback  string
	weekly    *schema.WeeklySummary

	// 非空时 ProcessRawInput 阻塞直到 release 关闭
	started chan struct{}
	release chan struct{}
	// 非空时 GenerateGrowthPlan 阻塞直到 planRelease 关闭
	planStarted chan struct{}
	planRelease chan struct{}

	avatarCalls   int
	updateCalls   int
	lastLibrary   []schema.ExperienceEntry
	lastSituation string
}

func (f *fakeCompanion) InitializeProfile(ctx context.Context, data schema.OnboardingData) (*ai.InitialProfile, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	out := *f.initial
	out.Profile.Gender = data.Gender
	return &out, nil
}

func (f *fakeCompanion) GenerateAvatar(ctx context.Context, ootd string, gender schema.Gender) (string, error) {
	f.avatarCalls++
	return f.avatar, f.avatarErr
}

func (f *fakeCompanion) GenerateSpeech(ctx context.Context, text string, gender schema.Gender) ([]byte, error) {
	return f.audio, f.audioErr
}

func (f *fakeCompanion) UpdateProfile(ctx context.Context, library []schema.ExperienceEntry, gender schema.Gender) (*schema.VirtualSelfProfile, error) {
	f.updateCalls++
	f.lastLibrary = library
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := *f.updated
	p.Gender = gender
	p.Initialized = true
	return &p, nil
}

func (f *fakeCompanion) GetCompanionSpeech(ctx context.Context, situation string, profile *schema.VirtualSelfProfile) (string, error) {
	f.lastSituation = situation
	return f.line, f.lineErr
}

func (f *fakeCompanion) ProcessRawInput(ctx context.Context, input string) ([]ai.EntryDraft, error) {
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	return f.drafts, f.draftErr
}

func (f *fakeCompanion) GenerateGrowthPlan(ctx context.Context, profile *schema.VirtualSelfProfile, library []schema.ExperienceEntry) (*schema.GrowthPlan, error) {
	if f.planStarted != nil {
		close(f.planStarted)
		<-f.planRelease
	}
	if f.planErr != nil {
		return nil, f.planErr
	}
	p := *f.plan
	return &p, nil
}

func (f *fakeCompanion) GetCheckInFeedback(ctx context.Context, tasks []schema.ActionTask, profile *schema.VirtualSelfProfile) (string, error) {
	return f.feedback, nil
}

func (f *fakeCompanion) GenerateWeeklySummary(ctx context.Context, library []schema.ExperienceEntry) (*schema.WeeklySummary, error) {
	w := *f.weekly
	return &w, nil
}

var quotaErr = &ai.PipelineError{Op: "test", Kind: ai.FailureQuota, Message: "AI 调用额度已用尽，请稍后再试", Err: errors.New("429")}

var testNow = time.Date(2026, 5, 20, 8, 0, 0, 0, time.Local)

func newTestService(t *testing.T, fake *fakeCompanion) (*CompanionService, *repository.StateRepository, *gorm.DB) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	repo := repository.NewStateRepository(db)
	svc := NewCompanionService(fake, repo, nil, eventbus.NewHub(), nil)
	svc.now = func() time.Time { return testNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
	return svc, repo, db
}

func rawRecord(t *testing.T, db *gorm.DB, key string) string {
	t.Helper()
	var rec schema.StateRecord
	if err := db.Where("state_key = ?", key).First(&rec).Error; err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return rec.Value
}

func sampleInitial() *ai.InitialProfile {
	return &ai.InitialProfile{
		Profile: schema.VirtualSelfProfile{
			CoreValues: []string{"自由"},
			Summary:    "喜欢创造的人",
			Mood:       "期待",
			Affinity:   30,
			OOTD:       "米色风衣",
		},
		Entries: []schema.ExperienceEntry{
			{ID: "e1", Timestamp: 1, Content: "办了第一次画展", Category: schema.CategoryAchievement},
			{ID: "e2", Timestamp: 1, Content: "换了工作", Category: schema.CategoryCareer},
		},
	}
}

// ===== 引导初始化 =====

func TestOnboardAvatarFailureStillSucceeds(t *testing.T) {
	fake := &fakeCompanion{initial: sampleInitial(), avatarErr: errors.New("image model unavailable")}
	svc, repo, _ := newTestService(t, fake)
	ctx := context.Background()

	res, err := svc.Onboard(ctx, schema.OnboardingData{Gender: "female", BasicInfo: "插画师"})
	if err != nil {
		t.Fatalf("Onboard error: %v", err)
	}
	if res.AvatarErr == nil {
		t.Fatalf("expected AvatarErr to be reported")
	}

	profile, err := repo.GetProfile(ctx)
	if err != nil || profile == nil {
		t.Fatalf("profile=%v err=%v", profile, err)
	}
	if !profile.Initialized || profile.AvatarURL != "" {
		t.Fatalf("initialized=%v avatar=%q, want true/empty", profile.Initialized, profile.AvatarURL)
	}
	if profile.Gender != schema.GenderFemale {
		t.Fatalf("gender=%s", profile.Gender)
	}
	lib, _ := repo.GetLibrary(ctx)
	if len(lib) != 2 {
		t.Fatalf("library=%d, want 2", len(lib))
	}
}

func TestOnboardWithAvatar(t *testing.T) {
	fake := &fakeCompanion{initial: sampleInitial(), avatar: "data:image/png;base64,AAAA"}
	svc, repo, _ := newTestService(t, fake)

	if _, err := svc.Onboard(context.Background(), schema.OnboardingData{Gender: schema.GenderMale}); err != nil {
		t.Fatalf("Onboard error: %v", err)
	}
	profile, _ := repo.GetProfile(context.Background())
	if profile.AvatarURL != "data:image/png;base64,AAAA" || !profile.Initialized {
		t.Fatalf("profile=%+v", profile)
	}
}

func TestOnboardInitFailurePersistsNothing(t *testing.T) {
	fake := &fakeCompanion{initErr: quotaErr}
	svc, repo, _ := newTestService(t, fake)
	ctx := context.Background()

	_, err := svc.Onboard(ctx, schema.OnboardingData{Gender: schema.GenderMale})
	if !errors.Is(err, quotaErr) {
		t.Fatalf("err=%v, want wrapped pipeline error", err)
	}
	if ai.UserMessage(err) != quotaErr.Message {
		t.Fatalf("UserMessage=%q", ai.UserMessage(err))
	}
	if fake.avatarCalls != 0 {
		t.Fatalf("avatar must not be attempted after init failure")
	}
	profile, _ := repo.GetProfile(ctx)
	lib, _ := repo.GetLibrary(ctx)
	if profile != nil || len(lib) != 0 {
		t.Fatalf("profile=%v library=%v, want nothing persisted", profile, lib)
	}
}

func TestOnboardRejectsUnknownGender(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeCompanion{initial: sampleInitial()})
	if _, err := svc.Onboard(context.Background(), schema.OnboardingData{Gender: "robot"}); err == nil {
		t.Fatalf("expected error")
	}
}

// ===== 经历录入 =====

func seedProfile(t *testing.T, repo *repository.StateRepository, lib []schema.ExperienceEntry) *schema.VirtualSelfProfile {
	t.Helper()
	profile := &schema.VirtualSelfProfile{
		Gender:      schema.GenderFemale,
		CoreValues:  []string{"真诚"},
		Summary:     "旧档案",
		Mood:        "平静",
		Affinity:    40,
		AvatarURL:   "data:image/png;base64,OLD",
		OOTD:        "白衬衫",
		Initialized: true,
	}
	if err := repo.SaveSnapshot(context.Background(), repository.Snapshot{Library: &lib, Profile: profile}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return profile
}

func TestIngestProfileFailureKeepsNewEntries(t *testing.T) {
	fake := &fakeCompanion{
		drafts: []ai.EntryDraft{
			{Content: "考研失利", Category: schema.CategoryChoiceRegret, Tags: []string{"考研"}},
			{Content: "开始学吉他", Category: schema.CategoryInterest},
		},
		updateErr: quotaErr,
	}
	svc, repo, db := newTestService(t, fake)
	ctx := context.Background()

	old := []schema.ExperienceEntry{{ID: "old-1", Timestamp: 1, Content: "旧经历", Category: schema.CategoryPersonal}}
	seedProfile(t, repo, old)
	profileBefore := rawRecord(t, db, schema.KeyProfile)

	res, err := svc.IngestRawInput(ctx, "考研失利，但开始学吉他了")
	if !errors.Is(err, quotaErr) {
		t.Fatalf("err=%v, want profile update failure", err)
	}
	if res == nil || len(res.Entries) != 2 {
		t.Fatalf("result=%+v, want the 2 new entries", res)
	}

	lib, _ := repo.GetLibrary(ctx)
	gotIDs := make([]string, len(lib))
	for i, e := range lib {
		gotIDs[i] = e.ID
	}
	if diff := cmp.Diff([]string{"new-1", "new-2", "old-1"}, gotIDs); diff != "" {
		t.Fatalf("library order mismatch (-want +got):\n%s", diff)
	}
	if lib[0].Timestamp != testNow.UnixMilli() {
		t.Fatalf("timestamp=%d", lib[0].Timestamp)
	}

	if after := rawRecord(t, db, schema.KeyProfile); after != profileBefore {
		t.Fatalf("profile record changed:\nbefore=%s\nafter=%s", profileBefore, after)
	}
}

func TestIngestUpdatesProfileAndReattachesAvatar(t *testing.T) {
	fake := &fakeCompanion{
		drafts:  []ai.EntryDraft{{Content: "跑完半马", Category: schema.CategoryAchievement, Tags: []string{" 跑步 ", "跑步", ""}}},
		updated: &schema.VirtualSelfProfile{Summary: "新档案", Mood: "兴奋", Affinity: 55},
		line:    "哈，太棒了！",
	}
	svc, repo, _ := newTestService(t, fake)
	ctx := context.Background()
	seedProfile(t, repo, nil)

	res, err := svc.IngestRawInput(ctx, "今天跑完了半马")
	if err != nil {
		t.Fatalf("IngestRawInput error: %v", err)
	}
	if res.Speech != "哈，太棒了！" {
		t.Fatalf("speech=%q", res.Speech)
	}
	if diff := cmp.Diff([]string{"跑步"}, res.Entries[0].Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	profile, _ := repo.GetProfile(ctx)
	if profile.Summary != "新档案" || profile.AvatarURL != "data:image/png;base64,OLD" || profile.OOTD != "白衬衫" {
		t.Fatalf("profile=%+v", profile)
	}
	if profile.Gender != schema.GenderFemale {
		t.Fatalf("gender=%s", profile.Gender)
	}
	if len(fake.lastLibrary) != 1 || fake.lastLibrary[0].ID != "new-1" {
		t.Fatalf("UpdateProfile should receive the merged library, got %+v", fake.lastLibrary)
	}
}

func TestIngestSpeechFailureFallsBack(t *testing.T) {
	fake := &fakeCompanion{
		drafts:  []ai.EntryDraft{{Content: "加班", Category: schema.CategoryCareer}},
		updated: &schema.VirtualSelfProfile{Summary: "s"},
		lineErr: errors.New("boom"),
	}
	svc, repo, _ := newTestService(t, fake)
	seedProfile(t, repo, nil)

	res, err := svc.IngestRawInput(context.Background(), "又加班了")
	if err != nil {
		t.Fatalf("IngestRawInput error: %v", err)
	}
	if res.Speech != fallbackSpeech {
		t.Fatalf("speech=%q, want fallback", res.Speech)
	}
}

func TestIngestRequiresProfile(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeCompanion{})
	if _, err := svc.IngestRawInput(context.Background(), "hi"); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("err=%v, want ErrNoProfile", err)
	}
	if _, err := svc.IngestRawInput(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
}

func TestBusyRejectsSameActionClass(t *testing.T) {
	fake := &fakeCompanion{
		drafts:  []ai.EntryDraft{{Content: "x", Category: schema.CategoryPersonal}},
		updated: &schema.VirtualSelfProfile{Summary: "s"},
		weekly:  &schema.WeeklySummary{Period: "本周"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc, repo, _ := newTestService(t, fake)
	seedProfile(t, repo, []schema.ExperienceEntry{{ID: "old-1", Content: "旧"}})

	done := make(chan error, 1)
	go func() {
		_, err := svc.IngestRawInput(context.Background(), "一段输入")
		done <- err
	}()
	<-fake.started

	if !svc.Busy(ActionLibrary) {
		t.Fatalf("library action should be busy")
	}
	if err := svc.DeleteEntry(context.Background(), "old-1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v, want ErrBusy", err)
	}
	// 不同类别的操作不受影响
	if _, err := svc.WeeklySummary(context.Background()); errors.Is(err, ErrBusy) {
		t.Fatalf("checkin class should not be busy")
	}

	close(fake.release)
	if err := <-done; err != nil {
		t.Fatalf("IngestRawInput error: %v", err)
	}
	if svc.Busy(ActionLibrary) {
		t.Fatalf("library action should be released")
	}
}

func TestGeneratePlanKeepsConcurrentIngest(t *testing.T) {
	fake := &fakeCompanion{
		drafts: []ai.EntryDraft{
			{Content: "晨跑五公里", Category: schema.CategoryAchievement},
			{Content: "读完一本书", Category: schema.CategoryJoy},
		},
		updated: &schema.VirtualSelfProfile{Summary: "新档案"},
		plan: &schema.GrowthPlan{
			SuggestedTasks: []schema.SuggestedTask{{Title: "每天写日记", Frequency: schema.FrequencyDaily}},
		},
		planStarted: make(chan struct{}),
		planRelease: make(chan struct{}),
	}
	svc, repo, _ := newTestService(t, fake)
	ctx := context.Background()
	seedProfile(t, repo, []schema.ExperienceEntry{
		{ID: "old-1", Content: "a"}, {ID: "old-2", Content: "b"}, {ID: "old-3", Content: "c"},
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.GeneratePlan(ctx)
		done <- err
	}()
	<-fake.planStarted

	if _, err := svc.IngestRawInput(ctx, "今天"); err != nil {
		t.Fatalf("IngestRawInput error: %v", err)
	}
	close(fake.planRelease)
	if err := <-done; err != nil {
		t.Fatalf("GeneratePlan error: %v", err)
	}

	lib, _ := repo.GetLibrary(ctx)
	if len(lib) != 5 {
		t.Fatalf("library has %d entries, want 5", len(lib))
	}
	profile, _ := repo.GetProfile(ctx)
	if profile.Summary != "新档案" || profile.AvatarURL != "data:image/png;base64,OLD" {
		t.Fatalf("profile=%+v", profile)
	}
	tasks, _ := repo.GetTasks(ctx)
	if len(tasks) != 1 || tasks[0].Title != "每天写日记" {
		t.Fatalf("tasks=%+v", tasks)
	}
}

func TestAnswerGuidedQuestion(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{})
	ctx := context.Background()

	entry, err := svc.AnswerGuidedQuestion(ctx, "q2", "  和朋友露营  ")
	if err != nil {
		t.Fatalf("AnswerGuidedQuestion error: %v", err)
	}
	if entry.Content != "和朋友露营" || entry.Category != schema.CategoryJoy {
		t.Fatalf("entry=%+v", entry)
	}
	if diff := cmp.Diff([]string{"qa"}, entry.Tags); diff != "" {
		t.Fatalf("tags mismatch: %s", diff)
	}
	lib, _ := repo.GetLibrary(ctx)
	if len(lib) != 1 || lib[0].ID != entry.ID {
		t.Fatalf("library=%+v", lib)
	}
	if _, err := svc.AnswerGuidedQuestion(ctx, "q9", "x"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err=%v, want ErrUnknownQuestion", err)
	}
}

func TestDeleteEntry(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{})
	ctx := context.Background()
	lib := []schema.ExperienceEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if err := repo.SaveLibrary(ctx, lib); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.DeleteEntry(ctx, "b"); err != nil {
		t.Fatalf("DeleteEntry error: %v", err)
	}
	got, _ := repo.GetLibrary(ctx)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("library=%+v", got)
	}
	if err := svc.DeleteEntry(ctx, "zzz"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err=%v, want ErrEntryNotFound", err)
	}
}

func TestMilestones(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{})
	ctx := context.Background()

	var lib []schema.ExperienceEntry
	for i := 0; i < 40; i++ {
		cat := schema.CategoryAchievement
		if i%2 == 1 {
			cat = schema.CategoryJoy
		}
		if i%5 == 0 {
			cat = schema.CategoryCareer
		}
		lib = append(lib, schema.ExperienceEntry{ID: fmt.Sprintf("e%d", i), Category: cat})
	}
	if err := repo.SaveLibrary(ctx, lib); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc.cfg.MilestoneLimit = 5

	got, err := svc.Milestones(ctx)
	if err != nil {
		t.Fatalf("Milestones error: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("milestones=%d, want 5", len(got))
	}
	for _, e := range got {
		if e.Category != schema.CategoryAchievement && e.Category != schema.CategoryCareer {
			t.Fatalf("unexpected category %s", e.Category)
		}
	}
}

func TestRefreshAvatarFailureKeepsPrevious(t *testing.T) {
	fake := &fakeCompanion{avatarErr: errors.New("no image")}
	svc, repo, _ := newTestService(t, fake)
	seedProfile(t, repo, nil)

	if _, err := svc.RefreshAvatar(context.Background(), "黑色卫衣"); err == nil {
		t.Fatalf("expected error")
	}
	profile, _ := repo.GetProfile(context.Background())
	if profile.AvatarURL != "data:image/png;base64,OLD" || profile.OOTD != "白衬衫" {
		t.Fatalf("profile=%+v, want untouched", profile)
	}

	fake.avatarErr = nil
	fake.avatar = "data:image/png;base64,NEW"
	updated, err := svc.RefreshAvatar(context.Background(), "")
	if err != nil {
		t.Fatalf("RefreshAvatar error: %v", err)
	}
	if updated.AvatarURL != "data:image/png;base64,NEW" || updated.OOTD != "白衬衫" {
		t.Fatalf("profile=%+v", updated)
	}
}

// ===== 成长计划与任务 =====

func samplePlan() *schema.GrowthPlan {
	return &schema.GrowthPlan{
		CoreValuesAnalysis: "重视成长",
		ActionGuide:        "从小处开始",
		SuggestedTasks: []schema.SuggestedTask{
			{Title: "晨跑", Frequency: schema.FrequencyDaily},
			{Title: "周复盘", Frequency: schema.FrequencyWeekly},
			{Title: "报名摄影课", Frequency: "SOMETIMES"},
		},
	}
}

func TestGeneratePlanRequiresEntries(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{plan: samplePlan()})
	seedProfile(t, repo, []schema.ExperienceEntry{{ID: "a"}, {ID: "b"}})

	if _, _, err := svc.GeneratePlan(context.Background()); !errors.Is(err, ErrNotEnoughEntries) {
		t.Fatalf("err=%v, want ErrNotEnoughEntries", err)
	}
}

func TestGeneratePlanTwiceProducesDisjointTaskIDs(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{plan: samplePlan()})
	svc.newID = uuid.NewString
	ctx := context.Background()
	seedProfile(t, repo, []schema.ExperienceEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}})

	_, first, err := svc.GeneratePlan(ctx)
	if err != nil {
		t.Fatalf("GeneratePlan error: %v", err)
	}
	if _, err := svc.ToggleTask(ctx, first[0].ID); err != nil {
		t.Fatalf("ToggleTask error: %v", err)
	}
	plan, second, err := svc.GeneratePlan(ctx)
	if err != nil {
		t.Fatalf("GeneratePlan error: %v", err)
	}

	seen := map[string]bool{}
	for _, task := range first {
		seen[task.ID] = true
	}
	for _, task := range second {
		if seen[task.ID] {
			t.Fatalf("task id %s reused", task.ID)
		}
		if len(task.CompletedDates) != 0 || task.CreatedAt != testNow.UnixMilli() {
			t.Fatalf("task=%+v, want fresh", task)
		}
	}
	if second[2].Frequency != schema.FrequencyOnce {
		t.Fatalf("frequency=%s, want ONCE", second[2].Frequency)
	}

	stored, _ := repo.GetTasks(ctx)
	if diff := cmp.Diff(second, stored); diff != "" {
		t.Fatalf("stored tasks mismatch (-want +got):\n%s", diff)
	}
	storedPlan, _ := repo.GetPlan(ctx)
	if storedPlan == nil || storedPlan.ActionGuide != plan.ActionGuide {
		t.Fatalf("plan=%+v", storedPlan)
	}
}

func TestGeneratePlanFailureKeepsTasks(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{planErr: quotaErr})
	ctx := context.Background()
	seedProfile(t, repo, []schema.ExperienceEntry{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	existing := []schema.ActionTask{{ID: "t1", Title: "晨跑", Frequency: schema.FrequencyDaily, CompletedDates: []string{"2026-05-19"}}}
	if err := repo.SaveTasks(ctx, existing); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, _, err := svc.GeneratePlan(ctx); !errors.Is(err, quotaErr) {
		t.Fatalf("err=%v", err)
	}
	got, _ := repo.GetTasks(ctx)
	if diff := cmp.Diff(existing, got); diff != "" {
		t.Fatalf("tasks changed (-want +got):\n%s", diff)
	}
}

func TestToggleTaskPersists(t *testing.T) {
	svc, repo, _ := newTestService(t, &fakeCompanion{})
	ctx := context.Background()
	tasks := []schema.ActionTask{
		{ID: "t1", Title: "晨跑", Frequency: schema.FrequencyDaily, CompletedDates: []string{"2026-05-18"}, LastCompleted: "2026-05-18"},
		{ID: "t2", Title: "读书", Frequency: schema.FrequencyDaily, CompletedDates: []string{}},
	}
	if err := repo.SaveTasks(ctx, tasks); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := svc.ToggleTask(ctx, "t1")
	if err != nil {
		t.Fatalf("ToggleTask error: %v", err)
	}
	if diff := cmp.Diff([]string{"2026-05-18", "2026-05-20"}, got.CompletedDates); diff != "" {
		t.Fatalf("dates mismatch (-want +got):\n%s", diff)
	}
	stored, _ := repo.GetTasks(ctx)
	if stored[0].LastCompleted != "2026-05-20" || len(stored[1].CompletedDates) != 0 {
		t.Fatalf("stored=%+v", stored)
	}
	if _, err := svc.ToggleTask(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err=%v, want ErrTaskNotFound", err)
	}
}

// ===== 反馈与回顾 =====

func TestCheckInSpeechFailureIsNonFatal(t *testing.T) {
	fake := &fakeCompanion{feedback: "继续保持！", audioErr: errors.New("tts down")}
	svc, repo, _ := newTestService(t, fake)
	seedProfile(t, repo, nil)

	res, err := svc.CheckIn(context.Background(), true)
	if err != nil {
		t.Fatalf("CheckIn error: %v", err)
	}
	if res.Feedback != "继续保持！" || res.Audio != nil || res.AudioErr == nil {
		t.Fatalf("result=%+v", res)
	}
}

func TestWeeklySummaryAttachesTimestamp(t *testing.T) {
	fake := &fakeCompanion{weekly: &schema.WeeklySummary{Period: "本周", Summary: "稳步前进"}}
	svc, repo, _ := newTestService(t, fake)
	ctx := context.Background()

	if _, err := svc.WeeklySummary(ctx); !errors.Is(err, ErrNotEnoughEntries) {
		t.Fatalf("err=%v, want ErrNotEnoughEntries", err)
	}
	if err := repo.SaveLibrary(ctx, []schema.ExperienceEntry{{ID: "a"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := svc.WeeklySummary(ctx)
	if err != nil {
		t.Fatalf("WeeklySummary error: %v", err)
	}
	if got.GeneratedAt != testNow.UnixMilli() {
		t.Fatalf("generatedAt=%d", got.GeneratedAt)
	}
}

func TestNoticePublishedOnFatalFailure(t *testing.T) {
	fake := &fakeCompanion{initErr: quotaErr}
	svc, _, _ := newTestService(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := svc.hub.Subscribe(ctx, 8)

	_, _ = svc.Onboard(context.Background(), schema.OnboardingData{Gender: schema.GenderMale})

	for {
		select {
		case evt := <-events:
			if evt.Type != eventbus.TypeNotice {
				continue
			}
			if evt.Data["message"] != quotaErr.Message {
				t.Fatalf("notice=%+v", evt.Data)
			}
			return
		case <-time.After(time.Second):
			t.Fatalf("notice not published")
		}
	}
}
