package service

import (
	"context"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/repository"
	"github.com/yuqie6/VirtualSelf/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

// Companion AI 网关能力
type Companion interface {
	InitializeProfile(ctx context.Context, data schema.OnboardingData) (*ai.InitialProfile, error)
	GenerateAvatar(ctx context.Context, ootd string, gender schema.Gender) (string, error)
	GenerateSpeech(ctx context.Context, text string, gender schema.Gender) ([]byte, error)
	UpdateProfile(ctx context.Context, library []schema.ExperienceEntry, gender schema.Gender) (*schema.VirtualSelfProfile, error)
	GetCompanionSpeech(ctx context.Context, situation string, profile *schema.VirtualSelfProfile) (string, error)
	ProcessRawInput(ctx context.Context, input string) ([]ai.EntryDraft, error)
	GenerateGrowthPlan(ctx context.Context, profile *schema.VirtualSelfProfile, library []schema.ExperienceEntry) (*schema.GrowthPlan, error)
	GetCheckInFeedback(ctx context.Context, tasks []schema.ActionTask, profile *schema.VirtualSelfProfile) (string, error)
	GenerateWeeklySummary(ctx context.Context, library []schema.ExperienceEntry) (*schema.WeeklySummary, error)
}

type StateStore interface {
	GetLibrary(ctx context.Context) ([]schema.ExperienceEntry, error)
	GetProfile(ctx context.Context) (*schema.VirtualSelfProfile, error)
	GetTasks(ctx context.Context) ([]schema.ActionTask, error)
	GetPlan(ctx context.Context) (*schema.GrowthPlan, error)
	SaveSnapshot(ctx context.Context, snap repository.Snapshot) error
}

// Embedder 文本向量化能力
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// MemoryIndex 经历记忆索引（可选）
type MemoryIndex interface {
	IndexEntries(ctx context.Context, entries []schema.ExperienceEntry) error
	Remove(ctx context.Context, ids ...string) error
	Recall(ctx context.Context, query string, topK int) ([]MemoryHit, error)
}
