package bootstrap

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuqie6/VirtualSelf/internal/ai"
	"github.com/yuqie6/VirtualSelf/internal/eventbus"
	"github.com/yuqie6/VirtualSelf/internal/pkg/config"
	"github.com/yuqie6/VirtualSelf/internal/repository"
	"github.com/yuqie6/VirtualSelf/internal/service"
)

// Core 持有命令行各子命令共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	LogCloser io.Closer
	Hub       *eventbus.Hub

	Repos struct {
		State *repository.StateRepository
	}

	Clients struct {
		Credentials *ai.CredentialStore
		Retry       *ai.RetryPolicy
		Gateway     *ai.Gateway
	}

	Services struct {
		Companion *service.CompanionService
		Memory    *service.MemoryService // 未启用时为 nil
	}
}

// Options 构建参数
type Options struct {
	ConfigPath string
	Refresher  ai.CredentialRefresher // 可为 nil：密钥失效时直接失败
	LogLevel   string                 // 覆盖配置文件中的日志级别
}

// NewCore 构建核心依赖（不启动收件箱监控）
func NewCore(opts Options) (*Core, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	level := cfg.App.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logCloser, _ := config.SetupLogger(config.LoggerOptions{
		Level:     level,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		if logCloser != nil {
			_ = logCloser.Close()
		}
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, LogCloser: logCloser, Hub: eventbus.NewHub()}

	// Repos
	c.Repos.State = repository.NewStateRepository(db.DB)
	if db.SafeMode {
		// 安全模式：数据库版本比程序新，只允许读取
		c.Repos.State.SetReadOnly(true)
		slog.Warn("数据库处于安全模式，所有写操作将被拒绝", "reason", db.MigrationError)
	}

	// Clients
	c.Clients.Credentials = ai.NewCredentialStore(cfg.AI.Gemini.APIKey)
	c.Clients.Retry = ai.NewRetryPolicy(&ai.RetryConfig{
		MaxAttempts:      cfg.AI.Retry.MaxAttempts,
		InitialBackoff:   cfg.AI.Retry.InitialBackoff,
		TransientDelay:   cfg.AI.Retry.TransientDelay,
		AttemptTimeout:   cfg.AI.Retry.AttemptTimeout,
		MaxAuthRefreshes: cfg.AI.Retry.MaxAuthRefreshes,
	}, opts.Refresher)
	c.Clients.Gateway = ai.NewGateway(ai.NewGeminiDialer(c.Clients.Credentials), c.Clients.Retry, &ai.GatewayConfig{
		FlashModel:        cfg.AI.Gemini.FlashModel,
		ProModel:          cfg.AI.Gemini.ProModel,
		ImageModel:        cfg.AI.Gemini.ImageModel,
		SpeechModel:       cfg.AI.Gemini.SpeechModel,
		EmbeddingModel:    cfg.AI.Gemini.EmbeddingModel,
		RequestsPerSecond: cfg.AI.Gemini.RequestsPerSecond,
		Burst:             cfg.AI.Gemini.Burst,
		SpeechCacheSize:   cfg.AI.Gemini.SpeechCacheSize,
		RecentEntryLimit:  cfg.AI.Gemini.RecentEntryLimit,
	})

	// Memory（可选）
	var memory service.MemoryIndex
	if cfg.Memory.Enabled {
		mem, err := service.NewMemoryService(c.Clients.Gateway, &service.MemoryConfig{StoragePath: cfg.Memory.StoragePath})
		if err != nil {
			slog.Warn("经历记忆不可用，已跳过", "error", err)
		} else {
			c.Services.Memory = mem
			memory = mem
		}
	}

	// Services
	c.Services.Companion = service.NewCompanionService(c.Clients.Gateway, c.Repos.State, memory, c.Hub, &service.CompanionConfig{
		MinPlanEntries:    cfg.Companion.MinPlanEntries,
		MinSummaryEntries: cfg.Companion.MinSummaryEntries,
		MilestoneLimit:    cfg.Companion.MilestoneLimit,
		RecallTopK:        cfg.Memory.TopK,
	})

	return c, nil
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}

// RequireAIConfigured 检查 AI 是否已配置
func (c *Core) RequireAIConfigured() error {
	if c.Clients.Credentials == nil || !c.Clients.Credentials.IsConfigured() {
		return fmt.Errorf("Gemini API 未配置，请设置 ai.gemini.api_key 或环境变量 GEMINI_API_KEY")
	}
	return nil
}

// RequireWritable 安全模式下拒绝写操作
func (c *Core) RequireWritable() error {
	if c.DB != nil && c.DB.SafeMode {
		return fmt.Errorf("%w: %s", repository.ErrReadOnly, c.DB.MigrationError)
	}
	return nil
}
