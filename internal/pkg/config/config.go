package config

import (
	"errors"
	"fmt"
	"io/fs"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Companion CompanionConfig `mapstructure:"companion"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"` // 为空时只输出到 stderr
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// AIConfig AI 配置
type AIConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
	Retry  RetryConfig  `mapstructure:"retry"`
}

// GeminiConfig Gemini 配置
type GeminiConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	FlashModel        string  `mapstructure:"flash_model"`
	ProModel          string  `mapstructure:"pro_model"`
	ImageModel        string  `mapstructure:"image_model"`
	SpeechModel       string  `mapstructure:"speech_model"`
	EmbeddingModel    string  `mapstructure:"embedding_model"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // <= 0 表示不限速
	Burst             int     `mapstructure:"burst"`
	SpeechCacheSize   int     `mapstructure:"speech_cache_size"`
	RecentEntryLimit  int     `mapstructure:"recent_entry_limit"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	TransientDelay   time.Duration `mapstructure:"transient_delay"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	MaxAuthRefreshes int           `mapstructure:"max_auth_refreshes"`
}

// MemoryConfig 经历记忆（向量检索）配置
type MemoryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	StoragePath string `mapstructure:"storage_path"`
	TopK        int    `mapstructure:"top_k"`
}

// InboxConfig 收件箱配置
type InboxConfig struct {
	Dir        string   `mapstructure:"dir"`
	Extensions []string `mapstructure:"extensions"`
	DebounceMs int      `mapstructure:"debounce_ms"`
	MaxBytes   int64    `mapstructure:"max_bytes"`
}

// CompanionConfig 业务阈值
type CompanionConfig struct {
	MinPlanEntries    int `mapstructure:"min_plan_entries"`
	MinSummaryEntries int `mapstructure:"min_summary_entries"`
	MilestoneLimit    int `mapstructure:"milestone_limit"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "virtualself"))
		}
	}

	// 支持环境变量，例如 VSELF_AI_GEMINI_API_KEY
	v.SetEnvPrefix("VSELF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	baseDir := ""
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		baseDir = filepath.Dir(v.ConfigFileUsed())
		slog.Debug("加载配置文件", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.AI.Gemini.APIKey = expandEnv(cfg.AI.Gemini.APIKey)
	if cfg.AI.Gemini.APIKey == "" {
		cfg.AI.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	// 相对路径以配置文件所在目录为基准
	cfg.Storage.DBPath = resolvePath(baseDir, cfg.Storage.DBPath)
	cfg.App.LogPath = resolvePath(baseDir, cfg.App.LogPath)
	cfg.Memory.StoragePath = resolvePath(baseDir, cfg.Memory.StoragePath)
	cfg.Inbox.Dir = resolvePath(baseDir, cfg.Inbox.Dir)

	return &cfg, nil
}

// Default 返回全部默认值（用于生成配置文件）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "vself")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.db_path", "./data/vself.db")

	// AI
	v.SetDefault("ai.gemini.api_key", "")
	v.SetDefault("ai.gemini.flash_model", "gemini-3-flash-preview")
	v.SetDefault("ai.gemini.pro_model", "gemini-3-pro-preview")
	v.SetDefault("ai.gemini.image_model", "gemini-2.5-flash-image")
	v.SetDefault("ai.gemini.speech_model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("ai.gemini.requests_per_second", 2.0)
	v.SetDefault("ai.gemini.burst", 2)
	v.SetDefault("ai.gemini.speech_cache_size", 64)
	v.SetDefault("ai.gemini.recent_entry_limit", 10)

	v.SetDefault("ai.retry.max_attempts", 4)
	v.SetDefault("ai.retry.initial_backoff", "2s")
	v.SetDefault("ai.retry.transient_delay", "1s")
	v.SetDefault("ai.retry.attempt_timeout", "90s")
	v.SetDefault("ai.retry.max_auth_refreshes", 2)

	// Memory
	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.storage_path", "./data/memory")
	v.SetDefault("memory.top_k", 3)

	// Inbox
	v.SetDefault("inbox.dir", "./data/inbox")
	v.SetDefault("inbox.extensions", []string{".txt", ".md"})
	v.SetDefault("inbox.debounce_ms", 800)
	v.SetDefault("inbox.max_bytes", 64*1024)

	// Companion
	v.SetDefault("companion.min_plan_entries", 3)
	v.SetDefault("companion.min_summary_entries", 1)
	v.SetDefault("companion.milestone_limit", 30)
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径
func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// LoggerOptions 日志配置
type LoggerOptions struct {
	Level     string
	Path      string // 日志文件路径，为空时只输出到 stderr
	Component string
}

// ParseLevel 解析日志级别
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger 设置全局日志；返回的 Closer 负责关闭日志文件
func SetupLogger(opts LoggerOptions) (io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer
	var fileErr error
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			fileErr = fmt.Errorf("创建日志目录失败: %w", err)
		} else if f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err != nil {
			fileErr = fmt.Errorf("打开日志文件失败: %w", err)
		} else {
			w = io.MultiWriter(os.Stderr, f)
			closer = f
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})
	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	slog.SetDefault(logger)
	if fileErr != nil {
		slog.Warn("日志文件不可用，仅输出到 stderr", "error", fileErr)
	}
	return closer, fileErr
}
