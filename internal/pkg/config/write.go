package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath 用户配置目录下的 virtualself/config.yaml
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("获取用户配置目录失败: %w", err)
	}
	return filepath.Join(dir, "virtualself", "config.yaml"), nil
}

// WriteFile 把配置写成 yaml（API 密钥原样写入，文件权限 0600）
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
		},
		"storage": map[string]any{
			"db_path": cfg.Storage.DBPath,
		},
		"ai": map[string]any{
			"gemini": map[string]any{
				"api_key":             cfg.AI.Gemini.APIKey,
				"flash_model":         cfg.AI.Gemini.FlashModel,
				"pro_model":           cfg.AI.Gemini.ProModel,
				"image_model":         cfg.AI.Gemini.ImageModel,
				"speech_model":        cfg.AI.Gemini.SpeechModel,
				"embedding_model":     cfg.AI.Gemini.EmbeddingModel,
				"requests_per_second": cfg.AI.Gemini.RequestsPerSecond,
				"burst":               cfg.AI.Gemini.Burst,
				"speech_cache_size":   cfg.AI.Gemini.SpeechCacheSize,
				"recent_entry_limit":  cfg.AI.Gemini.RecentEntryLimit,
			},
			"retry": map[string]any{
				"max_attempts":       cfg.AI.Retry.MaxAttempts,
				"initial_backoff":    cfg.AI.Retry.InitialBackoff.String(),
				"transient_delay":    cfg.AI.Retry.TransientDelay.String(),
				"attempt_timeout":    cfg.AI.Retry.AttemptTimeout.String(),
				"max_auth_refreshes": cfg.AI.Retry.MaxAuthRefreshes,
			},
		},
		"memory": map[string]any{
			"enabled":      cfg.Memory.Enabled,
			"storage_path": cfg.Memory.StoragePath,
			"top_k":        cfg.Memory.TopK,
		},
		"inbox": map[string]any{
			"dir":         cfg.Inbox.Dir,
			"extensions":  cfg.Inbox.Extensions,
			"debounce_ms": cfg.Inbox.DebounceMs,
			"max_bytes":   cfg.Inbox.MaxBytes,
		},
		"companion": map[string]any{
			"min_plan_entries":    cfg.Companion.MinPlanEntries,
			"min_summary_entries": cfg.Companion.MinSummaryEntries,
			"milestone_limit":     cfg.Companion.MilestoneLimit,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
