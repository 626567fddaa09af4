package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuqie6/VirtualSelf/internal/pkg/config"
)

// configCmd 配置管理
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "配置管理",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init [路径]",
		Short:       "生成默认配置文件",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipCoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("配置文件已存在: %s（使用 --force 覆盖）", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.Default()
			if isInteractive() {
				cfg.AI.Gemini.APIKey = ask("Gemini API Key（留空则使用 ${GEMINI_API_KEY}）", "")
			}
			if cfg.AI.Gemini.APIKey == "" {
				cfg.AI.Gemini.APIKey = "${GEMINI_API_KEY}"
			}
			if err := config.WriteFile(path, cfg); err != nil {
				return err
			}
			fmt.Printf("✅ 已生成配置文件 %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有配置")

	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:         "show",
		Short:       "显示生效的配置（隐藏密钥）",
		Annotations: map[string]string{skipCoreAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			key := "（未配置）"
			if cfg.AI.Gemini.APIKey != "" {
				key = "（已配置）"
			}
			fmt.Printf("数据库:   %s\n", cfg.Storage.DBPath)
			fmt.Printf("API Key:  %s\n", key)
			fmt.Printf("模型:     %s / %s\n", cfg.AI.Gemini.FlashModel, cfg.AI.Gemini.ProModel)
			fmt.Printf("记忆:     %v (%s)\n", cfg.Memory.Enabled, cfg.Memory.StoragePath)
			fmt.Printf("收件箱:   %s\n", cfg.Inbox.Dir)
			return nil
		},
	})
	return cmd
}
