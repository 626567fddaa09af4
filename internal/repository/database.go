package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"github.com/yuqie6/VirtualSelf/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database 状态库连接及其迁移结果
type Database struct {
	DB             *gorm.DB
	SafeMode       bool // 迁移失败：可读不可写
	SchemaVersion  int
	MigrationError string
}

// 连接级参数写在 DSN 里，连接池中的每个连接都会生效
var statePragmas = []string{
	"journal_mode(WAL)", // 收件箱监控与前台命令并发访问
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// migration 一个 schema 版本的升级步骤，在事务中执行
type migration struct {
	version int
	name    string
	apply   func(tx *gorm.DB) error
}

var migrations = []migration{
	{version: 1, name: "state_records", apply: func(tx *gorm.DB) error {
		return tx.AutoMigrate(&schema.StateRecord{})
	}},
}

var latestSchemaVersion = migrations[len(migrations)-1].version

func stateDSN(dbPath string) string {
	q := url.Values{}
	for _, p := range statePragmas {
		q.Add("_pragma", p)
	}
	return dbPath + "?" + q.Encode()
}

// NewDatabase 打开状态库（不存在则创建）并升级到最新 schema
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(stateDSN(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	d := &Database{DB: db}
	if err := d.migrate(); err != nil {
		d.SafeMode = true
		d.MigrationError = err.Error()
		slog.Error("数据库迁移失败，进入安全模式", "error", err)
	}

	slog.Info("状态库已打开", "path", dbPath, "schema_version", d.SchemaVersion, "safe_mode", d.SafeMode)
	return d, nil
}

// migrate 依次执行高于当前版本的步骤，每步成功后立即记录版本
func (d *Database) migrate() error {
	if err := d.DB.AutoMigrate(&schema.SchemaMeta{}); err != nil {
		return fmt.Errorf("创建 schema_meta 失败: %w", err)
	}

	meta := schema.SchemaMeta{ID: 1}
	if err := d.DB.First(&meta, 1).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("读取 schema_meta 失败: %w", err)
		}
		if err := d.DB.Create(&meta).Error; err != nil {
			return fmt.Errorf("初始化 schema_meta 失败: %w", err)
		}
	}
	d.SchemaVersion = meta.SchemaVersion

	if meta.SchemaVersion > latestSchemaVersion {
		return fmt.Errorf("数据库 schema_version=%d 高于当前程序支持的版本=%d", meta.SchemaVersion, latestSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= d.SchemaVersion {
			continue
		}
		err := d.DB.Transaction(func(tx *gorm.DB) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			return tx.Model(&schema.SchemaMeta{}).Where("id = ?", 1).Update("schema_version", m.version).Error
		})
		if err != nil {
			return fmt.Errorf("迁移到 v%d (%s) 失败: %w", m.version, m.name, err)
		}
		d.SchemaVersion = m.version
		slog.Debug("数据库迁移完成", "version", m.version, "step", m.name)
	}
	return nil
}

// Close 关闭连接
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
