package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yuqie6/VirtualSelf/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrReadOnly 数据库处于安全模式时拒绝写入
var ErrReadOnly = errors.New("状态库处于只读安全模式")

// Snapshot 一次整体写入的记录集合，nil 字段保持不变
type Snapshot struct {
	Library *[]schema.ExperienceEntry
	Profile *schema.VirtualSelfProfile
	Tasks   *[]schema.ActionTask
	Plan    *schema.GrowthPlan
}

// StateRepository 键值状态仓储：经历库、档案、任务、计划四条记录，整条替换写入
type StateRepository struct {
	db       *gorm.DB
	readOnly bool
}

// NewStateRepository 创建仓储
func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// SetReadOnly 切换只读（迁移失败时由 bootstrap 打开）
func (r *StateRepository) SetReadOnly(readOnly bool) {
	r.readOnly = readOnly
}

// GetLibrary 读取经历库，不存在时返回空切片
func (r *StateRepository) GetLibrary(ctx context.Context) ([]schema.ExperienceEntry, error) {
	entries := []schema.ExperienceEntry{}
	if _, err := r.get(ctx, schema.KeyLibrary, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveLibrary 替换经历库
func (r *StateRepository) SaveLibrary(ctx context.Context, entries []schema.ExperienceEntry) error {
	return r.SaveSnapshot(ctx, Snapshot{Library: &entries})
}

// GetProfile 读取档案，不存在时返回 nil
func (r *StateRepository) GetProfile(ctx context.Context) (*schema.VirtualSelfProfile, error) {
	var profile schema.VirtualSelfProfile
	found, err := r.get(ctx, schema.KeyProfile, &profile)
	if err != nil || !found {
		return nil, err
	}
	return &profile, nil
}

// SaveProfile 替换档案
func (r *StateRepository) SaveProfile(ctx context.Context, profile *schema.VirtualSelfProfile) error {
	if profile == nil {
		return fmt.Errorf("profile 不能为空")
	}
	return r.SaveSnapshot(ctx, Snapshot{Profile: profile})
}

// GetTasks 读取任务列表，不存在时返回空切片
func (r *StateRepository) GetTasks(ctx context.Context) ([]schema.ActionTask, error) {
	tasks := []schema.ActionTask{}
	if _, err := r.get(ctx, schema.KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveTasks 替换任务列表
func (r *StateRepository) SaveTasks(ctx context.Context, tasks []schema.ActionTask) error {
	return r.SaveSnapshot(ctx, Snapshot{Tasks: &tasks})
}

// GetPlan 读取成长计划，不存在时返回 nil
func (r *StateRepository) GetPlan(ctx context.Context) (*schema.GrowthPlan, error) {
	var plan schema.GrowthPlan
	found, err := r.get(ctx, schema.KeyPlan, &plan)
	if err != nil || !found {
		return nil, err
	}
	return &plan, nil
}

// SavePlan 替换成长计划
func (r *StateRepository) SavePlan(ctx context.Context, plan *schema.GrowthPlan) error {
	if plan == nil {
		return fmt.Errorf("plan 不能为空")
	}
	return r.SaveSnapshot(ctx, Snapshot{Plan: plan})
}

// SaveSnapshot 在一个事务内写入多条记录
func (r *StateRepository) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if r.readOnly {
		return ErrReadOnly
	}

	var records []schema.StateRecord
	add := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("序列化 %s 失败: %w", key, err)
		}
		records = append(records, schema.StateRecord{Key: key, Value: string(b)})
		return nil
	}

	if snap.Library != nil {
		lib := *snap.Library
		if lib == nil {
			lib = []schema.ExperienceEntry{}
		}
		if err := add(schema.KeyLibrary, lib); err != nil {
			return err
		}
	}
	if snap.Profile != nil {
		if err := add(schema.KeyProfile, snap.Profile); err != nil {
			return err
		}
	}
	if snap.Tasks != nil {
		tasks := *snap.Tasks
		if tasks == nil {
			tasks = []schema.ActionTask{}
		}
		if err := add(schema.KeyTasks, tasks); err != nil {
			return err
		}
	}
	if snap.Plan != nil {
		if err := add(schema.KeyPlan, snap.Plan); err != nil {
			return err
		}
	}
	if len(records) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "state_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&records[i]).Error; err != nil {
				return fmt.Errorf("写入 %s 失败: %w", records[i].Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("保存状态失败: %w", err)
	}
	return nil
}

// get 读取并反序列化一条记录
func (r *StateRepository) get(ctx context.Context, key string, out any) (bool, error) {
	var rec schema.StateRecord
	err := r.db.WithContext(ctx).Where("state_key = ?", key).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("查询 %s 失败: %w", key, err)
	}
	if rec.Value == "" || rec.Value == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(rec.Value), out); err != nil {
		return false, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return true, nil
}
