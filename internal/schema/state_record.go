package schema

import "time"

// 持久化记录键
const (
	KeyLibrary = "vsc_library"
	KeyProfile = "vsc_profile"
	KeyTasks   = "vsc_tasks"
	KeyPlan    = "vsc_plan"
)

// StateRecord 键值记录，每个键整体替换写入
type StateRecord struct {
	Key       string    `gorm:"column:state_key;primaryKey;size:64"`
	Value     string    `gorm:"type:text"` // JSON
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (StateRecord) TableName() string {
	return "state_records"
}
