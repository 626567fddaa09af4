package dto

// 注意：本包用于承载“对外契约”的 DTO（与前端/HTTP API 保持稳定）。
// 领域类型见 internal/schema；业务逻辑收敛在 internal/service。

import "github.com/yuqie6/VirtualSelf/internal/schema"

type ErrorDTO struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"` // quota | format | auth | unknown | busy | ...
}

type StatusDTO struct {
	App     AppStatusDTO     `json:"app"`
	Storage StorageStatusDTO `json:"storage"`
	AI      AIStatusDTO      `json:"ai"`
	Busy    map[string]bool  `json:"busy"`
	Counts  CountsDTO        `json:"counts"`
}

type AppStatusDTO struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	StartedAt string `json:"started_at"`
	UptimeSec int64  `json:"uptime_sec"`
	SafeMode  bool   `json:"safe_mode"`
}

type StorageStatusDTO struct {
	DBPath         string `json:"db_path"`
	SchemaVersion  int    `json:"schema_version"`
	SafeModeReason string `json:"safe_mode_reason,omitempty"`
}

type AIStatusDTO struct {
	Configured    bool `json:"configured"`
	MemoryEnabled bool `json:"memory_enabled"`
	MemoryEntries int  `json:"memory_entries"`
}

type CountsDTO struct {
	Entries    int  `json:"entries"`
	Tasks      int  `json:"tasks"`
	HasProfile bool `json:"has_profile"`
	HasPlan    bool `json:"has_plan"`
}

type IngestRequestDTO struct {
	Text string `json:"text"`
}

type IngestResponseDTO struct {
	Entries      []schema.ExperienceEntry   `json:"entries"`
	Profile      *schema.VirtualSelfProfile `json:"profile,omitempty"`
	Speech       string                     `json:"speech,omitempty"`
	ProfileError string                     `json:"profile_error,omitempty"` // 经历已保存但档案未更新
}

type OnboardResponseDTO struct {
	Profile     schema.VirtualSelfProfile `json:"profile"`
	Entries     []schema.ExperienceEntry  `json:"entries"`
	AvatarError string                    `json:"avatar_error,omitempty"`
}

type AnswerRequestDTO struct {
	Answer string `json:"answer"`
}

type AvatarRequestDTO struct {
	OOTD string `json:"ootd"`
}

type PlanResponseDTO struct {
	Plan  *schema.GrowthPlan  `json:"plan"`
	Tasks []schema.ActionTask `json:"tasks,omitempty"`
}

type TaskGroupsDTO struct {
	Today  string              `json:"today"`
	Daily  []schema.ActionTask `json:"daily"`
	Weekly []schema.ActionTask `json:"weekly"`
	Once   []schema.ActionTask `json:"once"`
}

type CheckInRequestDTO struct {
	Speak bool `json:"speak"`
}

type CheckInResponseDTO struct {
	Feedback   string `json:"feedback"`
	AudioWAV   string `json:"audio_wav,omitempty"` // base64
	AudioError string `json:"audio_error,omitempty"`
}

type SpeechRequestDTO struct {
	Text string `json:"text"`
}

type TalkRequestDTO struct {
	Message string `json:"message"`
}

type TalkResponseDTO struct {
	Reply string `json:"reply"`
}
