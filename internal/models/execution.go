package models

import "time"

// ExecutionStatus 执行状态机：pending → running → {completed, failed, cancelled, timeout}
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled, ExecutionTimeout:
		return true
	}
	return false
}

// StepStatus 步骤状态：pending → running → {completed, failed, skipped}
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// ExecutionStep 一次动作尝试的记录。按尝试顺序排列；某步失败且
// continue_on_error=false 时后续动作不再产生步骤。
type ExecutionStep struct {
	StepID      string                 `json:"step_id"`
	Type        string                 `json:"type"` // condition, action
	Name        string                 `json:"name"`
	Status      StepStatus             `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Duration    int64                  `json:"duration"` // milliseconds
	Input       map[string]interface{} `json:"input,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ExecutionContext 执行上下文（由触发方提供）
type ExecutionContext struct {
	UserID     string                 `json:"user_id,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityID   string                 `json:"entity_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Execution 规则的一次运行。只弱引用 RuleID；trigger_data 与 context
// 落库后即为不可变快照。
type Execution struct {
	ID          string                 `gorm:"primaryKey;size:36" json:"id"`
	RuleID      string                 `gorm:"index;size:36" json:"rule_id"`
	TenantID    string                 `gorm:"index;size:64" json:"tenant_id"`
	TriggeredBy string                 `gorm:"size:128" json:"triggered_by"`
	TriggeredAt time.Time              `gorm:"index" json:"triggered_at"`
	Status      ExecutionStatus        `gorm:"index;size:16" json:"status"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Duration    int64                  `json:"duration"` // milliseconds, set with completed_at
	TriggerData map[string]interface{} `gorm:"serializer:json;type:text" json:"trigger_data,omitempty"`
	Context     ExecutionContext       `gorm:"serializer:json;type:text" json:"context"`
	Steps       []ExecutionStep        `gorm:"serializer:json;type:text" json:"steps"`
	Error       string                 `gorm:"type:text" json:"error,omitempty"`
	Result      map[string]interface{} `gorm:"serializer:json;type:text" json:"result,omitempty"`
}

// Assignment 分配动作落库的结果记录
type Assignment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TenantID   string    `gorm:"index;size:64" json:"tenant_id"`
	EntityID   string    `gorm:"index;size:64" json:"entity_id"`
	AssignedTo string    `gorm:"size:64" json:"assigned_to"`
	AssignedBy string    `gorm:"size:128" json:"assigned_by"` // rule id that made the assignment
	CreatedAt  time.Time `json:"created_at"`
}

// WorkflowRun 工作流动作启动的外部流程记录
type WorkflowRun struct {
	ID         string                 `gorm:"primaryKey;size:36" json:"id"`
	WorkflowID string                 `gorm:"index;size:64" json:"workflow_id"`
	TenantID   string                 `gorm:"index;size:64" json:"tenant_id"`
	Input      map[string]interface{} `gorm:"serializer:json;type:text" json:"input,omitempty"`
	Status     string                 `gorm:"size:16" json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
}
