package models

import "time"

// TriggerType 触发器类型
type TriggerType string

const (
	TriggerEvent     TriggerType = "event"
	TriggerSchedule  TriggerType = "schedule"
	TriggerWebhook   TriggerType = "webhook"
	TriggerCondition TriggerType = "condition"
	TriggerManual    TriggerType = "manual"
)

// EventTriggerConfig fires when a named domain event is published.
type EventTriggerConfig struct {
	EventType string `json:"event_type"`
}

// ScheduleTriggerConfig fires on a timer. Type is "interval" (expression like
// "5m", "2h", "1d") or "cron" (standard 5-field cron, evaluated in Timezone).
type ScheduleTriggerConfig struct {
	Type       string `json:"type"`
	Expression string `json:"expression"`
	Timezone   string `json:"timezone,omitempty"`
}

// WebhookTriggerConfig fires when an inbound call hits /hooks/:webhook_id.
type WebhookTriggerConfig struct {
	WebhookID string            `json:"webhook_id"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Secret    string            `json:"secret,omitempty"`
}

// ConditionTriggerConfig polls a condition set on an interval.
type ConditionTriggerConfig struct {
	Conditions   []Condition `json:"conditions"`
	PollInterval string      `json:"poll_interval"`
}

// Trigger 规则触发器。Type 决定哪个 config 字段被使用，其余为 nil。
type Trigger struct {
	ID        string                  `json:"id"`
	Type      TriggerType             `json:"type"`
	Enabled   bool                    `json:"enabled"`
	Event     *EventTriggerConfig     `json:"event,omitempty"`
	Schedule  *ScheduleTriggerConfig  `json:"schedule,omitempty"`
	Webhook   *WebhookTriggerConfig   `json:"webhook,omitempty"`
	Condition *ConditionTriggerConfig `json:"condition,omitempty"`
}

// ConditionOperator 条件运算符
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpContains    ConditionOperator = "contains"
	OpStartsWith  ConditionOperator = "starts_with"
	OpEndsWith    ConditionOperator = "ends_with"
	OpIn          ConditionOperator = "in"
	OpNotIn       ConditionOperator = "not_in"
	OpExists      ConditionOperator = "exists"
	OpNotExists   ConditionOperator = "not_exists"
)

// LogicalOperator joins a condition with the running result of its chain.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "and"
	LogicalOr  LogicalOperator = "or"
)

// Condition 单个条件。Field 为触发数据里的点分路径（如 "ticket.priority"）。
// 同一 Group 内的条件先按各自的 LogicalOperator 合并，组结果再与未分组结果 AND。
type Condition struct {
	Field           string            `json:"field"`
	Operator        ConditionOperator `json:"operator"`
	Value           interface{}       `json:"value,omitempty"`
	LogicalOperator LogicalOperator   `json:"logical_operator,omitempty"`
	Group           string            `json:"group,omitempty"`
}

// ActionType 动作类型
type ActionType string

const (
	ActionNotification  ActionType = "notification"
	ActionEmail         ActionType = "email"
	ActionWebhook       ActionType = "webhook"
	ActionDatabase      ActionType = "database"
	ActionFileOperation ActionType = "file_operation"
	ActionWorkflow      ActionType = "workflow"
	ActionAssignment    ActionType = "assignment"
	ActionCustom        ActionType = "custom"
)

// NotificationActionConfig fans out an in-app notification to each recipient.
type NotificationActionConfig struct {
	Recipients []string               `json:"recipients"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Channels   []string               `json:"channels,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// EmailActionConfig subject/body 支持 {{path}} 模板插值。
type EmailActionConfig struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// WebhookActionConfig performs an outbound HTTP call.
type WebhookActionConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	AuthToken string            `json:"auth_token,omitempty"`
}

// DatabaseActionConfig delegates a structured mutation/query to the DataStore.
type DatabaseActionConfig struct {
	Operation string                 `json:"operation"` // insert, update, delete, select
	Table     string                 `json:"table"`
	Values    map[string]interface{} `json:"values,omitempty"`
	Where     map[string]interface{} `json:"where,omitempty"`
}

// FileActionConfig delegates a file operation to the FileStore.
type FileActionConfig struct {
	Operation   string `json:"operation"` // move, copy, delete, rename
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

// WorkflowActionConfig starts an external workflow with merged data.
type WorkflowActionConfig struct {
	WorkflowID string                 `json:"workflow_id"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// AssignmentActionConfig assigns an entity to one or more assignees.
// EntityID supports {{path}} interpolation against the trigger data.
type AssignmentActionConfig struct {
	EntityID string   `json:"entity_id,omitempty"`
	AssignTo []string `json:"assign_to"`
}

// CustomActionConfig 自定义动作。执行委托给外部 handler，引擎不解释 Params。
type CustomActionConfig struct {
	Handler string                 `json:"handler"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Action 规则动作。禁用的动作整体跳过，不产生执行步骤。
type Action struct {
	ID              string      `json:"id"`
	Type            ActionType  `json:"type"`
	Name            string      `json:"name"`
	Order           int         `json:"order"`
	Enabled         bool        `json:"enabled"`
	ContinueOnError bool        `json:"continue_on_error"`

	Notification *NotificationActionConfig `json:"notification,omitempty"`
	Email        *EmailActionConfig        `json:"email,omitempty"`
	Webhook      *WebhookActionConfig      `json:"webhook,omitempty"`
	Database     *DatabaseActionConfig     `json:"database,omitempty"`
	File         *FileActionConfig         `json:"file,omitempty"`
	Workflow     *WorkflowActionConfig     `json:"workflow,omitempty"`
	Assignment   *AssignmentActionConfig   `json:"assignment,omitempty"`
	Custom       *CustomActionConfig       `json:"custom,omitempty"`
}

// RuleSettings 执行策略
type RuleSettings struct {
	MaxExecutionsPerDay int  `json:"max_executions_per_day,omitempty"`
	CooldownSeconds     int  `json:"cooldown_seconds,omitempty"`
	RetryAttempts       int  `json:"retry_attempts,omitempty"`
	TimeoutSeconds      int  `json:"timeout_seconds,omitempty"`
	RunInParallel       bool `json:"run_in_parallel,omitempty"`
}

// RuleMetadata 运行统计，每次执行后由引擎滚动更新。
type RuleMetadata struct {
	Category         string   `json:"category,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	ExecutionCount   int64    `json:"execution_count"`
	SuccessRate      float64  `json:"success_rate"`
	AvgExecutionTime float64  `json:"avg_execution_time"` // milliseconds
}

// Rule 租户级自动化规则定义
type Rule struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	TenantID    string       `gorm:"index;size:64" json:"tenant_id"`
	Name        string       `gorm:"not null" json:"name"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	Priority    int          `gorm:"default:0" json:"priority"`
	IsActive    bool         `gorm:"default:true" json:"is_active"`
	Triggers    []Trigger    `gorm:"serializer:json;type:text" json:"triggers"`
	Conditions  []Condition  `gorm:"serializer:json;type:text" json:"conditions"`
	Actions     []Action     `gorm:"serializer:json;type:text" json:"actions"`
	Settings    RuleSettings `gorm:"serializer:json;type:text" json:"settings"`
	Metadata    RuleMetadata `gorm:"serializer:json;type:text" json:"metadata"`
	CreatedBy   string       `gorm:"size:64" json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EnabledTriggers returns triggers that may fire. A rule with none can never run.
func (r *Rule) EnabledTriggers() []Trigger {
	out := make([]Trigger, 0, len(r.Triggers))
	for _, t := range r.Triggers {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out
}
