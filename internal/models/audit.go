package models

import "time"

// Audit actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionMove    = "move"
	ActionComment = "comment"
	ActionAssign  = "assign"
)

// AuditEntry is an immutable record of one action taken against a task.
// Rows are append-only: never updated, never deleted. Before/after
// snapshots are opaque JSON payloads.
type AuditEntry struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID      *string   `gorm:"size:36;index" json:"task_id,omitempty"`
	ActorType   string    `gorm:"size:8;not null" json:"actor_type"`
	ActorID     string    `gorm:"size:36;not null" json:"actor_id"`
	Action      string    `gorm:"size:16;not null" json:"action"`
	BeforeState string    `gorm:"type:text" json:"before_state,omitempty"`
	AfterState  string    `gorm:"type:text" json:"after_state,omitempty"`
	Note        string    `gorm:"type:text" json:"note,omitempty"`
	Timestamp   time.Time `gorm:"index" json:"timestamp"`
}
