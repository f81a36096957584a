// Package models defines the GORM models for the KanbanX store.
package models

import (
	"encoding/json"
	"time"
)

// Task statuses, in board column order.
const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusAIPrep     = "ai_prep"
	StatusInProgress = "in_progress"
	StatusVerify     = "verify"
	StatusDone       = "done"
)

// Statuses lists the six valid task statuses in board order.
var Statuses = []string{
	StatusBacklog,
	StatusTodo,
	StatusAIPrep,
	StatusInProgress,
	StatusVerify,
	StatusDone,
}

// Service classes. Priority rank for available-task ordering:
// MustDoNow=1, FixedDate=2, Linear=3, Intangible=4.
const (
	ClassLinear     = "Linear"
	ClassIntangible = "Intangible"
	ClassMustDoNow  = "MustDoNow"
	ClassFixedDate  = "FixedDate"
)

// ServiceClasses lists the valid service classes.
var ServiceClasses = []string{ClassLinear, ClassIntangible, ClassMustDoNow, ClassFixedDate}

// Owner types for tasks and audit actors.
const (
	ActorHuman = "Human"
	ActorAgent = "Agent"
)

// ValidStatus reports whether s is one of the six task statuses.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ValidServiceClass reports whether s is a known service class.
func ValidServiceClass(s string) bool {
	for _, v := range ServiceClasses {
		if s == v {
			return true
		}
	}
	return false
}

// Task is the core work item on the board.
type Task struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	Status       string    `gorm:"size:16;default:backlog;index" json:"status"`
	OwnerType    *string   `gorm:"size:8" json:"owner_type,omitempty"`
	OwnerID      *string   `gorm:"size:36" json:"owner_id,omitempty"`
	ServiceClass string    `gorm:"size:16;default:Linear" json:"service_class"`
	AIEligible   bool      `gorm:"default:false" json:"ai_eligible"`
	Tags         string    `gorm:"type:text" json:"-"`
	Links        string    `gorm:"type:text" json:"-"`
	ParentTaskID *string   `gorm:"size:36;index" json:"parent_task_id,omitempty"`
	CreatedBy    string    `gorm:"size:64" json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Parent   *Task  `gorm:"foreignKey:ParentTaskID" json:"-"`
	Children []Task `gorm:"foreignKey:ParentTaskID" json:"-"`
}

// TagList decodes the JSON-encoded tags column. A missing or malformed
// column yields an empty list.
func (t *Task) TagList() []string {
	return decodeStrings(t.Tags)
}

// LinkList decodes the JSON-encoded links column.
func (t *Task) LinkList() []string {
	return decodeStrings(t.Links)
}

// SetTags JSON-encodes tags into the column.
func (t *Task) SetTags(tags []string) error {
	s, err := encodeStrings(tags)
	if err != nil {
		return err
	}
	t.Tags = s
	return nil
}

// SetLinks JSON-encodes links into the column.
func (t *Task) SetLinks(links []string) error {
	s, err := encodeStrings(links)
	if err != nil {
		return err
	}
	t.Links = s
	return nil
}

func decodeStrings(col string) []string {
	if col == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(col), &out); err != nil {
		return []string{}
	}
	return out
}

func encodeStrings(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
