package models

import "time"

// AgentLease is a time-bounded exclusive claim on a task. For a given
// task, at most one lease row may be simultaneously active (released_at
// null and expires_at in the future). Expiry is passive: an expired
// lease is treated as inactive without being mutated.
type AgentLease struct {
	ID         string     `gorm:"primaryKey;size:26" json:"id"`
	AgentID    string     `gorm:"size:36;index;not null" json:"agent_id"`
	TaskID     string     `gorm:"size:36;index;not null" json:"task_id"`
	ClaimedAt  time.Time  `json:"claimed_at"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`

	Agent Agent `gorm:"foreignKey:AgentID" json:"-"`
	Task  Task  `gorm:"foreignKey:TaskID" json:"-"`
}

// Active reports whether the lease is unreleased and unexpired at now.
func (l *AgentLease) Active(now time.Time) bool {
	return l.ReleasedAt == nil && l.ExpiresAt.After(now)
}
