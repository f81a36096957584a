package models

import (
	"encoding/json"
	"time"
)

// Agent roles. The role determines which task statuses an agent may
// query and act on.
const (
	AgentRoleTriage = "triage"
	AgentRolePrep   = "prep"
	AgentRoleReview = "review"
	AgentRoleMerge  = "merge"
)

// AgentRoles lists the valid agent roles.
var AgentRoles = []string{AgentRoleTriage, AgentRolePrep, AgentRoleReview, AgentRoleMerge}

// Agent capabilities. Capabilities gate individual actions independent
// of role.
const (
	CapQueryTasks    = "query_tasks"
	CapClaimTask     = "claim_task"
	CapReleaseTask   = "release_task"
	CapMove          = "move"
	CapComment       = "comment"
	CapCreateSubtask = "create_subtask"
)

// AllCapabilities lists every capability an agent may hold.
var AllCapabilities = []string{
	CapQueryTasks,
	CapClaimTask,
	CapReleaseTask,
	CapMove,
	CapComment,
	CapCreateSubtask,
}

// ValidAgentRole reports whether r is a known agent role.
func ValidAgentRole(r string) bool {
	for _, v := range AgentRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Agent is an API-key-bearing automation actor.
type Agent struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Name         string     `gorm:"size:128;not null" json:"name"`
	Role         string     `gorm:"size:8;not null" json:"role"`
	TokenHash    string     `gorm:"size:128" json:"-"`
	Capabilities string     `gorm:"type:text" json:"-"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastActive   *time.Time `json:"last_active,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// CapabilityList decodes the JSON-encoded capabilities column.
func (a *Agent) CapabilityList() []string {
	if a.Capabilities == "" {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal([]byte(a.Capabilities), &out); err != nil {
		return []string{}
	}
	return out
}

// SetCapabilities JSON-encodes caps into the column.
func (a *Agent) SetCapabilities(caps []string) error {
	if caps == nil {
		caps = []string{}
	}
	data, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	a.Capabilities = string(data)
	return nil
}

// HasCapability reports whether the agent holds the named capability.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.CapabilityList() {
		if c == cap {
			return true
		}
	}
	return false
}
