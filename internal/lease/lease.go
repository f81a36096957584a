// Package lease implements the task lease/ownership manager: at most
// one active claim per task, ownership transfer on claim and release,
// and lease-gated status transitions. Every decision is derived fresh
// from the store; nothing is cached across requests.
package lease

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDuration is the lease length when the caller gives none.
const DefaultDuration = 30 * time.Minute

// AvailablePageSize caps ListAvailable results.
const AvailablePageSize = 50

// roleStatuses maps an agent role to the task statuses it may act on.
// Unknown roles fall back to the prep set.
var roleStatuses = map[string][]string{
	models.AgentRoleTriage: {models.StatusBacklog},
	models.AgentRolePrep:   {models.StatusTodo, models.StatusAIPrep},
	models.AgentRoleReview: {models.StatusVerify},
	models.AgentRoleMerge:  {models.StatusVerify},
}

// StatusesForRole returns the statuses an agent role may query and act on.
func StatusesForRole(role string) []string {
	if statuses, ok := roleStatuses[role]; ok {
		return statuses
	}
	return roleStatuses[models.AgentRolePrep]
}

// activeLeaseScope filters to leases that are unreleased and unexpired.
func activeLeaseScope(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where("released_at IS NULL AND expires_at > ?", now)
}

// Active returns the task's currently active lease, or NotFound. The
// lease table is the source of truth: the owner columns on the task are
// never trusted alone.
func Active(db *gorm.DB, taskID string) (*models.AgentLease, error) {
	var l models.AgentLease
	err := activeLeaseScope(db.Where("task_id = ?", taskID), time.Now()).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no active lease for task %s", taskID)
		}
		return nil, apperr.Internal(err, "lease lookup for %s", taskID)
	}
	return &l, nil
}

// Claim grants the agent a time-bounded exclusive lease on the task.
// The lease insert, owner update, and audit append commit as one
// transaction so concurrent claims cannot observe partial state.
func Claim(db *gorm.DB, rec *audit.Recorder, agent *models.Agent, taskID string, duration time.Duration) (*models.AgentLease, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}

	now := time.Now()
	l := models.AgentLease{
		ID:        ulid.Make().String(),
		AgentID:   agent.ID,
		TaskID:    taskID,
		ClaimedAt: now,
		ExpiresAt: now.Add(duration),
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var t models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", taskID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("task not found: %s", taskID)
			}
			return apperr.Internal(err, "get task %s", taskID)
		}
		if !t.AIEligible {
			return apperr.Validation("task %s is not AI eligible", taskID)
		}

		var existing int64
		if err := activeLeaseScope(tx.Model(&models.AgentLease{}).Where("task_id = ?", taskID), now).
			Count(&existing).Error; err != nil {
			return apperr.Internal(err, "check existing lease for %s", taskID)
		}
		if existing > 0 {
			return apperr.Conflict("task %s is already claimed", taskID)
		}

		if err := tx.Create(&l).Error; err != nil {
			return apperr.Internal(err, "create lease for %s", taskID)
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", taskID).Updates(map[string]interface{}{
			"owner_type": models.ActorAgent,
			"owner_id":   agent.ID,
		}).Error; err != nil {
			return apperr.Internal(err, "assign task %s", taskID)
		}

		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    models.ActionAssign,
			After:     map[string]string{"owner_type": models.ActorAgent, "owner_id": agent.ID},
			Note:      "Task claimed by agent " + agent.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionAssign,
		TaskID:    taskID,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Note:      "claimed until " + l.ExpiresAt.Format(time.RFC3339),
	})
	return &l, nil
}

// Release closes the agent's active lease on the task and clears the
// owner columns. Releasing a lease the agent does not hold is NotFound;
// another agent's lease is never silently released.
func Release(db *gorm.DB, rec *audit.Recorder, agent *models.Agent, taskID, reason string) error {
	if reason == "" {
		reason = "Released by agent"
	}
	now := time.Now()

	err := db.Transaction(func(tx *gorm.DB) error {
		var l models.AgentLease
		err := activeLeaseScope(tx.Where("agent_id = ? AND task_id = ?", agent.ID, taskID), now).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&l).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("no active lease found for this task")
			}
			return apperr.Internal(err, "find lease for %s", taskID)
		}

		if err := tx.Model(&models.AgentLease{}).Where("id = ?", l.ID).
			Update("released_at", now).Error; err != nil {
			return apperr.Internal(err, "release lease %s", l.ID)
		}
		if err := tx.Model(&models.Task{}).Where("id = ?", taskID).Updates(map[string]interface{}{
			"owner_type": nil,
			"owner_id":   nil,
		}).Error; err != nil {
			return apperr.Internal(err, "clear owner on %s", taskID)
		}

		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    models.ActionAssign,
			Before:    map[string]string{"owner_type": models.ActorAgent, "owner_id": agent.ID},
			Note:      "Task released: " + reason,
		})
	})
	if err != nil {
		return err
	}

	// The audit row files releases under the assign trail; the
	// notification carries its own action.
	rec.Announce(audit.Event{
		Action:    "release",
		TaskID:    taskID,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Note:      "released: " + reason,
	})
	return nil
}

// TransitionStatus moves a task to a new status on behalf of an agent
// holding an active lease. Any active-lease holder may move a task to
// any of the six statuses; no adjacency graph is enforced.
func TransitionStatus(db *gorm.DB, rec *audit.Recorder, agent *models.Agent, taskID, newStatus, note string) error {
	if !models.ValidStatus(newStatus) {
		return apperr.Validation("invalid status %q", newStatus)
	}

	var before string
	err := db.Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := activeLeaseScope(tx.Model(&models.AgentLease{}).
			Where("agent_id = ? AND task_id = ?", agent.ID, taskID), time.Now()).
			Count(&held).Error; err != nil {
			return apperr.Internal(err, "check lease for %s", taskID)
		}
		if held == 0 {
			return apperr.Authorization("agent does not have an active lease on this task")
		}

		var t models.Task
		if err := tx.Where("id = ?", taskID).First(&t).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("task not found: %s", taskID)
			}
			return apperr.Internal(err, "get task %s", taskID)
		}
		before = t.Status

		if err := tx.Model(&models.Task{}).Where("id = ?", taskID).
			Update("status", newStatus).Error; err != nil {
			return apperr.Internal(err, "update status on %s", taskID)
		}

		if note == "" {
			note = "Status changed by " + agent.Name
		}
		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    models.ActionMove,
			Before:    map[string]string{"status": before},
			After:     map[string]string{"status": newStatus},
			Note:      note,
		})
	})
	if err != nil {
		return err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionMove,
		TaskID:    taskID,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Note:      before + " -> " + newStatus,
	})
	return nil
}

// ListAvailable returns AI-eligible, unleased tasks in statuses the
// role may act on, ordered by service-class priority then creation
// time, capped at AvailablePageSize. The ordering is a presentation
// convenience, not a scheduling guarantee.
func ListAvailable(db *gorm.DB, role string) ([]models.Task, error) {
	leased := activeLeaseScope(db.Model(&models.AgentLease{}).Select("task_id"), time.Now())

	var tasks []models.Task
	err := db.Where("ai_eligible = ? AND status IN ?", true, StatusesForRole(role)).
		Where("id NOT IN (?)", leased).
		Order("CASE service_class WHEN 'MustDoNow' THEN 1 WHEN 'FixedDate' THEN 2 WHEN 'Linear' THEN 3 ELSE 4 END, created_at ASC").
		Limit(AvailablePageSize).
		Find(&tasks).Error
	if err != nil {
		return nil, apperr.Internal(err, "list available tasks")
	}
	return tasks, nil
}

// Comment appends a comment audit entry on a task. It lives here with
// the other agent-side operations; no lease is required to comment.
func Comment(db *gorm.DB, rec *audit.Recorder, agent *models.Agent, taskID, comment string) error {
	if comment == "" {
		return apperr.Validation("comment is required")
	}

	var t models.Task
	if err := db.Where("id = ?", taskID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("task not found: %s", taskID)
		}
		return apperr.Internal(err, "get task %s", taskID)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    models.ActionComment,
			Note:      comment,
		})
	})
	if err != nil {
		return err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionComment,
		TaskID:    taskID,
		TaskTitle: t.Title,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Note:      comment,
	})
	return nil
}

// CreateSubtask creates an AI-eligible child task under a parent, in
// backlog, attributed to the agent.
func CreateSubtask(db *gorm.DB, rec *audit.Recorder, agent *models.Agent, parentID, title, description, serviceClass string) (*models.Task, error) {
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	if serviceClass == "" {
		serviceClass = models.ClassLinear
	}
	if !models.ValidServiceClass(serviceClass) {
		return nil, apperr.Validation("invalid service class %q", serviceClass)
	}

	var parent models.Task
	if err := db.Where("id = ?", parentID).First(&parent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("parent task not found: %s", parentID)
		}
		return nil, apperr.Internal(err, "get parent %s", parentID)
	}

	sub := models.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Status:       models.StatusBacklog,
		ServiceClass: serviceClass,
		AIEligible:   true,
		ParentTaskID: &parent.ID,
		CreatedBy:    "agent-" + agent.ID,
	}
	if err := sub.SetTags(nil); err != nil {
		return nil, apperr.Internal(err, "encode tags")
	}
	if err := sub.SetLinks(nil); err != nil {
		return nil, apperr.Internal(err, "encode links")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return apperr.Internal(err, "create subtask")
		}
		return rec.Append(tx, audit.Entry{
			TaskID:    sub.ID,
			ActorType: models.ActorAgent,
			ActorID:   agent.ID,
			Action:    models.ActionCreate,
			After:     map[string]string{"title": title, "parent_task_id": parent.ID},
			Note:      "Subtask created by " + agent.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionCreate,
		TaskID:    sub.ID,
		TaskTitle: title,
		ActorType: models.ActorAgent,
		ActorID:   agent.ID,
		Note:      "subtask of " + parent.ID,
	})
	return &sub, nil
}
