// Package task provides board and task lifecycle operations for human
// actors. Agent-side claim/release/transition lives in the lease package.
package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

// Actor identifies who performs an operation, for audit attribution.
type Actor struct {
	Type string // Human or Agent
	ID   string
}

// CreateOpts holds parameters for creating a new task.
type CreateOpts struct {
	Title        string
	Description  string
	ServiceClass string
	AIEligible   bool
	Tags         []string
	Links        []string
	ParentTaskID string
	Actor        Actor
	CreatedBy    string // defaults to Actor.ID
}

// UpdateOpts holds optional field updates; nil fields are untouched.
type UpdateOpts struct {
	Title        *string
	Description  *string
	Status       *string
	ServiceClass *string
	AIEligible   *bool
	Tags         []string
	Links        []string
	Actor        Actor
}

// View is a Task with its JSON columns decoded for responses.
type View struct {
	models.Task
	Tags  []string `json:"tags"`
	Links []string `json:"links"`
}

// NewView decodes a task's tag and link columns.
func NewView(t models.Task) View {
	return View{Task: t, Tags: t.TagList(), Links: t.LinkList()}
}

// Views maps NewView over a slice.
func Views(tasks []models.Task) []View {
	out := make([]View, len(tasks))
	for i, t := range tasks {
		out[i] = NewView(t)
	}
	return out
}

// Board groups every task by status, newest first within a column.
type Board struct {
	Backlog    []View `json:"backlog"`
	Todo       []View `json:"todo"`
	AIPrep     []View `json:"ai_prep"`
	InProgress []View `json:"in_progress"`
	Verify     []View `json:"verify"`
	Done       []View `json:"done"`
}

// GetBoard returns the full board state grouped by status.
func GetBoard(db *gorm.DB) (*Board, error) {
	var tasks []models.Task
	if err := db.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, apperr.Internal(err, "list tasks")
	}

	board := Board{
		Backlog:    []View{},
		Todo:       []View{},
		AIPrep:     []View{},
		InProgress: []View{},
		Verify:     []View{},
		Done:       []View{},
	}
	for _, t := range tasks {
		v := NewView(t)
		switch t.Status {
		case models.StatusBacklog:
			board.Backlog = append(board.Backlog, v)
		case models.StatusTodo:
			board.Todo = append(board.Todo, v)
		case models.StatusAIPrep:
			board.AIPrep = append(board.AIPrep, v)
		case models.StatusInProgress:
			board.InProgress = append(board.InProgress, v)
		case models.StatusVerify:
			board.Verify = append(board.Verify, v)
		case models.StatusDone:
			board.Done = append(board.Done, v)
		}
	}
	return &board, nil
}

// Create creates a new task in backlog and appends a create audit entry.
func Create(db *gorm.DB, rec *audit.Recorder, opts CreateOpts) (*models.Task, error) {
	if opts.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if opts.ServiceClass == "" {
		opts.ServiceClass = models.ClassLinear
	}
	if !models.ValidServiceClass(opts.ServiceClass) {
		return nil, apperr.Validation("invalid service class %q", opts.ServiceClass)
	}
	if opts.ParentTaskID != "" {
		var parent models.Task
		if err := db.Where("id = ?", opts.ParentTaskID).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("parent task not found: %s", opts.ParentTaskID)
			}
			return nil, apperr.Internal(err, "check parent %s", opts.ParentTaskID)
		}
	}
	if opts.CreatedBy == "" {
		opts.CreatedBy = opts.Actor.ID
	}

	t := models.Task{
		ID:           uuid.NewString(),
		Title:        opts.Title,
		Description:  opts.Description,
		Status:       models.StatusBacklog,
		ServiceClass: opts.ServiceClass,
		AIEligible:   opts.AIEligible,
		CreatedBy:    opts.CreatedBy,
	}
	if err := t.SetTags(opts.Tags); err != nil {
		return nil, apperr.Internal(err, "encode tags")
	}
	if err := t.SetLinks(opts.Links); err != nil {
		return nil, apperr.Internal(err, "encode links")
	}
	if opts.ParentTaskID != "" {
		t.ParentTaskID = &opts.ParentTaskID
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&t).Error; err != nil {
			return apperr.Internal(err, "create task")
		}
		return rec.Append(tx, audit.Entry{
			TaskID:    t.ID,
			ActorType: opts.Actor.Type,
			ActorID:   opts.Actor.ID,
			Action:    models.ActionCreate,
			After: map[string]interface{}{
				"title":         t.Title,
				"service_class": t.ServiceClass,
				"ai_eligible":   t.AIEligible,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionCreate,
		TaskID:    t.ID,
		TaskTitle: t.Title,
		ActorType: opts.Actor.Type,
		ActorID:   opts.Actor.ID,
	})
	return &t, nil
}

// Update applies partial field updates and appends an update audit
// entry with before/after snapshots.
func Update(db *gorm.DB, rec *audit.Recorder, taskID string, opts UpdateOpts) (*models.Task, error) {
	var current models.Task
	if err := db.Where("id = ?", taskID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("task not found: %s", taskID)
		}
		return nil, apperr.Internal(err, "get task %s", taskID)
	}

	updates := map[string]interface{}{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return nil, apperr.Validation("title cannot be empty")
		}
		updates["title"] = *opts.Title
	}
	if opts.Description != nil {
		updates["description"] = *opts.Description
	}
	if opts.Status != nil {
		if !models.ValidStatus(*opts.Status) {
			return nil, apperr.Validation("invalid status %q", *opts.Status)
		}
		updates["status"] = *opts.Status
	}
	if opts.ServiceClass != nil {
		if !models.ValidServiceClass(*opts.ServiceClass) {
			return nil, apperr.Validation("invalid service class %q", *opts.ServiceClass)
		}
		updates["service_class"] = *opts.ServiceClass
	}
	if opts.AIEligible != nil {
		updates["ai_eligible"] = *opts.AIEligible
	}
	if opts.Tags != nil {
		encoded, err := jsonColumn(opts.Tags)
		if err != nil {
			return nil, apperr.Internal(err, "encode tags")
		}
		updates["tags"] = encoded
	}
	if opts.Links != nil {
		encoded, err := jsonColumn(opts.Links)
		if err != nil {
			return nil, apperr.Internal(err, "encode links")
		}
		updates["links"] = encoded
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("no updates provided")
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
			return apperr.Internal(err, "update task %s", taskID)
		}
		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: opts.Actor.Type,
			ActorID:   opts.Actor.ID,
			Action:    models.ActionUpdate,
			Before:    NewView(current),
			After:     updates,
		})
	})
	if err != nil {
		return nil, err
	}

	var updated models.Task
	if err := db.Where("id = ?", taskID).First(&updated).Error; err != nil {
		return nil, apperr.Internal(err, "reload task %s", taskID)
	}

	rec.Announce(audit.Event{
		Action:    models.ActionUpdate,
		TaskID:    updated.ID,
		TaskTitle: updated.Title,
		ActorType: opts.Actor.Type,
		ActorID:   opts.Actor.ID,
	})
	return &updated, nil
}

// Move changes a task's status (board drag-and-drop) and appends a move
// audit entry. Any human can move any task to any of the six columns.
func Move(db *gorm.DB, rec *audit.Recorder, taskID, status string, actor Actor) error {
	if !models.ValidStatus(status) {
		return apperr.Validation("invalid status %q", status)
	}

	var current models.Task
	if err := db.Where("id = ?", taskID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("task not found: %s", taskID)
		}
		return apperr.Internal(err, "get task %s", taskID)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Task{}).Where("id = ?", taskID).
			Update("status", status).Error; err != nil {
			return apperr.Internal(err, "move task %s", taskID)
		}
		return rec.Append(tx, audit.Entry{
			TaskID:    taskID,
			ActorType: actor.Type,
			ActorID:   actor.ID,
			Action:    models.ActionMove,
			Before:    map[string]string{"status": current.Status},
			After:     map[string]string{"status": status},
		})
	})
	if err != nil {
		return err
	}

	rec.Announce(audit.Event{
		Action:    models.ActionMove,
		TaskID:    taskID,
		TaskTitle: current.Title,
		ActorType: actor.Type,
		ActorID:   actor.ID,
		Note:      current.Status + " -> " + status,
	})
	return nil
}

// Get retrieves a task with its recent history.
func Get(db *gorm.DB, taskID string) (*View, []models.AuditEntry, error) {
	var t models.Task
	if err := db.Where("id = ?", taskID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("task not found: %s", taskID)
		}
		return nil, nil, apperr.Internal(err, "get task %s", taskID)
	}
	history, err := audit.History(db, taskID, audit.HistoryLimit)
	if err != nil {
		return nil, nil, apperr.Internal(err, "history for %s", taskID)
	}
	v := NewView(t)
	return &v, history, nil
}

// FindByTitle resolves a title fragment to a task by best-effort
// case-insensitive substring match against title and description,
// oldest first, taking the first hit.
func FindByTitle(db *gorm.DB, fragment string) (*models.Task, error) {
	needle := "%" + strings.ToLower(fragment) + "%"
	var t models.Task
	err := db.Where("lower(title) LIKE ? OR lower(description) LIKE ?", needle, needle).
		Order("created_at ASC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no task matching %q", fragment)
		}
		return nil, apperr.Internal(err, "search for %q", fragment)
	}
	return &t, nil
}

func jsonColumn(values []string) (string, error) {
	var t models.Task
	if err := t.SetTags(values); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return t.Tags, nil
}
