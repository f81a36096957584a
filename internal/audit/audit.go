// Package audit records the immutable per-task history trail.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/kanbanx/kanbanx/internal/models"
	"gorm.io/gorm"
)

// HistoryLimit caps how many entries a task-detail read returns.
const HistoryLimit = 10

// Notifier receives board events fanned out from successful audit
// appends. Implementations are best-effort; errors are logged here.
type Notifier interface {
	Notify(event Event) error
}

// Event is a board notification derived from an audit entry.
type Event struct {
	Action    string // create, update, move, comment, assign, release
	TaskID    string
	TaskTitle string
	ActorType string
	ActorID   string
	Note      string
}

// Entry holds the fields for one audit append. Before and After are
// marshaled to JSON; nil snapshots produce empty columns.
type Entry struct {
	TaskID    string
	ActorType string
	ActorID   string
	Action    string
	Before    interface{}
	After     interface{}
	Note      string
}

// Recorder appends audit rows and fans out notifications.
type Recorder struct {
	notifier Notifier
}

// NewRecorder creates a Recorder. notifier may be nil.
func NewRecorder(notifier Notifier) *Recorder {
	return &Recorder{notifier: notifier}
}

// Append writes one immutable audit row with a server-assigned
// timestamp. It takes the caller's handle so it can participate in the
// caller's transaction. Audit is write-on-success only: failed
// operations must not call Append.
func (r *Recorder) Append(tx *gorm.DB, e Entry) error {
	before, err := marshalState(e.Before)
	if err != nil {
		return fmt.Errorf("audit: marshal before state: %w", err)
	}
	after, err := marshalState(e.After)
	if err != nil {
		return fmt.Errorf("audit: marshal after state: %w", err)
	}

	row := models.AuditEntry{
		ActorType:   e.ActorType,
		ActorID:     e.ActorID,
		Action:      e.Action,
		BeforeState: before,
		AfterState:  after,
		Note:        e.Note,
		Timestamp:   time.Now(),
	}
	if e.TaskID != "" {
		row.TaskID = &e.TaskID
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Announce fans out a board event after the owning transaction has
// committed. Best-effort: errors are logged, never returned.
func (r *Recorder) Announce(event Event) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(event); err != nil {
		log.Printf("audit: notify %s on task %s: %v", event.Action, event.TaskID, err)
	}
}

// History returns the most recent entries for a task, newest first,
// capped at limit (HistoryLimit when limit <= 0). Display only; history
// is never used to reconstruct state.
func History(db *gorm.DB, taskID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	var entries []models.AuditEntry
	if err := db.Where("task_id = ?", taskID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit: history for %s: %w", taskID, err)
	}
	return entries, nil
}

func marshalState(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
