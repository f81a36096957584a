// Package chat turns free-text instructions into board actions: a
// two-tier intent classifier (language model with a rule-based
// fallback) and a dispatcher that maps each intent to exactly one
// store operation.
package chat

// IntentKind names one of the eight recognized intents.
type IntentKind string

const (
	KindQueryTasks    IntentKind = "query_tasks"
	KindClaimTask     IntentKind = "claim_task"
	KindReleaseTask   IntentKind = "release_task"
	KindUpdateStatus  IntentKind = "update_status"
	KindAddComment    IntentKind = "add_comment"
	KindGetTask       IntentKind = "get_task"
	KindCreateSubtask IntentKind = "create_subtask"
	KindGeneralQuery  IntentKind = "general_query"
)

// Intent is a classified instruction. Each implementation carries only
// the statically typed fields its action needs; there is no untyped
// parameter bag.
type Intent interface {
	Kind() IntentKind
}

// QueryTasks asks for the available-task listing.
type QueryTasks struct{}

// ClaimTask claims a task by id.
type ClaimTask struct {
	TaskID string
}

// ReleaseTask releases the caller's lease on a task.
type ReleaseTask struct {
	TaskID string
	Reason string
}

// UpdateStatus moves a task to a new status. Exactly one of TaskID and
// TaskTitle is set; a title is resolved to an id at dispatch time.
type UpdateStatus struct {
	TaskID    string
	TaskTitle string
	Status    string
}

// AddComment appends a comment to a task's history.
type AddComment struct {
	TaskID  string
	Comment string
}

// GetTask fetches a task with its recent history.
type GetTask struct {
	TaskID string
}

// CreateSubtask creates a child task under a parent.
type CreateSubtask struct {
	ParentID string
	Title    string
}

// GeneralQuery carries an utterance no rule or model could map.
type GeneralQuery struct {
	Message string
}

func (QueryTasks) Kind() IntentKind    { return KindQueryTasks }
func (ClaimTask) Kind() IntentKind     { return KindClaimTask }
func (ReleaseTask) Kind() IntentKind   { return KindReleaseTask }
func (UpdateStatus) Kind() IntentKind  { return KindUpdateStatus }
func (AddComment) Kind() IntentKind    { return KindAddComment }
func (GetTask) Kind() IntentKind       { return KindGetTask }
func (CreateSubtask) Kind() IntentKind { return KindCreateSubtask }
func (GeneralQuery) Kind() IntentKind  { return KindGeneralQuery }

// Classification is a classifier verdict.
type Classification struct {
	Intent     Intent
	Confidence float64
}
