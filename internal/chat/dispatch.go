package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kanbanx/kanbanx/internal/apperr"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/lease"
	"github.com/kanbanx/kanbanx/internal/llm"
	"github.com/kanbanx/kanbanx/internal/models"
	"github.com/kanbanx/kanbanx/internal/task"
	"gorm.io/gorm"
)

// Action records one dispatched operation for the chat transcript.
type Action struct {
	Type   string      `json:"type"` // query, claim, release, update, comment, get, subtask, none
	Intent IntentKind  `json:"intent"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Message is one chat reply, rendered for the UI.
type Message struct {
	Role      string    `json:"role"` // always "agent"
	Content   string    `json:"content"`
	Actions   []Action  `json:"actions"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher maps a classified intent to exactly one store operation
// and renders a human-readable summary of the outcome. Each dispatch is
// independent and stateless between turns; no multi-step plan is ever
// constructed.
type Dispatcher struct {
	DB       *gorm.DB
	Recorder *audit.Recorder
	LLM      *llm.Client // nil disables model-rendered replies
}

// helpText is the reply for utterances nothing could map.
const helpText = "I didn't understand that. Try:\n" +
	"• 'show available tasks'\n" +
	"• 'claim task: <id>'\n" +
	"• 'move task: <id> to done'\n" +
	"• 'comment on task: <id> \"your note\"'"

// Dispatch executes the classified intent on behalf of agent and
// renders the reply. Operation errors are surfaced verbatim in the
// rendered text, never swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, agent *models.Agent, cls Classification, userMessage string, history []llm.Message) Message {
	action := d.execute(agent, cls.Intent)
	content := d.render(ctx, cls.Intent, action, userMessage, history)
	return Message{
		Role:      "agent",
		Content:   content,
		Actions:   []Action{action},
		Timestamp: time.Now(),
	}
}

// execute runs the single store operation for the intent, checking the
// agent's capability for each gated action.
func (d *Dispatcher) execute(agent *models.Agent, intent Intent) Action {
	fail := func(kind IntentKind, typ string, err error) Action {
		return Action{Type: typ, Intent: kind, Error: err.Error()}
	}

	switch in := intent.(type) {
	case QueryTasks:
		if err := requireCap(agent, models.CapQueryTasks); err != nil {
			return fail(KindQueryTasks, "query", err)
		}
		tasks, err := lease.ListAvailable(d.DB, agent.Role)
		if err != nil {
			return fail(KindQueryTasks, "query", err)
		}
		return Action{Type: "query", Intent: KindQueryTasks, Result: task.Views(tasks)}

	case ClaimTask:
		if err := requireCap(agent, models.CapClaimTask); err != nil {
			return fail(KindClaimTask, "claim", err)
		}
		l, err := lease.Claim(d.DB, d.Recorder, agent, in.TaskID, lease.DefaultDuration)
		if err != nil {
			return fail(KindClaimTask, "claim", err)
		}
		return Action{Type: "claim", Intent: KindClaimTask, Result: l}

	case ReleaseTask:
		if err := requireCap(agent, models.CapReleaseTask); err != nil {
			return fail(KindReleaseTask, "release", err)
		}
		if err := lease.Release(d.DB, d.Recorder, agent, in.TaskID, in.Reason); err != nil {
			return fail(KindReleaseTask, "release", err)
		}
		return Action{Type: "release", Intent: KindReleaseTask, Result: "released"}

	case UpdateStatus:
		if err := requireCap(agent, models.CapMove); err != nil {
			return fail(KindUpdateStatus, "update", err)
		}
		taskID := in.TaskID
		if taskID == "" {
			resolved, err := task.FindByTitle(d.DB, in.TaskTitle)
			if err != nil {
				if apperr.IsKind(err, apperr.KindNotFound) {
					err = apperr.NotFound("no task found matching %q; try 'show available tasks' or use the task id", in.TaskTitle)
				}
				return fail(KindUpdateStatus, "update", err)
			}
			taskID = resolved.ID
		}
		if err := lease.TransitionStatus(d.DB, d.Recorder, agent, taskID, in.Status, ""); err != nil {
			return fail(KindUpdateStatus, "update", err)
		}
		return Action{Type: "update", Intent: KindUpdateStatus, Result: map[string]string{"task_id": taskID, "status": in.Status}}

	case AddComment:
		if err := requireCap(agent, models.CapComment); err != nil {
			return fail(KindAddComment, "comment", err)
		}
		if err := lease.Comment(d.DB, d.Recorder, agent, in.TaskID, in.Comment); err != nil {
			return fail(KindAddComment, "comment", err)
		}
		return Action{Type: "comment", Intent: KindAddComment, Result: "comment added"}

	case GetTask:
		if err := requireCap(agent, models.CapQueryTasks); err != nil {
			return fail(KindGetTask, "get", err)
		}
		view, history, err := task.Get(d.DB, in.TaskID)
		if err != nil {
			return fail(KindGetTask, "get", err)
		}
		return Action{Type: "get", Intent: KindGetTask, Result: map[string]interface{}{"task": view, "history": history}}

	case CreateSubtask:
		if err := requireCap(agent, models.CapCreateSubtask); err != nil {
			return fail(KindCreateSubtask, "subtask", err)
		}
		sub, err := lease.CreateSubtask(d.DB, d.Recorder, agent, in.ParentID, in.Title, "", models.ClassLinear)
		if err != nil {
			return fail(KindCreateSubtask, "subtask", err)
		}
		return Action{Type: "subtask", Intent: KindCreateSubtask, Result: map[string]string{"subtask_id": sub.ID}}

	case GeneralQuery:
		return Action{Type: "none", Intent: KindGeneralQuery}

	default:
		return Action{Type: "none", Intent: "unknown", Error: "unrecognized intent"}
	}
}

// render produces the reply text: model-generated when a backend is
// configured and reachable, templated otherwise.
func (d *Dispatcher) render(ctx context.Context, intent Intent, action Action, userMessage string, history []llm.Message) string {
	if d.LLM != nil {
		if content, err := d.LLM.Summarize(ctx, userMessage, action, history); err == nil {
			return content
		}
		// Backend failure falls through to the templates.
	}
	return renderTemplate(intent, action)
}

// renderTemplate is the fixed per-intent reply, substituting the task
// id truncated to 8 characters.
func renderTemplate(intent Intent, action Action) string {
	if action.Error != "" {
		return "❌ Error: " + action.Error
	}

	switch in := intent.(type) {
	case QueryTasks:
		views, _ := action.Result.([]task.View)
		if len(views) == 0 {
			return "I found no available tasks for me to work on right now."
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "I found %d available task(s):\n\n", len(views))
		shown := views
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, v := range shown {
			fmt.Fprintf(&sb, "• **%s** (%s...) - %s\n", v.Title, shortID(v.ID), v.Status)
		}
		if len(views) > 5 {
			fmt.Fprintf(&sb, "\n...and %d more", len(views)-5)
		}
		return sb.String()

	case ClaimTask:
		return fmt.Sprintf("✅ Successfully claimed task %s... for %d minutes.", shortID(in.TaskID), int(lease.DefaultDuration.Minutes()))

	case ReleaseTask:
		return fmt.Sprintf("✅ Released task %s...", shortID(in.TaskID))

	case UpdateStatus:
		ref := in.TaskID
		if ref == "" {
			ref = in.TaskTitle
		}
		return fmt.Sprintf("✅ Moved task %s... to %q.", shortID(ref), in.Status)

	case AddComment:
		return fmt.Sprintf("✅ Added comment to task %s...", shortID(in.TaskID))

	case GetTask:
		result, _ := action.Result.(map[string]interface{})
		view, _ := result["task"].(*task.View)
		if view == nil {
			return "Task not found."
		}
		eligible := "No"
		if view.AIEligible {
			eligible = "Yes"
		}
		desc := view.Description
		if desc == "" {
			desc = "No description"
		}
		return fmt.Sprintf("**%s**\n\nStatus: %s\nService Class: %s\nAI Eligible: %s\n\n%s",
			view.Title, view.Status, view.ServiceClass, eligible, desc)

	case CreateSubtask:
		return fmt.Sprintf("✅ Created subtask %q under task %s...", in.Title, shortID(in.ParentID))

	case GeneralQuery:
		return helpText

	default:
		return "I couldn't map that to an action."
	}
}

func requireCap(agent *models.Agent, capability string) error {
	if !agent.HasCapability(capability) {
		return apperr.Authorization("agent lacks required capability: %s", capability)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
