package chat

import (
	"context"
	"log"
	"strings"

	"github.com/kanbanx/kanbanx/internal/llm"
)

// Classifier converts a free-text instruction into a classified intent.
type Classifier interface {
	Classify(ctx context.Context, utterance string) (Classification, error)
}

// modelAcceptThreshold is the minimum model confidence accepted before
// falling back to the rules.
const modelAcceptThreshold = 0.6

// ModelClassifier asks the language-model backend to classify the
// utterance into the closed intent set.
type ModelClassifier struct {
	Client *llm.Client
}

// Classify submits the utterance and maps the model's reply into the
// intent vocabulary. Unknown intent names and transport failures are
// errors; the composite decides what happens next.
func (m *ModelClassifier) Classify(ctx context.Context, utterance string) (Classification, error) {
	parsed, err := m.Client.ParseIntent(ctx, utterance)
	if err != nil {
		return Classification{}, err
	}

	intent := mapModelIntent(parsed, utterance)
	return Classification{Intent: intent, Confidence: parsed.Confidence}, nil
}

// mapModelIntent converts the model's {intent, entities} reply into a
// typed intent. Anything unmappable degrades to GeneralQuery.
func mapModelIntent(p *llm.ParsedIntent, utterance string) Intent {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := p.Entities[k]; ok && v != "" {
				return v
			}
		}
		return ""
	}

	switch IntentKind(p.Intent) {
	case KindQueryTasks:
		return QueryTasks{}
	case KindClaimTask:
		if id := get("task_id", "taskId"); id != "" {
			return ClaimTask{TaskID: id}
		}
	case KindReleaseTask:
		if id := get("task_id", "taskId"); id != "" {
			return ReleaseTask{TaskID: id, Reason: get("reason")}
		}
	case KindUpdateStatus:
		status := normalizeStatusName(get("status"))
		if status != "" {
			if id := get("task_id", "taskId"); id != "" {
				return UpdateStatus{TaskID: id, Status: status}
			}
			if title := get("task_title", "taskTitle"); title != "" {
				return UpdateStatus{TaskTitle: title, Status: status}
			}
		}
	case KindAddComment:
		id := get("task_id", "taskId")
		text := get("comment_text", "comment")
		if id != "" && text != "" {
			return AddComment{TaskID: id, Comment: text}
		}
	case KindGetTask:
		if id := get("task_id", "taskId"); id != "" {
			return GetTask{TaskID: id}
		}
	case KindCreateSubtask:
		id := get("task_id", "taskId", "parent_task_id")
		title := get("subtask_title", "title")
		if id != "" && title != "" {
			return CreateSubtask{ParentID: id, Title: title}
		}
	}
	return GeneralQuery{Message: utterance}
}

func normalizeStatusName(s string) string {
	return statusName("to " + strings.ToLower(s))
}

// Composite tries the model first and falls back to the rules on any
// failure or low-confidence verdict. The fallback policy lives here
// once, not per call site.
type Composite struct {
	Model Classifier // nil when no backend is configured
	Rules Classifier
}

// NewComposite builds the standard two-tier classifier. client may be
// nil.
func NewComposite(client *llm.Client) *Composite {
	c := &Composite{Rules: RuleClassifier{}}
	if client != nil {
		c.Model = &ModelClassifier{Client: client}
	}
	return c
}

// Classify resolves the utterance: model verdicts with confidence
// above the threshold are accepted verbatim; everything else goes to
// the rules. A model failure is recovered here and never surfaces.
func (c *Composite) Classify(ctx context.Context, utterance string) (Classification, error) {
	if c.Model != nil {
		cls, err := c.Model.Classify(ctx, utterance)
		if err == nil && cls.Confidence > modelAcceptThreshold {
			return cls, nil
		}
		if err != nil {
			log.Printf("chat: model classify failed, using rules: %v", err)
		}
	}
	return c.Rules.Classify(ctx, utterance)
}
