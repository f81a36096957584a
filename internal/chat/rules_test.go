package chat

import (
	"context"
	"testing"
)

func classify(t *testing.T, utterance string) Classification {
	t.Helper()
	cls, err := RuleClassifier{}.Classify(context.Background(), utterance)
	if err != nil {
		t.Fatalf("Classify(%q): %v", utterance, err)
	}
	return cls
}

func TestRules_QueryTasks(t *testing.T) {
	for _, msg := range []string{
		"show me the available tasks",
		"what tasks can I work on? list them",
		"query available work",
	} {
		cls := classify(t, msg)
		if _, ok := cls.Intent.(QueryTasks); !ok {
			t.Errorf("%q -> %T, want QueryTasks", msg, cls.Intent)
		}
		if cls.Confidence != ruleMatchConfidence {
			t.Errorf("%q confidence = %v", msg, cls.Confidence)
		}
	}
}

func TestRules_ClaimWithID(t *testing.T) {
	cls := classify(t, "claim task: 3f9a2b1c")
	claim, ok := cls.Intent.(ClaimTask)
	if !ok {
		t.Fatalf("intent = %T, want ClaimTask", cls.Intent)
	}
	if claim.TaskID != "3f9a2b1c" {
		t.Errorf("task id = %q", claim.TaskID)
	}
}

func TestRules_ClaimWithoutID_FallsThrough(t *testing.T) {
	cls := classify(t, "I want to claim something")
	if _, ok := cls.Intent.(GeneralQuery); !ok {
		t.Errorf("intent = %T, want GeneralQuery", cls.Intent)
	}
	if cls.Confidence != ruleFallbackConfidence {
		t.Errorf("confidence = %v, want fallback", cls.Confidence)
	}
}

func TestRules_Release(t *testing.T) {
	cls := classify(t, "release task: 3f9a2b1c")
	rel, ok := cls.Intent.(ReleaseTask)
	if !ok {
		t.Fatalf("intent = %T, want ReleaseTask", cls.Intent)
	}
	if rel.TaskID != "3f9a2b1c" {
		t.Errorf("task id = %q", rel.TaskID)
	}
}

func TestRules_UnclaimIsRelease(t *testing.T) {
	cls := classify(t, "unclaim task: 3f9a2b1c")
	if _, ok := cls.Intent.(ReleaseTask); !ok {
		t.Errorf("intent = %T, want ReleaseTask", cls.Intent)
	}
}

func TestRules_MoveByID(t *testing.T) {
	cls := classify(t, "move task: 3f9a2b1c to done")
	up, ok := cls.Intent.(UpdateStatus)
	if !ok {
		t.Fatalf("intent = %T, want UpdateStatus", cls.Intent)
	}
	if up.TaskID != "3f9a2b1c" || up.Status != "done" {
		t.Errorf("update = %+v", up)
	}
}

func TestRules_MoveByTitle(t *testing.T) {
	cls := classify(t, "move 'Fix login bug' to in progress")
	up, ok := cls.Intent.(UpdateStatus)
	if !ok {
		t.Fatalf("intent = %T, want UpdateStatus", cls.Intent)
	}
	if up.TaskID != "" {
		t.Errorf("task id = %q, want empty", up.TaskID)
	}
	if up.TaskTitle != "Fix login bug" {
		t.Errorf("title = %q", up.TaskTitle)
	}
	if up.Status != "in_progress" {
		t.Errorf("status = %q, want in_progress", up.Status)
	}
}

func TestRules_MoveByUnquotedTitle(t *testing.T) {
	cls := classify(t, "move the payment fix to verify")
	up, ok := cls.Intent.(UpdateStatus)
	if !ok {
		t.Fatalf("intent = %T, want UpdateStatus", cls.Intent)
	}
	if up.TaskTitle != "the payment fix" || up.Status != "verify" {
		t.Errorf("update = %+v", up)
	}
}

func TestRules_StatusSeparators(t *testing.T) {
	cases := map[string]string{
		"move task: abc1 to in progress": "in_progress",
		"move task: abc1 to in-progress": "in_progress",
		"move task: abc1 to in_progress": "in_progress",
		"move task: abc1 to ai prep":     "ai_prep",
		"move task: abc1 to backlog":     "backlog",
	}
	for msg, want := range cases {
		cls := classify(t, msg)
		up, ok := cls.Intent.(UpdateStatus)
		if !ok {
			t.Errorf("%q -> %T, want UpdateStatus", msg, cls.Intent)
			continue
		}
		if up.Status != want {
			t.Errorf("%q status = %q, want %q", msg, up.Status, want)
		}
	}
}

func TestRules_CommentQuoted(t *testing.T) {
	cls := classify(t, `comment on task: 3f9a2b1c "blocked on the schema migration"`)
	cm, ok := cls.Intent.(AddComment)
	if !ok {
		t.Fatalf("intent = %T, want AddComment", cls.Intent)
	}
	if cm.TaskID != "3f9a2b1c" {
		t.Errorf("task id = %q", cm.TaskID)
	}
	if cm.Comment != "blocked on the schema migration" {
		t.Errorf("comment = %q", cm.Comment)
	}
}

func TestRules_CommentTrailingColon(t *testing.T) {
	cls := classify(t, "add a note to task: 3f9a2b1c: tests are flaky on CI")
	cm, ok := cls.Intent.(AddComment)
	if !ok {
		t.Fatalf("intent = %T, want AddComment", cls.Intent)
	}
	if cm.Comment != "tests are flaky on CI" {
		t.Errorf("comment = %q", cm.Comment)
	}
}

func TestRules_GetTask(t *testing.T) {
	cls := classify(t, "get task: 3f9a2b1c")
	get, ok := cls.Intent.(GetTask)
	if !ok {
		t.Fatalf("intent = %T, want GetTask", cls.Intent)
	}
	if get.TaskID != "3f9a2b1c" {
		t.Errorf("task id = %q", get.TaskID)
	}
}

func TestRules_Subtask(t *testing.T) {
	cls := classify(t, `create a subtask under task: 3f9a2b1c 'Write the rollback script'`)
	sub, ok := cls.Intent.(CreateSubtask)
	if !ok {
		t.Fatalf("intent = %T, want CreateSubtask", cls.Intent)
	}
	if sub.ParentID != "3f9a2b1c" {
		t.Errorf("parent id = %q", sub.ParentID)
	}
	if sub.Title != "Write the rollback script" {
		t.Errorf("title = %q", sub.Title)
	}
}

func TestRules_Fallback(t *testing.T) {
	cls := classify(t, "good morning")
	gq, ok := cls.Intent.(GeneralQuery)
	if !ok {
		t.Fatalf("intent = %T, want GeneralQuery", cls.Intent)
	}
	if gq.Message != "good morning" {
		t.Errorf("message = %q", gq.Message)
	}
	if cls.Confidence != ruleFallbackConfidence {
		t.Errorf("confidence = %v", cls.Confidence)
	}
}
