package chat

import (
	"context"
	"regexp"
	"strings"
)

// RuleClassifier maps utterances to intents with ordered keyword rules.
// It needs no configuration and no network, so the chat feature
// degrades gracefully when no language-model credential is present.
type RuleClassifier struct{}

// Confidence levels for rule verdicts.
const (
	ruleMatchConfidence    = 0.9
	ruleFallbackConfidence = 0.3
)

var (
	reQuery   = regexp.MustCompile(`available|query|list|show.*tasks`)
	reClaim   = regexp.MustCompile(`\bclaim\b|take|grab|work on`)
	reRelease = regexp.MustCompile(`release|unclaim|done with|finish`)
	reMove    = regexp.MustCompile(`move|update|change.*status`)
	reComment = regexp.MustCompile(`comment|note`)
	reGet     = regexp.MustCompile(`get|show|details|info|about.*task`)
	reSubtask = regexp.MustCompile(`subtask|create.*task|add.*task`)

	// A task id is a hex/hyphen token following the word "task".
	reTaskID = regexp.MustCompile(`(?i)task[:\s]+([a-f0-9-]+)`)

	// Status names accept space, hyphen, or underscore separators and
	// normalize to underscore form.
	reStatus = regexp.MustCompile(`to\s+(backlog|todo|ai[\s_-]prep|in[\s_-]progress|verify|done)`)

	reQuoted   = regexp.MustCompile(`['"]([^'"]+)['"]`)
	reTrailing = regexp.MustCompile(`:\s*([^:]+)$`)

	// For "move <title words> to <status>" with no id and no quotes.
	reMoveTitle = regexp.MustCompile(`(?i)^(?:move|update|change)\s+(.+?)\s+to\s+`)
)

// Classify applies the rules in fixed priority order; the first
// matching rule wins. An utterance matching no rule yields a
// GeneralQuery carrying the raw message.
func (RuleClassifier) Classify(_ context.Context, utterance string) (Classification, error) {
	lower := strings.ToLower(utterance)

	if reQuery.MatchString(lower) {
		return match(QueryTasks{}), nil
	}

	if reClaim.MatchString(lower) {
		if id := taskID(utterance); id != "" {
			return match(ClaimTask{TaskID: id}), nil
		}
	}

	if reRelease.MatchString(lower) {
		if id := taskID(utterance); id != "" {
			return match(ReleaseTask{TaskID: id}), nil
		}
	}

	if reMove.MatchString(lower) {
		if status := statusName(lower); status != "" {
			if id := taskID(utterance); id != "" {
				return match(UpdateStatus{TaskID: id, Status: status}), nil
			}
			if title := titleFragment(utterance); title != "" {
				return match(UpdateStatus{TaskTitle: title, Status: status}), nil
			}
		}
	}

	if reComment.MatchString(lower) {
		if id := taskID(utterance); id != "" {
			if text := freeText(utterance); text != "" {
				return match(AddComment{TaskID: id, Comment: text}), nil
			}
		}
	}

	if reGet.MatchString(lower) {
		if id := taskID(utterance); id != "" {
			return match(GetTask{TaskID: id}), nil
		}
	}

	if reSubtask.MatchString(lower) {
		if id := taskID(utterance); id != "" {
			if title := freeText(utterance); title != "" {
				return match(CreateSubtask{ParentID: id, Title: title}), nil
			}
		}
	}

	return Classification{
		Intent:     GeneralQuery{Message: utterance},
		Confidence: ruleFallbackConfidence,
	}, nil
}

func match(intent Intent) Classification {
	return Classification{Intent: intent, Confidence: ruleMatchConfidence}
}

func taskID(utterance string) string {
	if m := reTaskID.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	return ""
}

// statusName extracts and normalizes a target status from a lowercase
// utterance: "in progress", "in-progress", and "in_progress" all
// become "in_progress".
func statusName(lower string) string {
	m := reStatus.FindStringSubmatch(lower)
	if m == nil {
		return ""
	}
	s := m[1]
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

// freeText pulls a quoted string, or failing that the text after the
// last colon, for comment bodies and subtask titles.
func freeText(utterance string) string {
	if m := reQuoted.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reTrailing.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// titleFragment extracts a task title for update_status when no id is
// present: quoted text first, then the words between the verb and "to".
func titleFragment(utterance string) string {
	if m := reQuoted.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reMoveTitle.FindStringSubmatch(utterance); m != nil {
		return strings.TrimSpace(strings.Trim(m[1], `'"`))
	}
	return ""
}
