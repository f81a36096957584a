package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ParsedIntent is the structured result the model returns for an
// utterance. Entities are raw strings keyed by the prompt's vocabulary
// (task_id, status, comment_text, subtask_title, ...).
type ParsedIntent struct {
	Intent     string            `json:"intent"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
}

const intentSystemPrompt = `You are an AI assistant helping parse user intents for a Kanban task management system.
Analyze the user's message and extract:
1. The primary intent (one of: query_tasks, claim_task, release_task, update_status, add_comment, get_task, create_subtask, general_query)
2. Any entities (task_id, status, comment_text, subtask_title, task_title, etc.)
3. Confidence level (0-1)

Respond with ONLY a JSON object, no prose:
{
  "intent": "intent_name",
  "entities": { "key": "value" },
  "confidence": 0.95
}

Available statuses: backlog, todo, ai_prep, in_progress, verify, done`

// ParseIntent asks the backend to classify an utterance into the
// closed intent set. Any transport failure or unparseable reply is an
// error; the caller decides whether to fall back.
func (c *Client) ParseIntent(ctx context.Context, utterance string) (*ParsedIntent, error) {
	resp, err := c.Chat(ctx, []Message{
		{Role: "system", Content: intentSystemPrompt},
		{Role: "user", Content: utterance},
	}, ChatOpts{MaxTokens: 200, Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	var parsed ParsedIntent
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("llm: intent reply is not valid JSON: %w", err)
	}
	if parsed.Intent == "" {
		return nil, fmt.Errorf("llm: intent reply missing intent field")
	}
	if parsed.Entities == nil {
		parsed.Entities = map[string]string{}
	}
	return &parsed, nil
}

const summarySystemPrompt = `You are a helpful AI assistant managing a Kanban board system.
You help users manage tasks, understand their status, and provide insights.
Be concise, friendly, and actionable in your responses.

When discussing task IDs, always reference them clearly.
When actions succeed, confirm what was done.
When actions fail, explain why and suggest alternatives.`

// historyWindow caps how many prior turns are sent for context.
const historyWindow = 4

// Summarize renders a natural-language reply describing what happened
// for the user's message, given the structured action outcome.
func (c *Client) Summarize(ctx context.Context, userMessage string, outcome interface{}, history []Message) (string, error) {
	encoded, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return "", fmt.Errorf("llm: marshal outcome: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User asked: %q\n\nAction result:\n%s\n\n", userMessage, encoded)
	sb.WriteString("Generate a helpful, natural language response summarizing what happened.")

	messages := []Message{{Role: "system", Content: summarySystemPrompt}}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: sb.String()})

	resp, err := c.Chat(ctx, messages, ChatOpts{MaxTokens: 500, Temperature: 0.7})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// extractJSON strips code fences and surrounding prose so a
// mostly-compliant reply still parses.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}
