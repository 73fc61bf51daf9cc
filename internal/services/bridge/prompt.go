package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/services/completion"
	"github.com/myworkflows/chat-service/internal/services/tools"
)

// Delimiters of the tool output block appended to the user message.
const (
	ContextStart = "[WORKFLOW CONTEXT]"
	ContextEnd   = "[END WORKFLOW CONTEXT]"
)

const basePrompt = `You are the MyWorkflows assistant. You help users understand, build and debug their n8n automation workflows.
Answer concisely, use the user's node names when you refer to their workflow, and say so when you are unsure.`

func systemPrompt(defs []tools.Definition, workflowID string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if workflowID != "" {
		fmt.Fprintf(&b, "\n\nThe user is currently looking at workflow %q.", workflowID)
	}
	if len(defs) == 0 {
		return b.String()
	}

	b.WriteString("\n\nTools available to you:")
	for _, d := range defs {
		params, _ := json.Marshal(d.Parameters)
		fmt.Fprintf(&b, "\n- %s: %s Parameters: %s", d.Name, d.Description, params)
	}
	fmt.Fprintf(&b, "\n\nThe server runs these tools for you when the question needs them. "+
		"Their output is appended to the user's message between %s and %s. "+
		"If it contains \"Tool error:\", explain the problem to the user instead of guessing the workflow contents. "+
		"Do not write tool calls yourself. Answer in plain text only.",
		ContextStart, ContextEnd)
	return b.String()
}

func contextBlock(body string) string {
	return "\n\n" + ContextStart + "\n" + body + "\n" + ContextEnd
}

func buildMessages(system string, history []models.Message, userText string) []completion.Message {
	out := make([]completion.Message, 0, len(history)+2)
	out = append(out, completion.Message{Role: string(models.RoleSystem), Content: system})
	for _, m := range history {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		out = append(out, completion.Message{Role: string(m.Role), Content: m.Content})
	}
	return append(out, completion.Message{Role: string(models.RoleUser), Content: userText})
}
