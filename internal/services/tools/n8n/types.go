package n8n

import "strings"

// Node is one node of a workflow.
type Node struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	TypeVersion float64 `json:"typeVersion,omitempty"`
	Disabled    bool    `json:"disabled,omitempty"`
}

// IsTrigger reports whether the node starts the workflow.
func (n Node) IsTrigger() bool {
	t := strings.ToLower(n.Type)
	return strings.Contains(t, "trigger") || strings.HasSuffix(t, ".webhook")
}

// Tag is a workflow tag.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Workflow is the subset of the n8n workflow resource used for summaries.
type Workflow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Nodes     []Node `json:"nodes"`
	Tags      []Tag  `json:"tags,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Triggers returns the trigger nodes of the workflow.
func (w *Workflow) Triggers() []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.IsTrigger() {
			out = append(out, n)
		}
	}
	return out
}
