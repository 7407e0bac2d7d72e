package core

import "context"

// SemanticRecord is a retrieved long-term memory item with a relevance score.
type SemanticRecord struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SemanticStore is the narrow contract toward an external vector store. The
// execution core never manages its storage or indexing; it only inserts text
// and retrieves ranked matches.
type SemanticStore interface {
	Insert(ctx context.Context, text string, metadata map[string]any) (string, error)
	Search(ctx context.Context, query string, k int, filter map[string]any) ([]SemanticRecord, error)
}

// ToolDefinition is the wire-contract description of a callable tool as
// rendered toward models and UIs: name, description, JSON-schema parameters
// and the permission flags required to invoke it.
type ToolDefinition struct {
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	Parameters          map[string]any `json:"parameters"`
	Category            string         `json:"category,omitempty"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
}
