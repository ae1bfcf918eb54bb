package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface all tools must implement.
// Parameters returns a JSON Schema object describing the arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Definition is the transport-neutral description of a tool.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToDefinition converts a Tool into a Definition with a marshalled schema.
func ToDefinition(t Tool) (Definition, error) {
	schema, err := json.Marshal(t.Parameters())
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: schema,
	}, nil
}
