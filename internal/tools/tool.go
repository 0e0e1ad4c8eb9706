package tools

import "context"

// ActionFunc is invoked by a host each time an agent calls the tool.
type ActionFunc func(ctx context.Context, args map[string]any) (string, error)

// FormatFunc renders the transcript notice for a call. An empty string
// means no notice is shown.
type FormatFunc func(args map[string]any) string

// Descriptor describes a function tool a host can expose to an agent.
// Hosts pass FormatMessage and Stealth through verbatim.
type Descriptor struct {
	Name          string         // Unique identifier the model calls
	DisplayName   string         // Human-facing label
	Description   string         // Usage instructions for the model
	Parameters    []ParameterDef // Parameter definitions
	Action        ActionFunc
	FormatMessage FormatFunc
	Stealth       bool // Hide invocations from transcript UIs
}

// ParameterDef parameter definition
type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" | "number" | "boolean"
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ParameterSchema returns the JSON-schema object for the descriptor's parameters.
func (d Descriptor) ParameterSchema() map[string]interface{} {
	return buildParameterSchema(d.Parameters)
}

// Notice returns the transcript notice for a call, honouring Stealth.
func (d Descriptor) Notice(args map[string]any) string {
	if d.Stealth || d.FormatMessage == nil {
		return ""
	}
	return d.FormatMessage(args)
}

// buildParameterSchema builds parameter schema
func buildParameterSchema(params []ParameterDef) map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for _, param := range params {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}
