package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrToolExists is returned when a descriptor name is already registered.
	ErrToolExists = errors.New("tool already exists")
	// ErrToolNotFound is returned when executing an unknown tool.
	ErrToolNotFound = errors.New("tool not found")
	// ErrInvalidDescriptor is returned for descriptors missing a name or action.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// Registry is an in-process function-tool host.
type Registry struct {
	tools       map[string]Descriptor
	toolCalling bool
	mu          sync.RWMutex
}

// NewRegistry creates a new tool registry with tool calling enabled
func NewRegistry() *Registry {
	return &Registry{
		tools:       make(map[string]Descriptor),
		toolCalling: true,
	}
}

// SetToolCallingEnabled toggles the capability reported to adapters.
func (r *Registry) SetToolCallingEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCalling = enabled
}

// ToolCallingEnabled reports whether this host accepts function tools.
func (r *Registry) ToolCallingEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.toolCalling
}

// RegisterFunctionTool installs desc. Names are unique.
func (r *Registry) RegisterFunctionTool(desc Descriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if desc.Action == nil {
		return fmt.Errorf("%w: %s has no action", ErrInvalidDescriptor, desc.Name)
	}
	for _, p := range desc.Parameters {
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("%w: %s has an unnamed or untyped parameter", ErrInvalidDescriptor, desc.Name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, desc.Name)
	}

	r.tools[desc.Name] = desc
	return nil
}

// Unregister removes a tool; unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get gets a tool by name
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, exists := r.tools[name]
	return desc, exists
}

// List lists all tools sorted by name
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, 0, len(r.tools))
	for _, desc := range r.tools {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// Execute executes a tool by name after checking required parameters.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	desc, exists := r.Get(name)
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	for _, p := range desc.Parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return "", fmt.Errorf("missing required parameter: %s", p.Name)
		}
	}
	return desc.Action(ctx, args)
}

// ToolSchema tool schema (for Function Calling)
type ToolSchema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

// FunctionSchema function schema
type FunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// GetSchemas gets all tool schemas for Function Calling
func (r *Registry) GetSchemas() []ToolSchema {
	descs := r.List()

	schemas := make([]ToolSchema, 0, len(descs))
	for _, desc := range descs {
		schemas = append(schemas, ToolSchema{
			Type: "function",
			Function: FunctionSchema{
				Name:        desc.Name,
				Description: desc.Description,
				Parameters:  desc.ParameterSchema(),
			},
		})
	}
	return schemas
}
