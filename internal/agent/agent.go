// Package agent runs a one-shot LLM conversation in which the model may call
// the function tools of a tools.Registry.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hession/rollmate/internal/llm"
	"github.com/hession/rollmate/internal/tools"
)

const (
	// MaxToolIterations maximum number of tool call iterations
	MaxToolIterations = 10

	// DefaultSystemPrompt frames the model as a tabletop assistant.
	DefaultSystemPrompt = "You are a tabletop game assistant. Use the available tools whenever the user asks for a dice roll; never invent roll results. Report the total and the individual rolls."

	errorPrefix = "Error"
)

// ErrTooManyIterations is returned when the model keeps requesting tools
// after MaxToolIterations rounds.
var ErrTooManyIterations = errors.New("tool call limit reached without a final answer")

// ChatClient is the part of llm.Client the agent needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error)
}

// Logger receives agent diagnostics.
type Logger interface {
	Debug(format string, args ...interface{})
	Warn(format string, args ...interface{})
}

// ToolCallHandler is told about each non-stealth tool call. notice is the
// descriptor's user-facing message for the call, possibly empty.
type ToolCallHandler func(name, notice, result string, err error)

// Agent AI agent core
type Agent struct {
	llm             ChatClient
	registry        *tools.Registry
	systemPrompt    string
	log             Logger
	toolCallHandler ToolCallHandler
}

// Option agent configuration option
type Option func(*Agent)

// WithToolCallHandler sets the tool call handler
func WithToolCallHandler(handler ToolCallHandler) Option {
	return func(a *Agent) {
		a.toolCallHandler = handler
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates a new Agent instance
func New(client ChatClient, reg *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		llm:          client,
		registry:     reg,
		systemPrompt: DefaultSystemPrompt,
		log:          nopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask sends prompt to the model and returns its final answer. Tool calls
// requested by the model are executed through the registry; nothing is
// remembered between calls.
func (a *Agent) Ask(ctx context.Context, prompt string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: a.systemPrompt},
		{Role: "user", Content: prompt},
	}
	llmTools := a.llmTools()

	for i := 0; i < MaxToolIterations; i++ {
		resp, err := a.llm.Chat(ctx, messages, llmTools)
		if err != nil {
			return "", fmt.Errorf("failed to call LLM: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    a.runToolCall(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	return "", ErrTooManyIterations
}

// llmTools converts registry schemas for the LLM API. A registry with tool
// calling disabled offers none.
func (a *Agent) llmTools() []llm.Tool {
	if a.registry == nil || !a.registry.ToolCallingEnabled() {
		return nil
	}
	schemas := a.registry.GetSchemas()
	out := make([]llm.Tool, len(schemas))
	for i, schema := range schemas {
		out[i] = llm.Tool{
			Type: schema.Type,
			Function: llm.ToolFunction{
				Name:        schema.Function.Name,
				Description: schema.Function.Description,
				Parameters:  schema.Function.Parameters,
			},
		}
	}
	return out
}

// runToolCall executes one call and returns the content for the tool
// message. Failures become text so the model can react to them.
func (a *Agent) runToolCall(ctx context.Context, call llm.ToolCall) string {
	name := call.Function.Name

	var args map[string]any
	var err error
	if call.Function.Arguments != "" {
		if jsonErr := json.Unmarshal([]byte(call.Function.Arguments), &args); jsonErr != nil {
			err = fmt.Errorf("failed to parse tool arguments: %w", jsonErr)
		}
	}

	var result string
	if err == nil {
		a.log.Debug("tool call %s(%s)", name, call.Function.Arguments)
		result, err = a.registry.Execute(ctx, name, args)
	}
	if err != nil {
		a.log.Warn("tool call %s failed: %v", name, err)
	}

	if a.toolCallHandler != nil {
		if desc, ok := a.registry.Get(name); ok && !desc.Stealth {
			a.toolCallHandler(name, desc.Notice(args), result, err)
		}
	}

	if err != nil {
		return fmt.Sprintf("%s: %v", errorPrefix, err)
	}
	return result
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
