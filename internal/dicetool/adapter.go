// Package dicetool exposes the dice engine to LLM agents as a function tool.
//
// The adapter is stateless: every Handle call is independent, and failures
// (malformed formulas, internal panics) come back as plain strings through
// the normal result channel so the host can forward them to the agent.
package dicetool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hession/rollmate/internal/dice"
	"github.com/hession/rollmate/internal/tools"
)

const (
	// ToolName is the identifier agents call.
	ToolName = "roll_dice_formula"
	// DisplayName is the label hosts show for the tool.
	DisplayName = "Roll Dice"
	// ParamFormula is the single required argument.
	ParamFormula = "formula"
)

// Description tells the agent how to use the tool. It is part of the tool
// contract: the return shape, the advantage convention and batching.
const Description = `Roll dice using standard dice notation NdM+K: N dice with M faces each, plus or minus an optional flat modifier K (examples: "1d20", "2d6+3", "4d8-1").

Returns a JSON object {"total": <integer>, "rolls": [<integer>, ...]} where "rolls" lists every die in the order it was rolled and "total" is their sum plus the modifier.

For advantage or disadvantage, roll two dice in one call (for example "2d20") and pick the highest (advantage) or lowest (disadvantage) value from "rolls" yourself; this tool never applies advantage or disadvantage.

When you need several rolls of the same die, batch them into a single call with a larger N (for example "6d6" instead of six calls to "1d6") and read the individual results from "rolls". Do not call this tool repeatedly in a loop.`

// HostContext is what a host must provide for the adapter to register.
type HostContext interface {
	ToolCallingEnabled() bool
	RegisterFunctionTool(desc tools.Descriptor) error
}

// Logger is the adapter's diagnostic channel.
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Adapter wraps a dice engine behind a tool descriptor.
type Adapter struct {
	engine      *dice.Engine
	log         Logger
	name        string
	displayName string
	stealth     bool
	newID       func() string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(a *Adapter) {
		a.log = l
	}
}

// WithName overrides ToolName.
func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// WithDisplayName overrides DisplayName.
func WithDisplayName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.displayName = name
		}
	}
}

// WithStealth sets the descriptor's visibility flag.
func WithStealth(stealth bool) Option {
	return func(a *Adapter) {
		a.stealth = stealth
	}
}

// New creates an adapter over engine. Invocations are hidden from
// transcripts unless WithStealth(false) is given.
func New(engine *dice.Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:      engine,
		log:         nopLogger{},
		name:        ToolName,
		displayName: DisplayName,
		stealth:     true,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsAvailable reports whether host supports tool calling.
func (a *Adapter) IsAvailable(host HostContext) bool {
	return host != nil && host.ToolCallingEnabled()
}

// Register installs the descriptor into host. It reports whether the tool
// was installed; an unsupported host or a rejected descriptor is logged and
// never returned as an error.
func (a *Adapter) Register(host HostContext) bool {
	if !a.IsAvailable(host) {
		a.log.Info("tool calling unavailable, %s not registered", a.name)
		return false
	}

	if err := host.RegisterFunctionTool(a.Descriptor()); err != nil {
		a.log.Error("failed to register tool %s: %v", a.name, err)
		return false
	}

	a.log.Info("registered tool %s", a.name)
	return true
}

// Descriptor builds the tool descriptor.
func (a *Adapter) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        a.name,
		DisplayName: a.displayName,
		Description: Description,
		Parameters: []tools.ParameterDef{
			{
				Name:        ParamFormula,
				Type:        "string",
				Description: `Dice formula in NdM+K notation, e.g. "1d20", "2d6+3" or "2d20" for advantage`,
				Required:    true,
			},
		},
		Action:        a.Action,
		FormatMessage: formatMessage,
		Stealth:       a.stealth,
	}
}

// Action is the descriptor handler. A missing or non-string formula is
// answered like any other malformed formula; the error is always nil.
func (a *Adapter) Action(ctx context.Context, args map[string]any) (string, error) {
	formula, _ := args[ParamFormula].(string)
	return a.Handle(ctx, formula), nil
}

// Handle rolls formula and returns the JSON outcome, or an error message
// for the agent. It never panics.
func (a *Adapter) Handle(ctx context.Context, formula string) (result string) {
	log := invocationLog{log: a.log, id: a.newID()}

	defer func() {
		if r := recover(); r != nil {
			log.Error("roll %q panicked: %v", formula, r)
			result = ErrorMessage(formula)
		}
	}()

	// The engine reports rejections itself, tagged with this invocation.
	outcome, ok := a.engine.RollSafeWith(formula, log)
	if !ok {
		return ErrorMessage(formula)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		log.Error("failed to encode outcome: %v", err)
		return ErrorMessage(formula)
	}

	log.Info("rolled %s -> %d", formula, outcome.Total)
	return string(data)
}

// ErrorMessage is the text returned to the agent for a rejected formula.
func ErrorMessage(formula string) string {
	return fmt.Sprintf(`Error: Invalid dice formula "%s". Please provide a valid formula like '1d20' or '2d6+3'.`, formula)
}

// formatMessage suppresses transcript notices for rolls.
func formatMessage(map[string]any) string {
	return ""
}

// invocationLog prefixes every line with the invocation id.
type invocationLog struct {
	log Logger
	id  string
}

func (l invocationLog) Info(format string, args ...interface{}) {
	l.log.Info("invocation %s: "+format, append([]interface{}{l.id}, args...)...)
}

func (l invocationLog) Error(format string, args ...interface{}) {
	l.log.Error("invocation %s: "+format, append([]interface{}{l.id}, args...)...)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
