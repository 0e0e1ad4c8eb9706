package dice

import (
	"sync"
)

// Source yields uniform integers in [0, n). *math/rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// Logger is the diagnostic channel for rejected formulas.
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Outcome is the result of rolling a formula.
type Outcome struct {
	Total int   `json:"total"`
	Rolls []int `json:"rolls"`
}

// Engine rolls formulas against an injected random source. It is safe for
// concurrent use; the source is only touched under mu.
type Engine struct {
	mu     sync.Mutex
	src    Source
	limits Limits
	log    Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides DefaultLimits. Fields above the package ceilings
// are capped.
func WithLimits(l Limits) Option {
	return func(e *Engine) {
		e.limits = l.capped()
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// NewEngine creates an engine drawing from src.
func NewEngine(src Source, opts ...Option) *Engine {
	e := &Engine{
		src:    src,
		limits: DefaultLimits(),
		log:    nopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the bounds this engine validates against.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Validate reports whether formula is accepted by this engine.
func (e *Engine) Validate(formula string) bool {
	return e.limits.Validate(formula)
}

// Roll rolls a parsed formula. Rolls keep generation order and
// Total is their sum plus f.Modifier.
func (e *Engine) Roll(f Formula) Outcome {
	rolls := e.draw(f.Count, f.Sides)
	total := f.Modifier
	for _, r := range rolls {
		total += r
	}
	return Outcome{Total: total, Rolls: rolls}
}

func (e *Engine) draw(count, sides int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	rolls := make([]int, count)
	for i := range rolls {
		rolls[i] = e.src.Intn(sides) + 1
	}
	return rolls
}

// RollFormula parses and rolls formula.
func (e *Engine) RollFormula(formula string) (Outcome, error) {
	f, err := e.limits.Parse(formula)
	if err != nil {
		return Outcome{}, err
	}
	return e.Roll(f), nil
}

// RollSafe rolls formula, reporting ok=false instead of an error when it is
// malformed. Malformed input is expected from agents, so it is logged at
// info level rather than treated as a failure.
func (e *Engine) RollSafe(formula string) (Outcome, bool) {
	return e.RollSafeWith(formula, e.log)
}

// RollSafeWith is RollSafe reporting the rejection to log instead of the
// engine's logger. A nil log drops it.
func (e *Engine) RollSafeWith(formula string, log Logger) (Outcome, bool) {
	f, err := e.limits.Parse(formula)
	if err != nil {
		if log != nil {
			log.Info("rejected dice formula %q: %v", formula, err)
		}
		return Outcome{}, false
	}
	return e.Roll(f), true
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
