package dicetool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/hession/rollmate/internal/dice"
	"github.com/hession/rollmate/internal/tools"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

// fakeHost is a HostContext whose registry can be told to fail.
type fakeHost struct {
	enabled bool
	err     error
	got     []tools.Descriptor
}

func (h *fakeHost) ToolCallingEnabled() bool { return h.enabled }

func (h *fakeHost) RegisterFunctionTool(desc tools.Descriptor) error {
	if h.err != nil {
		return h.err
	}
	h.got = append(h.got, desc)
	return nil
}

type panicSource struct{}

func (panicSource) Intn(int) int { panic("source exhausted") }

func newAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	engine := dice.NewEngine(rand.New(rand.NewSource(11)))
	return New(engine, opts...)
}

func decodeOutcome(t *testing.T, s string) dice.Outcome {
	t.Helper()
	var out dice.Outcome
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("result %q is not an outcome: %v", s, err)
	}
	return out
}

func TestHandleSingleD20(t *testing.T) {
	a := newAdapter(t)
	out := decodeOutcome(t, a.Handle(context.Background(), "1d20"))

	if len(out.Rolls) != 1 {
		t.Fatalf("expected 1 roll, got %v", out.Rolls)
	}
	if r := out.Rolls[0]; r < 1 || r > 20 {
		t.Fatalf("roll %d outside [1,20]", r)
	}
	if out.Total != out.Rolls[0] {
		t.Fatalf("total %d, want %d", out.Total, out.Rolls[0])
	}
}

func TestHandleWithModifier(t *testing.T) {
	a := newAdapter(t)
	out := decodeOutcome(t, a.Handle(context.Background(), "2d6+5"))

	if len(out.Rolls) != 2 {
		t.Fatalf("expected 2 rolls, got %v", out.Rolls)
	}
	for _, r := range out.Rolls {
		if r < 1 || r > 6 {
			t.Fatalf("roll %d outside [1,6]", r)
		}
	}
	if want := out.Rolls[0] + out.Rolls[1] + 5; out.Total != want {
		t.Fatalf("total %d, want %d", out.Total, want)
	}
}

func TestHandleInvalidFormula(t *testing.T) {
	a := newAdapter(t)
	got := a.Handle(context.Background(), "invalid")
	want := `Error: Invalid dice formula "invalid". Please provide a valid formula like '1d20' or '2d6+3'.`
	if got != want {
		t.Fatalf("Handle(invalid) = %q\nwant %q", got, want)
	}
}

func TestHandleAdvantageReturnsBothRolls(t *testing.T) {
	a := newAdapter(t)
	out := decodeOutcome(t, a.Handle(context.Background(), "2d20"))
	if len(out.Rolls) != 2 {
		t.Fatalf("expected 2 rolls, got %v", out.Rolls)
	}
	if out.Total != out.Rolls[0]+out.Rolls[1] {
		t.Fatalf("total %d should be the plain sum of %v", out.Total, out.Rolls)
	}
}

func TestHandleResultShape(t *testing.T) {
	a := newAdapter(t)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(a.Handle(context.Background(), "3d4-1")), &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected exactly total and rolls, got keys %v", raw)
	}
	if _, ok := raw["total"]; !ok {
		t.Error("missing total")
	}
	if _, ok := raw["rolls"]; !ok {
		t.Error("missing rolls")
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	log := &recordingLogger{}
	a := New(dice.NewEngine(panicSource{}), WithLogger(log))

	got := a.Handle(context.Background(), "1d20")
	if got != ErrorMessage("1d20") {
		t.Fatalf("Handle after panic = %q", got)
	}
	if len(log.errors) != 1 || !strings.Contains(log.errors[0], "panicked") {
		t.Fatalf("expected a panic log line, got %v", log.errors)
	}
}

func TestHandleLogsInvocationID(t *testing.T) {
	log := &recordingLogger{}
	engineLog := &recordingLogger{}
	engine := dice.NewEngine(rand.New(rand.NewSource(11)), dice.WithLogger(engineLog))
	a := New(engine, WithLogger(log))
	a.newID = func() string { return "inv-1" }

	a.Handle(context.Background(), "1d6")
	a.Handle(context.Background(), "1x6")

	if len(log.infos) != 2 {
		t.Fatalf("expected 2 info lines, got %v", log.infos)
	}
	for _, line := range log.infos {
		if !strings.HasPrefix(line, "invocation inv-1:") {
			t.Errorf("line %q should carry the invocation id", line)
		}
	}
	if !strings.Contains(log.infos[1], `rejected dice formula "1x6"`) {
		t.Errorf("rejection line = %q", log.infos[1])
	}
	// A rejected formula is logged once, not again by the engine.
	if len(engineLog.infos) != 0 {
		t.Errorf("engine logger should stay silent, got %v", engineLog.infos)
	}
}

func TestActionExtractsFormula(t *testing.T) {
	a := newAdapter(t)
	ctx := context.Background()

	result, err := a.Action(ctx, map[string]any{ParamFormula: "1d8"})
	if err != nil {
		t.Fatalf("Action returned error: %v", err)
	}
	decodeOutcome(t, result)

	for _, args := range []map[string]any{nil, {}, {ParamFormula: 12}} {
		result, err := a.Action(ctx, args)
		if err != nil {
			t.Fatalf("Action(%v) returned error: %v", args, err)
		}
		if result != ErrorMessage("") {
			t.Errorf("Action(%v) = %q, want empty-formula error", args, result)
		}
	}
}

func TestDescriptor(t *testing.T) {
	a := newAdapter(t)
	desc := a.Descriptor()

	if desc.Name != ToolName || desc.DisplayName != DisplayName {
		t.Errorf("unexpected names %q / %q", desc.Name, desc.DisplayName)
	}
	if !desc.Stealth {
		t.Error("descriptor should be stealth by default")
	}
	if desc.FormatMessage(map[string]any{ParamFormula: "1d20"}) != "" {
		t.Error("format policy should suppress the notice")
	}
	if len(desc.Parameters) != 1 || desc.Parameters[0].Name != ParamFormula ||
		desc.Parameters[0].Type != "string" || !desc.Parameters[0].Required {
		t.Errorf("unexpected parameters %+v", desc.Parameters)
	}

	for _, phrase := range []string{`"total"`, `"rolls"`, "2d20", "advantage", "single call"} {
		if !strings.Contains(desc.Description, phrase) {
			t.Errorf("description should mention %s", phrase)
		}
	}
}

func TestDescriptorOptions(t *testing.T) {
	a := newAdapter(t, WithName("dice"), WithDisplayName("Dice"), WithStealth(false), WithName(""))
	desc := a.Descriptor()
	if desc.Name != "dice" || desc.DisplayName != "Dice" || desc.Stealth {
		t.Errorf("options not applied: %+v", desc)
	}
}

func TestRegister(t *testing.T) {
	a := newAdapter(t)
	host := &fakeHost{enabled: true}

	if !a.Register(host) {
		t.Fatal("Register should succeed")
	}
	if len(host.got) != 1 || host.got[0].Name != ToolName {
		t.Fatalf("host received %+v", host.got)
	}
}

func TestRegisterSkipsWhenToolCallingUnavailable(t *testing.T) {
	log := &recordingLogger{}
	a := newAdapter(t, WithLogger(log))
	host := &fakeHost{enabled: false}

	if a.IsAvailable(host) {
		t.Fatal("IsAvailable should be false")
	}
	if a.Register(host) {
		t.Fatal("Register should skip")
	}
	if len(host.got) != 0 {
		t.Fatal("nothing should be installed")
	}
	if len(log.errors) != 0 {
		t.Fatalf("capability skip is not an error: %v", log.errors)
	}
	if a.IsAvailable(nil) {
		t.Fatal("nil host is never available")
	}
}

func TestRegisterFailureIsContained(t *testing.T) {
	log := &recordingLogger{}
	a := newAdapter(t, WithLogger(log))
	host := &fakeHost{enabled: true, err: errors.New("duplicate name")}

	if a.Register(host) {
		t.Fatal("Register should report failure")
	}
	if len(log.errors) != 1 || !strings.Contains(log.errors[0], "duplicate name") {
		t.Fatalf("expected logged failure, got %v", log.errors)
	}
}

func TestRegisterWithRegistryHost(t *testing.T) {
	registry := tools.NewRegistry()
	a := newAdapter(t)

	if !a.Register(registry) {
		t.Fatal("first Register should succeed")
	}
	if a.Register(registry) {
		t.Fatal("second Register should fail on the duplicate name")
	}

	result, err := registry.Execute(context.Background(), ToolName, map[string]any{ParamFormula: "4d6"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if out := decodeOutcome(t, result); len(out.Rolls) != 4 {
		t.Fatalf("expected 4 rolls, got %v", out.Rolls)
	}
}
