package selfcheck

import (
	"errors"
	"fmt"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/machine"
	"stubgen/internal/masm"
)

// ErrSkipped marks a scenario that does not apply to the case, such as a
// debug assertion on code built without debug checks.
var ErrSkipped = errors.New("scenario skipped")

// Case is one generated program under test.
type Case struct {
	Stub    codegen.Stub
	Target  layout.Target
	Program *masm.Program
	Options codegen.Options
}

// Scenario drives a program through one situation and checks the outcome.
// Check returns a short description of what it observed.
type Scenario struct {
	Stub    codegen.Stub
	Name    string
	Example bool
	Check   func(c *Case) (string, error)
}

// FullName returns "<stub>/<scenario>".
func (s Scenario) FullName() string { return s.Stub.String() + "/" + s.Name }

// Seeds used to scramble registers; running each scenario under more than
// one catches code that reads uninitialized registers.
var seeds = []uint64{0x9E3779B97F4A7C15, 0xD1B54A32D192ED03}

// ScenarioError reports a failed expectation or a fault while running a
// scenario.
type ScenarioError struct {
	Scenario string
	Target   string
	Msg      string
	Err      error
}

func (e *ScenarioError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on %s: %v", e.Scenario, e.Target, e.Err)
	}
	return fmt.Sprintf("%s on %s: %s", e.Scenario, e.Target, e.Msg)
}

func (e *ScenarioError) Unwrap() error { return e.Err }

func failf(c *Case, name, format string, args ...any) error {
	return &ScenarioError{Scenario: c.Stub.String() + "/" + name, Target: c.Target.Triple, Msg: fmt.Sprintf(format, args...)}
}

func wrap(c *Case, name string, err error) error {
	if err == nil {
		return nil
	}
	var se *ScenarioError
	if errors.As(err, &se) {
		return err
	}
	return &ScenarioError{Scenario: c.Stub.String() + "/" + name, Target: c.Target.Triple, Err: err}
}

func expectOutcome(c *Case, name string, res machine.Result, want machine.Outcome) error {
	if res.Outcome == want {
		return nil
	}
	if res.Outcome == machine.Abort {
		return failf(c, name, "aborted: %s", res.AbortMessage)
	}
	return failf(c, name, "outcome %s, want %s", res.Outcome, want)
}

// smiRange returns the smallest and largest smi on t.
func smiRange(t layout.Target) (int64, int64) {
	bits := t.PtrSize*8 - t.SmiShift()
	max := int64(1)<<(bits-1) - 1
	return -max - 1, max
}

var registry []Scenario

func register(s ...Scenario) { registry = append(registry, s...) }

// Scenarios returns every scenario for stub.
func Scenarios(stub codegen.Stub) []Scenario {
	var out []Scenario
	for _, s := range registry {
		if s.Stub == stub {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered scenario.
func All() []Scenario { return append([]Scenario(nil), registry...) }

// Examples returns the end-to-end example scenarios.
func Examples() []Scenario {
	var out []Scenario
	for _, s := range registry {
		if s.Example {
			out = append(out, s)
		}
	}
	return out
}

// Find looks a scenario up by its full name or, for examples, by its
// short name.
func Find(name string) (Scenario, bool) {
	for _, s := range registry {
		if s.FullName() == name || (s.Example && s.Name == name) {
			return s, true
		}
	}
	return Scenario{}, false
}
