package selfcheck

import (
	"context"
	"errors"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/trace"
)

// CaseResult is the outcome of one scenario on one program.
type CaseResult struct {
	Scenario string
	Target   string
	Detail   string
	Skipped  bool
	Err      error
}

// Failed reports whether any result carries an error.
func Failed(results []CaseResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Errors joins the errors of failed results.
func Errors(results []CaseResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Check runs every scenario registered for stub against prog.
func Check(ctx context.Context, stub codegen.Stub, prog *masm.Program, opts codegen.Options) []CaseResult {
	c := &Case{Stub: stub, Target: prog.Target, Program: prog, Options: opts}
	var results []CaseResult
	for _, s := range Scenarios(stub) {
		if err := ctx.Err(); err != nil {
			results = append(results, CaseResult{Scenario: s.FullName(), Target: c.Target.Triple, Err: err})
			break
		}
		results = append(results, runScenario(ctx, s, c))
	}
	return results
}

func runScenario(ctx context.Context, s Scenario, c *Case) CaseResult {
	_, span := trace.StartSpan(ctx, trace.ScopeStub, "check:"+s.FullName())
	span.WithExtra("target", c.Target.Triple)

	detail, err := s.Check(c)
	res := CaseResult{Scenario: s.FullName(), Target: c.Target.Triple, Detail: detail}
	switch {
	case errors.Is(err, ErrSkipped):
		res.Skipped = true
		span.End("skipped")
	case err != nil:
		res.Err = err
		span.End(err.Error())
	default:
		span.End("")
	}
	return res
}

// RunScenario builds the scenario's stub for target and runs it.
func RunScenario(ctx context.Context, s Scenario, target layout.Target, opts codegen.Options) (CaseResult, error) {
	prog, err := codegen.Build(ctx, s.Stub, target, opts)
	if err != nil {
		return CaseResult{}, err
	}
	return runScenario(ctx, s, &Case{Stub: s.Stub, Target: target, Program: prog, Options: opts}), nil
}

// Run builds every stub for target and checks each one.
func Run(ctx context.Context, target layout.Target, opts codegen.Options) ([]CaseResult, error) {
	var results []CaseResult
	for _, stub := range codegen.Stubs() {
		prog, err := codegen.Build(ctx, stub, target, opts)
		if err != nil {
			return results, err
		}
		results = append(results, Check(ctx, stub, prog, opts)...)
	}
	return results, nil
}
