package observ_test

import (
	"strings"
	"testing"
	"time"

	"stubgen/internal/observ"
)

func TestTimerFoldedPhasesNotTotalled(t *testing.T) {
	timer := observ.NewTimer()
	idx := timer.Begin("build")
	timer.End(idx, "3 artifact(s)")
	timer.Fold("verify", 5*time.Second, "summed")

	report := timer.Report()
	if len(report.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(report.Phases))
	}
	if !report.Phases[1].Folded {
		t.Fatalf("expected folded phase")
	}
	if report.TotalMS >= 5000 {
		t.Fatalf("folded phase leaked into total: %.2f ms", report.TotalMS)
	}
	if report.Phases[0].Note != "3 artifact(s)" {
		t.Fatalf("unexpected note %q", report.Phases[0].Note)
	}
}

func TestTimerEndIgnoresUnknownIndex(t *testing.T) {
	timer := observ.NewTimer()
	timer.End(3, "x")
	timer.End(-1, "x")
	if got := timer.Report(); len(got.Phases) != 0 || got.TotalMS != 0 {
		t.Fatalf("expected empty report, got %+v", got)
	}
}

func TestTimerSummary(t *testing.T) {
	timer := observ.NewTimer()
	timer.End(timer.Begin("setup"), "")
	timer.Fold("generate", time.Millisecond, "")
	out := timer.Summary()
	for _, want := range []string{"timings:", "setup", "    generate", "total"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
