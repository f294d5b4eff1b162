package ui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"stubgen/internal/buildpipeline"
)

func newTestModel() *progressModel {
	targets := []string{"ppc64-linux-gnu", "ppc-linux-gnu"}
	stubs := []string{"map-change", "smi-to-double"}
	return NewProgressModel("stubgen build", targets, stubs, nil).(*progressModel)
}

func TestApplyEventFillsGrid(t *testing.T) {
	m := newTestModel()
	m.apply(buildpipeline.Event{Item: "ppc64-linux-gnu/map-change", Stage: buildpipeline.StageVerify, Status: buildpipeline.StatusWorking})
	m.apply(buildpipeline.Event{Item: "ppc-linux-gnu/smi-to-double", Stage: buildpipeline.StageCache, Status: buildpipeline.StatusCached, Elapsed: time.Millisecond})
	m.apply(buildpipeline.Event{Item: "x86/map-change", Stage: buildpipeline.StageCache, Status: buildpipeline.StatusDone})

	if c := m.cells[0][0]; c.status != buildpipeline.StatusWorking || c.stage != buildpipeline.StageVerify {
		t.Fatalf("cell[0][0] = %+v", c)
	}
	if c := m.cells[1][1]; c.status != buildpipeline.StatusCached || c.elapsed != time.Millisecond {
		t.Fatalf("cell[1][1] = %+v", c)
	}
	if got := m.fraction(); got <= 0.25 || got >= 0.5 {
		t.Fatalf("fraction = %v", got)
	}
	view := m.View()
	for _, want := range []string{"ppc64-linux-gnu", "smi-to-double", "check", "cached", "1 cached, 1 running"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestFirstFailureIsShown(t *testing.T) {
	m := newTestModel()
	m.apply(buildpipeline.Event{Item: "ppc-linux-gnu/map-change", Stage: buildpipeline.StageVerify, Status: buildpipeline.StatusError, Err: errors.New("map-change/empty: heap corrupted")})
	m.apply(buildpipeline.Event{Stage: buildpipeline.StageCache, Status: buildpipeline.StatusError, Err: errors.New("canceled")})
	if m.failure != "map-change/empty: heap corrupted" {
		t.Fatalf("failure = %q", m.failure)
	}
	if !strings.Contains(m.View(), "FAIL") {
		t.Fatalf("view lacks FAIL marker")
	}
}

func TestNarrowTerminalStillRendersGlyphs(t *testing.T) {
	m := newTestModel()
	m.width = 30
	m.apply(buildpipeline.Event{Item: "ppc64-linux-gnu/smi-to-double", Stage: buildpipeline.StageCache, Status: buildpipeline.StatusDone})
	if !strings.Contains(m.View(), "ok") {
		t.Fatalf("done glyph missing:\n%s", m.View())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("ppc64le-linux-gnu/double-to-object", 12); got != "ppc64le-l..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
}
