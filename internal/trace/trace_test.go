package trace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"stubgen/internal/trace"
)

func TestStartSpanNestsUnderContext(t *testing.T) {
	ring := trace.NewRingTracer(32, trace.LevelDetail)
	ctx := trace.WithWorker(trace.WithTracer(context.Background(), ring), 3)

	ctx, target := trace.StartSpan(ctx, trace.ScopeTarget, "target:ppc-linux-gnu")
	_, stub := trace.StartSpan(ctx, trace.ScopeStub, "stub:map-change")
	stub.WithExtra("instructions", "12").End("")
	// Instructions are below LevelDetail and must not open a span.
	_, instr := trace.StartSpan(ctx, trace.ScopeInstr, "lwz")
	if instr.ID() != 0 {
		t.Fatalf("instr span enabled at detail level")
	}
	instr.End("")
	target.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	begin, end := events[1], events[2]
	if begin.Kind != trace.KindSpanBegin || begin.ParentID != events[0].SpanID {
		t.Fatalf("stub span not nested: %+v", begin)
	}
	if end.Worker != 3 || end.Extra["instructions"] != "12" {
		t.Fatalf("end event lost worker or extras: %+v", end)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatalf("sequence numbers not increasing at %d", i)
		}
	}
}

func TestSpanEndIsIdempotent(t *testing.T) {
	ring := trace.NewRingTracer(8, trace.LevelPhase)
	span := trace.Begin(ring, trace.ScopeDriver, "stubgen build", 0)
	span.End("")
	span.End("again")
	if n := len(ring.Snapshot()); n != 2 {
		t.Fatalf("expected begin and one end, got %d events", n)
	}
	if n, _ := trace.OpenSpans(); n != 0 {
		t.Fatalf("ended span still open (%d)", n)
	}
}

func TestRingWrapsAndCountsDrops(t *testing.T) {
	ring := trace.NewRingTracer(3, trace.LevelDebug)
	for i := 0; i < 5; i++ {
		ring.Emit(&trace.Event{Kind: trace.KindPoint, Scope: trace.ScopeInstr, Name: string(rune('a' + i))})
	}
	events := ring.Snapshot()
	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	if got := strings.Join(names, ""); got != "cde" {
		t.Fatalf("ring kept %q, want cde", got)
	}
	if ring.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", ring.Dropped())
	}
}

func TestRingFoundInsideMulti(t *testing.T) {
	var buf bytes.Buffer
	tr, err := trace.New(trace.Config{Level: trace.LevelPhase, Mode: trace.ModeBoth, Output: &buf, Format: trace.FormatText})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ring := trace.Ring(tr)
	if ring == nil {
		t.Fatalf("no ring in %T", tr)
	}
	trace.Begin(tr, trace.ScopeTarget, "target:ppc64-linux-gnu", 0).End("failed")
	if len(ring.Snapshot()) != 2 {
		t.Fatalf("ring did not receive events")
	}
	if !strings.Contains(buf.String(), "target:ppc64-linux-gnu (failed)") {
		t.Fatalf("stream output:\n%s", buf.String())
	}
	if trace.Ring(trace.Nop) != nil {
		t.Fatalf("Nop has no ring")
	}
}

func TestChromeStreamIsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	st := trace.NewStreamTracer(&buf, trace.LevelDetail, trace.FormatChrome)
	ctx := trace.WithTracer(context.Background(), st)
	ctx, outer := trace.StartSpan(ctx, trace.ScopeTarget, "target:ppcle-linux-gnu")
	_, inner := trace.StartSpan(ctx, trace.ScopeStub, "check:smi-to-double/round-trip")
	inner.End("")
	outer.End("")
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var doc struct {
		TraceEvents []struct {
			Name string `json:"name"`
			Ph   string `json:"ph"`
		} `json:"traceEvents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid chrome trace: %v\n%s", err, buf.String())
	}
	if len(doc.TraceEvents) != 4 || doc.TraceEvents[0].Ph != "B" || doc.TraceEvents[3].Ph != "E" {
		t.Fatalf("unexpected events %+v", doc.TraceEvents)
	}
}

func TestParseLevelAndMode(t *testing.T) {
	for _, name := range []string{"off", "ERROR", "Phase", "detail", " debug "} {
		if _, err := trace.ParseLevel(name); err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
	}
	if _, err := trace.ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error")
	}
	if m, err := trace.ParseMode("RING"); err != nil || m != trace.ModeRing {
		t.Fatalf("ParseMode(RING) = %v, %v", m, err)
	}
	if trace.LevelPhase.ShouldEmit(trace.ScopeStub) || !trace.LevelDetail.ShouldEmit(trace.ScopeStub) {
		t.Fatalf("scope filtering wrong")
	}
}

func TestHeartbeatNamesOpenSpan(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelPhase)
	span := trace.Begin(ring, trace.ScopeTarget, "target:ppc-linux-gnu", 0)
	hb := trace.StartHeartbeat(ring, time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	var beat *trace.Event
	for beat == nil && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
		events := ring.Snapshot()
		for i := range events {
			if events[i].Kind == trace.KindHeartbeat {
				beat = &events[i]
				break
			}
		}
	}
	hb.Stop()
	hb.Stop()
	span.End("")
	if beat == nil {
		t.Fatalf("no heartbeat recorded")
	}
	if beat.Extra["in"] != "target:ppc-linux-gnu" {
		t.Fatalf("heartbeat extras %v", beat.Extra)
	}
	var nilBeat *trace.Heartbeat
	nilBeat.Stop()
}
