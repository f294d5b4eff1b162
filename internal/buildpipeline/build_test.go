package buildpipeline_test

import (
	"context"
	"testing"

	"stubgen/internal/buildpipeline"
	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/stubcache"
	"stubgen/internal/trace"
)

func TestBuildVerifiesAndCaches(t *testing.T) {
	cache, err := stubcache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	req := &buildpipeline.Request{
		Targets: layout.Targets(),
		Options: codegen.Options{DebugCode: true},
		Jobs:    2,
		Cache:   cache,
	}
	sink := &buildpipeline.CollectSink{}
	req.Progress = sink

	first, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	want := len(layout.Targets()) * len(codegen.Stubs())
	if len(first.Artifacts) != want {
		t.Fatalf("got %d artifacts, want %d", len(first.Artifacts), want)
	}
	items := buildpipeline.Items(req)
	for i, art := range first.Artifacts {
		if art.Cached || len(art.Results) == 0 {
			t.Fatalf("%s: cached=%v with %d results on a cold cache", art.Name(), art.Cached, len(art.Results))
		}
		if art.Name() != items[i] {
			t.Fatalf("artifact %d is %s, want %s", i, art.Name(), items[i])
		}
	}
	if !first.Timings.Has(buildpipeline.StageVerify) {
		t.Fatalf("no verify timing recorded")
	}

	done := make(map[string]bool)
	for _, ev := range sink.Events() {
		if ev.Item != "" && ev.Stage == buildpipeline.StageCache && ev.Status == buildpipeline.StatusDone {
			done[ev.Item] = true
		}
	}
	if len(done) != want {
		t.Fatalf("%d item(s) reported done, want %d", len(done), want)
	}

	req.Progress = nil
	second, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	for i, art := range second.Artifacts {
		if !art.Cached {
			t.Fatalf("%s regenerated on a warm cache", art.Name())
		}
		if len(art.Program.Instrs) != len(first.Artifacts[i].Program.Instrs) {
			t.Fatalf("%s: cached program differs", art.Name())
		}
	}
	if second.Timings.Has(buildpipeline.StageGenerate) {
		t.Fatalf("warm build generated code")
	}
}

func TestBuildSubsetWithoutCache(t *testing.T) {
	req := &buildpipeline.Request{
		Targets: []layout.Target{layout.PPCLinuxGNU()},
		Stubs:   []codegen.Stub{codegen.StubStringCharLoad},
	}
	res, err := buildpipeline.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Name() != "ppc-linux-gnu/string-char-load" {
		t.Fatalf("artifacts %v", res.Artifacts)
	}
}

func TestBuildRejectsInvalidRegisters(t *testing.T) {
	regs := codegen.DefaultStringCharRegs()
	regs.Index = regs.String
	req := &buildpipeline.Request{
		Targets: []layout.Target{layout.PPC64LinuxGNU()},
		Options: codegen.Options{StringChar: regs},
	}
	if _, err := buildpipeline.Build(context.Background(), req); err == nil {
		t.Fatalf("aliased registers built")
	}
}

func TestBuildNeedsTargets(t *testing.T) {
	if _, err := buildpipeline.Build(context.Background(), &buildpipeline.Request{}); err == nil {
		t.Fatalf("empty request built")
	}
}

func TestBuildTagsTargetSpansWithWorkers(t *testing.T) {
	ring := trace.NewRingTracer(256, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), ring)
	req := &buildpipeline.Request{
		Targets: []layout.Target{layout.PPC64LinuxGNU(), layout.PPCLELinuxGNU()},
		Stubs:   []codegen.Stub{codegen.StubMapChange},
		Jobs:    2,
	}
	if _, err := buildpipeline.Build(ctx, req); err != nil {
		t.Fatalf("Build: %v", err)
	}
	workers := make(map[string]int)
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanEnd && ev.Scope == trace.ScopeTarget {
			workers[ev.Name] = ev.Worker
		}
	}
	if len(workers) != 2 {
		t.Fatalf("target spans %v", workers)
	}
	if workers["target:ppc64-linux-gnu"] != 1 || workers["target:ppcle-linux-gnu"] != 2 {
		t.Fatalf("worker tags %v", workers)
	}
}
