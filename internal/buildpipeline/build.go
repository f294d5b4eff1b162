// Package buildpipeline generates, verifies and caches stubs for a set of
// targets.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"stubgen/internal/codegen"
	"stubgen/internal/layout"
	"stubgen/internal/masm"
	"stubgen/internal/selfcheck"
	"stubgen/internal/stubcache"
	"stubgen/internal/trace"
)

// Request configures a build.
type Request struct {
	Targets []layout.Target
	// Stubs defaults to every stub.
	Stubs   []codegen.Stub
	Options codegen.Options
	// Jobs bounds the targets processed at once; zero means GOMAXPROCS.
	Jobs int
	// Cache is optional; a nil cache always generates.
	Cache    *stubcache.Cache
	Progress ProgressSink
}

// Artifact is one verified program.
type Artifact struct {
	Stub    codegen.Stub
	Target  layout.Target
	Program *masm.Program
	Key     stubcache.Digest
	Cached  bool
	// Results is empty for cached artifacts; they passed when stored.
	Results []selfcheck.CaseResult
}

// Name returns the progress name of the artifact.
func (a *Artifact) Name() string { return ItemName(a.Target.Triple, a.Stub.String()) }

// Result holds the artifacts in request order (targets, then stubs).
type Result struct {
	Artifacts []*Artifact
	Timings   *Timings
}

// VerifyError reports a program that failed its self-checks.
type VerifyError struct {
	Item    string
	Results []selfcheck.CaseResult
}

func (e *VerifyError) Error() string {
	failed := 0
	for _, r := range e.Results {
		if r.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("%s: %d of %d self-check scenario(s) failed", e.Item, failed, len(e.Results))
}

func (e *VerifyError) Unwrap() error { return selfcheck.Errors(e.Results) }

// Items returns the progress names of every artifact req produces.
func Items(req *Request) []string {
	stubs := req.Stubs
	if len(stubs) == 0 {
		stubs = codegen.Stubs()
	}
	items := make([]string, 0, len(req.Targets)*len(stubs))
	for _, t := range req.Targets {
		for _, s := range stubs {
			items = append(items, ItemName(t.Triple, s.String()))
		}
	}
	return items
}

// Build runs generate, verify and cache for every requested stub on every
// target. Targets run in parallel; the first failure cancels the rest.
func Build(ctx context.Context, req *Request) (Result, error) {
	result := Result{Timings: &Timings{}}
	if req == nil {
		return result, errors.New("missing build request")
	}
	if len(req.Targets) == 0 {
		return result, errors.New("no targets to build")
	}
	stubs := req.Stubs
	if len(stubs) == 0 {
		stubs = codegen.Stubs()
	}
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	emit(req.Progress, Event{Stage: StageGenerate, Status: StatusWorking})
	for _, item := range Items(req) {
		emit(req.Progress, Event{Item: item, Stage: StageGenerate, Status: StatusQueued})
	}

	// Indices are unique per goroutine, so no lock is needed.
	result.Artifacts = make([]*Artifact, len(req.Targets)*len(stubs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Targets)))
	for ti, target := range req.Targets {
		ti, target := ti, target
		g.Go(func() error {
			return buildTarget(trace.WithWorker(gctx, ti+1), req, target, stubs, result.Artifacts[ti*len(stubs):(ti+1)*len(stubs)], result.Timings)
		})
	}
	if err := g.Wait(); err != nil {
		emit(req.Progress, Event{Stage: StageCache, Status: StatusError, Err: err})
		return result, err
	}
	emit(req.Progress, Event{Stage: StageCache, Status: StatusDone})
	return result, nil
}

func buildTarget(ctx context.Context, req *Request, target layout.Target, stubs []codegen.Stub, out []*Artifact, timings *Timings) error {
	ctx, span := trace.StartSpan(ctx, trace.ScopeTarget, "target:"+target.Triple)

	cached := 0
	for i, stub := range stubs {
		if err := ctx.Err(); err != nil {
			span.End("canceled")
			return err
		}
		art, err := buildOne(ctx, req, target, stub, timings)
		if err != nil {
			span.End("failed")
			return err
		}
		if art.Cached {
			cached++
		}
		out[i] = art
	}
	span.WithExtra("stubs", strconv.Itoa(len(stubs)))
	span.WithExtra("cached", strconv.Itoa(cached))
	span.End("")
	return nil
}

func buildOne(ctx context.Context, req *Request, target layout.Target, stub codegen.Stub, timings *Timings) (*Artifact, error) {
	art := &Artifact{Stub: stub, Target: target, Key: stubcache.Key(stub, target, req.Options)}
	item := art.Name()
	itemStart := time.Now()

	if req.Cache != nil {
		start := time.Now()
		payload, ok, err := req.Cache.Get(art.Key)
		if err == nil && ok {
			prog, decErr := payload.Decode()
			if decErr == nil {
				art.Program = prog
				art.Cached = true
				elapsed := time.Since(start)
				timings.Add(StageCache, elapsed)
				emit(req.Progress, Event{Item: item, Stage: StageCache, Status: StatusCached, Elapsed: elapsed})
				return art, nil
			}
		}
		// Unreadable entries are regenerated and overwritten.
		timings.Add(StageCache, time.Since(start))
	}

	emit(req.Progress, Event{Item: item, Stage: StageGenerate, Status: StatusWorking})
	start := time.Now()
	prog, err := codegen.Build(ctx, stub, target, req.Options)
	elapsed := time.Since(start)
	timings.Add(StageGenerate, elapsed)
	if err != nil {
		err = fmt.Errorf("%s: %w", item, err)
		emit(req.Progress, Event{Item: item, Stage: StageGenerate, Status: StatusError, Err: err, Elapsed: elapsed})
		return nil, err
	}
	art.Program = prog

	emit(req.Progress, Event{Item: item, Stage: StageVerify, Status: StatusWorking})
	start = time.Now()
	art.Results = selfcheck.Check(ctx, stub, prog, req.Options)
	elapsed = time.Since(start)
	timings.Add(StageVerify, elapsed)
	if selfcheck.Failed(art.Results) {
		err := &VerifyError{Item: item, Results: art.Results}
		emit(req.Progress, Event{Item: item, Stage: StageVerify, Status: StatusError, Err: err, Elapsed: elapsed})
		return nil, err
	}

	if req.Cache != nil {
		emit(req.Progress, Event{Item: item, Stage: StageCache, Status: StatusWorking})
		start = time.Now()
		payload, err := stubcache.NewPayload(prog, len(art.Results))
		if err == nil {
			err = req.Cache.Put(art.Key, payload)
		}
		elapsed = time.Since(start)
		timings.Add(StageCache, elapsed)
		if err != nil {
			err = fmt.Errorf("%s: cache: %w", item, err)
			emit(req.Progress, Event{Item: item, Stage: StageCache, Status: StatusError, Err: err, Elapsed: elapsed})
			return nil, err
		}
	}
	emit(req.Progress, Event{Item: item, Stage: StageCache, Status: StatusDone, Elapsed: time.Since(itemStart)})
	return art, nil
}

func emit(sink ProgressSink, ev Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(ev)
}
