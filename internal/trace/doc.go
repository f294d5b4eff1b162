// Package trace records spans and point events for the stub generator.
//
// Enable tracing via command-line flags:
//
//	stubgen build --trace=- --trace-level=detail
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: circular buffer, dumped when a build fails
//   - MultiTracer: fans events out to several tracers
//
// # Scopes and levels
//
// ScopeDriver covers CLI commands, ScopeTarget one target triple, ScopeStub
// one generator invocation or self-check scenario and ScopeInstr a single
// simulated instruction. LevelPhase emits driver and target spans,
// LevelDetail adds stubs and LevelDebug adds instructions.
//
// # Context propagation
//
// The tracer and the current span travel in the context. Pipeline workers
// tag their context with WithWorker so the text and Chrome outputs can
// separate concurrent targets.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopeStub, "stub:map-change")
//	defer span.End("")
package trace
