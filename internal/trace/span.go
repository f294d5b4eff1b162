package trace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID returns a fresh span ID.
func NextSpanID() uint64 { return spanCounter.Add(1) }

// open tracks live spans so a heartbeat can say what is still running.
var open struct {
	mu    sync.Mutex
	names map[uint64]string
}

func markOpen(id uint64, name string) {
	open.mu.Lock()
	if open.names == nil {
		open.names = make(map[uint64]string)
	}
	open.names[id] = name
	open.mu.Unlock()
}

func markClosed(id uint64) {
	open.mu.Lock()
	delete(open.names, id)
	open.mu.Unlock()
}

// OpenSpans returns the number of spans begun and not yet ended and the
// name of the most recently begun one still open.
func OpenSpans() (int, string) {
	open.mu.Lock()
	defer open.mu.Unlock()
	newest := ""
	var newestID uint64
	for id, name := range open.names {
		if id > newestID {
			newestID, newest = id, name
		}
	}
	return len(open.names), newest
}

// Span is an open begin/end pair. A disabled Span is safe to use.
type Span struct {
	tracer   Tracer
	id       uint64
	parentID uint64
	worker   int
	scope    Scope
	name     string
	started  time.Time
	extra    map[string]string
}

// Begin emits the begin event of a span nested under parent.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	return begin(t, scope, name, SpanContext{SpanID: parent})
}

// StartSpan begins a span under the current span of ctx and returns a
// context for its children.
func StartSpan(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	parent := CurrentSpan(ctx)
	s := begin(FromContext(ctx), scope, name, parent)
	if s.id == 0 {
		return ctx, s
	}
	return WithSpanContext(ctx, SpanContext{SpanID: s.id, Worker: parent.Worker}), s
}

func begin(t Tracer, scope Scope, name string, parent SpanContext) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{tracer: Nop}
	}
	s := &Span{
		tracer:   t,
		id:       NextSpanID(),
		parentID: parent.SpanID,
		worker:   parent.Worker,
		scope:    scope,
		name:     name,
		started:  time.Now(),
	}
	markOpen(s.id, name)
	t.Emit(s.event(KindSpanBegin, s.started))
	return s
}

func (s *Span) event(kind Kind, at time.Time) *Event {
	return &Event{
		Time:     at,
		Kind:     kind,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parentID,
		Worker:   s.worker,
		Name:     s.name,
	}
}

// End emits the end event and returns the span's duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 {
		return 0
	}
	now := time.Now()
	ev := s.event(KindSpanEnd, now)
	ev.Detail = detail
	ev.Elapsed = now.Sub(s.started)
	ev.Extra = s.extra
	markClosed(s.id)
	s.tracer.Emit(ev)
	s.id = 0
	return ev.Elapsed
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID, 0 when disabled or ended.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}
