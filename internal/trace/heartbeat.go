package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat emits a periodic event naming the newest open span, so a
// stuck simulation shows up as heartbeats with no span ends.
type Heartbeat struct {
	tracer Tracer
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartHeartbeat starts emitting every interval. It returns nil when t is
// disabled or interval is not positive; Stop on nil is a no-op.
func StartHeartbeat(t Tracer, interval time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer: t,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run(interval)
	return h
}

func (h *Heartbeat) run(interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	started := time.Now()
	for beat := 1; ; beat++ {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.tracer.Emit(heartbeatEvent(beat, now, now.Sub(started)))
		}
	}
}

func heartbeatEvent(beat int, now time.Time, elapsed time.Duration) *Event {
	n, newest := OpenSpans()
	ev := &Event{
		Time:    now,
		Kind:    KindHeartbeat,
		Scope:   ScopeDriver,
		Name:    "heartbeat",
		Detail:  "#" + strconv.Itoa(beat),
		Elapsed: elapsed,
		Extra:   map[string]string{"open": strconv.Itoa(n)},
	}
	if newest != "" {
		ev.Extra["in"] = newest
	}
	return ev
}

// Stop ends the heartbeat and waits for its goroutine.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
