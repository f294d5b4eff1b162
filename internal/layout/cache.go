package layout

import "sync"

type layoutCache struct {
	mu       sync.RWMutex
	byTarget map[Target]*Layout
}

func newCache() *layoutCache {
	return &layoutCache{byTarget: make(map[Target]*Layout, 4)}
}

func (c *layoutCache) get(t Target) (*Layout, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.byTarget[t]
	return l, ok
}

func (c *layoutCache) put(t Target, l *Layout) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if l == nil {
		delete(c.byTarget, t)
		return
	}
	c.byTarget[t] = l
}
