//go:build !unix

package stubcache

// dirLock is a no-op where flock is unavailable; the in-process mutex
// still serializes access within one process.
func dirLock(string, bool) (func(), error) {
	return func() {}, nil
}
