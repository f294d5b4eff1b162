//go:build unix

package stubcache

import (
	"os"

	"golang.org/x/sys/unix"
)

// dirLock takes an advisory flock on the file next to the cache directory,
// so separate stubgen processes cannot drop the cache under a writer.
func dirLock(dir string, exclusive bool) (func(), error) {
	f, err := os.OpenFile(dir+".lock", os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, err
	}
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	for {
		err = unix.Flock(int(f.Fd()), how)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}
