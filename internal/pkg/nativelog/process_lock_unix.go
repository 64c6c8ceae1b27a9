//go:build !windows

package nativelog

import (
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	logLockOnce sync.Once
	logLockFile *os.File
	logLockErr  error
)

// withProcessLogLock serializes appends across clustered worker processes
// sharing the same daily log file.
func withProcessLogLock(fn func() error) error {
	f, err := getProcessLogLockFile()
	if err != nil {
		// Lock file unavailable; better to log unserialized than drop frames.
		return fn()
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fn()
	}
	defer func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}()
	return fn()
}

func getProcessLogLockFile() (*os.File, error) {
	logLockOnce.Do(func() {
		path := filepath.Join(ResolveDir(), ".nativelog.lock")
		logLockFile, logLockErr = os.OpenFile(path, os.O_CREATE|os.O_RDWR, defaultFilePerm)
	})
	if logLockErr != nil {
		return nil, logLockErr
	}
	return logLockFile, nil
}
