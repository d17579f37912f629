// -*- Mode: Go; indent-tabs-mode: t -*-

package osutil

import (
	"os"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory exclusive lock on a regular file, taken with
// flock(2).
type FileLock struct {
	f *os.File
}

// Lock opens (creating if needed) and locks path, blocking until the
// lock is available.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *FileLock) Unlock() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
