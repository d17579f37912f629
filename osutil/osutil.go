// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2026 The sudopolicy Authors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package osutil collects the small filesystem and OS helpers every
// other package needs, the same role the teacher's osutil package plays
// in snapd: atomic file writes, ownership/mode checks, and a debug-log
// toggle read from the environment.
package osutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var debugEnabled = os.Getenv("SUDOPOLICY_DEBUG") != ""

// Debugf logs a debug message to stderr when SUDOPOLICY_DEBUG is set in
// the environment, mirroring snapd's SNAPD_DEBUG-gated debug helpers.
func Debugf(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	fmt.Fprintf(os.Stderr, "DEBUG: "+format+"\n", args...)
}

// FileExists reports whether path exists, swallowing anything but a
// "not exist" error by treating it as existing (conservative: callers
// doing security-sensitive checks should stat directly instead).
func FileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}

// AtomicWriteFile writes data to path by writing to a temporary file in
// the same directory and renaming over the target, so a concurrent
// reader never observes a partial write. perm is applied via Chmod
// before the rename because umask can otherwise mask bits off at
// create time.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sudopolicy-tmp-*")
	if err != nil {
		return fmt.Errorf("cannot create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CheckFileOwnership verifies the file discipline spec.md §6 requires of
// rule sources: a regular file, owned by ownerUID, not group- or
// world-writable unless the group write bit is explicitly allowed
// because it matches allowedGID.
func CheckFileOwnership(path string, ownerUID int, allowedGID int) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	uid, gid, ok := fileOwner(fi)
	if !ok {
		return fmt.Errorf("%s: cannot determine ownership on this platform", path)
	}
	if uid != ownerUID {
		return fmt.Errorf("%s must be owned by uid %d, is owned by %d", path, ownerUID, uid)
	}
	perm := fi.Mode().Perm()
	if perm&0002 != 0 {
		return fmt.Errorf("%s must not be world-writable", path)
	}
	if perm&0020 != 0 && gid != allowedGID {
		return fmt.Errorf("%s must not be group-writable by gid %d", path, gid)
	}
	return nil
}

// MustAtoi parses s as a decimal integer or returns ok=false.
func MustAtoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
