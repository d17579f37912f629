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

// Package dirs centralizes every filesystem path the policy engine
// touches, the same way snapd's dirs package centralizes snap paths. All
// paths are derived from a single root, settable with SetRootDir so tests
// can run against a scratch tree instead of the real filesystem.
package dirs

import (
	"path/filepath"
	"sync"
)

var mu sync.Mutex

var (
	rootDir string

	// SudoersDir holds the primary rule source file and its drop-in directory.
	SudoersDir string
	// SudoersFile is the primary rule source, read before any drop-in.
	SudoersFile string
	// SudoersIncludeDir holds the per-host/per-package rule source drop-in directory.
	SudoersIncludeDir string
	// TimestampDBPath is the bbolt database backing the authentication cache (C7).
	TimestampDBPath string
	// IOLogRootDir is the root directory I/O-log paths are expanded under (C11).
	IOLogRootDir string
	// LockDir holds advisory lock files used while mutating shared state.
	LockDir string
	// LibExecDir holds helper binaries invoked by the front end (askpass, etc).
	LibExecDir string
	// PolicydSocketPath is the unix socket cmd/policyd listens on.
	PolicydSocketPath string
)

func init() {
	SetRootDir("")
}

// SetRootDir re-derives every path in this package relative to root. An
// empty root means "/". Used by tests to sandbox filesystem access.
func SetRootDir(root string) {
	mu.Lock()
	defer mu.Unlock()

	if root == "" {
		root = "/"
	}
	rootDir = root

	SudoersDir = filepath.Join(rootDir, "etc/sudopolicy")
	SudoersFile = filepath.Join(SudoersDir, "policy")
	SudoersIncludeDir = filepath.Join(SudoersDir, "sudoers.d")
	TimestampDBPath = filepath.Join(rootDir, "var/lib/sudopolicy/timestamps.db")
	IOLogRootDir = filepath.Join(rootDir, "var/log/sudopolicy/iolog")
	LockDir = filepath.Join(rootDir, "var/run/sudopolicy")
	LibExecDir = filepath.Join(rootDir, "usr/libexec/sudopolicy")
	PolicydSocketPath = filepath.Join(LockDir, "policyd.sock")
}

// RootDir returns the current root directory, as last set by SetRootDir.
func RootDir() string {
	mu.Lock()
	defer mu.Unlock()
	return rootDir
}

// StripRootDir strips the current root directory prefix from an absolute
// path, panicking if path is not absolute or not under the root. Mirrors
// the teacher's dirs.StripRootDir semantics exactly (see its tests).
func StripRootDir(path string) string {
	if !filepath.IsAbs(path) {
		panic("supplied path is not absolute " + quote(path))
	}

	mu.Lock()
	root := rootDir
	mu.Unlock()

	if root == "/" {
		return path
	}
	if len(path) < len(root) || path[:len(root)] != root {
		panic("supplied path is not related to global root " + quote(path))
	}
	stripped := path[len(root):]
	if stripped == "" {
		return "/"
	}
	if stripped[0] != '/' {
		stripped = "/" + stripped
	}
	return stripped
}

func quote(s string) string {
	return "\"" + s + "\""
}
