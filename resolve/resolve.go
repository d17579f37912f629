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

// Package resolve implements the Command Resolver (C5): PATH search
// honoring secure_path/ignore_dot and an optional chroot pivot,
// canonicalization, and argv shaping for login/edit modes (spec.md
// §4.5). The chroot pivot's fd-capture-before-chroot idiom is grounded
// on other_examples' apptainer actions_linux.go / oci_linux.go, which
// carry the real open("/")+open(root)+chroot()+fchdir() sequence this
// function mirrors.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sudopolicy/sudopolicy/errkind"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/privilege"
)

// Result is what Resolve hands back to the Orchestrator.
type Result struct {
	Path   string
	Status model.CommandStatus
	Stat   os.FileInfo
	Dir    string // canonicalized containing directory
}

// Resolver searches PATH under the privilege gate provided to Resolve.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver { return &Resolver{} }

// Resolve finds name on pathEnv (or secure, if the user isn't exempt
// from secure_path), optionally pivoting into chroot first, searching
// as Root and retrying as User on NOT_FOUND (spec.md §4.5). ignoreDot
// controls whether a hit via the literal "." PATH entry is reported as
// model.StatusFoundButInDot or treated as an ordinary find.
func (r *Resolver) Resolve(gate *privilege.Gate, name string, pathEnv string, secure []string, secureExempt bool, chroot string, ignoreDot bool) (*Result, error) {
	if name == "" {
		return nil, errkind.NewInput("no command specified", nil)
	}

	var unpivot func() error
	if chroot != "" && chroot != "*" {
		var err error
		unpivot, err = pivotRoot(chroot)
		if err != nil {
			return nil, errkind.NewResolution("cannot pivot into chroot %s: %v", err, chroot, err)
		}
	}
	defer func() {
		if unpivot != nil {
			if err := unpivot(); err != nil {
				// unpivot failure leaves the process chrooted; this is
				// a privilege invariant violation, not swallowed.
				panic(fmt.Sprintf("resolve: failed to unpivot chroot: %v", err))
			}
		}
	}()

	effectivePath := pathEnv
	if !secureExempt && len(secure) > 0 {
		effectivePath = strings.Join(secure, ":")
	}

	rootTok, pErr := gate.Push(privilege.Root)
	if pErr != nil {
		return &Result{Status: model.StatusNotFoundError}, errkind.NewPrivilege("cannot switch to root for command search: %v", pErr, pErr)
	}
	res, viaDot, err := searchPath(name, effectivePath)
	rootTok.Pop()

	if err != nil || res == nil {
		userTok, pErr := gate.Push(privilege.User)
		if pErr != nil {
			return &Result{Status: model.StatusNotFoundError}, errkind.NewPrivilege("cannot drop to user for fallback search: %v", pErr, pErr)
		}
		res, viaDot, err = searchPath(name, effectivePath)
		userTok.Pop()
	}

	if err != nil {
		return &Result{Status: model.StatusNotFoundError}, errkind.NewResolution("error while searching for %q: %v", err, name, err)
	}
	if res == nil {
		return &Result{Status: model.StatusNotFound}, nil
	}

	status := model.StatusFound
	if viaDot && ignoreDot {
		status = model.StatusFoundButInDot
	}

	dir, derr := filepath.Abs(filepath.Dir(res.Path))
	if derr == nil {
		res.Dir = dir
	}
	res.Status = status
	return res, nil
}

// searchPath walks path's colon-separated entries looking for name (if
// name contains a slash, it is used as-is). Reports whether the match
// came from the literal "." entry, the signal for FOUND_BUT_IN_DOT.
func searchPath(name, path string) (*Result, bool, error) {
	if strings.Contains(name, "/") {
		fi, err := os.Stat(name)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		return &Result{Path: name, Stat: fi}, false, nil
	}

	for _, dir := range strings.Split(path, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		fi, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if fi.IsDir() {
			continue
		}
		if fi.Mode()&0111 == 0 {
			continue
		}
		return &Result{Path: candidate, Stat: fi}, dir == ".", nil
	}
	return nil, false, nil
}

// pivotRoot opens fds for "/" and root before chrooting, returning an
// unpivot func that restores the original root on every call path
// (spec.md §4.5: "Unpivot on all exit paths, even on error").
func pivotRoot(root string) (func() error, error) {
	oldRootFd, err := unix.Open("/", unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open /: %w", err)
	}
	newRootFd, err := unix.Open(root, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		unix.Close(oldRootFd)
		return nil, fmt.Errorf("cannot open chroot target %s: %w", root, err)
	}
	if err := unix.Fchdir(newRootFd); err != nil {
		unix.Close(oldRootFd)
		unix.Close(newRootFd)
		return nil, err
	}
	if err := unix.Chroot("."); err != nil {
		unix.Close(oldRootFd)
		unix.Close(newRootFd)
		return nil, err
	}
	return func() error {
		defer unix.Close(oldRootFd)
		defer unix.Close(newRootFd)
		if err := unix.Fchdir(oldRootFd); err != nil {
			return err
		}
		if err := unix.Chroot("."); err != nil {
			return err
		}
		return nil
	}, nil
}
