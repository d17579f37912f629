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

// Package errkind declares the seven error kinds of spec.md §7, each a
// distinct exported type so the Orchestrator can map an error to the
// tri-state return of §6 (deny/-1/-2) with errors.As instead of string
// matching. Wrapping uses golang.org/x/xerrors so %w-wrapped causes
// survive across the pipeline's teardown step.
package errkind

import (
	"fmt"

	"golang.org/x/xerrors"
)

// InputError: missing command, conflicting options, invalid numeric id.
type InputError struct {
	Msg   string
	Cause error
}

func (e *InputError) Error() string { return e.Msg }
func (e *InputError) Unwrap() error { return e.Cause }

// NewInput builds an InputError, optionally wrapping cause.
func NewInput(format string, cause error, args ...interface{}) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// AuthError: password timeout / empty / read failure / no tty+no
// askpass / backend failure.
type AuthError struct {
	Msg   string
	Cause error
}

func (e *AuthError) Error() string { return e.Msg }
func (e *AuthError) Unwrap() error { return e.Cause }

func NewAuth(format string, cause error, args ...interface{}) *AuthError {
	return &AuthError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// PolicyError: no valid rule sources, parse I/O failure, unknown
// user/group without permission.
type PolicyError struct {
	Msg   string
	Cause error
}

func (e *PolicyError) Error() string { return e.Msg }
func (e *PolicyError) Unwrap() error { return e.Cause }

func NewPolicy(format string, cause error, args ...interface{}) *PolicyError {
	return &PolicyError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// ResolutionError: command not found, command found only via ".",
// name too long.
type ResolutionError struct {
	Msg   string
	Cause error
}

func (e *ResolutionError) Error() string { return e.Msg }
func (e *ResolutionError) Unwrap() error { return e.Cause }

func NewResolution(format string, cause error, args ...interface{}) *ResolutionError {
	return &ResolutionError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// PrivilegeError: identity push/pop failed, rlimit change failed.
type PrivilegeError struct {
	Msg   string
	Cause error
}

func (e *PrivilegeError) Error() string { return e.Msg }
func (e *PrivilegeError) Unwrap() error { return e.Cause }

func NewPrivilege(format string, cause error, args ...interface{}) *PrivilegeError {
	return &PrivilegeError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// ResourceError: allocation failure, environment-build failure.
type ResourceError struct {
	Msg   string
	Cause error
}

func (e *ResourceError) Error() string { return e.Msg }
func (e *ResourceError) Unwrap() error { return e.Cause }

func NewResource(format string, cause error, args ...interface{}) *ResourceError {
	return &ResourceError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// UsageError: implied shell without shell_noargs, -U without -l, etc.
// Maps to the core's -2 return (spec.md §6).
type UsageError struct {
	Msg   string
	Cause error
}

func (e *UsageError) Error() string { return e.Msg }
func (e *UsageError) Unwrap() error { return e.Cause }

func NewUsage(format string, cause error, args ...interface{}) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err's chain contains a value equal to target,
// via xerrors so this works uniformly whether err was wrapped with
// fmt.Errorf("%w", ...) or xerrors.Errorf.
func Is(err, target error) bool {
	return xerrors.Is(err, target)
}

// As finds the first error in err's chain assignable to target's type.
func As(err error, target interface{}) bool {
	return xerrors.As(err, target)
}
