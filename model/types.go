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

// Package model holds the data model of spec.md §3: the per-request
// contexts threaded through the whole pipeline. Its only in-module
// dependency is identity, so every other package can import it without
// a cycle.
package model

import (
	"time"

	"github.com/sudopolicy/sudopolicy/identity"
)

// UserContext (UC) captures invoking-side facts, fixed at process init
// (spec.md §3 Lifecycle).
type UserContext struct {
	Name string
	UID  int
	GID  int
	// Groups is the supplementary gid set; always a superset of {GID}.
	Groups []int

	TTYName string
	TTYPath string
	// TCPgrp is the controlling tty's process-group id, -1 if none.
	TCPgrp int

	Cwd  string
	Host string
	// ShortHost is Host truncated at the first ".".
	ShortHost string

	// Path is the PATH the user had in their environment at invocation.
	Path string

	// PriorUser is SUDO_USER from the environment, if set: a previously
	// elevated user's name, consulted by the step-9 rebind quirk
	// (spec.md §4.9, §9).
	PriorUser string

	CredentialCache string
	Prompt          string
	CloseFrom       int
	Timeout         time.Duration

	Argv []string

	Umask uint32

	// Cred is the invoking user's resolved identity (C1 ref, owned).
	Cred *identity.Entry

	// EnvAdd is the set of "VAR=value" additions requested on the
	// command line (-E, env_add) before validation against setenv.
	EnvAdd []string
}

// Validate checks the UC invariants from spec.md §3.
func (uc *UserContext) Validate(mode Mode) error {
	hasTTYName := uc.TTYName != ""
	hasTTYPath := uc.TTYPath != ""
	if hasTTYName != hasTTYPath {
		return errInvariant("tty fields must be both present or both absent")
	}
	groupSet := false
	for _, g := range uc.Groups {
		if g == uc.GID {
			groupSet = true
			break
		}
	}
	if !groupSet {
		return errInvariant("supplementary group set must include the primary gid")
	}
	if len(uc.Argv) == 0 && mode != ModeValidate && mode != ModeInvalidate && mode != ModeListNoCommand {
		return errInvariant("argv must be non-empty outside validate/invalidate/list-without-command")
	}
	return nil
}

// RunasContext (RC) captures target-side facts, rebuilt on every
// request (spec.md §3 Lifecycle).
type RunasContext struct {
	TargetUser  string
	TargetGroup string

	// Cred/GroupEntry are owned C1 refs: released by Engine.teardown.
	Cred       *identity.Entry
	GroupEntry *identity.Entry

	LoginClass string
	Chroot     string
	Cwd        string

	SELinuxRole string
	SELinuxType string
	AppArmorProfile string
	Privileges      []string
	Limitprivs      []string

	ResolvedCommand string
	// HostView is the per-host rule view name, usually the UC's Host.
	HostView string

	// UnknownUID/UnknownGID are set when the target resolves from
	// "#nnn" but the id is unknown on the system (spec.md §3).
	UnknownUID bool
	UnknownGID bool
}

// Normalize applies the RC invariant from spec.md §3: a target group
// without a target user means the invoking user is the target user.
func (rc *RunasContext) Normalize(uc *UserContext) {
	if rc.TargetGroup != "" && rc.TargetUser == "" {
		rc.TargetUser = uc.Name
	}
}

// Mode is the front-end entry point / CLI mode in effect for this
// request (spec.md §4.9).
type Mode int

const (
	ModeRun Mode = iota
	ModeEdit
	ModeValidate
	ModeInvalidate
	ModeList
	ModeListNoCommand
	ModeLoginShell
	ModeShellViaC
)

// CommandStatus is produced by the Command Resolver (C5), spec.md §3.
type CommandStatus int

const (
	StatusFound CommandStatus = iota
	StatusFoundButInDot
	StatusNotFound
	StatusNotFoundError
)

func (s CommandStatus) String() string {
	switch s {
	case StatusFound:
		return "FOUND"
	case StatusFoundButInDot:
		return "FOUND_BUT_IN_DOT"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotFoundError:
		return "NOT_FOUND_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ValidationFlags is the bitset produced by C6 and consumed by C9/C10
// (spec.md §3).
type ValidationFlags uint32

const (
	FlagSuccess ValidationFlags = 1 << iota
	FlagError
	FlagOKIfDenied
	FlagNoMatch
)

func (f ValidationFlags) Has(bit ValidationFlags) bool { return f&bit != 0 }

// MatchInfo (MI) cites the rule that decided a request, spec.md §3.
type MatchInfo struct {
	UserSpec     string
	Privilege    string
	CommandSpec  string
	Source       string
	Line, Column int
}

// Citation renders MI as the "file:line:column" triple spec.md §4.9/§10
// attaches to a decision.
func (m MatchInfo) Citation() string {
	if m.Source == "" {
		return ""
	}
	return m.Source + ":" + itoa(m.Line) + ":" + itoa(m.Column)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
