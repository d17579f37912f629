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

// Package privilege implements the Privilege Gate (C2): a stack of
// identity states with strict save/restore, plus the RLIMIT_NPROC raise
// snapd-adjacent tooling (and real sudo) performs before any setuid
// transition because per-uid nproc limits can spuriously fail it
// (spec.md §4.2). Grounded on the save/restore-uid idiom visible in
// other_examples' unshare_linux.go and standard_init_linux.go (both
// carry real, full setuid/setgid sequencing code), realized here with
// golang.org/x/sys/unix instead of direct syscall package use.
package privilege

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// State names the identity a Gate can be pushed into (spec.md §4.2).
type State int

const (
	Initial State = iota
	Root
	Sudoers
	User
	Runas
)

func (s State) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Root:
		return "ROOT"
	case Sudoers:
		return "SUDOERS"
	case User:
		return "USER"
	case Runas:
		return "RUNAS"
	default:
		return "UNKNOWN"
	}
}

// Identity is the (uid, gid, supplementary groups) triple a state
// transitions to.
type Identity struct {
	UID    int
	GID    int
	Groups []int
}

// Transitioner performs the actual OS-level identity switch. Production
// code uses unixTransitioner; tests inject a fake so they don't need
// root.
type Transitioner interface {
	Setresuid(ruid, euid, suid int) error
	Setresgid(rgid, egid, sgid int) error
	Setgroups(gids []int) error
	Getuid() int
	Getgid() int
}

type unixTransitioner struct{}

func (unixTransitioner) Setresuid(r, e, s int) error { return unix.Setresuid(r, e, s) }
func (unixTransitioner) Setresgid(r, e, s int) error { return unix.Setresgid(r, e, s) }
func (unixTransitioner) Setgroups(gids []int) error  { return unix.Setgroups(gids) }
func (unixTransitioner) Getuid() int                 { return unix.Getuid() }
func (unixTransitioner) Getgid() int                 { return unix.Getgid() }

// Gate is the privilege stack described in spec.md §4.2. The zero value
// is not usable; construct one with New or NewWithTransitioner.
type Gate struct {
	mu          sync.Mutex
	stack       []frame
	identities  map[State]Identity
	t           Transitioner
	savedNproc  *unix.Rlimit
	nprocRaised bool
}

type frame struct {
	state State
	prev  Identity
}

// New returns a Gate configured with the identities each state
// transitions to. identities[Initial] is the identity the process
// entered with (spec.md §4.2 "INITIAL (as entered, typically
// setuid-root with real=invoker)").
func New(identities map[State]Identity) *Gate {
	return &Gate{identities: identities, t: unixTransitioner{}}
}

// NewWithTransitioner is like New but injects a Transitioner, used by
// tests that exercise the stack's push/pop/rollback logic without
// requiring root privileges to actually call setresuid(2).
func NewWithTransitioner(identities map[State]Identity, t Transitioner) *Gate {
	return &Gate{identities: identities, t: t}
}

// Token is returned by Push and is the only way to return to the
// previous state; every exit path must call Pop exactly once (spec.md
// §4.2, §9).
type Token struct {
	gate  *Gate
	state State
	done  bool
}

// Push transitions to state, returning a Token to Pop back. A failed
// Push leaves the stack unchanged (spec.md §4.2 invariant).
func (g *Gate) Push(state State) (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, ok := g.identities[state]
	if !ok {
		return nil, fmt.Errorf("privilege: no identity configured for state %s", state)
	}

	prev := Identity{UID: g.t.Getuid(), GID: g.t.Getgid()}

	if err := g.t.Setresgid(id.GID, id.GID, id.GID); err != nil {
		return nil, fmt.Errorf("privilege: cannot switch to gid %d for %s: %w", id.GID, state, err)
	}
	if err := g.t.Setgroups(id.Groups); err != nil {
		return nil, fmt.Errorf("privilege: cannot set supplementary groups for %s: %w", state, err)
	}
	if err := g.t.Setresuid(id.UID, id.UID, id.UID); err != nil {
		// best-effort rollback of the gid change already applied
		g.t.Setresgid(prev.GID, prev.GID, prev.GID)
		return nil, fmt.Errorf("privilege: cannot switch to uid %d for %s: %w", id.UID, state, err)
	}

	g.stack = append(g.stack, frame{state: state, prev: prev})
	return &Token{gate: g, state: state}, nil
}

// Pop restores the identity active before the matching Push.
func (t *Token) Pop() error {
	if t.done {
		panic("privilege: double-pop of the same token")
	}
	t.done = true

	g := t.gate
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.stack)
	if n == 0 || g.stack[n-1].state != t.state {
		panic("privilege: pop does not match the top of the stack")
	}
	fr := g.stack[n-1]
	g.stack = g.stack[:n-1]

	if err := g.t.Setresuid(fr.prev.UID, fr.prev.UID, fr.prev.UID); err != nil {
		return fmt.Errorf("privilege: cannot restore uid %d: %w", fr.prev.UID, err)
	}
	if err := g.t.Setresgid(fr.prev.GID, fr.prev.GID, fr.prev.GID); err != nil {
		return fmt.Errorf("privilege: cannot restore gid %d: %w", fr.prev.GID, err)
	}
	return nil
}

// Depth returns the current stack depth, mainly for tests asserting a
// clean return to Initial.
func (g *Gate) Depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.stack)
}

// Close asserts the stack is empty, the Go realization of "after the
// final pop the process must be back at INITIAL" (spec.md §4.2). The
// Orchestrator's entry points do not call it; they rely on deferring
// every Token's Pop.
func (g *Gate) Close() {
	if d := g.Depth(); d != 0 {
		panic(fmt.Sprintf("privilege: gate closed with %d unpopped frame(s)", d))
	}
}

// RaiseNproc raises RLIMIT_NPROC to infinity, falling back to the hard
// limit, because per-uid nproc limits can spuriously fail a setuid
// transition (spec.md §4.2). Call before any Push; call RestoreNproc
// in the matching teardown.
func (g *Gate) RaiseNproc() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &cur); err != nil {
		return fmt.Errorf("privilege: cannot read RLIMIT_NPROC: %w", err)
	}
	g.savedNproc = &unix.Rlimit{Cur: cur.Cur, Max: cur.Max}

	want := unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY}
	if err := unix.Setrlimit(unix.RLIMIT_NPROC, &want); err != nil {
		// fall back to the hard limit
		want.Cur = cur.Max
		want.Max = cur.Max
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &want); err != nil {
			return fmt.Errorf("privilege: cannot raise RLIMIT_NPROC: %w", err)
		}
	}
	g.nprocRaised = true
	return nil
}

// RestoreNproc restores the RLIMIT_NPROC value RaiseNproc observed on
// entry (spec.md §8 invariant: "RLIMIT_NPROC on return equals the value
// on entry").
func (g *Gate) RestoreNproc() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.nprocRaised || g.savedNproc == nil {
		return nil
	}
	saved := *g.savedNproc
	g.nprocRaised = false
	g.savedNproc = nil
	return unix.Setrlimit(unix.RLIMIT_NPROC, &saved)
}
