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

// Package rulesource implements the Rule Source Manager (C4): an
// ordered list of named rule sources, each exposing the five operations
// of spec.md §3/§6 (open/parse/get_defaults/close/source). A transient
// Open/Parse failure drops that source without aborting; only if every
// source drops is the request an error (spec.md §3 RS, §4.4).
package rulesource

import (
	"fmt"

	"gopkg.in/retry.v1"

	"github.com/sudopolicy/sudopolicy/defaults"
	"github.com/sudopolicy/sudopolicy/errkind"
	"github.com/sudopolicy/sudopolicy/osutil"
	"github.com/sudopolicy/sudopolicy/privilege"
	"github.com/sudopolicy/sudopolicy/sudoers"
)

// Source is the narrow, five-operation interface a rule source must
// implement (spec.md §6 "Rule source interface").
type Source interface {
	Open() error
	Parse() (*sudoers.RuleSet, error)
	GetDefaults() ([]defaults.Entry, error)
	Close() error
	String() string
}

// retryStrategy retries transient Open/Parse failures (e.g. a rule
// source on a momentarily-unavailable NFS mount) a few times before the
// Manager gives up on that source, per gopkg.in/retry.v1's regular
// strategy idiom.
var retryStrategy = retry.LimitCount(3, retry.Exponential{
	Initial: 0, // zero: failed attempts are retried without delay
	Factor:  2,
})

// Manager holds the ordered source list and the subset that opened
// successfully.
type Manager struct {
	all    []Source
	active []Source
}

// New returns a Manager over sources in the given order (spec.md §4.4:
// "Reads an ordered source list from the platform's nsswitch-style
// configuration").
func New(sources []Source) *Manager {
	return &Manager{all: sources}
}

// Load opens and parses every source, dropping any that fail both
// (logged, non-fatal) and returning a PolicyError only if every source
// dropped. gate is pushed to SUDOERS for the duration of every source's
// Open/Parse, popped after, so rule-file I/O never runs at the
// caller's ambient privilege (spec.md §4.2, §4.4).
func (m *Manager) Load(gate *privilege.Gate) (ruleSets []*sudoers.RuleSet, err error) {
	m.active = nil
	for _, src := range m.all {
		rs, ok := m.loadOne(gate, src)
		if !ok {
			continue
		}
		m.active = append(m.active, src)
		ruleSets = append(ruleSets, rs)
	}
	if len(m.active) == 0 && len(m.all) > 0 {
		return nil, errkind.NewPolicy("no valid rule sources (all %d configured source(s) failed to open)", nil, len(m.all))
	}
	return ruleSets, nil
}

func (m *Manager) loadOne(gate *privilege.Gate, src Source) (*sudoers.RuleSet, bool) {
	var lastErr error
	for a := retryStrategy.Start(nil); a.Next(nil); {
		rs, ok, err := m.loadOnePushed(gate, src)
		if ok {
			return rs, true
		}
		lastErr = err
	}
	osutil.Debugf("rulesource: dropping source %s: %v", src.String(), lastErr)
	return nil, false
}

// loadOnePushed runs a single Open/Parse attempt with gate held at
// SUDOERS, restoring the prior state before returning either way.
func (m *Manager) loadOnePushed(gate *privilege.Gate, src Source) (*sudoers.RuleSet, bool, error) {
	tok, err := gate.Push(privilege.Sudoers)
	if err != nil {
		return nil, false, errkind.NewPrivilege("cannot push SUDOERS to load %s", err, src.String())
	}
	defer tok.Pop()

	if err := src.Open(); err != nil {
		return nil, false, err
	}
	rs, err := src.Parse()
	if err != nil {
		src.Close()
		return nil, false, err
	}
	return rs, true, nil
}

// GetDefaults aggregates GetDefaults() across every source that loaded
// successfully; a failure on one source is logged and skipped, never
// fatal (spec.md §4.4: "GetDefaults failures are non-fatal").
func (m *Manager) GetDefaults() []defaults.Entry {
	var out []defaults.Entry
	for _, src := range m.active {
		entries, err := src.GetDefaults()
		if err != nil {
			osutil.Debugf("rulesource: get_defaults failed for %s: %v", src.String(), err)
			continue
		}
		out = append(out, entries...)
	}
	return out
}

// Active returns the sources that successfully opened, in source order,
// for C6 to walk.
func (m *Manager) Active() []Source {
	return m.active
}

// Close closes every active source. A source whose Parse failed was
// already closed inside loadOnePushed and is not closed again here.
func (m *Manager) Close() error {
	var firstErr error
	for _, src := range m.active {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", src.String(), err)
		}
	}
	return firstErr
}
