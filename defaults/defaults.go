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

// Package defaults implements the Defaults Engine (C3): a layered,
// typed key/value settings store with ordered, scoped application and
// change callbacks (spec.md §3 DS, §4.3).
package defaults

import (
	"sync"

	"github.com/sudopolicy/sudopolicy/osutil"
)

// Scope names a Defaults layer, applied in the order listed in
// spec.md §3: initial -> generic -> host -> user -> runas -> per-command.
type Scope int

const (
	ScopeInitial Scope = iota
	ScopeGeneric
	ScopeHost
	ScopeUser
	ScopeRunas
	ScopeCommand
)

// ValueKind is the static type a setting is validated against.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindString
	KindInt
	KindList
)

// Value is a typed setting value.
type Value struct {
	Kind   ValueKind
	Bool   bool
	String string
	Int    int
	List   []string
}

// Entry is one Defaults directive as produced by a rule source's parse
// tree (spec.md §3 DS: "each setting records its origin... for
// diagnostics").
type Entry struct {
	Name   string
	Value  Value
	Scope  Scope
	Source string
	Line   int
	Column int

	// Command is the pattern from a "Defaults!<command>" line
	// (ScopeCommand only); empty for every other scope.
	Command string
}

// spec describes a known setting: its kind and optional validator.
type spec struct {
	kind    ValueKind
	scopes  map[Scope]bool // nil means "any scope"
	validate func(Value) error
}

// Store is the layered settings store (DS). Not safe for concurrent
// request pipelines (spec.md §5: single-threaded by design); mu
// serializes individual Store calls, not whole pipelines.
type Store struct {
	mu        sync.Mutex
	specs     map[string]spec
	values    map[string]Entry
	callbacks map[string][]func(Value)
}

// New returns a Store with no settings applied; call Init to load the
// compiled-in defaults (spec.md §4.3).
func New() *Store {
	return &Store{
		specs:     builtinSpecs(),
		values:    make(map[string]Entry),
		callbacks: make(map[string][]func(Value)),
	}
}

// Init loads the compiled-in defaults as a synthetic ScopeInitial
// layer, discarding any previously applied layers. Used both at
// process start and, quietly, by Reinit (spec.md §4.3, §4.9).
func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]Entry)
	for name, sp := range s.specs {
		s.values[name] = Entry{Name: name, Value: sp.default_(), Scope: ScopeInitial, Source: "<builtin>"}
	}
}

// Reinit re-runs Init and is intended to be followed by Apply with
// quiet=true, the quiet-mode re-application spec.md §4.3/§4.9 requires
// when a sudo invocation handles an intercepted sub-command, so users
// are not shown the same parse warnings twice.
func (s *Store) Reinit() {
	s.Init()
}

// Apply walks entries in file order, skips any whose Scope is not in
// scopeMask, type-checks and sets each remaining one, and invokes
// registered callbacks once per successfully changed setting after the
// whole layer is applied (spec.md §4.3).
func (s *Store) Apply(entries []Entry, scopeMask map[Scope]bool, quiet bool) {
	s.mu.Lock()

	changed := make(map[string]Value)
	for _, e := range entries {
		if scopeMask != nil && !scopeMask[e.Scope] {
			continue
		}
		sp, ok := s.specs[e.Name]
		if !ok {
			if !quiet {
				osutil.Debugf("defaults: unknown setting %q at %s:%d:%d, ignored", e.Name, e.Source, e.Line, e.Column)
			}
			continue
		}
		if e.Value.Kind != sp.kind {
			if !quiet {
				osutil.Debugf("defaults: %q at %s:%d:%d has the wrong type, ignored", e.Name, e.Source, e.Line, e.Column)
			}
			continue
		}
		if sp.validate != nil {
			if err := sp.validate(e.Value); err != nil {
				if !quiet {
					osutil.Debugf("defaults: %q at %s:%d:%d failed validation: %v", e.Name, e.Source, e.Line, e.Column, err)
				}
				continue
			}
		}
		s.values[e.Name] = e
		changed[e.Name] = e.Value
	}
	cbs := s.callbacks
	s.mu.Unlock()

	for name, v := range changed {
		for _, fn := range cbs[name] {
			fn(v)
		}
	}
}

// RegisterCallback arranges for fn to be called once per successful set
// of name, after the layer containing that set finishes applying.
func (s *Store) RegisterCallback(name string, fn func(Value)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = append(s.callbacks[name], fn)
}

// Get returns the current value of name and whether it is set at all.
func (s *Store) Get(name string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.values[name]
	return e.Value, ok
}

// GetBool is a convenience accessor for boolean settings, defaulting to
// false if unset or of the wrong kind.
func (s *Store) GetBool(name string) bool {
	v, ok := s.Get(name)
	return ok && v.Kind == KindBool && v.Bool
}

// GetString is a convenience accessor for string settings.
func (s *Store) GetString(name string) string {
	v, ok := s.Get(name)
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.String
}

// GetInt is a convenience accessor for integer settings.
func (s *Store) GetInt(name string) int {
	v, ok := s.Get(name)
	if !ok || v.Kind != KindInt {
		return 0
	}
	return v.Int
}

// GetList is a convenience accessor for list settings.
func (s *Store) GetList(name string) []string {
	v, ok := s.Get(name)
	if !ok || v.Kind != KindList {
		return nil
	}
	return v.List
}

func (sp spec) default_() Value {
	switch sp.kind {
	case KindBool:
		return Value{Kind: KindBool}
	case KindInt:
		return Value{Kind: KindInt}
	case KindList:
		return Value{Kind: KindList}
	default:
		return Value{Kind: KindString}
	}
}

// builtinSpecs enumerates the settings this engine knows about, the Go
// realization of "compiled-in defaults" (spec.md §4.3). Real sudoers
// ships ~100 of these; this is the subset the rest of the pipeline
// actually consults.
func builtinSpecs() map[string]spec {
	return map[string]spec{
		"root_sudo":              {kind: KindBool},
		"requiretty":             {kind: KindBool},
		"env_reset":              {kind: KindBool},
		"setenv":                 {kind: KindBool},
		"ignore_dot":             {kind: KindBool},
		"secure_path":            {kind: KindString},
		"runas_allow_unknown_id": {kind: KindBool},
		"umask":                  {kind: KindInt},
		"umask_override":        {kind: KindBool},
		"shell_noargs":           {kind: KindBool},
		"ignore_iolog_errors":    {kind: KindBool},
		"iolog_dir":              {kind: KindString},
		"iolog_file":             {kind: KindString},
		"env_keep":               {kind: KindList},
		"env_check":              {kind: KindList},
		"env_file":               {kind: KindString},
		"restricted_env_file":    {kind: KindString},
		"timestamp_timeout":      {kind: KindInt},
		"passwd_tries":           {kind: KindInt},
		"intercept":              {kind: KindBool},
		"admin_flag":             {kind: KindString},
		"chroot_allow":           {kind: KindList},
		"cwd_allow":              {kind: KindList},
		"sudoers_gid":            {kind: KindInt},
	}
}
