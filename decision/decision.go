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

// Package decision implements the Decision Emitter (C10): building the
// allow/deny/error record handed back to the front-end, serializing it,
// and emitting an audit event for every outcome (spec.md §4.10, §6).
package decision

import (
	"time"

	"github.com/coreos/go-systemd/journal"
	"gopkg.in/yaml.v3"

	"github.com/sudopolicy/sudopolicy/errkind"
)

// Outcome is the tri-state result spec.md §6 describes: allow, deny, or
// error (itself split into usage vs. other errors by ExitCode).
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeDeny
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	default:
		return "error"
	}
}

// Record is the output record of spec.md §6: on allow it carries the
// resolved execution plan; on deny/error it carries only the message
// and exit code the front-end surfaces to the user.
type Record struct {
	Outcome Outcome `yaml:"outcome"`

	Argv      []string `yaml:"argv,omitempty"`
	Env       []string `yaml:"env,omitempty"`
	Umask     uint32   `yaml:"umask,omitempty"`
	IOLogPath string   `yaml:"iolog_path,omitempty"`
	Citation  string   `yaml:"citation,omitempty"`

	Message  string `yaml:"message,omitempty"`
	ExitCode int    `yaml:"exit_code,omitempty"`
}

// Serialize renders r as YAML, the documented stand-in for the real
// plugin's custom binary wire format (spec.md §4.10 EXPANSION note).
func (r *Record) Serialize() ([]byte, error) {
	out, err := yaml.Marshal(r)
	if err != nil {
		return nil, errkind.NewResource("cannot serialize decision record", err)
	}
	return out, nil
}

// AuditEvent is what Emitter hands to Sink on every outcome, the
// Go realization of spec.md §4.10's "emit audit events".
type AuditEvent struct {
	Time     time.Time
	Outcome  Outcome
	User     string
	Command  string
	Citation string
	Message  string
}

// Sink accepts audit events. JournalSink is the production
// implementation; tests inject a recording fake.
type Sink interface {
	Emit(ev AuditEvent) error
}

// JournalSink writes audit events to the systemd journal via
// github.com/coreos/go-systemd/journal, falling back to a no-op when the
// journal socket isn't present (e.g. under a container without systemd,
// or in tests), matching journal.Send's own documented behavior.
type JournalSink struct{}

// Emit sends ev to the journal under the sudopolicy syslog identifier.
func (JournalSink) Emit(ev AuditEvent) error {
	if !journal.Enabled() {
		return nil
	}
	priority := journal.PriInfo
	if ev.Outcome != OutcomeAllow {
		priority = journal.PriNotice
	}
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": "sudopolicy",
		"OUTCOME":           ev.Outcome.String(),
		"SUDO_USER":         ev.User,
		"SUDO_COMMAND":      ev.Command,
		"CITATION":          ev.Citation,
	}
	return journal.Send(ev.Message, priority, vars)
}

// Emitter builds Records and routes an AuditEvent to Sink for every one
// it builds, honoring the "Orchestrator never paraphrases" rule of
// spec.md §6 by taking the message verbatim from the caller.
type Emitter struct {
	Sink Sink
	Now  func() time.Time
}

// NewEmitter returns an Emitter backed by sink; a nil sink disables
// auditing, for callers that want a decision without a log side effect.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{Sink: sink, Now: time.Now}
}

func (e *Emitter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Emitter) audit(ev AuditEvent) {
	if e.Sink == nil {
		return
	}
	ev.Time = e.now()
	// audit failures are logged by the sink itself (journal.Send returns
	// an error only for a malformed event); never fail the decision.
	_ = e.Sink.Emit(ev)
}

// Allow builds the allow record of spec.md §4.10: resolved argv, env,
// umask (computed by the caller as def_umask|user_umask unless
// umask_override), iolog path, and source citation.
func (e *Emitter) Allow(user, command string, argv, env []string, umask uint32, iologPath, citation string) *Record {
	r := &Record{
		Outcome:   OutcomeAllow,
		Argv:      argv,
		Env:       env,
		Umask:     umask,
		IOLogPath: iologPath,
		Citation:  citation,
	}
	e.audit(AuditEvent{Outcome: OutcomeAllow, User: user, Command: command, Citation: citation, Message: "permitted"})
	return r
}

// Deny builds the deny record; exit code 0 to the front-end's boolean
// check, but the message is still surfaced to the user.
func (e *Emitter) Deny(user, command, message, citation string) *Record {
	r := &Record{Outcome: OutcomeDeny, Message: message, Citation: citation}
	e.audit(AuditEvent{Outcome: OutcomeDeny, User: user, Command: command, Citation: citation, Message: message})
	return r
}

// Error builds the error record: exit code -1, or -2 for a usage error
// (spec.md §4.10/§6 — "implied shell without shell_noargs" is the
// canonical usage error).
func (e *Emitter) Error(user, command, message string, usage bool) *Record {
	code := -1
	if usage {
		code = -2
	}
	r := &Record{Outcome: OutcomeError, Message: message, ExitCode: code}
	e.audit(AuditEvent{Outcome: OutcomeError, User: user, Command: command, Message: message})
	return r
}
