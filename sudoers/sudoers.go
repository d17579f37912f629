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

// Package sudoers is a deliberately small stand-in for the sudoers
// grammar parser and rule AST spec.md §1 names as "assumed available"
// and out of scope. The rest of the pipeline only ever talks to it
// through rulesource.Source, so a fuller parser can replace this one
// without touching C6-C9 (see DESIGN.md's Open Question entry).
//
// Supported line forms, one per line, blank lines and "#"-comments
// ignored:
//
//	Defaults <name>=<value>
//	Defaults:<user> <name>=<value>
//	Defaults@<host> <name>=<value>
//	Defaults>runas_<user> <name>=<value>
//	Defaults!<command> <name>=<value>
//	<user> <host> = (<runas_user>[:<runas_group>]) [NOPASSWD:] <command>
package sudoers

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sudopolicy/sudopolicy/defaults"
)

// sudoersTimeLayout is the CCYYMMDDHHMMSS form real sudo's NOTBEFORE/
// NOTAFTER tags use, interpreted as UTC.
const sudoersTimeLayout = "20060102150405"

// CommandSpec is the innermost level of a rule: which command, under
// what runas constraints (spec.md GLOSSARY "User-spec / privilege /
// command-spec").
type CommandSpec struct {
	RunasUser  string
	RunasGroup string
	NoPasswd   bool
	// Pattern is a command path or glob understood by doublestar, e.g.
	// "/usr/bin/*" or "ALL".
	Pattern string
	Line    int
	Column  int

	// NotBefore/NotAfter bound when this command-spec is active (the
	// date dimension of spec.md §4.6's five-way scoring); zero means
	// unconstrained on that side.
	NotBefore time.Time
	NotAfter  time.Time
}

// Matches reports whether cmd (an absolute resolved path) is covered by
// this command-spec's pattern.
func (cs CommandSpec) Matches(cmd string) bool {
	if cs.Pattern == "ALL" {
		return true
	}
	ok, err := doublestar.Match(cs.Pattern, cmd)
	if err != nil {
		return cs.Pattern == cmd
	}
	return ok || cs.Pattern == cmd
}

// Privilege is a host+runas scope wrapping one or more CommandSpecs.
type Privilege struct {
	Host     string // "ALL" matches any host
	Commands []CommandSpec
}

// UserSpec is the outermost level: which users this rule's Privileges
// apply to.
type UserSpec struct {
	User       string // "ALL" matches any user
	Privileges []Privilege
}

// RuleSet is the parse tree returned by Source.Parse (spec.md §3 RS).
type RuleSet struct {
	UserSpecs []UserSpec
	Defaults  []defaults.Entry
}

// Parse reads a sudoers-like text body, attributing every entry and
// command-spec to sourceName for citations (spec.md MI/Citation).
func Parse(body string, sourceName string) (*RuleSet, error) {
	rs := &RuleSet{}
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "Defaults") {
			entries, err := parseDefaultsLine(line, sourceName, lineNo)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", sourceName, lineNo, err)
			}
			rs.Defaults = append(rs.Defaults, entries...)
			continue
		}
		us, err := parseUserSpecLine(line, sourceName, lineNo)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", sourceName, lineNo, err)
		}
		rs.UserSpecs = append(rs.UserSpecs, us)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func parseDefaultsLine(line, source string, lineNo int) ([]defaults.Entry, error) {
	rest := strings.TrimPrefix(line, "Defaults")
	scope := defaults.ScopeGeneric
	var command string

	switch {
	case strings.HasPrefix(rest, ":"):
		scope = defaults.ScopeUser
		if sp := strings.IndexByte(rest, ' '); sp > 0 {
			rest = rest[sp+1:]
		}
	case strings.HasPrefix(rest, "@"):
		scope = defaults.ScopeHost
		if sp := strings.IndexByte(rest, ' '); sp > 0 {
			rest = rest[sp+1:]
		}
	case strings.HasPrefix(rest, ">"):
		scope = defaults.ScopeRunas
		if sp := strings.IndexByte(rest, ' '); sp > 0 {
			rest = rest[sp+1:]
		}
	case strings.HasPrefix(rest, "!"):
		scope = defaults.ScopeCommand
		rest = rest[1:]
		if sp := strings.IndexByte(rest, ' '); sp > 0 {
			command = rest[:sp]
			rest = rest[sp+1:]
		} else {
			command = rest
			rest = ""
		}
	default:
		rest = strings.TrimSpace(rest)
	}

	rest = strings.TrimSpace(rest)
	var out []defaults.Entry
	for col, field := range strings.Fields(rest) {
		name, val, hasEq := strings.Cut(field, "=")
		v, err := parseValue(val, hasEq)
		if err != nil {
			return nil, err
		}
		out = append(out, defaults.Entry{
			Name: name, Value: v, Scope: scope,
			Source: source, Line: lineNo, Column: col + 1,
			Command: command,
		})
	}
	return out, nil
}

func parseValue(val string, hasEq bool) (defaults.Value, error) {
	if !hasEq {
		return defaults.Value{Kind: defaults.KindBool, Bool: true}, nil
	}
	if val == "true" || val == "false" {
		return defaults.Value{Kind: defaults.KindBool, Bool: val == "true"}, nil
	}
	if n, err := strconv.Atoi(val); err == nil {
		return defaults.Value{Kind: defaults.KindInt, Int: n}, nil
	}
	if strings.Contains(val, ",") {
		return defaults.Value{Kind: defaults.KindList, List: strings.Split(val, ",")}, nil
	}
	return defaults.Value{Kind: defaults.KindString, String: val}, nil
}

// parseUserSpecLine parses:
//
//	user host = (runas_user[:runas_group]) [NOPASSWD:] command
func parseUserSpecLine(line, source string, lineNo int) (UserSpec, error) {
	userHost, rhs, ok := strings.Cut(line, "=")
	if !ok {
		return UserSpec{}, fmt.Errorf("missing '=' in user-spec line %q", line)
	}
	fields := strings.Fields(strings.TrimSpace(userHost))
	if len(fields) != 2 {
		return UserSpec{}, fmt.Errorf("expected \"user host\", got %q", userHost)
	}
	user, host := fields[0], fields[1]

	rhs = strings.TrimSpace(rhs)
	var runasUser, runasGroup string
	if strings.HasPrefix(rhs, "(") {
		end := strings.IndexByte(rhs, ')')
		if end < 0 {
			return UserSpec{}, fmt.Errorf("unterminated runas clause in %q", rhs)
		}
		runas := rhs[1:end]
		runasUser, runasGroup, _ = strings.Cut(runas, ":")
		rhs = strings.TrimSpace(rhs[end+1:])
	}

	noPasswd := false
	if strings.HasPrefix(rhs, "NOPASSWD:") {
		noPasswd = true
		rhs = strings.TrimSpace(strings.TrimPrefix(rhs, "NOPASSWD:"))
	}

	var notBefore, notAfter time.Time
	for {
		switch {
		case strings.HasPrefix(rhs, "NOTBEFORE="):
			field, remainder := cutField(strings.TrimPrefix(rhs, "NOTBEFORE="))
			t, err := time.Parse(sudoersTimeLayout, field)
			if err != nil {
				return UserSpec{}, fmt.Errorf("bad NOTBEFORE timestamp %q: %w", field, err)
			}
			notBefore = t
			rhs = remainder
			continue
		case strings.HasPrefix(rhs, "NOTAFTER="):
			field, remainder := cutField(strings.TrimPrefix(rhs, "NOTAFTER="))
			t, err := time.Parse(sudoersTimeLayout, field)
			if err != nil {
				return UserSpec{}, fmt.Errorf("bad NOTAFTER timestamp %q: %w", field, err)
			}
			notAfter = t
			rhs = remainder
			continue
		}
		break
	}

	return UserSpec{
		User: user,
		Privileges: []Privilege{{
			Host: host,
			Commands: []CommandSpec{{
				RunasUser:  runasUser,
				RunasGroup: runasGroup,
				NoPasswd:   noPasswd,
				Pattern:    rhs,
				Line:       lineNo,
				Column:     1,
				NotBefore:  notBefore,
				NotAfter:   notAfter,
			}},
		}},
	}, nil
}

// cutField splits the next whitespace-delimited token off s, returning
// it and the trimmed remainder.
func cutField(s string) (field, rest string) {
	s = strings.TrimSpace(s)
	if sp := strings.IndexByte(s, ' '); sp >= 0 {
		return s[:sp], strings.TrimSpace(s[sp+1:])
	}
	return s, ""
}
