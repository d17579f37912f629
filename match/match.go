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

// Package match implements the Lookup & Matcher (C6): evaluating rules
// against (user, host, runas, command, date) and selecting the best
// match, with last-match-wins semantics within a source (spec.md §4.6).
package match

import (
	"time"

	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/rulesource"
	"github.com/sudopolicy/sudopolicy/sudoers"
)

// Request bundles the facts a rule is scored against.
type Request struct {
	User       string
	Host       string
	RunasUser  string
	RunasGroup string
	Command    string
	Now        time.Time
}

// Decision is the outcome of evaluating a single command-spec.
type Decision int

const (
	DecisionNoMatch Decision = iota
	DecisionAllow
	DecisionDeny
)

// Record is called for every command-level decision, even a deny, so a
// citation is available regardless of outcome (spec.md §4.6).
type Record func(model.MatchInfo, Decision, *sudoers.CommandSpec)

// Evaluate walks sources in order and user-specs in file order within a
// source, returning the ValidationFlags for the whole lookup. The last
// matching rule within a source wins (standard sudoers semantics); a
// later source does not override an earlier source's winning match,
// matching real sudo's "first source that names the user wins"
// behavior at the source level while still honoring last-match-wins
// inside that source.
func Evaluate(sources []rulesource.Source, ruleSets map[rulesource.Source]*sudoers.RuleSet, req Request, record Record) (model.ValidationFlags, *sudoers.CommandSpec) {
	for _, src := range sources {
		rs, ok := ruleSets[src]
		if !ok || rs == nil {
			return model.FlagError, nil
		}

		var winner *sudoers.CommandSpec
		var winnerInfo model.MatchInfo
		var winnerDecision Decision

		for _, us := range rs.UserSpecs {
			if !matchesUser(us.User, req.User) {
				continue
			}
			for _, priv := range us.Privileges {
				if !matchesHost(priv.Host, req.Host) {
					continue
				}
				for i := range priv.Commands {
					cs := &priv.Commands[i]
					if !matchesRunas(cs, req) {
						continue
					}
					if !cs.Matches(req.Command) {
						continue
					}
					decision := DecisionAllow
					if !withinDateWindow(cs, req.Now) {
						decision = DecisionDeny
					}
					winner = cs
					winnerDecision = decision
					winnerInfo = model.MatchInfo{
						UserSpec:    us.User,
						Privilege:   priv.Host,
						CommandSpec: cs.Pattern,
						Source:      src.String(),
						Line:        cs.Line,
						Column:      cs.Column,
					}
				}
			}
		}

		if winner != nil {
			record(winnerInfo, winnerDecision, winner)
			if winnerDecision == DecisionDeny {
				return model.FlagNoMatch | model.FlagOKIfDenied, nil
			}
			return model.FlagSuccess, winner
		}
	}
	return model.FlagNoMatch, nil
}

// withinDateWindow reports whether now falls inside cs's NOTBEFORE/
// NOTAFTER bounds; a zero bound on either side is unconstrained.
func withinDateWindow(cs *sudoers.CommandSpec, now time.Time) bool {
	if !cs.NotBefore.IsZero() && now.Before(cs.NotBefore) {
		return false
	}
	if !cs.NotAfter.IsZero() && now.After(cs.NotAfter) {
		return false
	}
	return true
}

func matchesUser(spec, user string) bool {
	return spec == "ALL" || spec == user
}

func matchesHost(spec, host string) bool {
	return spec == "ALL" || spec == host
}

func matchesRunas(cs *sudoers.CommandSpec, req Request) bool {
	if cs.RunasUser != "" && cs.RunasUser != "ALL" && cs.RunasUser != req.RunasUser {
		return false
	}
	if req.RunasGroup != "" && cs.RunasGroup != "" && cs.RunasGroup != "ALL" && cs.RunasGroup != req.RunasGroup {
		return false
	}
	return true
}
