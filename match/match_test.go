// -*- Mode: Go; indent-tabs-mode: t -*-

package match_test

import (
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/defaults"
	"github.com/sudopolicy/sudopolicy/match"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/rulesource"
	"github.com/sudopolicy/sudopolicy/sudoers"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&MatchTestSuite{})

type MatchTestSuite struct{}

// stubSource satisfies rulesource.Source; only String matters for these
// tests (ruleSets are passed in a map keyed by the interface value).
type stubSource struct{ name string }

func (s *stubSource) Open() error                             { return nil }
func (s *stubSource) Parse() (*sudoers.RuleSet, error)         { return nil, nil }
func (s *stubSource) GetDefaults() ([]defaults.Entry, error)   { return nil, nil }
func (s *stubSource) Close() error                             { return nil }
func (s *stubSource) String() string                           { return s.name }

func (s *MatchTestSuite) TestLastMatchWinsWithinSource(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "ALL", RunasUser: "root", Line: 1},
			}}}},
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "/bin/ls", RunasUser: "root", Line: 2},
			}}}},
		},
	}

	var recorded model.MatchInfo
	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", Command: "/bin/ls"},
		func(mi model.MatchInfo, d match.Decision, cs *sudoers.CommandSpec) { recorded = mi },
	)

	c.Check(flags.Has(model.FlagSuccess), Equals, true)
	c.Assert(winner, NotNil)
	c.Check(winner.Line, Equals, 2)
	c.Check(recorded.Line, Equals, 2)
}

func (s *MatchTestSuite) TestNoMatch(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "bob", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "ALL", RunasUser: "root"},
			}}}},
		},
	}

	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", Command: "/bin/ls", Now: time.Now()},
		func(model.MatchInfo, match.Decision, *sudoers.CommandSpec) {},
	)
	c.Check(flags.Has(model.FlagNoMatch), Equals, true)
	c.Check(winner, IsNil)
}

func (s *MatchTestSuite) TestMissingRuleSetIsError(c *C) {
	src := &stubSource{name: "sudoers"}
	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{},
		match.Request{User: "alice"},
		func(model.MatchInfo, match.Decision, *sudoers.CommandSpec) {},
	)
	c.Check(flags.Has(model.FlagError), Equals, true)
	c.Check(winner, IsNil)
}

func (s *MatchTestSuite) TestExpiredDateConstraintDenies(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "ALL", RunasUser: "root", NotAfter: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
			}}}},
		},
	}

	var recordedDecision match.Decision
	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", Command: "/bin/ls", Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		func(mi model.MatchInfo, d match.Decision, cs *sudoers.CommandSpec) { recordedDecision = d },
	)

	c.Check(flags.Has(model.FlagNoMatch), Equals, true)
	c.Check(flags.Has(model.FlagOKIfDenied), Equals, true)
	c.Check(winner, IsNil)
	c.Check(recordedDecision, Equals, match.DecisionDeny)
}

func (s *MatchTestSuite) TestNotYetActiveDateConstraintDenies(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "ALL", RunasUser: "root", NotBefore: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)},
			}}}},
		},
	}

	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", Command: "/bin/ls", Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		func(model.MatchInfo, match.Decision, *sudoers.CommandSpec) {},
	)

	c.Check(flags.Has(model.FlagNoMatch), Equals, true)
	c.Check(flags.Has(model.FlagOKIfDenied), Equals, true)
	c.Check(winner, IsNil)
}

func (s *MatchTestSuite) TestWithinDateWindowAllows(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{
					Pattern:   "ALL",
					RunasUser: "root",
					NotBefore: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
					NotAfter:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
				},
			}}}},
		},
	}

	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", Command: "/bin/ls", Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		func(model.MatchInfo, match.Decision, *sudoers.CommandSpec) {},
	)

	c.Check(flags.Has(model.FlagSuccess), Equals, true)
	c.Assert(winner, NotNil)
}

func (s *MatchTestSuite) TestRunasGroupMismatchBlocksMatch(c *C) {
	src := &stubSource{name: "sudoers"}
	rs := &sudoers.RuleSet{
		UserSpecs: []sudoers.UserSpec{
			{User: "alice", Privileges: []sudoers.Privilege{{Host: "ALL", Commands: []sudoers.CommandSpec{
				{Pattern: "ALL", RunasUser: "root", RunasGroup: "wheel"},
			}}}},
		},
	}

	flags, winner := match.Evaluate(
		[]rulesource.Source{src},
		map[rulesource.Source]*sudoers.RuleSet{src: rs},
		match.Request{User: "alice", Host: "anyhost", RunasUser: "root", RunasGroup: "staff", Command: "/bin/ls"},
		func(model.MatchInfo, match.Decision, *sudoers.CommandSpec) {},
	)
	c.Check(flags.Has(model.FlagNoMatch), Equals, true)
	c.Check(winner, IsNil)
}
