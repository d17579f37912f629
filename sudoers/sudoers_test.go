// -*- Mode: Go; indent-tabs-mode: t -*-

package sudoers_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/defaults"
	"github.com/sudopolicy/sudopolicy/sudoers"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&SudoersTestSuite{})

type SudoersTestSuite struct{}

func (s *SudoersTestSuite) TestParseUserSpecLine(c *C) {
	rs, err := sudoers.Parse(`alice ALL = (root) /usr/bin/systemctl restart *`, "sudoers")
	c.Assert(err, IsNil)
	c.Assert(rs.UserSpecs, HasLen, 1)
	us := rs.UserSpecs[0]
	c.Check(us.User, Equals, "alice")
	c.Check(us.Privileges[0].Host, Equals, "ALL")
	c.Check(us.Privileges[0].Commands[0].RunasUser, Equals, "root")
	c.Check(us.Privileges[0].Commands[0].Pattern, Equals, "/usr/bin/systemctl restart *")
}

func (s *SudoersTestSuite) TestParseNoPasswd(c *C) {
	rs, err := sudoers.Parse(`bob ALL = (root) NOPASSWD: /bin/ls`, "sudoers")
	c.Assert(err, IsNil)
	c.Check(rs.UserSpecs[0].Privileges[0].Commands[0].NoPasswd, Equals, true)
	c.Check(rs.UserSpecs[0].Privileges[0].Commands[0].Pattern, Equals, "/bin/ls")
}

func (s *SudoersTestSuite) TestParseDefaultsGeneric(c *C) {
	rs, err := sudoers.Parse("Defaults requiretty", "sudoers")
	c.Assert(err, IsNil)
	c.Assert(rs.Defaults, HasLen, 1)
	c.Check(rs.Defaults[0].Name, Equals, "requiretty")
	c.Check(rs.Defaults[0].Scope, Equals, defaults.ScopeGeneric)
	c.Check(rs.Defaults[0].Value.Bool, Equals, true)
}

func (s *SudoersTestSuite) TestParseDefaultsPerUser(c *C) {
	rs, err := sudoers.Parse("Defaults:alice !requiretty", "sudoers")
	c.Assert(err, IsNil)
	c.Check(rs.Defaults[0].Scope, Equals, defaults.ScopeUser)
	c.Check(rs.Defaults[0].Name, Equals, "!requiretty")
}

func (s *SudoersTestSuite) TestParseDefaultsWithValue(c *C) {
	rs, err := sudoers.Parse(`Defaults secure_path=/usr/bin:/bin`, "sudoers")
	c.Assert(err, IsNil)
	c.Check(rs.Defaults[0].Value.String, Equals, "/usr/bin:/bin")
}

func (s *SudoersTestSuite) TestCommandSpecMatchesGlob(c *C) {
	cs := sudoers.CommandSpec{Pattern: "/usr/bin/*"}
	c.Check(cs.Matches("/usr/bin/ls"), Equals, true)
	c.Check(cs.Matches("/usr/local/bin/ls"), Equals, false)
}

func (s *SudoersTestSuite) TestCommandSpecMatchesAll(c *C) {
	cs := sudoers.CommandSpec{Pattern: "ALL"}
	c.Check(cs.Matches("/anything/at/all"), Equals, true)
}

func (s *SudoersTestSuite) TestParseMissingEqualsErrors(c *C) {
	_, err := sudoers.Parse("not a valid line", "sudoers")
	c.Assert(err, ErrorMatches, `sudoers:1: missing '=' in user-spec line .*`)
}

func (s *SudoersTestSuite) TestParseNotBeforeNotAfter(c *C) {
	rs, err := sudoers.Parse(`carol ALL = (root) NOTBEFORE=20260101000000 NOTAFTER=20261231235959 /bin/ls`, "sudoers")
	c.Assert(err, IsNil)
	cs := rs.UserSpecs[0].Privileges[0].Commands[0]
	c.Check(cs.Pattern, Equals, "/bin/ls")
	c.Check(cs.NotBefore.Format("20060102150405"), Equals, "20260101000000")
	c.Check(cs.NotAfter.Format("20060102150405"), Equals, "20261231235959")
}

func (s *SudoersTestSuite) TestParseNotBeforeOnly(c *C) {
	rs, err := sudoers.Parse(`carol ALL = (root) NOTBEFORE=20260101000000 /bin/ls`, "sudoers")
	c.Assert(err, IsNil)
	cs := rs.UserSpecs[0].Privileges[0].Commands[0]
	c.Check(cs.NotAfter.IsZero(), Equals, true)
	c.Check(cs.NotBefore.IsZero(), Equals, false)
}

func (s *SudoersTestSuite) TestParseBadTimestampErrors(c *C) {
	_, err := sudoers.Parse(`carol ALL = (root) NOTBEFORE=not-a-date /bin/ls`, "sudoers")
	c.Assert(err, ErrorMatches, `.*bad NOTBEFORE timestamp.*`)
}

func (s *SudoersTestSuite) TestParseDefaultsPerCommand(c *C) {
	rs, err := sudoers.Parse("Defaults!/usr/bin/vi !requiretty", "sudoers")
	c.Assert(err, IsNil)
	c.Assert(rs.Defaults, HasLen, 1)
	c.Check(rs.Defaults[0].Scope, Equals, defaults.ScopeCommand)
	c.Check(rs.Defaults[0].Command, Equals, "/usr/bin/vi")
	c.Check(rs.Defaults[0].Name, Equals, "!requiretty")
}
