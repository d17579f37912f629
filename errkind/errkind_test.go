// -*- Mode: Go; indent-tabs-mode: t -*-

package errkind_test

import (
	"fmt"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/errkind"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&ErrkindTestSuite{})

type ErrkindTestSuite struct{}

func (s *ErrkindTestSuite) TestUsageErrorAsRecovers(c *C) {
	cause := fmt.Errorf("boom")
	err := error(errkind.NewUsage("implied shell without shell_noargs: %v", cause))

	var usage *errkind.UsageError
	c.Assert(errkind.As(err, &usage), Equals, true)
	c.Check(usage.Error(), Matches, "implied shell.*")
}

func (s *ErrkindTestSuite) TestDistinctKindsDontCrossMatch(c *C) {
	err := error(errkind.NewAuth("rejected", nil))

	var usage *errkind.UsageError
	c.Check(errkind.As(err, &usage), Equals, false)
}
