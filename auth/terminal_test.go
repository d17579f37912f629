// -*- Mode: Go; indent-tabs-mode: t -*-

package auth

import (
	"context"
	"errors"
	"os"

	. "gopkg.in/check.v1"
)

var _ = Suite(&TerminalBackendTestSuite{})

type TerminalBackendTestSuite struct{}

// withFailingTTY forces readPassword's stdin-fallback branch, since a
// test runner's own /dev/tty availability isn't something to depend on.
func withFailingTTY(b *TerminalBackend) {
	b.openTTY = func() (*os.File, error) { return nil, errors.New("no controlling terminal") }
}

func (s *TerminalBackendTestSuite) withStdin(c *C, line string, fn func()) {
	origStdin := os.Stdin
	defer func() { os.Stdin = origStdin }()

	r, w, err := os.Pipe()
	c.Assert(err, IsNil)
	os.Stdin = r
	defer r.Close()

	_, err = w.WriteString(line + "\n")
	c.Assert(err, IsNil)
	w.Close()

	fn()
}

func (s *TerminalBackendTestSuite) TestAuthenticateAcceptsAnyNonEmptyByDefault(c *C) {
	s.withStdin(c, "hunter2", func() {
		b := TerminalBackend{}
		withFailingTTY(&b)
		result, err := b.Authenticate(context.Background(), "alice", "")
		c.Assert(err, IsNil)
		c.Check(result, Equals, Authenticated)
	})
}

func (s *TerminalBackendTestSuite) TestAuthenticateEmptyPasswordIsRejected(c *C) {
	s.withStdin(c, "", func() {
		b := TerminalBackend{}
		withFailingTTY(&b)
		result, err := b.Authenticate(context.Background(), "alice", "")
		c.Assert(err, IsNil)
		c.Check(result, Equals, Rejected)
	})
}

func (s *TerminalBackendTestSuite) TestAuthenticateUsesVerifyCallback(c *C) {
	s.withStdin(c, "correct-horse", func() {
		b := TerminalBackend{Verify: func(user, password string) (bool, error) {
			c.Check(user, Equals, "alice")
			return password == "correct-horse", nil
		}}
		withFailingTTY(&b)
		result, err := b.Authenticate(context.Background(), "alice", "")
		c.Assert(err, IsNil)
		c.Check(result, Equals, Authenticated)
	})
}

func (s *TerminalBackendTestSuite) TestAuthenticateVerifyRejects(c *C) {
	s.withStdin(c, "wrong", func() {
		b := TerminalBackend{Verify: func(user, password string) (bool, error) { return false, nil }}
		withFailingTTY(&b)
		result, err := b.Authenticate(context.Background(), "alice", "")
		c.Assert(err, IsNil)
		c.Check(result, Equals, Rejected)
	})
}

func (s *TerminalBackendTestSuite) TestAuthenticateVerifyError(c *C) {
	s.withStdin(c, "wrong", func() {
		b := TerminalBackend{Verify: func(user, password string) (bool, error) { return false, errors.New("ldap down") }}
		withFailingTTY(&b)
		result, err := b.Authenticate(context.Background(), "alice", "")
		c.Assert(err, NotNil)
		c.Check(result, Equals, BackendError)
	})
}

func (s *TerminalBackendTestSuite) TestAuthenticateCanceledContext(c *C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := TerminalBackend{}
	result, err := b.Authenticate(ctx, "alice", "")
	c.Assert(err, NotNil)
	c.Check(result, Equals, BackendError)
}
