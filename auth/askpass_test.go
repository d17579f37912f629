// -*- Mode: Go; indent-tabs-mode: t -*-

package auth

import (
	"context"
	"errors"

	. "gopkg.in/check.v1"
)

var _ = Suite(&AskpassBackendTestSuite{})

type AskpassBackendTestSuite struct{}

func (s *AskpassBackendTestSuite) TestAuthenticateAcceptsHelperOutput(c *C) {
	b := AskpassBackend{
		Path: "/usr/bin/ssh-askpass",
		run: func(ctx context.Context, path, prompt string) ([]byte, error) {
			c.Check(path, Equals, "/usr/bin/ssh-askpass")
			return []byte("hunter2\n"), nil
		},
	}
	result, err := b.Authenticate(context.Background(), "alice", "Password: ")
	c.Assert(err, IsNil)
	c.Check(result, Equals, Authenticated)
}

func (s *AskpassBackendTestSuite) TestAuthenticateEmptyOutputIsRejected(c *C) {
	b := AskpassBackend{
		Path: "/usr/bin/ssh-askpass",
		run:  func(ctx context.Context, path, prompt string) ([]byte, error) { return []byte("\n"), nil },
	}
	result, err := b.Authenticate(context.Background(), "alice", "")
	c.Assert(err, IsNil)
	c.Check(result, Equals, Rejected)
}

func (s *AskpassBackendTestSuite) TestAuthenticateHelperFailureIsBackendError(c *C) {
	b := AskpassBackend{
		Path: "/usr/bin/ssh-askpass",
		run:  func(ctx context.Context, path, prompt string) ([]byte, error) { return nil, errors.New("exec failed") },
	}
	result, err := b.Authenticate(context.Background(), "alice", "")
	c.Assert(err, NotNil)
	c.Check(result, Equals, BackendError)
}

func (s *AskpassBackendTestSuite) TestAuthenticateUsesVerifyCallback(c *C) {
	b := AskpassBackend{
		Path: "/usr/bin/ssh-askpass",
		run:  func(ctx context.Context, path, prompt string) ([]byte, error) { return []byte("wrong"), nil },
		Verify: func(user, password string) (bool, error) {
			return password == "correct-horse", nil
		},
	}
	result, err := b.Authenticate(context.Background(), "alice", "")
	c.Assert(err, IsNil)
	c.Check(result, Equals, Rejected)
}

func (s *AskpassBackendTestSuite) TestAuthenticateNoPathConfigured(c *C) {
	b := AskpassBackend{}
	result, err := b.Authenticate(context.Background(), "alice", "")
	c.Assert(err, NotNil)
	c.Check(result, Equals, BackendError)
}

func (s *AskpassBackendTestSuite) TestAuthenticateCanceledContext(c *C) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := AskpassBackend{Path: "/usr/bin/ssh-askpass"}
	result, err := b.Authenticate(ctx, "alice", "")
	c.Assert(err, NotNil)
	c.Check(result, Equals, BackendError)
}
