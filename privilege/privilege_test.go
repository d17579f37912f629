// -*- Mode: Go; indent-tabs-mode: t -*-

package privilege_test

import (
	"fmt"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/privilege"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&PrivilegeTestSuite{})

type PrivilegeTestSuite struct{}

// fakeTransitioner simulates setresuid/setresgid bookkeeping in memory
// so the stack's save/restore logic can be tested without root.
type fakeTransitioner struct {
	uid, gid  int
	groups    []int
	failState map[int]bool // uid value -> force failure
}

func (f *fakeTransitioner) Setresuid(r, e, s int) error {
	if f.failState != nil && f.failState[e] {
		return fmt.Errorf("injected failure for uid %d", e)
	}
	f.uid = e
	return nil
}
func (f *fakeTransitioner) Setresgid(r, e, s int) error { f.gid = e; return nil }
func (f *fakeTransitioner) Setgroups(gids []int) error  { f.groups = gids; return nil }
func (f *fakeTransitioner) Getuid() int                 { return f.uid }
func (f *fakeTransitioner) Getgid() int                 { return f.gid }

func (s *PrivilegeTestSuite) identities() map[privilege.State]privilege.Identity {
	return map[privilege.State]privilege.Identity{
		privilege.Initial: {UID: 1000, GID: 1000, Groups: []int{1000}},
		privilege.Root:    {UID: 0, GID: 0, Groups: []int{0}},
		privilege.Runas:   {UID: 2000, GID: 2000, Groups: []int{2000}},
	}
}

func (s *PrivilegeTestSuite) TestPushPopRestoresIdentity(c *C) {
	ft := &fakeTransitioner{uid: 1000, gid: 1000}
	g := privilege.NewWithTransitioner(s.identities(), ft)

	tok, err := g.Push(privilege.Root)
	c.Assert(err, IsNil)
	c.Check(ft.uid, Equals, 0)
	c.Check(g.Depth(), Equals, 1)

	c.Assert(tok.Pop(), IsNil)
	c.Check(ft.uid, Equals, 1000)
	c.Check(g.Depth(), Equals, 0)
	g.Close() // must not panic: stack is empty
}

func (s *PrivilegeTestSuite) TestNestedPushPop(c *C) {
	ft := &fakeTransitioner{uid: 1000, gid: 1000}
	g := privilege.NewWithTransitioner(s.identities(), ft)

	rootTok, err := g.Push(privilege.Root)
	c.Assert(err, IsNil)
	runasTok, err := g.Push(privilege.Runas)
	c.Assert(err, IsNil)
	c.Check(ft.uid, Equals, 2000)

	c.Assert(runasTok.Pop(), IsNil)
	c.Check(ft.uid, Equals, 0)
	c.Assert(rootTok.Pop(), IsNil)
	c.Check(ft.uid, Equals, 1000)
	g.Close()
}

func (s *PrivilegeTestSuite) TestFailedPushLeavesStackUnchanged(c *C) {
	ft := &fakeTransitioner{uid: 1000, gid: 1000, failState: map[int]bool{0: true}}
	g := privilege.NewWithTransitioner(s.identities(), ft)

	_, err := g.Push(privilege.Root)
	c.Assert(err, NotNil)
	c.Check(g.Depth(), Equals, 0)
	c.Check(ft.uid, Equals, 1000)
}

func (s *PrivilegeTestSuite) TestDoublePopPanics(c *C) {
	ft := &fakeTransitioner{uid: 1000, gid: 1000}
	g := privilege.NewWithTransitioner(s.identities(), ft)

	tok, err := g.Push(privilege.Root)
	c.Assert(err, IsNil)
	c.Assert(tok.Pop(), IsNil)
	c.Check(func() { tok.Pop() }, PanicMatches, "privilege: double-pop of the same token")
}

func (s *PrivilegeTestSuite) TestUnknownStatePushFails(c *C) {
	ft := &fakeTransitioner{uid: 1000, gid: 1000}
	g := privilege.NewWithTransitioner(s.identities(), ft)
	_, err := g.Push(privilege.Sudoers)
	c.Assert(err, ErrorMatches, "privilege: no identity configured for state SUDOERS")
}
