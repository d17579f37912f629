// -*- Mode: Go; indent-tabs-mode: t -*-

package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/privilege"
	"github.com/sudopolicy/sudopolicy/resolve"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&ResolveTestSuite{})

type ResolveTestSuite struct {
	dir string
}

func (s *ResolveTestSuite) SetUpTest(c *C) {
	s.dir = c.MkDir()
	p := filepath.Join(s.dir, "mytool")
	c.Assert(os.WriteFile(p, []byte("#!/bin/sh\n"), 0755), IsNil)
}

func noopGate() *privilege.Gate {
	ids := map[privilege.State]privilege.Identity{
		privilege.Root: {UID: os.Getuid(), GID: os.Getgid()},
		privilege.User: {UID: os.Getuid(), GID: os.Getgid()},
	}
	return privilege.New(ids)
}

func (s *ResolveTestSuite) TestResolveFindsOnPath(c *C) {
	r := resolve.New()
	res, err := r.Resolve(noopGate(), "mytool", s.dir, nil, true, "", true)
	c.Assert(err, IsNil)
	c.Check(res.Status, Equals, model.StatusFound)
	c.Check(res.Path, Equals, filepath.Join(s.dir, "mytool"))
}

func (s *ResolveTestSuite) TestResolveNotFound(c *C) {
	r := resolve.New()
	res, err := r.Resolve(noopGate(), "nope-does-not-exist", s.dir, nil, true, "", true)
	c.Assert(err, IsNil)
	c.Check(res.Status, Equals, model.StatusNotFound)
}

func (s *ResolveTestSuite) TestResolveFoundButInDot(c *C) {
	cwd, err := os.Getwd()
	c.Assert(err, IsNil)
	c.Assert(os.Chdir(s.dir), IsNil)
	defer os.Chdir(cwd)

	r := resolve.New()
	res, err := r.Resolve(noopGate(), "mytool", ".", nil, true, "", true)
	c.Assert(err, IsNil)
	c.Check(res.Status, Equals, model.StatusFoundButInDot)
}

func (s *ResolveTestSuite) TestResolveDotHitIgnoredWhenIgnoreDotOff(c *C) {
	cwd, err := os.Getwd()
	c.Assert(err, IsNil)
	c.Assert(os.Chdir(s.dir), IsNil)
	defer os.Chdir(cwd)

	r := resolve.New()
	res, err := r.Resolve(noopGate(), "mytool", ".", nil, true, "", false)
	c.Assert(err, IsNil)
	c.Check(res.Status, Equals, model.StatusFound)
}

func (s *ResolveTestSuite) TestResolveHonorsSecurePathWhenNotExempt(c *C) {
	r := resolve.New()
	// mytool only lives in s.dir, which is not in the secure_path list.
	res, err := r.Resolve(noopGate(), "mytool", s.dir, []string{"/usr/bin", "/bin"}, false, "", true)
	c.Assert(err, IsNil)
	c.Check(res.Status, Equals, model.StatusNotFound)
}

func (s *ResolveTestSuite) TestShapeArgvLoginShellRewrite(c *C) {
	argv := make([]string, 3, 5)
	argv[0], argv[1], argv[2] = "bash", "-c", "echo hi"
	shaped := resolve.ShapeArgv(argv, model.ModeLoginShell, "/bin/bash")
	c.Check(shaped, DeepEquals, []string{"-bash", "--login", "-c", "echo hi"})
}

func (s *ResolveTestSuite) TestShapeArgvNonLoginModeUnchanged(c *C) {
	argv := []string{"bash", "-c", "echo hi"}
	shaped := resolve.ShapeArgv(argv, model.ModeRun, "/bin/bash")
	c.Check(shaped, DeepEquals, argv)
}

func (s *ResolveTestSuite) TestModeForBasenameSwitchesToEdit(c *C) {
	mode, switched := resolve.ModeForBasename(model.ModeRun, "/usr/bin/sudoedit")
	c.Check(mode, Equals, model.ModeEdit)
	c.Check(switched, Equals, true)
}

func (s *ResolveTestSuite) TestUnescapeForMatching(c *C) {
	c.Check(resolve.UnescapeForMatching(`echo\ hi`), Equals, "echo hi")
}
