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

package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/sudopolicy/sudopolicy/decision"
	"github.com/sudopolicy/sudopolicy/dirs"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&DaemonSuite{})

type DaemonSuite struct {
	bin string
}

// memStore is an in-memory auth.TimestampStore stand-in; tests never
// need the real bbolt-backed cache's persistence.
type memStore struct{ valid map[string]bool }

func (m *memStore) Valid(key string, ttl time.Duration) (bool, error) { return m.valid[key], nil }
func (m *memStore) Put(key string, ttl time.Duration) error {
	if m.valid == nil {
		m.valid = map[string]bool{}
	}
	m.valid[key] = true
	return nil
}
func (m *memStore) Invalidate(key string) error { delete(m.valid, key); return nil }

func (s *DaemonSuite) SetUpTest(c *C) {
	root := c.MkDir()
	dirs.SetRootDir(root)
	c.Assert(os.MkdirAll(dirs.SudoersIncludeDir, 0755), IsNil)
	c.Assert(os.WriteFile(dirs.SudoersFile, []byte("alice ALL=(root) NOPASSWD: ALL\n"), 0644), IsNil)

	s.bin = root + "/true"
	c.Assert(os.WriteFile(s.bin, []byte("#!/bin/sh\nexit 0\n"), 0755), IsNil)
}

func (s *DaemonSuite) TearDownTest(c *C) {
	dirs.SetRootDir("")
}

func (s *DaemonSuite) newDaemon() *daemon {
	return &daemon{store: &memStore{}}
}

func (s *DaemonSuite) TestHandleCheckAllowsMatchingRule(c *C) {
	d := s.newDaemon()
	body, err := json.Marshal(checkRequest{
		User: "alice", UID: os.Getuid(), GID: os.Getgid(), Groups: []int{os.Getgid()},
		Host: "box", Argv: []string{s.bin}, TargetUser: "root",
	})
	c.Assert(err, IsNil)

	req := httptest.NewRequest("POST", "/v1/check", bytes.NewReader(body))
	w := httptest.NewRecorder()
	d.handleCheck(w, req)

	c.Check(w.Code, Equals, 200)
	var rec decision.Record
	c.Assert(json.Unmarshal(w.Body.Bytes(), &rec), IsNil)
	c.Check(rec.Outcome, Equals, decision.OutcomeAllow)
}

func (s *DaemonSuite) TestHandleCheckDeniesUnknownUser(c *C) {
	d := s.newDaemon()
	body, err := json.Marshal(checkRequest{
		User: "mallory", UID: os.Getuid(), GID: os.Getgid(), Groups: []int{os.Getgid()},
		Host: "box", Argv: []string{s.bin}, TargetUser: "root",
	})
	c.Assert(err, IsNil)

	req := httptest.NewRequest("POST", "/v1/check", bytes.NewReader(body))
	w := httptest.NewRecorder()
	d.handleCheck(w, req)

	c.Check(w.Code, Equals, 403)
	var rec decision.Record
	c.Assert(json.Unmarshal(w.Body.Bytes(), &rec), IsNil)
	c.Check(rec.Outcome, Equals, decision.OutcomeDeny)
}

func (s *DaemonSuite) TestHandleCheckMalformedBodyIsBadRequest(c *C) {
	d := s.newDaemon()
	req := httptest.NewRequest("POST", "/v1/check", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	d.handleCheck(w, req)
	c.Check(w.Code, Equals, 400)
}

func (s *DaemonSuite) TestHandleListRequiresUserParam(c *C) {
	d := s.newDaemon()
	req := httptest.NewRequest("GET", "/v1/list", nil)
	w := httptest.NewRecorder()
	d.handleList(w, req)
	c.Check(w.Code, Equals, 400)
}

func (s *DaemonSuite) TestHandleListShowsPrivileges(c *C) {
	d := s.newDaemon()
	req := httptest.NewRequest("GET", "/v1/list?user=alice", nil)
	w := httptest.NewRecorder()
	d.handleList(w, req)

	c.Check(w.Code, Equals, 200)
	var rec decision.Record
	c.Assert(json.Unmarshal(w.Body.Bytes(), &rec), IsNil)
	c.Check(rec.Citation, Matches, "(?s).*ALL.*")
}

func (s *DaemonSuite) TestHandleValidateRefreshesTimestamp(c *C) {
	d := s.newDaemon()
	body, err := json.Marshal(checkRequest{
		User: "alice", UID: os.Getuid(), GID: os.Getgid(), Groups: []int{os.Getgid()}, Host: "box",
	})
	c.Assert(err, IsNil)

	req := httptest.NewRequest("POST", "/v1/validate", bytes.NewReader(body))
	w := httptest.NewRecorder()
	d.handleValidate(w, req)

	c.Check(w.Code, Equals, 200)
	var rec decision.Record
	c.Assert(json.Unmarshal(w.Body.Bytes(), &rec), IsNil)
	c.Check(rec.Outcome, Equals, decision.OutcomeAllow)
}
