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

// Package identity implements the Identity & Credential Resolver (C1):
// passwd/group lookups by name or numeric "#nnn" id, with reference
// counted, request-scoped caching of both positive and negative
// results, and synthesized "fake" entries for unknown ids. Grounded on
// the capability-table idiom of other_examples' security-context.go
// (a flat, explicit table rather than reflection-driven lookup) and on
// stdlib os/user for the actual passwd/group database.
package identity

import (
	"fmt"
	"os/user"
	"strconv"
	"strings"
	"sync"
)

// Kind distinguishes a user entry from a group entry.
type Kind int

const (
	KindUser Kind = iota
	KindGroup
)

// Entry is a reference-counted passwd or group record. The zero value
// is not valid; obtain one from Cache.
type Entry struct {
	Kind Kind
	Name string
	UID  int // valid for KindUser
	GID  int // valid for both: primary gid for users, the group's own gid for groups

	// Unknown is true when this entry was synthesized because a
	// requested numeric id had no corresponding system record.
	Unknown bool

	mu       *sync.Mutex
	refcount *int
	key      string
	cache    *Cache
}

// Release drops this holder's reference; the cache entry is freed when
// the last holder releases (spec.md §4.1).
func (e *Entry) Release() {
	if e == nil || e.cache == nil {
		return
	}
	e.mu.Lock()
	*e.refcount--
	n := *e.refcount
	e.mu.Unlock()
	if n <= 0 {
		e.cache.forget(e.key)
	}
}

// Cache is a request-scoped, reference-counted resolver, one per
// request per spec.md §3 Lifecycle ("C1 entries are reference-counted,
// released when the last holder drops").
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheSlot
}

type cacheSlot struct {
	entry    *Entry
	refcount int
	negative bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheSlot)}
}

func cacheKey(kind Kind, lookupKey string) string {
	if kind == KindUser {
		return "u:" + lookupKey
	}
	return "g:" + lookupKey
}

func (c *Cache) get(key string) (*Entry, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	slot.refcount++
	if slot.negative {
		return nil, true, true
	}
	return slot.entry, true, false
}

func (c *Cache) putPositive(key string, e *Entry) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot, ok := c.entries[key]
	if ok {
		slot.refcount++
		return slot.entry
	}
	ns := &cacheSlot{entry: e, refcount: 1}
	e.mu = &c.mu
	e.refcount = &ns.refcount
	e.key = key
	e.cache = c
	c.entries[key] = ns
	return e
}

func (c *Cache) putNegative(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = &cacheSlot{negative: true, refcount: 1}
	}
}

func (c *Cache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// LookupUserByName resolves name, accepting the "#nnn" numeric syntax
// (spec.md §4.1): if parsing the trailing integer fails, falls back to
// a name lookup instead of erroring.
func (c *Cache) LookupUserByName(name string) (*Entry, error) {
	if uid, ok := parseNumericID(name); ok {
		return c.LookupUserByUID(uid)
	}
	key := cacheKey(KindUser, name)
	if e, hit, neg := c.get(key); hit {
		if neg {
			return nil, fmt.Errorf("unknown user %s", name)
		}
		return e, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		c.putNegative(key)
		return nil, fmt.Errorf("unknown user %s", name)
	}
	return c.putPositive(key, entryFromOSUser(u)), nil
}

// LookupUserByUID resolves a numeric uid, synthesizing a fake entry
// (Unknown=true) when the uid has no passwd record rather than
// failing outright, per spec.md §4.1.
func (c *Cache) LookupUserByUID(uid int) (*Entry, error) {
	key := cacheKey(KindUser, strconv.Itoa(uid))
	if e, hit, neg := c.get(key); hit && !neg {
		return e, nil
	}
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return c.putPositive(key, c.MakeFakeUser(fmt.Sprintf("#%d", uid), uid, uid)), nil
	}
	return c.putPositive(key, entryFromOSUser(u)), nil
}

// LookupGroupByName resolves a group name, accepting "#nnn" syntax.
func (c *Cache) LookupGroupByName(name string) (*Entry, error) {
	if gid, ok := parseNumericID(name); ok {
		return c.LookupGroupByGID(gid)
	}
	key := cacheKey(KindGroup, name)
	if e, hit, neg := c.get(key); hit {
		if neg {
			return nil, fmt.Errorf("unknown group %s", name)
		}
		return e, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		c.putNegative(key)
		return nil, fmt.Errorf("unknown group %s", name)
	}
	return c.putPositive(key, entryFromOSGroup(g)), nil
}

// LookupGroupByGID resolves a numeric gid, synthesizing a fake entry
// when unknown.
func (c *Cache) LookupGroupByGID(gid int) (*Entry, error) {
	key := cacheKey(KindGroup, strconv.Itoa(gid))
	if e, hit, neg := c.get(key); hit && !neg {
		return e, nil
	}
	g, err := user.LookupGroupId(strconv.Itoa(gid))
	if err != nil {
		fake := c.MakeFakeGroup(fmt.Sprintf("#%d", gid))
		fake.GID = gid
		return c.putPositive(key, fake), nil
	}
	return c.putPositive(key, entryFromOSGroup(g)), nil
}

// MakeFakeUser synthesizes an Unknown=true user entry, used by the
// Orchestrator to enforce runas_allow_unknown_id (spec.md §4.1, §4.9
// step 4).
func (c *Cache) MakeFakeUser(name string, uid, gid int) *Entry {
	key := cacheKey(KindUser, name+"#fake")
	return c.putPositive(key, &Entry{Kind: KindUser, Name: name, UID: uid, GID: gid, Unknown: true})
}

// MakeFakeGroup synthesizes an Unknown=true group entry.
func (c *Cache) MakeFakeGroup(name string) *Entry {
	key := cacheKey(KindGroup, name+"#fake")
	return c.putPositive(key, &Entry{Kind: KindGroup, Name: name, Unknown: true})
}

func parseNumericID(s string) (int, bool) {
	if !strings.HasPrefix(s, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func entryFromOSUser(u *user.User) *Entry {
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)
	return &Entry{Kind: KindUser, Name: u.Username, UID: uid, GID: gid}
}

func entryFromOSGroup(g *user.Group) *Entry {
	gid, _ := strconv.Atoi(g.Gid)
	return &Entry{Kind: KindGroup, Name: g.Name, GID: gid}
}
