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

// Package auth implements the Authenticator Gate (C7): deciding whether
// a password is required, invoking the authentication backend (PAM/BSD
// auth — out of scope, see spec.md §1 — modeled here as the Backend
// interface), and caching successful authentication via TimestampStore
// (spec.md §4.7).
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/ratelimit"

	"github.com/sudopolicy/sudopolicy/errkind"
)

// Disposition is the Gate's decision about whether authentication is
// needed at all (spec.md §4.7).
type Disposition int

const (
	Required Disposition = iota
	NotRequired
	CacheValid
)

// BackendResult is the authentication collaborator's tri-state outcome.
type BackendResult int

const (
	Authenticated BackendResult = iota
	Rejected
	BackendError
)

// Backend is the external authentication collaborator (PAM, BSD auth,
// ...) spec.md §1 places out of scope.
type Backend interface {
	Authenticate(ctx context.Context, user string, prompt string) (BackendResult, error)
}

// DecideRequest bundles the facts the Gate's policy decision needs.
type DecideRequest struct {
	UID            int
	RootSudo       bool
	RequireTTY     bool
	HasTTY         bool
	ChrootOverride string
	ChrootAllowed  []string
	CwdOverride    string
	CwdAllowed     []string
	NoPasswd       bool
	TimestampKey   string
	TimestampTTL   time.Duration
}

// OverrideVerdict is the allow/deny-with-hint/error tri-state spec.md
// §4.7 assigns to chroot/cwd override checks.
type OverrideVerdict int

const (
	OverrideAllow OverrideVerdict = iota
	OverrideDenyWithHint
	OverrideError
)

// Gate decides whether authentication is required and, if so, drives
// Backend and TimestampStore.
type Gate struct {
	Backend  Backend
	Store    TimestampStore
	bucket   *ratelimit.Bucket
	maxTries int
}

// NewGate returns a Gate whose Authenticate calls, successful or not
// and for any user, share one github.com/juju/ratelimit bucket of
// maxTries tokens refilled at maxTries per minute, so a scripted retry
// loop can't hammer Backend (spec.md §4.7).
func NewGate(backend Backend, store TimestampStore, maxTries int) *Gate {
	if maxTries <= 0 {
		maxTries = 3
	}
	return &Gate{
		Backend:  backend,
		Store:    store,
		bucket:   ratelimit.NewBucket(time.Minute/time.Duration(maxTries), int64(maxTries)),
		maxTries: maxTries,
	}
}

// Decide implements spec.md §4.7's policy gates ahead of any password
// prompt: root_sudo, requiretty, and the chroot/cwd override checks.
func (g *Gate) Decide(req DecideRequest) (Disposition, error) {
	if req.UID == 0 && !req.RootSudo {
		return Required, errkind.NewAuth("sudoers specifies that root is not allowed to sudo", nil)
	}
	if req.RequireTTY && !req.HasTTY {
		return Required, errkind.NewAuth("sorry, you must have a tty to run sudo", nil)
	}

	if v := checkOverride(req.ChrootOverride, req.ChrootAllowed); v == OverrideDenyWithHint {
		return Required, errkind.NewAuth("the chroot %q is not permitted for your account", nil, req.ChrootOverride)
	} else if v == OverrideError {
		return Required, errkind.NewResource("error while checking chroot allow-list", nil)
	}
	if v := checkOverride(req.CwdOverride, req.CwdAllowed); v == OverrideDenyWithHint {
		return Required, errkind.NewAuth("the cwd %q is not permitted for your account", nil, req.CwdOverride)
	} else if v == OverrideError {
		return Required, errkind.NewResource("error while checking cwd allow-list", nil)
	}

	if req.NoPasswd {
		return NotRequired, nil
	}
	if g.Store != nil && req.TimestampKey != "" {
		if ok, err := g.Store.Valid(req.TimestampKey, req.TimestampTTL); err == nil && ok {
			return CacheValid, nil
		}
	}
	return Required, nil
}

func checkOverride(requested string, allowed []string) OverrideVerdict {
	if requested == "" {
		return OverrideAllow
	}
	if len(allowed) == 0 {
		return OverrideDenyWithHint
	}
	for _, a := range allowed {
		if a == "ALL" || a == requested {
			return OverrideAllow
		}
	}
	return OverrideDenyWithHint
}

// Authenticate is called once Decide has returned Required; it applies
// the rate limiter, calls Backend, and on success updates the
// TimestampStore (spec.md §4.7). ctx carries the caller's timeout; a
// context deadline exceeded maps to the "timeout" password-read failure
// mode.
func (g *Gate) Authenticate(ctx context.Context, user, prompt, timestampKey string, ttl time.Duration) error {
	if g.bucket.TakeAvailable(1) == 0 {
		return errkind.NewAuth("too many authentication attempts for %s", nil, user)
	}

	result, err := g.Backend.Authenticate(ctx, user, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return errkind.NewAuth("a password is required", fmt.Errorf("timeout waiting for password: %w", ctx.Err()))
		}
		return errkind.NewAuth("backend authentication failure for %s", err, user)
	}
	switch result {
	case Authenticated:
		if g.Store != nil && timestampKey != "" {
			if err := g.Store.Put(timestampKey, ttl); err != nil {
				return errkind.NewResource("cannot record authentication timestamp", err)
			}
		}
		return nil
	case Rejected:
		return errkind.NewAuth("incorrect password", nil)
	default:
		return errkind.NewAuth("authentication backend error for %s", nil, user)
	}
}
