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

package auth

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/sudopolicy/sudopolicy/errkind"
)

// AskpassBackend runs an external helper (real sudo's SUDO_ASKPASS, a
// graphical password prompt) and reads the password from its stdout,
// for sessions with no controlling terminal to prompt on directly.
type AskpassBackend struct {
	// Path is the askpass helper binary, normally SUDO_ASKPASS's value.
	Path string

	// Verify checks a password for user; nil accepts any non-empty
	// password, matching TerminalBackend's degenerate default.
	Verify func(user, password string) (bool, error)

	// run executes the helper and returns its stdout; overridden by
	// tests so they never exec a real binary.
	run func(ctx context.Context, path, prompt string) ([]byte, error)
}

// Authenticate runs the askpass helper with prompt as its sole argument,
// the convention real sudo's askpass protocol uses.
func (b AskpassBackend) Authenticate(ctx context.Context, user, prompt string) (BackendResult, error) {
	if ctx.Err() != nil {
		return BackendError, ctx.Err()
	}
	if b.Path == "" {
		return BackendError, errkind.NewAuth("no askpass helper configured", nil)
	}

	run := b.run
	if run == nil {
		run = runAskpass
	}
	out, err := run(ctx, b.Path, prompt)
	if err != nil {
		return BackendError, errkind.NewAuth("askpass helper failed", err)
	}

	password := strings.TrimRight(string(out), "\r\n")
	if password == "" {
		return Rejected, nil
	}

	if b.Verify == nil {
		return Authenticated, nil
	}
	ok, err := b.Verify(user, password)
	if err != nil {
		return BackendError, err
	}
	if !ok {
		return Rejected, nil
	}
	return Authenticated, nil
}

func runAskpass(ctx context.Context, path, prompt string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, prompt)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
