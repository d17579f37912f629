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
	"bufio"
	"context"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/sudopolicy/sudopolicy/errkind"
)

// TerminalBackend reads a password from the controlling terminal with
// echo disabled and hands it to Verify. The real PAM/BSD-auth
// collaborator is out of scope (spec.md §1); this is the front end's
// concrete stand-in, reading no-echo input the way real sudo's own
// tty conversation does.
type TerminalBackend struct {
	// Verify checks a password for user, returning true on success. A
	// nil Verify accepts any non-empty password, the degenerate
	// behavior used when no real credential store is configured.
	Verify func(user, password string) (bool, error)

	// openTTY opens the controlling terminal; overridden by tests to
	// force the stdin-fallback path deterministically, since a test
	// runner's own /dev/tty availability is not something to depend on.
	openTTY func() (*os.File, error)
}

// Authenticate prompts on /dev/tty, falling back to stdin when no
// controlling terminal is attached (e.g. under cmd/policyd).
func (b TerminalBackend) Authenticate(ctx context.Context, user, prompt string) (BackendResult, error) {
	if ctx.Err() != nil {
		return BackendError, ctx.Err()
	}
	if prompt == "" {
		prompt = fmt.Sprintf("[sudopolicy] password for %s: ", user)
	}

	password, err := b.readPassword(prompt)
	if err != nil {
		return BackendError, errkind.NewAuth("cannot read password", err)
	}
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

func (b TerminalBackend) readPassword(prompt string) (string, error) {
	open := b.openTTY
	if open == nil {
		open = func() (*os.File, error) { return os.OpenFile("/dev/tty", os.O_RDWR, 0) }
	}
	tty, err := open()
	if err != nil {
		return b.readPasswordFromStdin(prompt)
	}
	defer tty.Close()

	fmt.Fprint(tty, prompt)
	pw, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(tty)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (b TerminalBackend) readPasswordFromStdin(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return scanner.Text(), nil
}
