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

// Package release reports the facilities of the platform the engine is
// running on: whether login classes, SELinux, AppArmor or Solaris
// projects are available. Spec.md §1 and §4.8 treat these as "a thin
// capability interface" invoked by the core but implemented elsewhere;
// this package is that interface plus a mockable singleton, the same
// shape as the teacher's release.OS used throughout its test suite
// (release.MockReleaseInfo).
package release

// OS describes the running platform, mirroring the field set the
// teacher's release.OS exposes (ID, VersionID) plus the capability bits
// our Defaults/Environment/Authenticator components need to gate on.
type OS struct {
	ID        string
	VersionID string

	// HasLoginClass is true on BSD-derived systems exposing login.conf
	// classes (setusercontext); consulted by the Environment Builder
	// (C8) for login-class variable injection.
	HasLoginClass bool
	// HasSELinux is true when the platform carries an SELinux policy
	// store; consulted when a runas context requests a role/type.
	HasSELinux bool
	// HasAppArmor is true when apparmor_parser-style profiles can be
	// attached to the runas context.
	HasAppArmor bool
	// HasSolarisProjects is true on Solaris-derived systems exposing
	// the project(4) facility consulted for resource-control runas.
	HasSolarisProjects bool
}

var current = &OS{ID: "linux", HasAppArmor: true, HasSELinux: true}

// Info returns the currently active platform description.
func Info() *OS {
	return current
}

// MockReleaseInfo replaces the active platform description for the
// duration of a test, returning a restore function, mirroring the
// teacher's release.MockReleaseInfo(&release.OS{...}) idiom.
func MockReleaseInfo(os *OS) (restore func()) {
	old := current
	current = os
	return func() { current = old }
}

// OnClassic reports whether this looks like a general-purpose
// distribution (as opposed to an embedded/appliance image) — used by C8
// to gate login-class variable injection. Nothing in this module reads
// /etc/environment.
func OnClassic() bool {
	switch current.ID {
	case "", "linux", "ubuntu", "debian", "fedora", "freebsd", "openbsd", "netbsd":
		return true
	default:
		return false
	}
}
