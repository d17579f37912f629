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

// Package iolog implements the I/O-log Path Expander (C11): expanding
// dir/file templates against time and identity escapes under the
// sudoers locale (spec.md §4.11).
package iolog

import (
	"strconv"
	"strings"
	"time"

	"github.com/sudopolicy/sudopolicy/errkind"
	"github.com/sudopolicy/sudopolicy/i18n"
)

// Escapes bundles the identity/time facts %-escapes expand against.
type Escapes struct {
	User    string
	Host    string
	Command string
	Runas   string
	Now     time.Time
	// Seq is a monotonically increasing session counter, substituted for
	// "%s" so repeated invocations in one day don't collide.
	Seq int
}

// Expand renders dirTemplate and fileTemplate against esc, returning
// "<dir>/<file>" for the Emitter to point the session log at. Expansion
// runs under the sudoers locale (spec.md §9), not the invoking user's,
// matching C6's lookup scoping.
func Expand(dirTemplate, fileTemplate string, esc Escapes) (string, error) {
	guard := i18n.UseSudoersLocale()
	defer guard.Release()

	dir, err := expandOne(dirTemplate, esc)
	if err != nil {
		return "", errkind.NewResource("cannot expand iolog directory template %q", err, dirTemplate)
	}
	file, err := expandOne(fileTemplate, esc)
	if err != nil {
		return "", errkind.NewResource("cannot expand iolog file template %q", err, fileTemplate)
	}
	return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(file, "/"), nil
}

func expandOne(tmpl string, esc Escapes) (string, error) {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '%' || i == len(tmpl)-1 {
			b.WriteByte(tmpl[i])
			continue
		}
		i++
		switch tmpl[i] {
		case '%':
			b.WriteByte('%')
		case 'u':
			b.WriteString(esc.User)
		case 'h':
			b.WriteString(esc.Host)
		case 'r':
			b.WriteString(esc.Runas)
		case 'Y':
			b.WriteString(strconv.Itoa(esc.Now.Year()))
		case 'm':
			b.WriteString(pad2(int(esc.Now.Month())))
		case 'd':
			b.WriteString(pad2(esc.Now.Day()))
		case 'H':
			b.WriteString(pad2(esc.Now.Hour()))
		case 'M':
			b.WriteString(pad2(esc.Now.Minute()))
		case 'S':
			b.WriteString(pad2(esc.Now.Second()))
		case 's':
			b.WriteString(strconv.Itoa(esc.Seq))
		default:
			return "", errkind.NewResource("unknown iolog escape %%%c", nil, tmpl[i])
		}
	}
	return b.String(), nil
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
