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

// Package i18n wraps gettext-style message translation and the locale
// scoping rule from spec.md §9: lookup and iolog-path expansion run
// under the sudoers locale, every other user-visible message runs under
// the user's locale. G is the translation entry point, mirroring the
// teacher's i18n.G convention.
package i18n

import (
	"sync"

	"github.com/snapcore/go-gettext"
	"golang.org/x/text/language"
)

// TextDomain is the gettext domain this package's catalogs are loaded
// under.
const TextDomain = "sudopolicy"

var (
	mu          sync.Mutex
	userLocale  = "C"
	sudoLocale  = "C"
	catalogs    = map[string]*gettext.Catalog{}
	currentTag  = language.AmericanEnglish
	currentKind = kindUser
)

type localeKind int

const (
	kindUser localeKind = iota
	kindSudoers
)

// SetUserLocale records the invoking user's locale, used for every
// message except lookup/iolog expansion.
func SetUserLocale(locale string) {
	mu.Lock()
	defer mu.Unlock()
	userLocale = locale
}

// SetSudoersLocale records the sudoers file's configured locale, used
// for rule lookup and iolog path expansion.
func SetSudoersLocale(locale string) {
	mu.Lock()
	defer mu.Unlock()
	sudoLocale = locale
}

// Guard is returned by UseSudoersLocale/UseUserLocale and restores the
// previous scope when Release is called, realizing the "scoped locale
// swap" design note of spec.md §9.
type Guard struct {
	prev localeKind
}

// Release restores the locale scope active before the guard was
// acquired.
func (g *Guard) Release() {
	mu.Lock()
	currentKind = g.prev
	mu.Unlock()
}

// UseSudoersLocale scopes translation lookups to the sudoers locale
// until the returned guard is released. C6 (lookup) and C11 (iolog path
// expansion) call this around their work.
func UseSudoersLocale() *Guard {
	mu.Lock()
	g := &Guard{prev: currentKind}
	currentKind = kindSudoers
	mu.Unlock()
	return g
}

// UseUserLocale scopes translation lookups to the user's locale (the
// default for everything outside C6/C11).
func UseUserLocale() *Guard {
	mu.Lock()
	g := &Guard{prev: currentKind}
	currentKind = kindUser
	mu.Unlock()
	return g
}

func activeLocale() string {
	if currentKind == kindSudoers {
		return sudoLocale
	}
	return userLocale
}

// G translates msg under the currently scoped locale, falling back to
// msg verbatim when no catalog is loaded for that locale (the common
// case in this repository, which ships no compiled .mo catalogs).
func G(msg string) string {
	mu.Lock()
	locale := activeLocale()
	cat := catalogs[locale]
	mu.Unlock()

	if cat == nil {
		return msg
	}
	return cat.Gettext(msg)
}

// LoadCatalog registers a compiled catalog for a locale name, so G can
// translate under it.
func LoadCatalog(locale string, cat *gettext.Catalog) {
	mu.Lock()
	defer mu.Unlock()
	catalogs[locale] = cat
}
