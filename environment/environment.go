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

// Package environment implements the Environment Builder (C8): resetting
// or preserving the process environment per policy, merging env files and
// user-supplied additions, and validating the result (spec.md §4.8).
package environment

import (
	"sort"
	"strings"

	"github.com/mvo5/goconfigparser"

	"github.com/sudopolicy/sudopolicy/errkind"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/release"
)

// Policy bundles the Defaults-derived settings the builder consults.
type Policy struct {
	EnvReset          bool
	Setenv            bool
	Keep              []string
	Check             []string
	EnvFile           string
	RestrictedEnvFile string
	Mode              model.Mode
}

// LoginClassVars is the platform capability hook spec.md §4.8 calls
// "login-class setusercontext": on platforms exposing login classes
// (release.OS.HasLoginClass) it supplies the variables a login-class
// switch would set, e.g. HOME/PATH/TERM defaults for the target user.
type LoginClassVars interface {
	Vars(loginClass string) ([]string, error)
}

// Builder implements Build against a LoginClassVars collaborator and a
// file reader, both swappable for tests.
type Builder struct {
	LoginClass LoginClassVars
	ReadFile   func(path string) ([]byte, error)
}

// defaultKeep is consulted when Keep is empty, mirroring the small
// always-preserved set real sudo ships (TERM, PATH handled separately,
// display/locale families); the rest of the whitelist comes from the
// rule source's env_keep setting.
var defaultKeep = []string{"TERM", "DISPLAY", "XAUTHORITY", "LANG", "LANGUAGE", "LC_ALL"}

// Build applies spec.md §4.8: env_reset is forced off for edit mode and
// for setenv-privileged -E (modeled by the caller setting policy.EnvReset
// false before calling Build in those cases); otherwise the environment
// is rebuilt from the keep whitelist. Env files are applied next, login
// class vars third in login-shell mode, and userAdds — the command-line
// VAR=value additions — last, denying the whole request if setenv is
// false and userAdds is non-empty.
func (b *Builder) Build(cur []string, policy Policy, runasLoginClass string, userAdds []string) ([]string, error) {
	if len(userAdds) > 0 && !policy.Setenv {
		return nil, errkind.NewInput("not allowed to preserve the environment", nil)
	}

	out := map[string]string{}
	if policy.EnvReset {
		keep := policy.Keep
		if len(keep) == 0 {
			keep = defaultKeep
		}
		curMap := splitEnv(cur)
		for _, k := range keep {
			if v, ok := curMap[k]; ok {
				out[k] = v
			}
		}
	} else {
		for k, v := range splitEnv(cur) {
			out[k] = v
		}
	}

	if policy.RestrictedEnvFile != "" {
		entries, err := b.readEnvFile(policy.RestrictedEnvFile)
		if err != nil {
			return nil, errkind.NewResource("cannot read restricted env file", err)
		}
		for k, v := range entries {
			out[k] = v
		}
	}
	if policy.EnvFile != "" {
		entries, err := b.readEnvFile(policy.EnvFile)
		if err != nil {
			return nil, errkind.NewResource("cannot read env file", err)
		}
		for k, v := range entries {
			out[k] = v
		}
	}

	if policy.Mode == model.ModeLoginShell && release.OnClassic() && release.Info().HasLoginClass && b.LoginClass != nil {
		vars, err := b.LoginClass.Vars(runasLoginClass)
		if err != nil {
			return nil, errkind.NewResource("cannot fetch login class variables", err)
		}
		for k, v := range splitEnv(vars) {
			out[k] = v
		}
	}

	for _, add := range userAdds {
		k, v, ok := strings.Cut(add, "=")
		if !ok {
			return nil, errkind.NewInput("malformed environment addition %q", nil, add)
		}
		out[k] = v
	}

	applyEnvCheck(out, policy.Check)

	return joinEnv(out), nil
}

// applyEnvCheck drops any variable named in check whose value looks
// dangerous to hand to a privileged process: a path separator (as in
// LD_PRELOAD/LD_LIBRARY_PATH hijacking), a '%', or a leading "() {" function
// definition (the bashdoor/Shellshock pattern). Real sudo's env_check
// applies this same narrow filter instead of rejecting the whole
// request (spec.md §4.8).
func applyEnvCheck(out map[string]string, check []string) {
	for _, name := range check {
		v, ok := out[name]
		if !ok {
			continue
		}
		if suspiciousEnvValue(v) {
			delete(out, name)
		}
	}
}

func suspiciousEnvValue(v string) bool {
	if strings.ContainsAny(v, "/%") {
		return true
	}
	if strings.HasPrefix(strings.TrimSpace(v), "() {") {
		return true
	}
	return false
}

func (b *Builder) readEnvFile(path string) (map[string]string, error) {
	read := b.ReadFile
	if read == nil {
		return nil, errkind.NewResource("no file reader configured for environment builder", nil)
	}
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = true
	if err := cfg.ReadString(string(data)); err != nil {
		return nil, err
	}
	items, err := cfg.Items("")
	if err != nil {
		return nil, err
	}
	return items, nil
}

func splitEnv(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}

func joinEnv(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
