// -*- Mode: Go; indent-tabs-mode: t -*-

package resolve

import (
	"path/filepath"
	"strings"

	"github.com/sudopolicy/sudopolicy/model"
)

// ShapeArgv applies the login-shell/edit-mode argv rewrites of
// spec.md §4.5. In login-shell mode it returns a newly allocated slice
// and leaves argv untouched; argv's spare capacity is not used.
func ShapeArgv(argv []string, mode model.Mode, targetShell string) []string {
	if mode != model.ModeLoginShell || len(argv) == 0 {
		return argv
	}

	base := filepath.Base(argv[0])
	shaped := append([]string(nil), argv...)
	shaped[0] = "-" + base

	if targetShell == "/bin/bash" || filepath.Base(targetShell) == "bash" {
		// "-bash -c ..." becomes "-bash --login -c ..." so the shell
		// enters login mode before running the -c script.
		for i, a := range shaped {
			if a == "-c" {
				out := make([]string, 0, len(shaped)+1)
				out = append(out, shaped[:i]...)
				out = append(out, "--login")
				out = append(out, shaped[i:]...)
				return out
			}
		}
	}
	return shaped
}

// ModeForBasename switches RUN to EDIT when the resolved command's
// basename is "sudoedit" (spec.md §4.5), returning the adjusted mode
// and whether a switch happened (the caller emits the warning).
func ModeForBasename(mode model.Mode, resolvedPath string) (model.Mode, bool) {
	if mode == model.ModeRun && filepath.Base(resolvedPath) == "sudoedit" {
		return model.ModeEdit, true
	}
	return mode, false
}

// UnescapeForMatching reverses the meta-escape characters a "shell via
// -c" front end introduces into argv, for matching/logging purposes
// only; the original argv handed to exec is never touched (spec.md
// §4.5).
func UnescapeForMatching(arg string) string {
	var b strings.Builder
	for i := 0; i < len(arg); i++ {
		if arg[i] == '\\' && i+1 < len(arg) {
			switch arg[i+1] {
			case ' ', '\t', '\n', '\'', '"', '\\', '$', '&', '(', ')', ';', '|', '<', '>', '`', '#', '*', '?', '[', ']', '!':
				b.WriteByte(arg[i+1])
				i++
				continue
			}
		}
		b.WriteByte(arg[i])
	}
	return b.String()
}
