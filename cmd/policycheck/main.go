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

// Command policycheck is the CLI front end (F1): a thin shell around
// orchestrator.Engine's Init/Check/Validate/List/Cleanup lifecycle, one
// process per invocation, mirroring the real sudo front end minus
// pty/exec (SPEC_FULL.md §2 F1).
package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-runewidth"

	"github.com/sudopolicy/sudopolicy/auth"
	"github.com/sudopolicy/sudopolicy/decision"
	"github.com/sudopolicy/sudopolicy/dirs"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/orchestrator"
	"github.com/sudopolicy/sudopolicy/osutil"
	"github.com/sudopolicy/sudopolicy/privilege"
	"github.com/sudopolicy/sudopolicy/rulesource"
)

func main() {
	exitCode, err := run(os.Args[1:])
	if err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "policycheck: %s\n", err)
	}
	os.Exit(exitCode)
}

func run(args []string) (int, error) {
	result := &runResult{}
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	parser.AddCommand("check", "Decide whether a command may run", "Resolves and runs the full policy pipeline for a command.", &cmdCheck{result: result})
	parser.AddCommand("validate", "Refresh the authentication cache", "Runs the authenticator gate alone, without resolving a command.", &cmdValidate{result: result})
	parser.AddCommand("list", "List a user's privileges", "Shows what a user could run without granting anything.", &cmdList{result: result})
	if _, err := parser.ParseArgs(args); err != nil {
		return 1, err
	}
	return result.exitCode, result.err
}

// runResult carries the outcome of whichever subcommand ran back to
// main, since go-flags' Commander interface only returns an error.
type runResult struct {
	exitCode int
	err      error
}

// sharedOpts carries the invocation context every subcommand needs to
// build a UserContext and wire an Engine (SPEC_FULL.md §3 UC).
type sharedOpts struct {
	TargetUser  string `short:"u" long:"user" description:"run as this user" default:"root"`
	TargetGroup string `short:"g" long:"group" description:"run as this group"`
	Chroot      string `long:"chroot" description:"chroot before resolving the command"`
	Cwd         string `long:"cwd" description:"working directory override"`
	PreserveEnv bool   `short:"E" long:"preserve-env" description:"preserve the invoking user's environment"`
}

func (o *sharedOpts) buildEngine() (*orchestrator.Engine, model.UserContext, error) {
	uc, err := currentUserContext()
	if err != nil {
		return nil, uc, err
	}

	sources := loadSourceList()

	gate := privilege.New(defaultIdentities(uc))
	store, err := auth.OpenBoltTimestampStore(dirs.TimestampDBPath, nil)
	if err != nil {
		osutil.Debugf("policycheck: cannot open timestamp store, authentication cache disabled: %v", err)
		store = nil
	}

	eng := orchestrator.NewEngine(orchestrator.Config{
		Sources:        sources,
		Gate:           gate,
		AuthBackend:    authBackend(),
		TimestampStore: store,
		AuditSink:      decision.JournalSink{},
		ReadFile:       os.ReadFile,
		PasswdTries:    3,
	})
	if err := eng.Init(uc); err != nil {
		return nil, uc, err
	}
	return eng, uc, nil
}

type cmdCheck struct {
	sharedOpts
	result     *runResult
	Positional struct {
		Command string
		Args    []string
	} `positional-args:"yes"`
}

func (c *cmdCheck) Execute(args []string) error {
	eng, _, err := c.buildEngine()
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	argv := append([]string{c.Positional.Command}, c.Positional.Args...)
	var envAdd []string
	if c.PreserveEnv {
		envAdd = os.Environ()
	}

	rec, err := eng.Check(orchestrator.Request{
		Argv:        argv,
		EnvAdd:      envAdd,
		CurEnv:      os.Environ(),
		TargetUser:  c.TargetUser,
		TargetGroup: c.TargetGroup,
		Chroot:      c.Chroot,
		Cwd:         c.Cwd,
		Mode:        model.ModeRun,
		Now:         time.Now(),
	})
	return finish(c.result, rec, err)
}

type cmdValidate struct {
	sharedOpts
	result *runResult
}

func (c *cmdValidate) Execute(args []string) error {
	eng, _, err := c.buildEngine()
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	rec, err := eng.Validate()
	return finish(c.result, rec, err)
}

type cmdList struct {
	sharedOpts
	result     *runResult
	Verbose    bool `short:"v" long:"verbose" description:"show the rule source next to each entry"`
	Positional struct {
		ListUser string
	} `positional-args:"yes"`
}

func (c *cmdList) Execute(args []string) error {
	eng, uc, err := c.buildEngine()
	if err != nil {
		return err
	}
	defer eng.Cleanup()

	listUser := c.Positional.ListUser
	if listUser == "" {
		listUser = uc.Name
	}

	rec, err := eng.List(listUser, c.Verbose)
	if err != nil {
		return finish(c.result, rec, err)
	}
	printListing(rec)
	return finish(c.result, rec, nil)
}

// printListing column-aligns each privilege line against the left
// margin, measuring display width with mattn/go-runewidth so entries
// containing wide-character host or command names (a rule source can
// legally name either) still line up.
func printListing(rec *decision.Record) {
	if rec.Citation == "" {
		return
	}
	lines := strings.Split(rec.Citation, "\n")
	width := 0
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > width {
			width = w
		}
	}
	for _, l := range lines {
		fmt.Println(runewidth.FillRight(l, width))
	}
}

// finish prints rec, sets result's exit code from it (0 allow, 1 deny,
// rec.ExitCode on error; 1 when only err is present), clears result.err
// and always returns nil, so go-flags prints nothing further. An err
// that arrives without a record is not printed.
func finish(result *runResult, rec *decision.Record, err error) error {
	if rec != nil {
		if out, serr := rec.Serialize(); serr == nil {
			fmt.Fprint(os.Stdout, string(out))
		}
		switch rec.Outcome {
		case decision.OutcomeAllow:
			result.exitCode = 0
		case decision.OutcomeDeny:
			result.exitCode = 1
		case decision.OutcomeError:
			result.exitCode = rec.ExitCode
		}
	} else if err != nil {
		result.exitCode = 1
	}
	result.err = nil // the record already carries the user-facing message
	return nil
}

func loadSourceList() []rulesource.Source {
	var paths []string
	if isRegular(dirs.SudoersFile) {
		paths = append(paths, dirs.SudoersFile)
	}
	if isDir(dirs.SudoersIncludeDir) {
		entries, err := os.ReadDir(dirs.SudoersIncludeDir)
		if err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					paths = append(paths, filepath.Join(dirs.SudoersIncludeDir, e.Name()))
				}
			}
		}
	}

	sources := make([]rulesource.Source, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, rulesource.NewFileSource(p, 0, 0))
	}
	return sources
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func currentUserContext() (model.UserContext, error) {
	host, _ := os.Hostname()
	short := host
	if i := strings.IndexByte(short, '.'); i >= 0 {
		short = short[:i]
	}
	cwd, _ := os.Getwd()

	uc := model.UserContext{
		Name:            currentUsername(),
		UID:             os.Getuid(),
		GID:             os.Getgid(),
		Groups:          supplementaryGroups(),
		Cwd:             cwd,
		Host:            host,
		ShortHost:       short,
		Path:            os.Getenv("PATH"),
		PriorUser:       os.Getenv("SUDO_USER"),
		CredentialCache: os.Getenv("KRB5CCNAME"),
		Prompt:          os.Getenv("SUDO_PROMPT"),
	}
	if tty, ttyPath, ok := controllingTTY(); ok {
		uc.TTYName = tty
		uc.TTYPath = ttyPath
	}
	return uc, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return strconv.Itoa(os.Getuid())
}

func supplementaryGroups() []int {
	gids, err := os.Getgroups()
	if err != nil || len(gids) == 0 {
		return []int{os.Getgid()}
	}
	hasPrimary := false
	for _, g := range gids {
		if g == os.Getgid() {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		gids = append(gids, os.Getgid())
	}
	return gids
}

// controllingTTY identifies the terminal attached to stdin, if any;
// front ends without one (piped input, cmd/policyd) report ok=false and
// the Authenticator Gate's requiretty check handles the rest.
func controllingTTY() (name, path string, ok bool) {
	link, err := os.Readlink("/proc/self/fd/0")
	if err != nil || !strings.HasPrefix(link, "/dev/") {
		return "", "", false
	}
	return strings.TrimPrefix(link, "/dev/"), link, true
}

// authBackend picks TerminalBackend unless SUDO_ASKPASS names a helper and
// no controlling terminal is available, mirroring real sudo's preference
// for the tty prompt over askpass whenever one is present.
func authBackend() auth.Backend {
	if path := os.Getenv("SUDO_ASKPASS"); path != "" {
		if _, _, ok := controllingTTY(); !ok {
			return auth.AskpassBackend{Path: path}
		}
	}
	return auth.TerminalBackend{}
}

func defaultIdentities(uc model.UserContext) map[privilege.State]privilege.Identity {
	root := privilege.Identity{UID: 0, GID: 0}
	self := privilege.Identity{UID: uc.UID, GID: uc.GID, Groups: uc.Groups}
	return map[privilege.State]privilege.Identity{
		privilege.Initial: self,
		privilege.Root:    root,
		privilege.Sudoers: root,
		privilege.User:    self,
		privilege.Runas:   root,
	}
}
