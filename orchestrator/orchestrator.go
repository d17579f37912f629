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

// Package orchestrator implements the Policy Orchestrator (C9): the
// Engine driving Init/Check/Validate/List/Cleanup, the common pipeline
// of spec.md §4.9, and re-initialization across intercepted
// sub-commands.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sudopolicy/sudopolicy/auth"
	"github.com/sudopolicy/sudopolicy/decision"
	"github.com/sudopolicy/sudopolicy/defaults"
	"github.com/sudopolicy/sudopolicy/environment"
	"github.com/sudopolicy/sudopolicy/errkind"
	"github.com/sudopolicy/sudopolicy/i18n"
	"github.com/sudopolicy/sudopolicy/identity"
	"github.com/sudopolicy/sudopolicy/iolog"
	"github.com/sudopolicy/sudopolicy/match"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/privilege"
	"github.com/sudopolicy/sudopolicy/resolve"
	"github.com/sudopolicy/sudopolicy/rulesource"
	"github.com/sudopolicy/sudopolicy/sudoers"
)

// Config bundles the Engine's external collaborators, each a narrow
// interface a front end or test can substitute.
type Config struct {
	Sources        []rulesource.Source
	Gate           *privilege.Gate
	AuthBackend    auth.Backend
	TimestampStore auth.TimestampStore
	AuditSink      decision.Sink
	LoginClass     environment.LoginClassVars
	ReadFile       func(path string) ([]byte, error)
	PasswdTries    int
}

// Engine is the Go realization of the Orchestrator. State that must
// survive across intercepted re-entries (the parsed rule tree, the
// credential cache) lives on the Engine; everything else is rebuilt
// per Check call (spec.md §4.9 "Re-entrancy").
type Engine struct {
	cfg      Config
	defaults *defaults.Store
	rules    *rulesource.Manager
	ruleSets map[rulesource.Source]*sudoers.RuleSet
	resolver *resolve.Resolver
	authGate *auth.Gate
	envBuild *environment.Builder
	emitter  *decision.Emitter
	idCache  *identity.Cache

	uc          model.UserContext
	intercepted bool
	sessionSeq  int
}

// NewEngine wires an Engine from cfg; call Init before the first Check.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		rules:    rulesource.New(cfg.Sources),
		resolver: resolve.New(),
		authGate: auth.NewGate(cfg.AuthBackend, cfg.TimestampStore, cfg.PasswdTries),
		envBuild: &environment.Builder{LoginClass: cfg.LoginClass, ReadFile: cfg.ReadFile},
		emitter:  decision.NewEmitter(cfg.AuditSink),
		idCache:  identity.NewCache(),
	}
}

// Init loads the rule sources, applies every non-command-scoped Defaults
// layer, and records uc as the fixed invoking-side facts for the
// lifetime of this process (spec.md §3 UC Lifecycle, §4.9 entry point
// "init(info, envp)").
func (e *Engine) Init(uc model.UserContext) error {
	if err := uc.Validate(model.ModeListNoCommand); err != nil {
		return errkind.NewInput("invalid invocation context", err)
	}
	e.uc = uc
	e.defaults = defaults.New()
	e.defaults.Init()

	ruleSets, err := e.rules.Load(e.cfg.Gate)
	if err != nil {
		return err
	}
	e.ruleSets = make(map[rulesource.Source]*sudoers.RuleSet, len(ruleSets))
	active := e.rules.Active()
	var nonCommand []defaults.Entry
	for i, rs := range ruleSets {
		e.ruleSets[active[i]] = rs
		nonCommand = append(nonCommand, rs.Defaults...)
	}
	nonCommand = append(nonCommand, e.rules.GetDefaults()...)

	e.defaults.Apply(nonCommand, map[defaults.Scope]bool{
		defaults.ScopeInitial: true,
		defaults.ScopeGeneric: true,
		defaults.ScopeHost:    true,
		defaults.ScopeUser:    true,
		defaults.ScopeRunas:   true,
	}, false)
	return nil
}

// Request bundles everything a Check call needs beyond what Init fixed.
type Request struct {
	Argv        []string
	EnvAdd      []string
	CurEnv      []string
	TargetUser  string
	TargetGroup string
	Chroot      string
	Cwd         string
	Mode        model.Mode
	Now         time.Time
	AuthContext context.Context
}

// Reenter implements spec.md §4.9's re-initialization path for
// intercepted sub-commands: it masks mode to the intercept-legal
// subset (ModeRun is the only legal re-entry mode), quietly reinitializes
// Defaults, and marks the Engine as handling an intercepted request
// before delegating to Check.
func (e *Engine) Reenter(req Request) (*decision.Record, error) {
	e.intercepted = true
	req.Mode = model.ModeRun
	e.defaults.Reinit()

	var nonCommand []defaults.Entry
	for _, rs := range e.ruleSets {
		nonCommand = append(nonCommand, rs.Defaults...)
	}
	nonCommand = append(nonCommand, e.rules.GetDefaults()...)
	e.defaults.Apply(nonCommand, map[defaults.Scope]bool{
		defaults.ScopeInitial: true,
		defaults.ScopeGeneric: true,
		defaults.ScopeHost:    true,
		defaults.ScopeUser:    true,
		defaults.ScopeRunas:   true,
	}, true)

	return e.Check(req)
}

// Check runs the full entry-point skeleton of spec.md §4.9: raise nproc,
// push INITIAL, build an argv copy with one spare slot, run the common
// pipeline, and tear down in reverse order on every exit path.
func (e *Engine) Check(req Request) (rec *decision.Record, err error) {
	if err := e.cfg.Gate.RaiseNproc(); err != nil {
		return nil, err
	}
	defer e.cfg.Gate.RestoreNproc()

	tok, err := e.cfg.Gate.Push(privilege.Initial)
	if err != nil {
		return nil, errkind.NewPrivilege("cannot push INITIAL", err)
	}
	defer tok.Pop()

	argv := make([]string, len(req.Argv), len(req.Argv)+2)
	copy(argv, req.Argv)

	rec, pipelineErr := e.runPipeline(req, argv)
	if pipelineErr != nil {
		return rec, pipelineErr
	}
	return rec, nil
}

func (e *Engine) runPipeline(req Request, argv []string) (*decision.Record, error) {
	rc := &model.RunasContext{TargetUser: req.TargetUser, TargetGroup: req.TargetGroup, Chroot: req.Chroot, Cwd: req.Cwd}
	rc.Normalize(&e.uc)
	if rc.TargetUser == "" {
		rc.TargetUser = "root"
	}

	// An empty argv means the front end would fall back to an implied
	// shell invocation; that's only legal when shell_noargs is set
	// (spec.md §4.9 step 5, §6 scenario "Env passthrough denied" sibling
	// "implied shell without shell_noargs").
	if len(argv) == 0 && req.Mode == model.ModeRun && !e.defaults.GetBool("shell_noargs") {
		msg := i18n.G("a command must be specified")
		return e.emitUsageError(req, "", msg), errkind.NewUsage(msg, nil)
	}

	// Step 1: resolve command, apply per-command Defaults.
	pathEnv := e.uc.Path
	var secure []string
	if sp := e.defaults.GetString("secure_path"); sp != "" {
		secure = strings.Split(sp, ":")
	}
	exempt := e.isSecureExempt()

	var cmdName string
	if len(argv) > 0 {
		cmdName = argv[0]
	}
	res, err := e.resolver.Resolve(e.cfg.Gate, cmdName, pathEnv, secure, exempt, rc.Chroot, e.defaults.GetBool("ignore_dot"))
	if err != nil {
		return e.emitError(req, "", err.Error(), false), err
	}
	switch res.Status {
	case model.StatusNotFound, model.StatusNotFoundError:
		msg := i18n.G("command not found")
		return e.emitError(req, "", msg, false), errkind.NewResolution(msg, nil)
	case model.StatusFoundButInDot:
		msg := i18n.G(`command found only in "."; use "sudo ./` + cmdName + `" if this is intended`)
		return e.emitDeny(req, "", msg), nil
	}
	rc.ResolvedCommand = res.Path
	rc.HostView = e.uc.Host

	// A "shell via -c" front end escapes shell metacharacters in the
	// script argv before invoking us; reverse that for matching and
	// logging only (spec.md §4.5) — the argv passed to ShapeArgv/exec
	// below is never touched.
	logCommand := rc.ResolvedCommand
	if req.Mode == model.ModeShellViaC && len(argv) > 0 {
		unescaped := make([]string, len(argv))
		unescaped[0] = rc.ResolvedCommand
		for i := 1; i < len(argv); i++ {
			unescaped[i] = resolve.UnescapeForMatching(argv[i])
		}
		logCommand = strings.Join(unescaped, " ")
	}

	commandScope := e.commandScopedDefaults(rc.ResolvedCommand)
	e.defaults.Apply(commandScope, map[defaults.Scope]bool{defaults.ScopeCommand: true}, false)

	// Step 2: root-can-sudo gate (closefrom override left to the
	// front-end's fd bookkeeping, out of this engine's scope).
	if e.uc.UID == 0 && !e.defaults.GetBool("root_sudo") {
		msg := i18n.G("sudoers specifies that root is not allowed to sudo")
		return e.emitDeny(req, logCommand, msg), nil
	}

	// Step 3: lookup & match under the sudoers locale.
	var mi model.MatchInfo
	guard := i18n.UseSudoersLocale()
	matchReq := match.Request{
		User: e.uc.Name, Host: e.uc.Host, RunasUser: rc.TargetUser,
		RunasGroup: rc.TargetGroup, Command: logCommand, Now: req.Now,
	}
	flags, winner := match.Evaluate(e.rules.Active(), e.ruleSets, matchReq, func(info model.MatchInfo, _ match.Decision, _ *sudoers.CommandSpec) {
		mi = info
	})
	guard.Release()
	if flags.Has(model.FlagError) {
		msg := i18n.G("no valid rule sources")
		return e.emitError(req, logCommand, msg, false), errkind.NewPolicy(msg, nil)
	}
	if flags.Has(model.FlagNoMatch) || winner == nil {
		msg := fmt.Sprintf(i18n.G("sorry, user %s is not allowed to execute '%s' as %s"), e.uc.Name, logCommand, rc.TargetUser)
		return e.emitDeny(req, logCommand, msg), nil
	}

	// Step 4: unknown-uid/gid vs runas_allow_unknown_id.
	targetCred, terr := e.idCache.LookupUserByName(rc.TargetUser)
	if terr != nil {
		targetCred = e.idCache.MakeFakeUser(rc.TargetUser, 0, 0)
	}
	rc.Cred = targetCred
	rc.UnknownUID = targetCred.Unknown
	if rc.TargetGroup != "" {
		groupCred, gerr := e.idCache.LookupGroupByName(rc.TargetGroup)
		if gerr != nil {
			groupCred = e.idCache.MakeFakeGroup(rc.TargetGroup)
		}
		rc.GroupEntry = groupCred
		rc.UnknownGID = groupCred.Unknown
	}
	if (rc.UnknownUID || rc.UnknownGID) && !e.defaults.GetBool("runas_allow_unknown_id") {
		msg := i18n.G("unknown user or group in runas request")
		return e.emitDeny(req, logCommand, msg), nil
	}

	// Step 5: implied-shell was already checked before command
	// resolution; requiretty is folded into the auth decision below.
	// The target user's shell is not validated.

	// Step 6: env_reset decision + build.
	envPolicy := environment.Policy{
		EnvReset:          e.defaults.GetBool("env_reset") && req.Mode != model.ModeEdit,
		Setenv:            e.defaults.GetBool("setenv"),
		Keep:              e.defaults.GetList("env_keep"),
		Check:             e.defaults.GetList("env_check"),
		EnvFile:           e.defaults.GetString("env_file"),
		RestrictedEnvFile: e.defaults.GetString("restricted_env_file"),
		Mode:              req.Mode,
	}
	env, eerr := e.envBuild.Build(req.CurEnv, envPolicy, rc.LoginClass, req.EnvAdd)
	if eerr != nil {
		// A refused or malformed VAR=value addition denies the request.
		if _, ok := eerr.(*errkind.InputError); ok {
			return e.emitDeny(req, logCommand, eerr.Error()), nil
		}
		return e.emitError(req, logCommand, eerr.Error(), false), eerr
	}

	// Step 7: authenticator gate.
	authReq := auth.DecideRequest{
		UID:            e.uc.UID,
		RootSudo:       e.defaults.GetBool("root_sudo"),
		RequireTTY:     e.defaults.GetBool("requiretty"),
		HasTTY:         e.uc.TTYName != "",
		ChrootOverride: rc.Chroot,
		ChrootAllowed:  e.defaults.GetList("chroot_allow"),
		CwdOverride:    rc.Cwd,
		CwdAllowed:     e.defaults.GetList("cwd_allow"),
		NoPasswd:       winner.NoPasswd,
		TimestampKey:   e.uc.Name + ":" + e.uc.TTYName,
		TimestampTTL:   time.Duration(e.defaults.GetInt("timestamp_timeout")) * time.Minute,
	}
	disp, aerr := e.authGate.Decide(authReq)
	if aerr != nil {
		return e.emitDeny(req, logCommand, aerr.Error()), nil
	}
	if disp == auth.Required {
		ctx := req.AuthContext
		if ctx == nil {
			ctx = context.Background()
		}
		if err := e.authGate.Authenticate(ctx, e.uc.Name, e.uc.Prompt, authReq.TimestampKey, authReq.TimestampTTL); err != nil {
			return e.emitDeny(req, logCommand, err.Error()), nil
		}
	}

	// Step 8 (chroot/cwd allowances) is folded into step 7's Decide call
	// above via ChrootAllowed/CwdAllowed.

	// Step 9: SUDO_USER rebind quirk — see DESIGN.md's Open Question
	// entry for why this is preserved rather than "fixed".
	if e.uc.UID == 0 && e.uc.PriorUser != "" && e.uc.PriorUser != e.uc.Name {
		e.uc.Name = e.uc.PriorUser
	}

	// Step 10: timeout/env-vars privileges already enforced in step 6
	// (setenv) and by the caller-supplied context deadline (timeout).

	// Step 11: resolve umask, iolog path, emit.
	umask := e.defaults.GetInt("umask")
	finalUmask := uint32(umask)
	if !e.defaults.GetBool("umask_override") {
		finalUmask = uint32(umask) | e.uc.Umask
	} else {
		finalUmask = e.uc.Umask
	}

	shapedArgv := resolve.ShapeArgv(argv, req.Mode, rc.ResolvedCommand)
	if newMode, switched := resolve.ModeForBasename(req.Mode, rc.ResolvedCommand); switched {
		req.Mode = newMode
	}

	iologPath := ""
	if e.defaults.GetBool("intercept") || e.defaults.GetString("iolog_dir") != "" {
		e.sessionSeq++
		p, ierr := iolog.Expand(e.defaults.GetString("iolog_dir"), e.defaults.GetString("iolog_file"), iolog.Escapes{
			User: e.uc.Name, Host: e.uc.Host, Command: logCommand, Runas: rc.TargetUser, Now: req.Now, Seq: e.sessionSeq,
		})
		if ierr != nil && !e.defaults.GetBool("ignore_iolog_errors") {
			return e.emitError(req, logCommand, ierr.Error(), false), ierr
		}
		iologPath = p
	}

	citation := mi.Citation()
	record := e.emitter.Allow(e.uc.Name, logCommand, shapedArgv, env, finalUmask, iologPath, citation)

	if rc.Cred != nil {
		rc.Cred.Release()
	}
	if rc.GroupEntry != nil {
		rc.GroupEntry.Release()
	}
	return record, nil
}

func (e *Engine) emitDeny(req Request, command, message string) *decision.Record {
	return e.emitter.Deny(e.uc.Name, command, message, "")
}

func (e *Engine) emitError(req Request, command, message string, usage bool) *decision.Record {
	return e.emitter.Error(e.uc.Name, command, message, usage)
}

func (e *Engine) emitUsageError(req Request, command, message string) *decision.Record {
	return e.emitter.Error(e.uc.Name, command, message, true)
}

// Validate implements the `validate()` entry point: runs the
// authenticator gate alone, refreshing the timestamp cache without
// resolving or matching any command (spec.md §4.9's skeleton applies,
// but the common pipeline's command-bound steps 1-6 and 8-11 are
// vacuous here).
func (e *Engine) Validate() (rec *decision.Record, err error) {
	if err := e.cfg.Gate.RaiseNproc(); err != nil {
		return nil, err
	}
	defer e.cfg.Gate.RestoreNproc()

	tok, err := e.cfg.Gate.Push(privilege.Initial)
	if err != nil {
		return nil, errkind.NewPrivilege("cannot push INITIAL", err)
	}
	defer tok.Pop()

	authReq := auth.DecideRequest{
		UID:          e.uc.UID,
		RootSudo:     e.defaults.GetBool("root_sudo"),
		RequireTTY:   e.defaults.GetBool("requiretty"),
		HasTTY:       e.uc.TTYName != "",
		TimestampKey: e.uc.Name + ":" + e.uc.TTYName,
		TimestampTTL: time.Duration(e.defaults.GetInt("timestamp_timeout")) * time.Minute,
	}
	disp, aerr := e.authGate.Decide(authReq)
	if aerr != nil {
		return e.emitter.Deny(e.uc.Name, "", aerr.Error(), ""), nil
	}
	if disp == auth.Required {
		if err := e.authGate.Authenticate(context.Background(), e.uc.Name, e.uc.Prompt, authReq.TimestampKey, authReq.TimestampTTL); err != nil {
			return e.emitter.Deny(e.uc.Name, "", err.Error(), ""), nil
		}
	}
	return e.emitter.Allow(e.uc.Name, "", nil, nil, 0, "", ""), nil
}

// List implements the `list(argc, argv, list_user, verbose)` entry
// point: evaluates what listUser could run, without granting it.
func (e *Engine) List(listUser string, verbose bool) (*decision.Record, error) {
	guard := i18n.UseSudoersLocale()
	defer guard.Release()

	var lines []string
	for _, src := range e.rules.Active() {
		rs := e.ruleSets[src]
		if rs == nil {
			continue
		}
		for _, us := range rs.UserSpecs {
			if us.User != "ALL" && us.User != listUser {
				continue
			}
			for _, priv := range us.Privileges {
				for _, cs := range priv.Commands {
					line := cs.Pattern
					if verbose {
						line = src.String() + ": " + line
					}
					lines = append(lines, line)
				}
			}
		}
	}
	return e.emitter.Allow(listUser, "", nil, nil, 0, "", strings.Join(lines, "\n")), nil
}

// Cleanup implements the `cleanup()` entry point: closes rule sources
// and releases the invoking-user credential, the last teardown step
// of the process lifetime (spec.md §4.9).
func (e *Engine) Cleanup() error {
	if e.uc.Cred != nil {
		e.uc.Cred.Release()
		e.uc.Cred = nil
	}
	return e.rules.Close()
}

func (e *Engine) isSecureExempt() bool {
	// A user whose own uid matches one configured as exempt (uid 0, or a
	// sudoers-configured exempt group) searches their own PATH; everyone
	// else is confined to secure_path. This engine treats uid 0 as the
	// only built-in exemption, matching real sudo's default posture.
	return e.uc.UID == 0
}

// commandScopedDefaults collects every Defaults!<command>-scoped entry
// across loaded rule sets whose command pattern matches the resolved
// command, using the same doublestar glob matching sudoers.CommandSpec
// uses for rule commands (spec.md §4.3's per-command Defaults layer).
func (e *Engine) commandScopedDefaults(resolvedCommand string) []defaults.Entry {
	var out []defaults.Entry
	for _, rs := range e.ruleSets {
		for _, d := range rs.Defaults {
			if d.Scope != defaults.ScopeCommand {
				continue
			}
			if commandPatternMatches(d.Command, resolvedCommand) {
				out = append(out, d)
			}
		}
	}
	return out
}

// commandPatternMatches reuses sudoers.CommandSpec's glob semantics (ALL
// matches anything, otherwise a doublestar pattern or literal) so
// Defaults!<command> scoping behaves identically to rule-level command
// matching.
func commandPatternMatches(pattern, resolvedCommand string) bool {
	return (sudoers.CommandSpec{Pattern: pattern}).Matches(resolvedCommand)
}
