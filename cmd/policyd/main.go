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

// Command policyd is the daemon front end (F2): the same Engine
// lifecycle as cmd/policycheck, wrapped in a gorilla/mux router served
// over a unix socket so tooling can ask "would this be allowed" many
// times in one process without forking (SPEC_FULL.md §2 F2, §5).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/sudopolicy/sudopolicy/auth"
	"github.com/sudopolicy/sudopolicy/decision"
	"github.com/sudopolicy/sudopolicy/dirs"
	"github.com/sudopolicy/sudopolicy/model"
	"github.com/sudopolicy/sudopolicy/orchestrator"
	"github.com/sudopolicy/sudopolicy/privilege"
	"github.com/sudopolicy/sudopolicy/rulesource"
)

func main() {
	socketPath := flag.String("socket", dirs.PolicydSocketPath, "unix socket to listen on")
	flag.Parse()

	if err := runDaemon(*socketPath); err != nil {
		fmt.Fprintf(os.Stderr, "policyd: %s\n", err)
		os.Exit(1)
	}
}

func runDaemon(socketPath string) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return err
	}
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer l.Close()

	store, err := auth.OpenBoltTimestampStore(dirs.TimestampDBPath, nil)
	if err != nil {
		return fmt.Errorf("cannot open timestamp store: %w", err)
	}
	defer store.Close()

	d := &daemon{store: store}

	router := mux.NewRouter()
	router.HandleFunc("/v1/check", d.handleCheck).Methods(http.MethodPost)
	router.HandleFunc("/v1/validate", d.handleValidate).Methods(http.MethodPost)
	router.HandleFunc("/v1/list", d.handleList).Methods(http.MethodGet)

	log.Printf("policyd: listening on %s", socketPath)
	return http.Serve(l, router)
}

// daemon serializes every request's Engine lifecycle behind mu: the
// Engine's invariants assume exactly one in-flight pipeline at a time,
// the same single-threaded contract the real sudo plugin keeps, even
// though each request builds its own Engine so requests never share a
// Privilege Gate or Defaults Store mid-pipeline.
type daemon struct {
	mu    sync.Mutex
	store auth.TimestampStore
}

// checkRequest is the wire shape of the invoking-side facts a daemon
// client supplies in place of the ambient process state cmd/policycheck
// reads from the OS (SPEC_FULL.md §6's front-end boundary bundle).
type checkRequest struct {
	User            string   `json:"user"`
	UID             int      `json:"uid"`
	GID             int      `json:"gid"`
	Groups          []int    `json:"groups"`
	Host            string   `json:"host"`
	Cwd             string   `json:"cwd"`
	Path            string   `json:"path"`
	TTYName         string   `json:"tty_name"`
	Argv            []string `json:"argv"`
	EnvAdd          []string `json:"env_add"`
	CurEnv          []string `json:"cur_env"`
	TargetUser      string   `json:"target_user"`
	TargetGroup     string   `json:"target_group"`
	Chroot          string   `json:"chroot"`
	PreserveEnv     bool     `json:"preserve_env"`
	CredentialCache string   `json:"credential_cache"`
	Prompt          string   `json:"prompt"`
	AskpassPath     string   `json:"askpass_path"`
}

func (r checkRequest) userContext() model.UserContext {
	groups := r.Groups
	if len(groups) == 0 {
		groups = []int{r.GID}
	}
	return model.UserContext{
		Name:            r.User,
		UID:             r.UID,
		GID:             r.GID,
		Groups:          groups,
		Host:            r.Host,
		Cwd:             r.Cwd,
		Path:            r.Path,
		TTYName:         r.TTYName,
		Argv:            r.Argv,
		CredentialCache: r.CredentialCache,
		Prompt:          r.Prompt,
	}
}

func (d *daemon) newEngine(uid, gid int, groups []int, askpassPath string) *orchestrator.Engine {
	sources := loadSourceList()
	return orchestrator.NewEngine(orchestrator.Config{
		Sources:        sources,
		Gate:           privilege.New(defaultIdentities(uid, gid, groups)),
		AuthBackend:    daemonAuthBackend(askpassPath),
		TimestampStore: d.store,
		AuditSink:      decision.JournalSink{},
		ReadFile:       os.ReadFile,
		PasswdTries:    3,
	})
}

// daemonAuthBackend prefers an askpass helper named by the request: the
// daemon process has no controlling terminal of its own to prompt on
// (SPEC_FULL.md §2 F2), so TerminalBackend only works for callers that
// arrange their own tty plumbing, and is kept as the fallback for those.
func daemonAuthBackend(askpassPath string) auth.Backend {
	if askpassPath != "" {
		return auth.AskpassBackend{Path: askpassPath}
	}
	return auth.TerminalBackend{}
}

func (d *daemon) handleCheck(w http.ResponseWriter, req *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	eng := d.newEngine(body.UID, body.GID, body.Groups, body.AskpassPath)
	uc := body.userContext()
	if err := eng.Init(uc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer eng.Cleanup()

	var envAdd []string
	if body.PreserveEnv {
		envAdd = body.CurEnv
	} else {
		envAdd = body.EnvAdd
	}

	rec, err := eng.Check(orchestrator.Request{
		Argv:        body.Argv,
		EnvAdd:      envAdd,
		CurEnv:      body.CurEnv,
		TargetUser:  body.TargetUser,
		TargetGroup: body.TargetGroup,
		Chroot:      body.Chroot,
		Mode:        model.ModeRun,
		Now:         time.Now(),
	})
	writeRecord(w, rec, err)
}

func (d *daemon) handleValidate(w http.ResponseWriter, req *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	eng := d.newEngine(body.UID, body.GID, body.Groups, body.AskpassPath)
	if err := eng.Init(body.userContext()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer eng.Cleanup()

	rec, err := eng.Validate()
	writeRecord(w, rec, err)
}

func (d *daemon) handleList(w http.ResponseWriter, req *http.Request) {
	listUser := req.URL.Query().Get("user")
	if listUser == "" {
		http.Error(w, "missing user query parameter", http.StatusBadRequest)
		return
	}
	verbose := req.URL.Query().Get("verbose") == "true"

	d.mu.Lock()
	defer d.mu.Unlock()

	eng := d.newEngine(0, 0, nil, "")
	if err := eng.Init(model.UserContext{Name: listUser, UID: 0, GID: 0, Groups: []int{0}}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer eng.Cleanup()

	rec, err := eng.List(listUser, verbose)
	writeRecord(w, rec, err)
}

func writeRecord(w http.ResponseWriter, rec *decision.Record, err error) {
	if rec == nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	switch rec.Outcome {
	case decision.OutcomeDeny:
		status = http.StatusForbidden
	case decision.OutcomeError:
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rec)
}

func loadSourceList() []rulesource.Source {
	var paths []string
	if fi, err := os.Stat(dirs.SudoersFile); err == nil && fi.Mode().IsRegular() {
		paths = append(paths, dirs.SudoersFile)
	}
	if entries, err := os.ReadDir(dirs.SudoersIncludeDir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				paths = append(paths, filepath.Join(dirs.SudoersIncludeDir, e.Name()))
			}
		}
	}

	sources := make([]rulesource.Source, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, rulesource.NewFileSource(p, 0, 0))
	}
	return sources
}

func defaultIdentities(uid, gid int, groups []int) map[privilege.State]privilege.Identity {
	if len(groups) == 0 {
		groups = []int{gid}
	}
	root := privilege.Identity{UID: 0, GID: 0}
	self := privilege.Identity{UID: uid, GID: gid, Groups: groups}
	return map[privilege.State]privilege.Identity{
		privilege.Initial: self,
		privilege.Root:    root,
		privilege.Sudoers: root,
		privilege.User:    self,
		privilege.Runas:   root,
	}
}
