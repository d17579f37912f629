// -*- Mode: Go; indent-tabs-mode: t -*-

//go:build linux || darwin || freebsd || openbsd || netbsd

package osutil

import (
	"os"
	"syscall"
)

func fileOwner(fi os.FileInfo) (uid, gid int, ok bool) {
	st, ok2 := fi.Sys().(*syscall.Stat_t)
	if !ok2 {
		return 0, 0, false
	}
	return int(st.Uid), int(st.Gid), true
}
