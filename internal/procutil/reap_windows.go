//go:build windows

package procutil

import "os/exec"

// SetProcessGroup is a no-op on Windows; exec.Cmd.Process.Kill already
// terminates the single process and Windows has no zombie-reap concept.
func SetProcessGroup(_ *exec.Cmd) {}

// Reap is a no-op on Windows.
func Reap() {}
