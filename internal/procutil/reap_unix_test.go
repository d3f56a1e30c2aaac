//go:build !windows

package procutil

import (
	"os/exec"
	"testing"
)

func TestSetProcessGroup(t *testing.T) {
	cmd := exec.Command("true")
	SetProcessGroup(cmd)
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatal("expected Setpgid to be set")
	}
}

func TestReapNoChildrenDoesNotBlock(t *testing.T) {
	// With no exited children pending, Reap must return immediately.
	Reap()
}
