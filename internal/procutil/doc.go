// Package procutil provides cross-platform process utilities for the
// subprocesses the daemon shells out to (tmux, tar, cp, session
// restart/shell scripts): putting a child into its own process group,
// and reaping fire-and-forget children so they never accumulate as
// zombies. Context cancellation of an exec.CommandContext child still
// kills only that child's own process, not the rest of its group.
package procutil
