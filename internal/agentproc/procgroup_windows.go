//go:build windows

package agentproc

import "os/exec"

// setProcessGroup is a no-op on Windows; there is no POSIX process group to
// create here.
func setProcessGroup(cmd *exec.Cmd) {}

// terminateProcessGroup has no POSIX signal to send on Windows. Closing
// stdin and relying on process-wait (handled by the caller observing the
// cancel flag) is the accepted fallback.
func terminateProcessGroup(pid int) {}
