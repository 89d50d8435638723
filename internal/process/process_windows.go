//go:build windows

package process

import "os/exec"

// killGroupOnCancel keeps the default cancellation; WaitDelay still bounds the wait.
func killGroupOnCancel(*exec.Cmd) {}
