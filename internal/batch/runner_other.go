//go:build !unix

package batch

import "os/exec"

func configureProcessGroup(c *exec.Cmd) {}
