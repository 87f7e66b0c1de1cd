//go:build !unix

package ffmpeg

import (
	"os/exec"
	"time"
)

type processGroup struct{}

func configureProcessGroup(cmd *exec.Cmd, grace time.Duration) *processGroup {
	cmd.WaitDelay = grace
	return &processGroup{}
}

func (*processGroup) release() {}
