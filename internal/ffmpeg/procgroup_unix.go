//go:build unix

package ffmpeg

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

type processGroup struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// configureProcessGroup places the child in a new process group and makes
// context cancellation signal the group rather than just the leader.
func configureProcessGroup(cmd *exec.Cmd, grace time.Duration) *processGroup {
	group := &processGroup{}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := cmd.Process.Pid
		err := unix.Kill(-pgid, unix.SIGTERM)
		group.mu.Lock()
		if !group.done {
			group.timer = time.AfterFunc(grace, func() {
				group.mu.Lock()
				defer group.mu.Unlock()
				if !group.done {
					_ = unix.Kill(-pgid, unix.SIGKILL)
				}
			})
		}
		group.mu.Unlock()
		if errors.Is(err, unix.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = grace * 2
	return group
}

func (g *processGroup) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = true
	if g.timer != nil {
		g.timer.Stop()
	}
}
