package inference

import (
	"context"
	"errors"
	"log"
	"os/exec"
)

// Launcher starts the runtime process.
type Launcher interface {
	Launch(ctx context.Context, argv []string) error
}

// ExecLauncher spawns the runtime as a detached child process. The process is
// not bound to ctx so it outlives the startup sequence.
type ExecLauncher struct {
	Logger *log.Logger
}

func (l ExecLauncher) Launch(_ context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no start command configured")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return err
	}
	cmd := exec.Command(path, argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("launched %s (pid %d)", argv[0], cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Printf("runtime process exited: %v", err)
		}
	}()
	return nil
}
