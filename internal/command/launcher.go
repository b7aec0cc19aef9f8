package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// SpawnCommand is the hidden sub-command of the facron binary that acts as
// the intermediate process of a detached launch.
const SpawnCommand = "spawn"

// Launcher starts a command without tracking its completion.
type Launcher interface {
	// Spawn starts argv[0] with argv as its argument vector. It returns once
	// the command has been handed off; the command's own exit status is not
	// reported.
	Spawn(argv []string) error
}

// ErrEmptyCommand is returned when asked to launch an empty argv.
var ErrEmptyCommand = errors.New("command: empty argument vector")

// DetachedLauncher launches commands through an intermediate process: the
// daemon binary is re-executed as "<exe> spawn -- argv...", that process
// starts the real command in a new session and exits at once, and only the
// intermediate is waited for. The command is reparented and never becomes a
// zombie of the daemon.
type DetachedLauncher struct {
	exe    string
	stdout io.Writer
	stderr io.Writer
}

// NewDetachedLauncher returns a launcher that re-executes exe as the
// intermediate. exe is usually the result of os.Executable.
func NewDetachedLauncher(exe string) *DetachedLauncher {
	return &DetachedLauncher{exe: exe, stdout: os.Stdout, stderr: os.Stderr}
}

// Spawn implements Launcher.
func (l *DetachedLauncher) Spawn(argv []string) error {
	if len(argv) == 0 {
		return ErrEmptyCommand
	}
	args := append([]string{SpawnCommand, "--"}, argv...)
	cmd := exec.Command(l.exe, args...)
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command: intermediate for %q: %w", argv[0], err)
	}
	return nil
}

// RunIntermediate is the body of the spawn sub-command. It starts argv[0]
// directly (no PATH lookup) in its own session and returns without waiting,
// after which the intermediate process is expected to exit.
func RunIntermediate(argv []string) error {
	if len(argv) == 0 {
		return ErrEmptyCommand
	}
	cmd := &exec.Cmd{
		Path:        argv[0],
		Args:        argv,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		SysProcAttr: detachedAttr(),
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("command: start %q: %w", argv[0], err)
	}
	return cmd.Process.Release()
}

// Daemonize re-executes exe with args in a new session, detached from the
// controlling terminal, and returns the child's pid without waiting for it.
// env is appended to the current environment. Standard output is discarded;
// standard error is kept so the child's logs stay visible.
func Daemonize(exe string, args, env []string) (int, error) {
	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = detachedAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("command: daemonize: %w", err)
	}
	pid := cmd.Process.Pid
	return pid, cmd.Process.Release()
}
