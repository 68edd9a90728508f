// Package executor renders rule command templates and launches them through
// the shell, detached from the caller: spawning never blocks dispatch, and a
// reaper goroutine reports each child's eventual exit status.
package executor

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"filecron/internal/event"
	"filecron/internal/logging"
	"filecron/internal/metrics"
	"filecron/internal/rule"
)

const DefaultShell = "/bin/sh"

// ExecutionError reports a failed spawn. Never fatal to the engine.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("unable to launch command %q: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Options struct {
	Shell   string
	Logger  *logging.Logger
	Metrics *metrics.Registry
	Bus     *event.Bus[event.Event]
}

// Runner spawns commands fire-and-forget. Stdio is discarded; the command
// interpreter receives the rendered line as-is.
type Runner struct {
	shell   string
	logger  *logging.Logger
	metrics *metrics.Registry
	bus     *event.Bus[event.Event]
	wg      sync.WaitGroup
}

func NewRunner(options Options) *Runner {
	shell := options.Shell
	if shell == "" {
		shell = DefaultShell
	}
	return &Runner{
		shell:   shell,
		logger:  options.Logger,
		metrics: options.Metrics,
		bus:     options.Bus,
	}
}

// Execute renders and launches the rule's command for triggeringPath. It
// returns once the process has started (or failed to); it never waits for
// completion.
func (runner *Runner) Execute(r *rule.Rule, triggeringPath string) error {
	if runner == nil {
		return errors.New("runner is nil")
	}
	if r == nil {
		return errors.New("rule is nil")
	}

	rendered := Render(r.Command, r.Path, triggeringPath)
	command := exec.Command(runner.shell, "-c", rendered)
	// Own process group: signals aimed at the daemon never reach children.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := command.Start(); err != nil {
		execErr := &ExecutionError{Command: rendered, Err: err}
		runner.metrics.IncSpawnFailures()
		if runner.logger != nil {
			runner.logger.Error("command spawn failed", map[string]string{
				"filecron.category": "executor",
				"command":           rendered,
				"error":             err.Error(),
			})
		}
		if runner.bus != nil {
			failed := event.NewCommandEvent(event.TypeCommandFailed, r.Path, rendered, triggeringPath)
			failed.Message = err.Error()
			runner.bus.Publish(failed)
		}
		return execErr
	}

	pid := command.Process.Pid
	runner.metrics.IncCommandsSpawned()
	if runner.logger != nil {
		runner.logger.Info("command spawned", map[string]string{
			"filecron.category": "executor",
			"command":           rendered,
			"path":              triggeringPath,
			"pid":               strconv.Itoa(pid),
		})
	}
	if runner.bus != nil {
		started := event.NewCommandEvent(event.TypeCommandStarted, r.Path, rendered, triggeringPath)
		started.PID = pid
		runner.bus.Publish(started)
	}

	runner.wg.Add(1)
	go runner.reap(command, r, rendered, triggeringPath, pid)
	return nil
}

// Wait blocks until every reaper has observed its child's exit. Shutdown does
// not require it; tests and orderly daemon exits use it to drain reporting.
func (runner *Runner) Wait() {
	if runner == nil {
		return
	}
	runner.wg.Wait()
}

func (runner *Runner) reap(command *exec.Cmd, r *rule.Rule, rendered, triggeringPath string, pid int) {
	defer runner.wg.Done()

	waitErr := command.Wait()
	exitCode := -1
	if command.ProcessState != nil {
		exitCode = command.ProcessState.ExitCode()
	}

	if runner.logger != nil {
		fields := map[string]string{
			"filecron.category": "executor",
			"pid":               strconv.Itoa(pid),
			"exit_code":         strconv.Itoa(exitCode),
		}
		if waitErr != nil {
			fields["error"] = waitErr.Error()
		}
		runner.logger.Info("command finished", fields)
	}
	if runner.bus != nil {
		finished := event.NewCommandEvent(event.TypeCommandFinished, r.Path, rendered, triggeringPath)
		finished.PID = pid
		finished.ExitCode = exitCode
		if waitErr != nil {
			finished.Message = waitErr.Error()
		}
		runner.bus.Publish(finished)
	}
}
