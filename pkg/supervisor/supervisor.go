// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package supervisor launches the search job as the leader of a fresh
// process group and owns its lifecycle: waiting for exit, delivering
// signals to the whole group, and escalating from graceful to forceful
// termination so no worker subprocess outlives the run.
package supervisor

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"tune-toolkit/pkg/logging"
)

// Sentinel errors for launch and teardown failures.
var (
	ErrExecutableNotFound = errors.New("job executable not found")
	ErrLaunchFailed       = errors.New("job launch failed")
	ErrKillFailed         = errors.New("process group could not be killed")
)

// Arg is one (flag, value) pair forwarded to the search job. Order matters,
// so the spec keeps a slice rather than a map.
type Arg struct {
	Flag  string
	Value string
}

// JobSpec describes the search job invocation. Immutable once constructed.
type JobSpec struct {
	Executable string
	Args       []Arg
}

// Argv flattens the ordered argument mapping into the child's argv tail.
func (s JobSpec) Argv() []string {
	argv := make([]string, 0, 2*len(s.Args))
	for _, a := range s.Args {
		argv = append(argv, a.Flag)
		if a.Value != "" {
			argv = append(argv, a.Value)
		}
	}
	return argv
}

// NewSearchJobSpec builds the canonical search driver invocation. The
// search-space definition path is forwarded verbatim; its contents are the
// driver's business.
func NewSearchJobSpec(executable, dataset, model string, numSamples, seed int, searchSpacePath string) JobSpec {
	spec := JobSpec{
		Executable: executable,
		Args: []Arg{
			{Flag: "--dataset", Value: dataset},
			{Flag: "--model", Value: model},
			{Flag: "--num_samples", Value: strconv.Itoa(numSamples)},
			{Flag: "--seed", Value: strconv.Itoa(seed)},
		},
	}
	if searchSpacePath != "" {
		spec.Args = append(spec.Args, Arg{Flag: "--config", Value: searchSpacePath})
	}
	return spec
}

// Status tracks a launched job.
type Status int

const (
	Launched Status = iota
	Exited
	Killed
)

func (s Status) String() string {
	switch s {
	case Launched:
		return "launched"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// OutcomeKind tags how the job's leader left.
type OutcomeKind int

const (
	// Completed means the leader exited on its own.
	Completed OutcomeKind = iota
	// Terminated means the leader was killed by a signal.
	Terminated
)

// Outcome is the tagged result of waiting on the job: either a normal exit
// with a code, or death by signal. Interruption is data here, not a panic.
type Outcome struct {
	Kind     OutcomeKind
	ExitCode int
	Signal   unix.Signal
}

// ExitStatus maps the outcome onto the process exit-code convention:
// the job's own code on completion, 128+N for termination by signal N.
func (o Outcome) ExitStatus() int {
	if o.Kind == Terminated {
		return 128 + int(o.Signal)
	}
	return o.ExitCode
}

func (o Outcome) String() string {
	if o.Kind == Terminated {
		return fmt.Sprintf("terminated by %s", unix.SignalName(syscall.Signal(o.Signal)))
	}
	return fmt.Sprintf("completed with exit code %d", o.ExitCode)
}

// JobHandle tracks one launched job. PGID identifies the whole process
// group (leader plus descendants) and is never reused within a run.
type JobHandle struct {
	PGID int

	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	status  Status
	outcome Outcome
}

// Done is closed once the job's leader has exited and been reaped.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Status reports the job's current lifecycle status.
func (h *JobHandle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Supervisor launches and tears down supervised jobs.
type Supervisor struct{}

// DefaultGrace is the default TERM-to-KILL escalation pause. Long enough
// for trial drivers to flush checkpoints, short enough that a wedged job
// does not hold the port range hostage.
const DefaultGrace = 10 * time.Second

// New creates a supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Launch starts the job as the leader of a new process group and returns
// without waiting for it to finish. Stdout/stderr are inherited so trial
// progress stays visible.
func (s *Supervisor) Launch(spec JobSpec) (*JobHandle, error) {
	cmd := exec.Command(spec.Executable, spec.Argv()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// The job leads its own process group so worker subprocesses it spawns
	// can all be signalled as one unit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(ErrExecutableNotFound, spec.Executable)
		}
		return nil, errors.Wrap(ErrLaunchFailed, err.Error())
	}

	// With Setpgid the leader's pid is the group id.
	h := &JobHandle{
		PGID:   cmd.Process.Pid,
		cmd:    cmd,
		done:   make(chan struct{}),
		status: Launched,
	}
	go h.reap()

	logging.Info("Launched search job %s (process group %d)", spec.Executable, h.PGID)
	return h, nil
}

// reap waits for the leader and records its outcome before signalling done.
func (h *JobHandle) reap() {
	err := h.cmd.Wait()
	out := outcomeFromWait(err)

	h.mu.Lock()
	h.outcome = out
	if out.Kind == Terminated && out.Signal == unix.SIGKILL {
		h.status = Killed
	} else {
		h.status = Exited
	}
	h.mu.Unlock()
	close(h.done)
}

func outcomeFromWait(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Completed, ExitCode: 0}
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Outcome{Kind: Terminated, Signal: unix.Signal(ws.Signal())}
		}
		return Outcome{Kind: Completed, ExitCode: exitErr.ExitCode()}
	}
	// Wait itself failed; treat as an opaque non-zero completion.
	logging.Error("Waiting on search job failed: %v", err)
	return Outcome{Kind: Completed, ExitCode: 1}
}

// Wait blocks until the job's leader exits and returns its outcome. This is
// the only unbounded wait in the system; searches may run for hours.
func (s *Supervisor) Wait(h *JobHandle) Outcome {
	<-h.done
	return h.outcome
}

// Done exposes the handle's completion channel so callers can select the
// wait against a cancellation notification.
func (s *Supervisor) Done(h *JobHandle) <-chan struct{} {
	return h.Done()
}

// SignalGroup delivers sig to every process in the job's group. A group
// that has already exited is treated as success, so repeated teardown
// attempts collapse cleanly.
func (s *Supervisor) SignalGroup(h *JobHandle, sig unix.Signal) error {
	err := unix.Kill(-h.PGID, sig)
	if err == nil || err == unix.ESRCH {
		return nil
	}
	return errors.Wrapf(err, "delivering %s to process group %d", unix.SignalName(syscall.Signal(sig)), h.PGID)
}

// Shutdown terminates the job's process group: TERM first, then KILL once
// the grace period lapses, then waits for the leader to be reaped and the
// group to empty out. The returned outcome reflects how the leader died.
func (s *Supervisor) Shutdown(h *JobHandle, grace time.Duration) (Outcome, error) {
	if err := s.SignalGroup(h, unix.SIGTERM); err != nil {
		return Outcome{}, err
	}

	select {
	case <-h.done:
	case <-time.After(grace):
		logging.Warning("Search job did not exit within %s; escalating to SIGKILL", grace)
		if err := s.SignalGroup(h, unix.SIGKILL); err != nil {
			return Outcome{}, errors.Wrap(ErrKillFailed, err.Error())
		}
		<-h.done
	}

	if err := s.ConfirmGroupExit(h, grace); err != nil {
		return s.Wait(h), err
	}
	return s.Wait(h), nil
}

// ConfirmGroupExit verifies that no process in the job's group remains,
// killing stragglers if the leader's descendants linger past the deadline.
// A failure here is a resource-leak report, never silently swallowed.
func (s *Supervisor) ConfirmGroupExit(h *JobHandle, deadline time.Duration) error {
	if groupGone(h.PGID, deadline) {
		return nil
	}

	logging.Warning("Process group %d still has members; sending SIGKILL to stragglers", h.PGID)
	if err := unix.Kill(-h.PGID, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return errors.Wrapf(ErrKillFailed, "process group %d: %v", h.PGID, err)
	}
	if groupGone(h.PGID, time.Second) {
		return nil
	}
	return errors.Wrapf(ErrKillFailed, "process group %d survived SIGKILL", h.PGID)
}

// groupGone polls the group with signal 0 until it is empty or the deadline
// passes. ESRCH from kill(-pgid, 0) means no member remains.
func groupGone(pgid int, deadline time.Duration) bool {
	end := time.Now().Add(deadline)
	for {
		if err := unix.Kill(-pgid, 0); err == unix.ESRCH {
			return true
		}
		if time.Now().After(end) {
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
}
