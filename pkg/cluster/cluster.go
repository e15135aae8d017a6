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

// Package cluster manages the lifecycle of the local compute cluster that
// executes search trials. The cluster itself is a black box driven through
// its control CLI; this package owns only start/stop and the worker-port
// range the cluster's workers bind to.
package cluster

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"tune-toolkit/pkg/logging"
	"tune-toolkit/pkg/shell"
)

// Mode selects whether this host starts a new cluster head or joins an
// existing cluster.
type Mode string

const (
	ModeHead Mode = "head"
	ModeJoin Mode = "join"
)

// Port bounds for the worker-port range. The range must sit inside the
// non-privileged port space.
const (
	MinValidPort = 1024
	MaxValidPort = 65535
)

// Sentinel errors for cluster lifecycle failures.
var (
	ErrAlreadyStarted       = errors.New("cluster already started")
	ErrPortRangeUnavailable = errors.New("worker port range unavailable")
	ErrStartFailed          = errors.New("cluster start failed")
	ErrStopFailed           = errors.New("cluster stop failed")
)

// Config holds the parameters for bringing up the cluster.
type Config struct {
	// Executable is the cluster control CLI (e.g. "ray").
	Executable string
	Mode       Mode
	// Address of the head node, required in join mode.
	Address       string
	MinWorkerPort int
	MaxWorkerPort int
}

// Validate checks the port-range invariant and mode requirements.
func (c Config) Validate() error {
	if c.Executable == "" {
		return fmt.Errorf("cluster executable must be set")
	}
	if c.MinWorkerPort >= c.MaxWorkerPort {
		return fmt.Errorf("min worker port %d must be less than max worker port %d", c.MinWorkerPort, c.MaxWorkerPort)
	}
	if c.MinWorkerPort < MinValidPort || c.MaxWorkerPort > MaxValidPort {
		return fmt.Errorf("worker port range %d-%d must lie within %d-%d", c.MinWorkerPort, c.MaxWorkerPort, MinValidPort, MaxValidPort)
	}
	switch c.Mode {
	case ModeHead:
	case ModeJoin:
		if c.Address == "" {
			return fmt.Errorf("join mode requires the head node address")
		}
	default:
		return fmt.Errorf("unknown cluster mode %q", c.Mode)
	}
	return nil
}

// State tracks the cluster lifecycle. The handle moves NotStarted → Running
// on a successful Start and reaches Stopped exactly once.
type State int

const (
	NotStarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Runner executes the cluster control CLI. Satisfied by pkg/shell; faked in
// tests.
type Runner interface {
	ExecuteCommand(name string, args ...string) shell.Result
}

type shellRunner struct{}

func (shellRunner) ExecuteCommand(name string, args ...string) shell.Result {
	return shell.ExecuteCommand(name, args...)
}

// Handle owns one cluster instance for the lifetime of a run. It is safe for
// use from the normal-completion path and the signal path concurrently.
type Handle struct {
	runner Runner

	mu    sync.Mutex
	state State
	cfg   Config
}

// NewHandle creates a cluster handle that shells out to the cluster CLI.
func NewHandle() *Handle {
	return &Handle{runner: shellRunner{}}
}

// NewHandleWithRunner creates a cluster handle with a custom runner.
func NewHandleWithRunner(runner Runner) *Handle {
	return &Handle{runner: runner}
}

// State reports the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start brings up the cluster bound to the configured worker-port range.
// It may be called at most once per handle.
func (h *Handle) Start(cfg Config) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != NotStarted {
		return errors.Wrapf(ErrAlreadyStarted, "cluster is %s", h.state)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(ErrStartFailed, err.Error())
	}

	args := []string{"start"}
	switch cfg.Mode {
	case ModeHead:
		args = append(args, "--head")
	case ModeJoin:
		args = append(args, fmt.Sprintf("--address=%s", cfg.Address))
	}
	args = append(args,
		fmt.Sprintf("--min-worker-port=%d", cfg.MinWorkerPort),
		fmt.Sprintf("--max-worker-port=%d", cfg.MaxWorkerPort),
	)

	logging.Info("Starting cluster: %s %s", cfg.Executable, strings.Join(args, " "))
	res := h.runner.ExecuteCommand(cfg.Executable, args...)
	if res.ExitCode != 0 {
		if portRangeClaimed(res) {
			return errors.Wrapf(ErrPortRangeUnavailable,
				"worker ports %d-%d", cfg.MinWorkerPort, cfg.MaxWorkerPort)
		}
		return errors.Wrapf(ErrStartFailed, "exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	h.cfg = cfg
	h.state = Running
	logging.Info("Cluster running with worker ports %d-%d", cfg.MinWorkerPort, cfg.MaxWorkerPort)
	return nil
}

// Stop tears the cluster down. It is idempotent: stopping an already-stopped
// (or never-started) cluster is a successful no-op, so teardown can be
// reached from both the normal-completion path and the signal path. The
// handle is always Stopped afterwards, even if the CLI reports a failure.
func (h *Handle) Stop(force bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Running {
		h.state = Stopped
		return nil
	}

	args := []string{"stop"}
	if force {
		args = append(args, "--force")
	}

	logging.Info("Stopping cluster (force=%t)...", force)
	res := h.runner.ExecuteCommand(h.cfg.Executable, args...)
	h.state = Stopped
	if res.ExitCode != 0 {
		return errors.Wrapf(ErrStopFailed, "exit code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	logging.Info("Cluster stopped.")
	return nil
}

// portRangeClaimed classifies CLI failures caused by another process already
// holding ports in the requested range.
func portRangeClaimed(res shell.Result) bool {
	out := strings.ToLower(res.Stderr + "\n" + res.Stdout)
	for _, marker := range []string{
		"address already in use",
		"port is already in use",
		"could not bind",
		"failed to bind",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}
