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

package cluster

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"tune-toolkit/pkg/shell"
)

// fakeRunner records invocations of the cluster CLI and replays canned
// results keyed by the subcommand ("start" or "stop").
type fakeRunner struct {
	results map[string]shell.Result
	calls   []string
}

func (f *fakeRunner) ExecuteCommand(name string, args ...string) shell.Result {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	if len(args) > 0 {
		if res, ok := f.results[args[0]]; ok {
			return res
		}
	}
	return shell.Result{}
}

func validConfig() Config {
	return Config{
		Executable:    "ray",
		Mode:          ModeHead,
		MinWorkerPort: 20000,
		MaxWorkerPort: 29999,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "Valid head config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "Min port not below max port",
			mutate:  func(c *Config) { c.MinWorkerPort = 29999; c.MaxWorkerPort = 20000 },
			wantErr: true,
		},
		{
			name:    "Equal min and max ports",
			mutate:  func(c *Config) { c.MaxWorkerPort = c.MinWorkerPort },
			wantErr: true,
		},
		{
			name:    "Privileged min port",
			mutate:  func(c *Config) { c.MinWorkerPort = 80 },
			wantErr: true,
		},
		{
			name:    "Max port above valid range",
			mutate:  func(c *Config) { c.MaxWorkerPort = 70000 },
			wantErr: true,
		},
		{
			name:    "Join mode without address",
			mutate:  func(c *Config) { c.Mode = ModeJoin },
			wantErr: true,
		},
		{
			name:    "Join mode with address",
			mutate:  func(c *Config) { c.Mode = ModeJoin; c.Address = "10.0.0.5:6379" },
			wantErr: false,
		},
		{
			name:    "Missing executable",
			mutate:  func(c *Config) { c.Executable = "" },
			wantErr: true,
		},
		{
			name:    "Unknown mode",
			mutate:  func(c *Config) { c.Mode = "sidecar" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStartRunsHeadCommand(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandleWithRunner(runner)

	if err := h.Start(validConfig()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if h.State() != Running {
		t.Errorf("State() = %v, want Running", h.State())
	}
	want := "ray start --head --min-worker-port=20000 --max-worker-port=29999"
	if len(runner.calls) != 1 || runner.calls[0] != want {
		t.Errorf("CLI calls = %v, want [%q]", runner.calls, want)
	}
}

func TestStartRunsJoinCommand(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandleWithRunner(runner)

	cfg := validConfig()
	cfg.Mode = ModeJoin
	cfg.Address = "10.0.0.5:6379"
	if err := h.Start(cfg); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	want := "ray start --address=10.0.0.5:6379 --min-worker-port=20000 --max-worker-port=29999"
	if runner.calls[0] != want {
		t.Errorf("CLI call = %q, want %q", runner.calls[0], want)
	}
}

func TestStartTwiceReturnsAlreadyStarted(t *testing.T) {
	h := NewHandleWithRunner(&fakeRunner{})
	if err := h.Start(validConfig()); err != nil {
		t.Fatalf("first Start() failed: %v", err)
	}
	err := h.Start(validConfig())
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartClassifiesPortRangeFailure(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"start": {ExitCode: 1, Stderr: "RuntimeError: address already in use on port 20000"},
	}}
	h := NewHandleWithRunner(runner)

	err := h.Start(validConfig())
	if !errors.Is(err, ErrPortRangeUnavailable) {
		t.Errorf("Start() error = %v, want ErrPortRangeUnavailable", err)
	}
	if h.State() != NotStarted {
		t.Errorf("State() after failed start = %v, want NotStarted", h.State())
	}
}

func TestStartClassifiesGenericFailure(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"start": {ExitCode: 1, Stderr: "some scheduler panic"},
	}}
	h := NewHandleWithRunner(runner)

	err := h.Start(validConfig())
	if !errors.Is(err, ErrStartFailed) {
		t.Errorf("Start() error = %v, want ErrStartFailed", err)
	}
}

// P1: a second Stop is a successful no-op and the state stays Stopped.
func TestStopIsIdempotent(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandleWithRunner(runner)

	if err := h.Start(validConfig()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := h.Stop(true); err != nil {
		t.Fatalf("first Stop() failed: %v", err)
	}
	if err := h.Stop(true); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
	if h.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", h.State())
	}

	stops := 0
	for _, call := range runner.calls {
		if strings.Contains(call, " stop") {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("cluster CLI stop invoked %d times, want 1", stops)
	}
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandleWithRunner(runner)

	if err := h.Stop(false); err != nil {
		t.Errorf("Stop() on NotStarted handle error = %v, want nil", err)
	}
	if h.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", h.State())
	}
	if len(runner.calls) != 0 {
		t.Errorf("cluster CLI invoked %v, want no calls", runner.calls)
	}
}

func TestStopForcePassesFlag(t *testing.T) {
	runner := &fakeRunner{}
	h := NewHandleWithRunner(runner)

	if err := h.Start(validConfig()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := h.Stop(true); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	want := "ray stop --force"
	if runner.calls[1] != want {
		t.Errorf("CLI call = %q, want %q", runner.calls[1], want)
	}
}

func TestStopFailureStillReachesStopped(t *testing.T) {
	runner := &fakeRunner{results: map[string]shell.Result{
		"stop": {ExitCode: 1, Stderr: "head node unresponsive"},
	}}
	h := NewHandleWithRunner(runner)

	if err := h.Start(validConfig()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	err := h.Stop(true)
	if !errors.Is(err, ErrStopFailed) {
		t.Errorf("Stop() error = %v, want ErrStopFailed", err)
	}
	if h.State() != Stopped {
		t.Errorf("State() = %v, want Stopped even after a failed stop", h.State())
	}
	// A retry after the failure is a clean no-op.
	if err := h.Stop(true); err != nil {
		t.Errorf("Stop() retry error = %v, want nil", err)
	}
}
