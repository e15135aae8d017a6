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

// Package local implements the Orchestrator interface for a cluster running
// on the local host: start the cluster, launch the supervised search job,
// block until the job finishes or a termination signal fires, then tear
// everything down exactly once in job-group-first order.
package local

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tune-toolkit/pkg/cluster"
	"tune-toolkit/pkg/logging"
	"tune-toolkit/pkg/orchestrator"
	"tune-toolkit/pkg/run/runmanifest"
	"tune-toolkit/pkg/shutdown"
	"tune-toolkit/pkg/supervisor"
)

// Cluster is the cluster lifecycle surface the orchestrator drives.
type Cluster interface {
	Start(cfg cluster.Config) error
	Stop(force bool) error
}

// Supervisor is the job-supervision surface the orchestrator drives.
type Supervisor interface {
	Launch(spec supervisor.JobSpec) (*supervisor.JobHandle, error)
	Wait(h *supervisor.JobHandle) supervisor.Outcome
	Done(h *supervisor.JobHandle) <-chan struct{}
	SignalGroup(h *supervisor.JobHandle, sig unix.Signal) error
	Shutdown(h *supervisor.JobHandle, grace time.Duration) (supervisor.Outcome, error)
	ConfirmGroupExit(h *supervisor.JobHandle, deadline time.Duration) error
}

// LocalOrchestrator implements the Orchestrator interface for a local
// cluster. One instance owns one run.
type LocalOrchestrator struct {
	cluster Cluster
	sup     Supervisor
	latch   *shutdown.Latch
	bridge  *shutdown.Bridge
}

var _ orchestrator.Orchestrator = (*LocalOrchestrator)(nil)

// NewLocalOrchestrator creates and returns a new LocalOrchestrator instance.
func NewLocalOrchestrator() (*LocalOrchestrator, error) {
	latch := shutdown.NewLatch()
	return &LocalOrchestrator{
		cluster: cluster.NewHandle(),
		sup:     supervisor.New(),
		latch:   latch,
		bridge:  shutdown.NewBridge(latch),
	}, nil
}

// Run executes the full search-run lifecycle and returns the process exit
// code: the job's own code on normal completion, 64/65 for startup
// failures, 128+N when a termination signal drove the shutdown. A non-nil
// error alongside the code reports teardown trouble the caller must log.
func (o *LocalOrchestrator) Run(job orchestrator.JobDefinition) (int, error) {
	grace := job.GracePeriod
	if grace <= 0 {
		grace = supervisor.DefaultGrace
	}

	// Armed before anything else starts so a signal racing the startup
	// sequence is latched rather than lost. The handler only flips the
	// latch; teardown runs in this function's wait path.
	o.bridge.Arm(func(sig os.Signal) {
		logging.Warning("Received %s; beginning orderly shutdown", sig)
	})
	defer o.bridge.Disarm()

	clusterCfg := clusterConfigFromJob(job)
	if err := o.cluster.Start(clusterCfg); err != nil {
		return orchestrator.ExitClusterStartFailed, err
	}

	o.recordManifest(job, grace)

	spec := supervisor.NewSearchJobSpec(
		job.DriverExecutable, job.Dataset, job.Model, job.NumSamples, job.Seed, job.SearchSpacePath)
	handle, err := o.sup.Launch(spec)
	if err != nil {
		if stopErr := o.cluster.Stop(true); stopErr != nil {
			logging.Error("Cluster teardown after failed launch: %v", stopErr)
		}
		return orchestrator.ExitJobLaunchFailed, err
	}

	outcome, signalled, shutdownErr := o.superviseUntilExit(handle, grace)

	// The job's entire process group must be confirmed gone before the
	// cluster goes away; otherwise surviving workers see the cluster
	// vanish underneath them.
	confirmErr := o.sup.ConfirmGroupExit(handle, grace)
	stopErr := o.cluster.Stop(true)
	o.latch.MarkDone()

	code := outcome.ExitStatus()
	if signalled {
		code = orchestrator.SignalExitCode(int(o.bridge.Signal()))
		logging.Info("Run terminated by signal; exiting with code %d", code)
	} else {
		logging.Info("Search job %s; exiting with code %d", outcome, code)
	}

	for _, err := range []error{shutdownErr, confirmErr, stopErr} {
		if err != nil {
			return code, err
		}
	}
	return code, nil
}

// superviseUntilExit blocks until the job exits on its own or the shutdown
// latch fires, in which case it propagates termination to the whole group
// with grace-then-kill escalation.
func (o *LocalOrchestrator) superviseUntilExit(h *supervisor.JobHandle, grace time.Duration) (supervisor.Outcome, bool, error) {
	// A signal may already have latched while the job was launching.
	if !o.latch.Triggered() {
		select {
		case <-o.sup.Done(h):
			return o.sup.Wait(h), false, nil
		case <-o.latch.Fired():
		}
	}

	logging.Info("Propagating termination to job process group %d", h.PGID)
	outcome, err := o.sup.Shutdown(h, grace)
	return outcome, true, err
}

func clusterConfigFromJob(job orchestrator.JobDefinition) cluster.Config {
	mode := cluster.Mode(job.ClusterMode)
	if mode == "" {
		mode = cluster.ModeHead
	}
	return cluster.Config{
		Executable:    job.ClusterExecutable,
		Mode:          mode,
		Address:       job.ClusterAddress,
		MinWorkerPort: job.MinWorkerPort,
		MaxWorkerPort: job.MaxWorkerPort,
	}
}

// recordManifest writes the YAML run record. The manifest is bookkeeping;
// failing to produce it is reported but never aborts a run whose cluster is
// already up.
func (o *LocalOrchestrator) recordManifest(job orchestrator.JobDefinition, grace time.Duration) {
	content, err := runmanifest.Generate(runmanifest.ManifestOptions{
		WorkloadName:       job.WorkloadName,
		DriverExecutable:   job.DriverExecutable,
		Dataset:            job.Dataset,
		Model:              job.Model,
		NumSamples:         job.NumSamples,
		Seed:               job.Seed,
		SearchSpacePath:    job.SearchSpacePath,
		ClusterMode:        string(clusterConfigFromJob(job).Mode),
		ClusterAddress:     job.ClusterAddress,
		MinWorkerPort:      job.MinWorkerPort,
		MaxWorkerPort:      job.MaxWorkerPort,
		GracePeriodSeconds: int(grace / time.Second),
	})
	if err != nil {
		logging.Warning("Failed to generate run manifest: %v", err)
		return
	}

	if job.OutputManifest == "" {
		logging.Debug("Run manifest:\n%s", content)
		return
	}
	if err := os.WriteFile(job.OutputManifest, []byte(content), 0644); err != nil {
		logging.Warning("Failed to write run manifest to %s: %v", job.OutputManifest, err)
		return
	}
	logging.Info("Run manifest saved to %s", job.OutputManifest)
}
