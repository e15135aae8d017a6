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

package orchestrator

import "time"

// Exit codes of a run, as seen by the invoking shell. Any other positive
// code is the search job's own exit status, passed through unchanged;
// termination by signal N maps to 128+N.
const (
	ExitSuccess            = 0
	ExitClusterStartFailed = 64
	ExitJobLaunchFailed    = 65
)

// SignalExitCode maps a terminating signal number onto the conventional
// 128+N exit code.
func SignalExitCode(signum int) int {
	return 128 + signum
}

// JobDefinition holds all the necessary parameters to define a search run.
// This struct is intended to be general enough to support various
// orchestrators, with specific orchestrator implementations extracting the
// fields relevant to them.
type JobDefinition struct {
	// Search driver invocation. SearchSpacePath is forwarded verbatim; its
	// contents belong to the driver.
	DriverExecutable string
	Dataset          string
	Model            string
	NumSamples       int
	Seed             int
	SearchSpacePath  string

	// Cluster parameters.
	ClusterExecutable string
	ClusterMode       string
	ClusterAddress    string
	MinWorkerPort     int
	MaxWorkerPort     int

	// Teardown behavior.
	GracePeriod time.Duration

	// Run identity and record keeping.
	WorkloadName   string
	OutputManifest string
}

// Orchestrator defines the interface for running a supervised search job
// against a cluster. Run blocks until the job finishes or a termination
// signal drives teardown, and returns the process exit code for the run.
type Orchestrator interface {
	Run(job JobDefinition) (int, error)
}
