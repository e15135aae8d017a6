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

// Package runmanifest generates a YAML record of a search run: what was
// launched, against which worker-port range, and with which trial budget.
// The manifest is a human-auditable artifact; nothing in the run loop
// parses it back.
package runmanifest

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"tune-toolkit/pkg/shell"
)

// RunManifestTemplate is the Go template for the YAML run record.
const RunManifestTemplate = `workload: {{.WorkloadName}}
createdAt: {{.CreatedAt}}
driver:
  executable: {{.DriverExecutable}}
  dataset: {{.Dataset}}
  model: {{.Model}}
  numSamples: {{.NumSamples}}
  seed: {{.Seed}}
{{- if .SearchSpacePath }}
  searchSpace: {{.SearchSpacePath}}
{{- end }}
cluster:
  mode: {{.ClusterMode}}
{{- if .ClusterAddress }}
  address: {{.ClusterAddress}}
{{- end }}
  minWorkerPort: {{.MinWorkerPort}}
  maxWorkerPort: {{.MaxWorkerPort}}
teardown:
  gracePeriodSeconds: {{.GracePeriodSeconds}}
`

// ManifestOptions holds parameters for run manifest generation.
type ManifestOptions struct {
	WorkloadName       string
	CreatedAt          string
	DriverExecutable   string
	Dataset            string
	Model              string
	NumSamples         int
	Seed               int
	SearchSpacePath    string
	ClusterMode        string
	ClusterAddress     string
	MinWorkerPort      int
	MaxWorkerPort      int
	GracePeriodSeconds int
}

// DefaultWorkloadName returns a unique workload name for a run.
func DefaultWorkloadName() string {
	return "tune-run-" + shell.RandomString(8)
}

// Generate renders the run manifest content. An empty WorkloadName gets a
// unique default; an empty CreatedAt gets the current UTC time.
func Generate(opts ManifestOptions) (string, error) {
	if opts.WorkloadName == "" {
		opts.WorkloadName = DefaultWorkloadName()
	}
	if opts.CreatedAt == "" {
		opts.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	tmpl, err := template.New("runmanifest").Parse(RunManifestTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse run manifest template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return "", fmt.Errorf("failed to execute run manifest template: %w", err)
	}
	return buf.String(), nil
}
