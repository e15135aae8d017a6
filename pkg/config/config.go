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

// Package config loads the orchestrator's own settings from a YAML file.
// Only orchestration parameters live here; the search-space definition file
// is an opaque path forwarded to the search driver untouched.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Settings are the orchestrator defaults a config file may provide.
// Command-line flags override any of these.
type Settings struct {
	ClusterExecutable string `yaml:"cluster_executable"`
	ClusterMode       string `yaml:"cluster_mode"`
	ClusterAddress    string `yaml:"cluster_address"`
	MinWorkerPort     int    `yaml:"min_worker_port"`
	MaxWorkerPort     int    `yaml:"max_worker_port"`
	DriverExecutable  string `yaml:"driver_executable"`
	// GracePeriodSeconds is the TERM-to-KILL escalation pause during
	// signal-driven teardown.
	GracePeriodSeconds int `yaml:"grace_period_seconds"`
}

// DefaultSettings returns the built-in orchestration defaults.
func DefaultSettings() Settings {
	return Settings{
		ClusterExecutable:  "ray",
		ClusterMode:        "head",
		MinWorkerPort:      20000,
		MaxWorkerPort:      29999,
		GracePeriodSeconds: 10,
	}
}

// GracePeriod returns the grace period as a duration.
func (s Settings) GracePeriod() time.Duration {
	return time.Duration(s.GracePeriodSeconds) * time.Second
}

// Load reads settings from path, layering file values over the defaults.
// Fields absent from the file keep their default values.
func Load(fs afero.Fs, path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return settings, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, errors.Wrapf(err, "parsing config file %s", path)
	}
	if settings.GracePeriodSeconds <= 0 {
		return settings, errors.Errorf("config file %s: grace_period_seconds must be positive", path)
	}
	return settings, nil
}
