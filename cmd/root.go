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

// Package cmd defines the gtune command line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"tune-toolkit/pkg/logging"
)

// GitTagVersion is set during build by the Makefile.
var GitTagVersion = "v0.1.0"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "gtune",
	Short: "gtune launches supervised hyperparameter-search runs on a local cluster.",
	Long: `gtune is the control process for cluster-backed hyperparameter searches.
It brings up a worker-pool cluster on a bounded port range, launches the
search driver as a supervised process group, and guarantees the job and the
cluster are torn down cleanly however the run ends.`,
	Version:      GitTagVersion,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

// Execute runs the root command and exits non-zero on CLI errors. Run exit
// codes are handled by the subcommands themselves.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
