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

package cmd

import (
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tune-toolkit/pkg/config"
	"tune-toolkit/pkg/logging"
	"tune-toolkit/pkg/orchestrator"
	"tune-toolkit/pkg/orchestrator/local"
)

var (
	configFile      string
	driverExe       string
	dataset         string
	model           string
	numSamples      int
	seed            int
	searchSpacePath string
	workloadName    string
	outputManifest  string

	// Cluster and teardown options.
	clusterExe         string
	clusterMode        string
	clusterAddress     string
	minWorkerPort      int
	maxWorkerPort      int
	gracePeriodSeconds int
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&configFile, "config", "", "Path to a gtune config file with orchestration defaults (YAML).")
	runCmd.Flags().StringVar(&driverExe, "driver", "", "Search driver executable to launch against the cluster. Required.")
	runCmd.Flags().StringVar(&dataset, "dataset", "", "Dataset identifier forwarded to the search driver. Required.")
	runCmd.Flags().StringVar(&model, "model", "", "Model identifier forwarded to the search driver. Required.")
	runCmd.Flags().IntVar(&numSamples, "num-samples", 10, "Trial budget forwarded to the search driver.")
	runCmd.Flags().IntVar(&seed, "seed", 1234, "Random seed forwarded to the search driver.")
	runCmd.Flags().StringVar(&searchSpacePath, "search-space", "", "Path to the search-space definition, forwarded verbatim to the driver.")
	runCmd.Flags().StringVarP(&workloadName, "workload-name", "w", "", "Name of the run. Auto-generated if empty.")
	runCmd.Flags().StringVarP(&outputManifest, "output-manifest", "o", "", "Path to save the YAML run manifest.")

	runCmd.Flags().StringVar(&clusterExe, "cluster-exe", "", "Cluster control CLI (default from config, typically 'ray').")
	runCmd.Flags().StringVar(&clusterMode, "cluster-mode", "", "Cluster mode: 'head' to start a head node, 'join' to join an existing cluster.")
	runCmd.Flags().StringVar(&clusterAddress, "cluster-address", "", "Head node address, required with --cluster-mode=join.")
	runCmd.Flags().IntVar(&minWorkerPort, "min-worker-port", 0, "Lower bound of the cluster's worker-port range.")
	runCmd.Flags().IntVar(&maxWorkerPort, "max-worker-port", 0, "Upper bound of the cluster's worker-port range.")
	runCmd.Flags().IntVar(&gracePeriodSeconds, "grace-period", 0, "Seconds between graceful TERM and forceful KILL during teardown.")

	_ = runCmd.MarkFlagRequired("driver")
	_ = runCmd.MarkFlagRequired("dataset")
	_ = runCmd.MarkFlagRequired("model")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs a supervised hyperparameter-search job on a local cluster.",
	Long: `The 'run' command brings up the compute cluster bound to the configured
worker-port range, launches the search driver as a supervised process
group, and blocks until the search finishes or a termination signal
arrives. Teardown always stops the job's whole process group before the
cluster, and runs exactly once no matter how many signals arrive.

Exit codes: 0 on success, 64 if the cluster failed to start, 65 if the
job failed to launch, 128+N when terminated by signal N; any other code
is the search job's own exit status, passed through unchanged.`,
	Run:          runRunCmd,
	SilenceUsage: true,
}

func runRunCmd(cmd *cobra.Command, args []string) {
	settings := config.DefaultSettings()
	if configFile != "" {
		loaded, err := config.Load(afero.NewOsFs(), configFile)
		if err != nil {
			logging.Fatal("Failed to load config: %v", err)
		}
		settings = loaded
	}
	applyFlagOverrides(cmd, &settings)

	if numSamples <= 0 {
		logging.Fatal("--num-samples must be a positive trial budget, got %d.", numSamples)
	}
	if settings.ClusterMode == "join" && settings.ClusterAddress == "" {
		logging.Fatal("--cluster-address is required with --cluster-mode=join.")
	}

	jobDef := orchestrator.JobDefinition{
		DriverExecutable:  driverExe,
		Dataset:           dataset,
		Model:             model,
		NumSamples:        numSamples,
		Seed:              seed,
		SearchSpacePath:   searchSpacePath,
		ClusterExecutable: settings.ClusterExecutable,
		ClusterMode:       settings.ClusterMode,
		ClusterAddress:    settings.ClusterAddress,
		MinWorkerPort:     settings.MinWorkerPort,
		MaxWorkerPort:     settings.MaxWorkerPort,
		GracePeriod:       time.Duration(settings.GracePeriodSeconds) * time.Second,
		WorkloadName:      workloadName,
		OutputManifest:    outputManifest,
	}

	localOrchestrator, err := local.NewLocalOrchestrator()
	if err != nil {
		logging.Fatal("Failed to create local orchestrator: %v", err)
	}

	code, err := localOrchestrator.Run(jobDef)
	if err != nil {
		logging.Error("gtune run: %v", err)
	}
	os.Exit(code)
}

// applyFlagOverrides layers explicitly-set flags over config-file settings.
func applyFlagOverrides(cmd *cobra.Command, settings *config.Settings) {
	if cmd.Flags().Changed("cluster-exe") {
		settings.ClusterExecutable = clusterExe
	}
	if cmd.Flags().Changed("cluster-mode") {
		settings.ClusterMode = clusterMode
	}
	if cmd.Flags().Changed("cluster-address") {
		settings.ClusterAddress = clusterAddress
	}
	if cmd.Flags().Changed("min-worker-port") {
		settings.MinWorkerPort = minWorkerPort
	}
	if cmd.Flags().Changed("max-worker-port") {
		settings.MaxWorkerPort = maxWorkerPort
	}
	if cmd.Flags().Changed("grace-period") {
		settings.GracePeriodSeconds = gracePeriodSeconds
	}
}
