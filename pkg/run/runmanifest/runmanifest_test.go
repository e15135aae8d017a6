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

package runmanifest

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func baseOptions() ManifestOptions {
	return ManifestOptions{
		WorkloadName:       "tune-run-abc12345",
		CreatedAt:          "2026-01-15T10:00:00Z",
		DriverExecutable:   "tune_driver.py",
		Dataset:            "CIFAR10",
		Model:              "ResNet18",
		NumSamples:         50,
		Seed:               1234,
		ClusterMode:        "head",
		MinWorkerPort:      20000,
		MaxWorkerPort:      29999,
		GracePeriodSeconds: 10,
	}
}

// parseManifest decodes the generated YAML for assertions.
func parseManifest(t *testing.T, content string) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &result); err != nil {
		t.Fatalf("generated manifest is not valid YAML: %v\n%s", err, content)
	}
	return result
}

func section(t *testing.T, result map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	sec, ok := result[key].(map[string]interface{})
	if !ok {
		t.Fatalf("%s section not found or not a map", key)
	}
	return sec
}

func TestGenerateManifestFields(t *testing.T) {
	content, err := Generate(baseOptions())
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	result := parseManifest(t, content)

	if workload := result["workload"]; workload != "tune-run-abc12345" {
		t.Errorf("workload = %v, want tune-run-abc12345", workload)
	}

	driver := section(t, result, "driver")
	if driver["executable"] != "tune_driver.py" {
		t.Errorf("driver.executable = %v, want tune_driver.py", driver["executable"])
	}
	if driver["dataset"] != "CIFAR10" || driver["model"] != "ResNet18" {
		t.Errorf("driver dataset/model = %v/%v, want CIFAR10/ResNet18", driver["dataset"], driver["model"])
	}
	if driver["numSamples"] != 50 || driver["seed"] != 1234 {
		t.Errorf("driver numSamples/seed = %v/%v, want 50/1234", driver["numSamples"], driver["seed"])
	}

	cluster := section(t, result, "cluster")
	if cluster["mode"] != "head" {
		t.Errorf("cluster.mode = %v, want head", cluster["mode"])
	}
	if cluster["minWorkerPort"] != 20000 || cluster["maxWorkerPort"] != 29999 {
		t.Errorf("cluster ports = %v-%v, want 20000-29999", cluster["minWorkerPort"], cluster["maxWorkerPort"])
	}

	teardown := section(t, result, "teardown")
	if teardown["gracePeriodSeconds"] != 10 {
		t.Errorf("teardown.gracePeriodSeconds = %v, want 10", teardown["gracePeriodSeconds"])
	}
}

func TestGenerateOmitsEmptyOptionalFields(t *testing.T) {
	content, err := Generate(baseOptions())
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if strings.Contains(content, "searchSpace") {
		t.Errorf("manifest contains searchSpace despite empty path:\n%s", content)
	}
	if strings.Contains(content, "address") {
		t.Errorf("manifest contains address despite head mode:\n%s", content)
	}
}

func TestGenerateIncludesOptionalFields(t *testing.T) {
	opts := baseOptions()
	opts.SearchSpacePath = "configs/space.yaml"
	opts.ClusterMode = "join"
	opts.ClusterAddress = "10.0.0.5:6379"

	content, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	result := parseManifest(t, content)

	driver := section(t, result, "driver")
	if driver["searchSpace"] != "configs/space.yaml" {
		t.Errorf("driver.searchSpace = %v, want configs/space.yaml", driver["searchSpace"])
	}
	cluster := section(t, result, "cluster")
	if cluster["address"] != "10.0.0.5:6379" {
		t.Errorf("cluster.address = %v, want 10.0.0.5:6379", cluster["address"])
	}
}

func TestGenerateDefaultsWorkloadNameAndTimestamp(t *testing.T) {
	opts := baseOptions()
	opts.WorkloadName = ""
	opts.CreatedAt = ""

	content, err := Generate(opts)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	result := parseManifest(t, content)

	workload, ok := result["workload"].(string)
	if !ok || !strings.HasPrefix(workload, "tune-run-") {
		t.Errorf("workload = %v, want generated tune-run-* name", result["workload"])
	}
	if result["createdAt"] == nil {
		t.Error("createdAt missing from generated manifest")
	}
}
