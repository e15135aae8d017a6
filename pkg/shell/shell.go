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

// Package shell runs external commands and captures their output. It exists
// so higher layers can treat CLIs (the cluster control binary, mostly) as
// black boxes and so tests can substitute a fake runner.
package shell

import (
	"bytes"
	"math/rand"
	"os/exec"
	"strings"
)

// Result captures the outcome of an executed command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command is a pending command with optional stdin input.
type Command struct {
	name  string
	args  []string
	input string
}

// NewCommand prepares a command for execution.
func NewCommand(name string, args ...string) *Command {
	return &Command{name: name, args: args}
}

// SetInput provides the command's stdin content.
func (c *Command) SetInput(input string) {
	c.input = input
}

// Execute runs the command and waits for it to finish. A failure to start
// the process at all is reported as exit code -1 with the error message in
// Stderr, so callers only ever branch on ExitCode.
func (c *Command) Execute() Result {
	cmd := exec.Command(c.name, c.args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.input != "" {
		cmd.Stdin = strings.NewReader(c.input)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}

// ExecuteCommand runs a command with arguments and returns its result.
func ExecuteCommand(name string, args ...string) Result {
	return NewCommand(name, args...).Execute()
}

const randomStringCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomString returns a random lowercase alphanumeric string of length n,
// suitable for suffixing workload names.
func RandomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomStringCharset[rand.Intn(len(randomStringCharset))]
	}
	return string(b)
}
