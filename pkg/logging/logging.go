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

// Package logging provides the printf-style logging surface used across the
// toolkit. It wraps logrus with a plain formatter so interactive output stays
// readable, and only colorizes when stderr is a terminal.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&levelPrefixFormatter{
		colorize: isatty.IsTerminal(os.Stderr.Fd()),
	})
	return l
}

// levelPrefixFormatter renders "LEVEL: message" lines instead of logrus'
// default key=value output, matching the CLI's human-facing style.
type levelPrefixFormatter struct {
	colorize bool
}

func (f *levelPrefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	prefix := ""
	switch entry.Level {
	case logrus.DebugLevel:
		prefix = f.paint(color.FgCyan, "DEBUG: ")
	case logrus.WarnLevel:
		prefix = f.paint(color.FgYellow, "WARNING: ")
	case logrus.ErrorLevel, logrus.FatalLevel:
		prefix = f.paint(color.FgRed, "ERROR: ")
	}
	return []byte(prefix + entry.Message + "\n"), nil
}

func (f *levelPrefixFormatter) paint(c color.Attribute, s string) string {
	if !f.colorize {
		return s
	}
	return color.New(c).Sprint(s)
}

// SetOutput redirects all log output, primarily for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetVerbose enables debug-level output.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

// Debug logs a formatted message at debug level.
func Debug(format string, args ...any) {
	log.Debugf(format, args...)
}

// Info logs a formatted message at info level.
func Info(format string, args ...any) {
	log.Infof(format, args...)
}

// Warning logs a formatted message at warning level.
func Warning(format string, args ...any) {
	log.Warnf(format, args...)
}

// Error logs a formatted message at error level.
func Error(format string, args ...any) {
	log.Errorf(format, args...)
}

// Fatal logs a formatted message at error level and exits with status 1.
func Fatal(format string, args ...any) {
	log.Errorf(format, args...)
	os.Exit(1)
}

// Errorf returns an error with a formatted message, logging nothing. It
// exists so call sites can stay on this package's printf conventions.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
