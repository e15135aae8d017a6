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

// Package shutdown coordinates signal-driven teardown. A single-use Latch
// collapses racing termination signals into exactly one shutdown sequence,
// and a Bridge converts OS signals into latch triggers without ever running
// teardown inside the signal-handling context.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

// State is the latch's phase. There is no transition back to Idle.
type State int32

const (
	Idle State = iota
	InProgress
	Done
)

// Latch is a single-use shutdown latch shared between the signal bridge and
// the orchestrator's wait loop. Trigger has exactly one winner no matter how
// many signals race.
type Latch struct {
	state atomic.Int32
	fired chan struct{}
}

// NewLatch creates an idle latch.
func NewLatch() *Latch {
	return &Latch{fired: make(chan struct{})}
}

// Trigger moves the latch Idle → InProgress and reports whether this call
// won the race. Losing calls (repeated signals) are consumed as no-ops.
func (l *Latch) Trigger() bool {
	if !l.state.CompareAndSwap(int32(Idle), int32(InProgress)) {
		return false
	}
	close(l.fired)
	return true
}

// Fired is closed once the latch has been triggered; the orchestrator's
// wait loop selects on it against job completion.
func (l *Latch) Fired() <-chan struct{} {
	return l.fired
}

// Triggered reports whether a shutdown has been requested. Checked right
// after job launch so a signal arriving mid-launch is never lost.
func (l *Latch) Triggered() bool {
	return State(l.state.Load()) != Idle
}

// MarkDone records that the teardown sequence has completed.
func (l *Latch) MarkDone() {
	l.state.CompareAndSwap(int32(InProgress), int32(Done))
}

// State reports the latch's current phase.
func (l *Latch) State() State {
	return State(l.state.Load())
}

// Bridge intercepts interrupt/terminate signals aimed at the orchestrator
// and converts the first one into a latch trigger. Later deliveries, same
// kind or not, are consumed without further action.
type Bridge struct {
	latch *Latch
	ch    chan os.Signal

	mu    sync.Mutex
	first os.Signal
}

// NewBridge creates a bridge bound to the given latch.
func NewBridge(latch *Latch) *Bridge {
	return &Bridge{latch: latch}
}

// Arm installs handlers for SIGINT and SIGTERM. The handler goroutine only
// flips the latch and records the winning signal; teardown may block, so it
// belongs in the orchestrator's wait loop, never here. onSignal, if set, is
// invoked once for the winning signal.
func (b *Bridge) Arm(onSignal func(os.Signal)) {
	b.ch = make(chan os.Signal, 2)
	signal.Notify(b.ch, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range b.ch {
			if !b.latch.Trigger() {
				continue
			}
			b.mu.Lock()
			b.first = sig
			b.mu.Unlock()
			if onSignal != nil {
				onSignal(sig)
			}
		}
	}()
}

// Disarm restores default signal disposition and stops the handler.
func (b *Bridge) Disarm() {
	if b.ch == nil {
		return
	}
	signal.Stop(b.ch)
	close(b.ch)
	b.ch = nil
}

// Signal returns the signal that won the trigger race, defaulting to
// SIGTERM when shutdown was not signal-driven or the signal is unknown.
func (b *Bridge) Signal() unix.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.first.(syscall.Signal); ok {
		return unix.Signal(s)
	}
	return unix.SIGTERM
}
