// Licensed to Apache Software Foundation (ASF) under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Apache Software Foundation (ASF) licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package capture

import (
	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
)

// SwitchEvent is the context of the sched_switch
type SwitchEvent struct {
	CPU      uint32
	PrevPID  uint32
	NextPID  uint32
	NextComm [events.CommLen]byte
	// Next is the incoming task_struct, zero when the attach point doesn't expose it
	Next kernel.Address
}

// Output is the per-CPU channel receives the records
type Output interface {
	Submit(cpu uint32, rec *events.Record) channel.Outcome
}

// Hook handles every context switch, it never blocks and never fails
type Hook struct {
	extractor *Extractor
	resolver  Resolver
	clock     Clock
	output    Output
}

func NewHook(extractor *Extractor, resolver Resolver, clock Clock, output Output) *Hook {
	if clock == nil {
		clock = MonotonicClock{}
	}
	return &Hook{extractor: extractor, resolver: resolver, clock: clock, output: output}
}

// Capture builds the record of the switch event
func (h *Hook) Capture(ev *SwitchEvent) events.Record {
	var rec events.Record
	h.extractor.Extract(ev, &rec)
	h.resolver.Resolve(ev.Next, &rec.CgroupPath)
	rec.Timestamp = h.clock.Now(ev.CPU)
	return rec
}

// Handle captures the record and submits it to the channel of the current CPU
func (h *Hook) Handle(ev *SwitchEvent) (events.Record, channel.Outcome) {
	rec := h.Capture(ev)
	return rec, h.output.Submit(ev.CPU, &rec)
}

// ResolverMode is the cgroup resolution used by the hook
func (h *Hook) ResolverMode() Mode {
	return h.resolver.Mode()
}
