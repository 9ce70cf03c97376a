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

// Package capture is the context switch handler which builds the heartbeat record,
// it follows the same reading steps as the eBPF program.
package capture

import (
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
)

// Extractor reads the process identity of the incoming task
type Extractor struct {
	mem    kernel.Memory
	layout *kernel.Layout
}

func NewExtractor(mem kernel.Memory, layout *kernel.Layout) *Extractor {
	return &Extractor{mem: mem, layout: layout}
}

// Extract fills the pid, ppid and comm, the fields could not be read keep the zero value.
// The pid always comes from the switch event, ppid and comm come from the task when it's available.
func (e *Extractor) Extract(ev *SwitchEvent, rec *events.Record) {
	rec.PID = ev.NextPID
	if ev.Next.IsNull() {
		copy(rec.Comm[:events.CommLen-1], ev.NextComm[:])
		return
	}

	if _, err := e.mem.ReadString(ev.Next.Add(e.layout.TaskComm), rec.Comm[:]); err != nil {
		rec.Comm = [events.CommLen]byte{}
	}
	parent, err := kernel.ReadPointer(e.mem, ev.Next.Add(e.layout.TaskRealParent))
	if err != nil || parent.IsNull() {
		return
	}
	if ppid, err := kernel.ReadUint32(e.mem, parent.Add(e.layout.TaskTGID)); err == nil {
		rec.PPID = ppid
	}
}
