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

// Package bpf loads the heartbeat eBPF program and reads the records from the perf event array.
package bpf

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/rlimit"
	"github.com/hashicorp/go-multierror"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/tools/btf"
)

const (
	AttachAuto       = "auto"
	AttachBTF        = "btf"
	AttachTracepoint = "tracepoint"

	programBTF        = "handle_sched_switch_btf"
	programTracepoint = "handle_sched_switch"
	eventsMap         = "heartbeat_events"

	// cgroupResolutionConst is the load time gate of the cgroup walk in the program
	cgroupResolutionConst = "cgroup_resolution"
)

// cgroup_resolution values in the program
const (
	resolutionUnsupported uint32 = 0
	resolutionFull        uint32 = 1
)

type objects struct {
	Program *ebpf.Program
	Events  *ebpf.Map
}

type btfObjects struct {
	Program *ebpf.Program `ebpf:"handle_sched_switch_btf"`
	Events  *ebpf.Map     `ebpf:"heartbeat_events"`
}

type tracepointObjects struct {
	Program *ebpf.Program `ebpf:"handle_sched_switch"`
	Events  *ebpf.Map     `ebpf:"heartbeat_events"`
}

func (o *objects) Close() error {
	var err error
	if o.Program != nil {
		if e := o.Program.Close(); e != nil {
			err = multierror.Append(err, e)
		}
	}
	if o.Events != nil {
		if e := o.Events.Close(); e != nil {
			err = multierror.Append(err, e)
		}
	}
	return err
}

// ParseAttach validates the attach mode
func ParseAttach(attach string) (string, error) {
	switch attach {
	case AttachAuto, AttachBTF, AttachTracepoint:
		return attach, nil
	case "":
		return AttachAuto, nil
	default:
		return "", fmt.Errorf("unknown attach mode: %s", attach)
	}
}

// DecideAttach prefers the BTF tracepoint when the kernel BTF exists, it exposes the incoming task
func DecideAttach(attach string) string {
	if attach != AttachAuto {
		return attach
	}
	if _, err := btf.ExistKernelBTF(); err != nil {
		return AttachTracepoint
	}
	return AttachBTF
}

// prepareSpec keeps the selected program only and rewrites the cgroup resolution gate
func prepareSpec(spec *ebpf.CollectionSpec, attach string, mode capture.Mode) error {
	selected, removed := programBTF, programTracepoint
	if attach == AttachTracepoint {
		selected, removed = programTracepoint, programBTF
	}
	if _, exist := spec.Programs[selected]; !exist {
		return fmt.Errorf("could not found the program %s", selected)
	}
	if _, exist := spec.Maps[eventsMap]; !exist {
		return fmt.Errorf("could not found the map %s", eventsMap)
	}
	delete(spec.Programs, removed)

	var resolution uint32
	switch mode {
	case capture.ModeFull:
		resolution = resolutionFull
	case capture.ModeUnsupported:
		resolution = resolutionUnsupported
	default:
		return fmt.Errorf("the cgroup resolution must be decided before loading: %s", mode)
	}
	if err := spec.RewriteConstants(map[string]interface{}{cgroupResolutionConst: resolution}); err != nil {
		return fmt.Errorf("rewrite the cgroup resolution failure: %v", err)
	}
	return nil
}

func loadObjects(path, attach string, mode capture.Mode) (*objects, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove the memlock failure: %v", err)
	}
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("load the collection spec from %s failure: %v", path, err)
	}
	if err = prepareSpec(spec, attach, mode); err != nil {
		return nil, err
	}

	opts := btf.GetEBPFCollectionOptionsIfNeed()
	if attach == AttachTracepoint {
		objs := tracepointObjects{}
		if err := spec.LoadAndAssign(&objs, opts); err != nil {
			return nil, fmt.Errorf("load the heartbeat program failure: %v", err)
		}
		result := objects(objs)
		return &result, nil
	}
	objs := btfObjects{}
	if err := spec.LoadAndAssign(&objs, opts); err != nil {
		return nil, fmt.Errorf("load the heartbeat program failure: %v", err)
	}
	result := objects(objs)
	return &result, nil
}
