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
	"fmt"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
)

// Mode of the cgroup resolution, decided before the hook is created
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeFull        Mode = "full"
	ModeUnsupported Mode = "unsupported"
)

func ParseMode(val string) (Mode, error) {
	switch m := Mode(val); m {
	case ModeAuto, ModeFull, ModeUnsupported:
		return m, nil
	case "":
		return ModeAuto, nil
	default:
		return "", fmt.Errorf("unknown cgroup resolution mode: %s", val)
	}
}

// Resolver writes the cgroup name of the task into the buffer,
// returns false when the name could not be resolved and the sentinel is written.
type Resolver interface {
	Mode() Mode
	Resolve(task kernel.Address, dst *[events.CgroupPathLen]byte) bool
}

// StrategyFor returns the resolver of the mode, the auto mode must be decided before
func StrategyFor(mode Mode, mem kernel.Memory, layout *kernel.Layout) (Resolver, error) {
	switch mode {
	case ModeFull:
		if mem == nil || layout == nil {
			return nil, fmt.Errorf("the full cgroup resolution requires the kernel memory and layout")
		}
		return &fullResolver{mem: mem, layout: layout}, nil
	case ModeUnsupported:
		return unsupportedResolver{}, nil
	default:
		return nil, fmt.Errorf("could not build the cgroup resolver of mode: %s", mode)
	}
}

// fullResolver walks task->cgroups->subsys[0]->cgroup->kn->name
type fullResolver struct {
	mem    kernel.Memory
	layout *kernel.Layout
}

func (f *fullResolver) Mode() Mode {
	return ModeFull
}

func (f *fullResolver) Resolve(task kernel.Address, dst *[events.CgroupPathLen]byte) bool {
	ptr := task
	for _, offset := range []uint32{
		f.layout.TaskCgroups,
		f.layout.CssSetSubsys,
		f.layout.CssCgroup,
		f.layout.CgroupKn,
		f.layout.KernfsNodeName,
	} {
		next, ok := f.deref(ptr, offset)
		if !ok {
			return writeSentinel(dst, events.CgroupUnresolved)
		}
		ptr = next
	}
	if _, err := f.mem.ReadString(ptr, dst[:]); err != nil {
		return writeSentinel(dst, events.CgroupUnresolved)
	}
	return true
}

func (f *fullResolver) deref(base kernel.Address, offset uint32) (kernel.Address, bool) {
	if base.IsNull() {
		return 0, false
	}
	next, err := kernel.ReadPointer(f.mem, base.Add(offset))
	if err != nil || next.IsNull() {
		return 0, false
	}
	return next, true
}

type unsupportedResolver struct{}

func (unsupportedResolver) Mode() Mode {
	return ModeUnsupported
}

func (unsupportedResolver) Resolve(_ kernel.Address, dst *[events.CgroupPathLen]byte) bool {
	return writeSentinel(dst, events.CgroupUnsupportedKernel)
}

func writeSentinel(dst *[events.CgroupPathLen]byte, sentinel string) bool {
	*dst = [events.CgroupPathLen]byte{}
	copy(dst[:], sentinel)
	return false
}
