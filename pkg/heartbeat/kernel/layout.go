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

package kernel

import (
	"fmt"
	"slices"

	"github.com/cilium/ebpf/btf"

	kernelbtf "github.com/earthworm-io/earthworm/pkg/tools/btf"
)

// Layout is the offsets of the kernel struct members read by the probe
type Layout struct {
	TaskPID        uint32
	TaskTGID       uint32
	TaskRealParent uint32
	TaskComm       uint32
	TaskCgroups    uint32

	CssSetSubsys   uint32
	CssCgroup      uint32
	CgroupKn       uint32
	KernfsNodeName uint32

	// Missing members of the cgroup chain
	Missing []string
}

// DefaultLayout is used by the synthetic memory, the values are taken from an x86_64 5.15 kernel
func DefaultLayout() *Layout {
	return &Layout{
		TaskPID:        2416,
		TaskTGID:       2420,
		TaskRealParent: 2432,
		TaskComm:       2976,
		TaskCgroups:    3504,
		CssSetSubsys:   0,
		CssCgroup:      0,
		CgroupKn:       312,
		KernfsNodeName: 16,
	}
}

// CgroupWalkSupported means all members of task->cgroups->subsys[0]->cgroup->kn->name exist
func (l *Layout) CgroupWalkSupported() bool {
	return len(l.Missing) == 0
}

type member struct {
	structName string
	path       string
	target     *uint32
	cgroup     bool
}

// LayoutFromBTF resolves the offsets from the kernel BTF.
// The process members are required, the cgroup members are recorded in Missing when absent.
func LayoutFromBTF(spec *btf.Spec) (*Layout, error) {
	l := &Layout{}
	members := []member{
		{structName: "task_struct", path: "pid", target: &l.TaskPID},
		{structName: "task_struct", path: "tgid", target: &l.TaskTGID},
		{structName: "task_struct", path: "real_parent", target: &l.TaskRealParent},
		{structName: "task_struct", path: "comm", target: &l.TaskComm},
		{structName: "task_struct", path: "cgroups", target: &l.TaskCgroups, cgroup: true},
		{structName: "css_set", path: "subsys", target: &l.CssSetSubsys, cgroup: true},
		{structName: "cgroup_subsys_state", path: "cgroup", target: &l.CssCgroup, cgroup: true},
		{structName: "cgroup", path: "kn", target: &l.CgroupKn, cgroup: true},
		{structName: "kernfs_node", path: "name", target: &l.KernfsNodeName, cgroup: true},
	}

	for _, m := range members {
		offset, err := memberOffset(spec, m.structName, m.path)
		if err == nil {
			*m.target = offset
			continue
		}
		if !m.cgroup {
			return nil, err
		}
		l.Missing = append(l.Missing, fmt.Sprintf("%s.%s", m.structName, m.path))
	}
	return l, nil
}

// Members lists the resolved offsets in the reading order
func (l *Layout) Members() [][2]string {
	result := [][2]string{
		{"task_struct.pid", fmt.Sprint(l.TaskPID)},
		{"task_struct.tgid", fmt.Sprint(l.TaskTGID)},
		{"task_struct.real_parent", fmt.Sprint(l.TaskRealParent)},
		{"task_struct.comm", fmt.Sprint(l.TaskComm)},
	}
	for _, c := range []struct {
		name   string
		offset uint32
	}{
		{"task_struct.cgroups", l.TaskCgroups},
		{"css_set.subsys", l.CssSetSubsys},
		{"cgroup_subsys_state.cgroup", l.CssCgroup},
		{"cgroup.kn", l.CgroupKn},
		{"kernfs_node.name", l.KernfsNodeName},
	} {
		val := fmt.Sprint(c.offset)
		if slices.Contains(l.Missing, c.name) {
			val = "missing"
		}
		result = append(result, [2]string{c.name, val})
	}
	return result
}

// LoadKernelLayout resolves the layout of the running kernel
func LoadKernelLayout() (*Layout, error) {
	spec, err := kernelbtf.KernelSpec()
	if err != nil {
		return nil, fmt.Errorf("load kernel BTF failure: %v", err)
	}
	return LayoutFromBTF(spec)
}

func memberOffset(spec *btf.Spec, structName, name string) (uint32, error) {
	var s *btf.Struct
	if err := spec.TypeByName(structName, &s); err != nil {
		return 0, fmt.Errorf("could not found struct %s: %v", structName, err)
	}
	offset, found := findMember(s.Members, name)
	if !found {
		return 0, fmt.Errorf("could not found member %s.%s", structName, name)
	}
	return offset.Bytes(), nil
}

// findMember also searches the anonymous struct and union, such as the randomized layout of the task_struct
func findMember(members []btf.Member, name string) (btf.Bits, bool) {
	for _, m := range members {
		if m.Name == name {
			return m.Offset, true
		}
		if m.Name != "" {
			continue
		}
		var nested []btf.Member
		switch t := btf.UnderlyingType(m.Type).(type) {
		case *btf.Struct:
			nested = t.Members
		case *btf.Union:
			nested = t.Members
		default:
			continue
		}
		if offset, found := findMember(nested, name); found {
			return m.Offset + offset, true
		}
	}
	return 0, false
}
