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

// Task describes the task_struct written into the Image
type Task struct {
	PID  uint32
	TGID uint32
	Comm string
	// RealParent is the parent task_struct, zero means null
	RealParent Address
	// Cgroups is the css_set, zero means null
	Cgroups Address
}

// AddTask writes the task_struct and returns its address
func (i *Image) AddTask(t Task) Address {
	l := i.layout
	addr := i.Alloc(structSize(
		l.TaskPID+4, l.TaskTGID+4, l.TaskRealParent+8, l.TaskComm+16, l.TaskCgroups+8))
	_ = i.PutUint32(addr.Add(l.TaskPID), t.PID)
	_ = i.PutUint32(addr.Add(l.TaskTGID), t.TGID)
	_ = i.PutPointer(addr.Add(l.TaskRealParent), t.RealParent)
	comm := t.Comm
	if len(comm) > 15 {
		comm = comm[:15]
	}
	_ = i.Write(addr.Add(l.TaskComm), []byte(comm))
	_ = i.PutPointer(addr.Add(l.TaskCgroups), t.Cgroups)
	return addr
}

// AddKernfsNode writes the kernfs_node with the name, the empty name means null name pointer
func (i *Image) AddKernfsNode(name string) Address {
	addr := i.Alloc(structSize(i.layout.KernfsNodeName + 8))
	if name != "" {
		_ = i.PutPointer(addr.Add(i.layout.KernfsNodeName), i.AllocString(name))
	}
	return addr
}

// AddCgroup writes the cgroup points to the kernfs node
func (i *Image) AddCgroup(kn Address) Address {
	addr := i.Alloc(structSize(i.layout.CgroupKn + 8))
	_ = i.PutPointer(addr.Add(i.layout.CgroupKn), kn)
	return addr
}

// AddCss writes the cgroup_subsys_state points to the cgroup
func (i *Image) AddCss(cgroup Address) Address {
	addr := i.Alloc(structSize(i.layout.CssCgroup + 8))
	_ = i.PutPointer(addr.Add(i.layout.CssCgroup), cgroup)
	return addr
}

// AddCssSet writes the css_set, the css is the first subsystem state
func (i *Image) AddCssSet(css Address) Address {
	addr := i.Alloc(structSize(i.layout.CssSetSubsys + 8))
	_ = i.PutPointer(addr.Add(i.layout.CssSetSubsys), css)
	return addr
}

// AddCgroupChain writes the whole css_set -> css -> cgroup -> kernfs_node chain of the cgroup name
func (i *Image) AddCgroupChain(name string) Address {
	return i.AddCssSet(i.AddCss(i.AddCgroup(i.AddKernfsNode(name))))
}

func structSize(ends ...uint32) int {
	var size uint32
	for _, e := range ends {
		if e > size {
			size = e
		}
	}
	return int(size)
}
