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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
)

// stepClock increases the timestamp on every reading of the CPU
type stepClock struct {
	mutex sync.Mutex
	now   map[uint32]uint64
}

func (s *stepClock) Now(cpu uint32) uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.now == nil {
		s.now = make(map[uint32]uint64)
	}
	s.now[cpu] += 100
	return s.now[cpu]
}

type testEnv struct {
	image  *kernel.Image
	init   kernel.Address
	output *channel.PerCPU
}

func newTestEnv(t *testing.T) *testEnv {
	image := kernel.NewImage(kernel.DefaultLayout())
	output, err := channel.New(2, 16)
	assert.Nil(t, err)
	return &testEnv{
		image:  image,
		init:   image.AddTask(kernel.Task{PID: 1, TGID: 1, Comm: "systemd", Cgroups: image.AddCgroupChain("init.scope")}),
		output: output,
	}
}

func (e *testEnv) hook(t *testing.T, mode Mode, clock Clock) *Hook {
	resolver, err := StrategyFor(mode, e.image, e.image.Layout())
	assert.Nil(t, err)
	return NewHook(NewExtractor(e.image, e.image.Layout()), resolver, clock, e.output)
}

func (e *testEnv) nginx(cgroups kernel.Address) *SwitchEvent {
	task := e.image.AddTask(kernel.Task{PID: 1234, TGID: 1234, Comm: "nginx", RealParent: e.init, Cgroups: cgroups})
	return &SwitchEvent{CPU: 1, PrevPID: 0, NextPID: 1234, Next: task}
}

func TestSwitchIntoPodProcess(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})
	ev := env.nginx(env.image.AddCgroupChain("podabc123"))

	first, outcome := h.Handle(ev)
	assert.Equal(t, channel.Delivered, outcome)
	rec, outcome := h.Handle(ev)
	assert.Equal(t, channel.Delivered, outcome)

	assert.Equal(t, uint32(1234), rec.PID)
	assert.Equal(t, uint32(1), rec.PPID)
	assert.Equal(t, "nginx", rec.CommString())
	assert.Equal(t, "podabc123", rec.CgroupPathString())
	assert.True(t, rec.IsCgroupResolved())
	assert.Greater(t, rec.Timestamp, first.Timestamp)

	var received []events.Record
	env.output.Drain(1, func(r *events.Record) {
		received = append(received, *r)
	})
	assert.Equal(t, []events.Record{first, rec}, received)
}

func TestSwitchOnUnsupportedKernel(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeUnsupported, &stepClock{})
	rec, _ := h.Handle(env.nginx(env.image.AddCgroupChain("podabc123")))

	assert.Equal(t, uint32(1234), rec.PID)
	assert.Equal(t, uint32(1), rec.PPID)
	assert.Equal(t, "nginx", rec.CommString())
	assert.Equal(t, events.CgroupUnsupportedKernel, rec.CgroupPathString())
	assert.False(t, rec.IsCgroupResolved())
}

func TestCgroupChainBroken(t *testing.T) {
	env := newTestEnv(t)
	l := env.image.Layout()
	tests := []struct {
		name    string
		cgroups func() kernel.Address
	}{
		{name: "null css_set", cgroups: func() kernel.Address { return 0 }},
		{name: "null subsystem state", cgroups: func() kernel.Address {
			return env.image.AddCssSet(0)
		}},
		{name: "null cgroup", cgroups: func() kernel.Address {
			return env.image.AddCssSet(env.image.AddCss(0))
		}},
		{name: "null kernfs node", cgroups: func() kernel.Address {
			return env.image.AddCssSet(env.image.AddCss(env.image.AddCgroup(0)))
		}},
		{name: "null name", cgroups: func() kernel.Address {
			return env.image.AddCssSet(env.image.AddCss(env.image.AddCgroup(env.image.AddKernfsNode(""))))
		}},
		{name: "unreadable cgroup", cgroups: func() kernel.Address {
			cgroup := env.image.AddCgroup(env.image.AddKernfsNode("podabc123"))
			set := env.image.AddCssSet(env.image.AddCss(cgroup))
			env.image.Unmap(cgroup)
			return set
		}},
		{name: "dangling css_set", cgroups: func() kernel.Address {
			return kernel.Address(0xdead0000).Add(l.CssSetSubsys)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := env.hook(t, ModeFull, &stepClock{})
			rec := h.Capture(env.nginx(tt.cgroups()))
			assert.Equal(t, events.CgroupUnresolved, rec.CgroupPathString())
			assert.Equal(t, uint32(1234), rec.PID)
			assert.Equal(t, uint32(1), rec.PPID)
			assert.Equal(t, "nginx", rec.CommString())
			assert.NotZero(t, rec.Timestamp)
		})
	}
}

func TestParentUnresolvable(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})

	orphan := env.image.AddTask(kernel.Task{PID: 77, TGID: 77, Comm: "orphan", Cgroups: env.image.AddCgroupChain("podabc123")})
	rec := h.Capture(&SwitchEvent{NextPID: 77, Next: orphan})
	assert.Equal(t, uint32(0), rec.PPID)
	assert.Equal(t, "orphan", rec.CommString())
	assert.Equal(t, "podabc123", rec.CgroupPathString())

	parent := env.image.AddTask(kernel.Task{PID: 9, TGID: 9, Comm: "bash"})
	child := env.image.AddTask(kernel.Task{PID: 78, TGID: 78, Comm: "child", RealParent: parent})
	env.image.Unmap(parent)
	rec = h.Capture(&SwitchEvent{NextPID: 78, Next: child})
	assert.Equal(t, uint32(0), rec.PPID)
	assert.Equal(t, "child", rec.CommString())
}

func TestTracepointWithoutTask(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})
	ev := &SwitchEvent{CPU: 0, PrevPID: 1, NextPID: 4321}
	copy(ev.NextComm[:], "containerd-shim")

	rec := h.Capture(ev)
	assert.Equal(t, uint32(4321), rec.PID)
	assert.Equal(t, uint32(0), rec.PPID)
	assert.Equal(t, "containerd-shim", rec.CommString())
	assert.Equal(t, events.CgroupUnresolved, rec.CgroupPathString())
}

func TestLongNamesAreTruncated(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})
	long := "kubepods-burstable-pod0f1e2d3c_4b5a_6978_8796_a5b4c3d2e1f0.slice"
	task := env.image.AddTask(kernel.Task{PID: 5, TGID: 5, Comm: "a-very-long-process-name",
		RealParent: env.init, Cgroups: env.image.AddCgroupChain(long)})

	rec := h.Capture(&SwitchEvent{NextPID: 5, Next: task})
	assert.Equal(t, "a-very-long-pro", rec.CommString())
	assert.Equal(t, long[:events.CgroupPathLen-1], rec.CgroupPathString())
	assert.Equal(t, byte(0), rec.CgroupPath[events.CgroupPathLen-1])

	data, err := rec.MarshalBinary()
	assert.Nil(t, err)
	assert.Equal(t, events.Size, len(data))
}

func TestPidIsIncomingTask(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})
	for pid := uint32(100); pid < 110; pid++ {
		task := env.image.AddTask(kernel.Task{PID: pid, TGID: pid, Comm: "worker", RealParent: env.init})
		rec := h.Capture(&SwitchEvent{CPU: pid % 2, PrevPID: pid - 1, NextPID: pid, Next: task})
		assert.Equal(t, pid, rec.PID)
	}
}

func TestTimestampPerCPU(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, MonotonicClock{})
	ev := env.nginx(env.image.AddCgroupChain("podabc123"))
	last := make(map[uint32]uint64)
	for i := 0; i < 200; i++ {
		ev.CPU = uint32(i % 2)
		rec := h.Capture(ev)
		assert.GreaterOrEqual(t, rec.Timestamp, last[ev.CPU])
		last[ev.CPU] = rec.Timestamp
	}
}

func TestDroppedWhenChannelFull(t *testing.T) {
	env := newTestEnv(t)
	h := env.hook(t, ModeFull, &stepClock{})
	ev := env.nginx(env.image.AddCgroupChain("podabc123"))
	for i := 0; i < env.output.Capacity(); i++ {
		_, outcome := h.Handle(ev)
		assert.Equal(t, channel.Delivered, outcome)
	}
	rec, outcome := h.Handle(ev)
	assert.Equal(t, channel.Dropped, outcome)
	// the record is still fully built
	assert.Equal(t, "podabc123", rec.CgroupPathString())
}

func TestStrategyFor(t *testing.T) {
	image := kernel.NewImage(nil)
	r, err := StrategyFor(ModeFull, image, image.Layout())
	assert.Nil(t, err)
	assert.Equal(t, ModeFull, r.Mode())
	r, err = StrategyFor(ModeUnsupported, nil, nil)
	assert.Nil(t, err)
	assert.Equal(t, ModeUnsupported, r.Mode())
	_, err = StrategyFor(ModeFull, nil, nil)
	assert.NotNil(t, err)
	_, err = StrategyFor(ModeAuto, image, image.Layout())
	assert.NotNil(t, err)

	mode, err := ParseMode("")
	assert.Nil(t, err)
	assert.Equal(t, ModeAuto, mode)
	_, err = ParseMode("partial")
	assert.NotNil(t, err)
}
