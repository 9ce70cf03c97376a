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

package bpf

import (
	"context"
	"testing"

	"github.com/cilium/ebpf"
	ciliumbtf "github.com/cilium/ebpf/btf"
	"github.com/stretchr/testify/assert"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
)

func heartbeatSpec() *ebpf.CollectionSpec {
	return &ebpf.CollectionSpec{
		Maps: map[string]*ebpf.MapSpec{
			eventsMap: {Name: eventsMap, Type: ebpf.PerfEventArray},
		},
		Programs: map[string]*ebpf.ProgramSpec{
			programBTF:        {Name: programBTF, Type: ebpf.Tracing, AttachType: ebpf.AttachTraceRawTp},
			programTracepoint: {Name: programTracepoint, Type: ebpf.TracePoint},
		},
	}
}

// withResolutionGate declares the cgroup_resolution constant in the .rodata section
func withResolutionGate(spec *ebpf.CollectionSpec) *ebpf.CollectionSpec {
	spec.Maps[".rodata"] = &ebpf.MapSpec{
		Name:       ".rodata",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: 1,
		Value: &ciliumbtf.Datasec{
			Name: ".rodata",
			Vars: []ciliumbtf.VarSecinfo{
				{
					Type: &ciliumbtf.Var{
						Name: cgroupResolutionConst,
						Type: &ciliumbtf.Int{Size: 4},
					},
					Offset: 0,
					Size:   4,
				},
			},
		},
		Contents: []ebpf.MapKV{
			{Key: uint32(0), Value: []byte{0xff, 0xff, 0xff, 0xff}},
		},
	}
	return spec
}

func TestParseAttach(t *testing.T) {
	for _, val := range []string{AttachAuto, AttachBTF, AttachTracepoint} {
		attach, err := ParseAttach(val)
		assert.Nil(t, err)
		assert.Equal(t, val, attach)
	}
	attach, err := ParseAttach("")
	assert.Nil(t, err)
	assert.Equal(t, AttachAuto, attach)
	_, err = ParseAttach("kprobe")
	assert.NotNil(t, err)

	assert.Equal(t, AttachTracepoint, DecideAttach(AttachTracepoint))
	assert.Equal(t, AttachBTF, DecideAttach(AttachBTF))
}

func TestPrepareSpecSelectsProgram(t *testing.T) {
	spec := heartbeatSpec()
	// the resolution must be decided, the program is already selected
	err := prepareSpec(spec, AttachTracepoint, capture.ModeAuto)
	assert.NotNil(t, err)
	assert.Contains(t, spec.Programs, programTracepoint)
	assert.NotContains(t, spec.Programs, programBTF)

	spec = heartbeatSpec()
	err = prepareSpec(spec, AttachBTF, capture.ModeAuto)
	assert.NotNil(t, err)
	assert.Contains(t, spec.Programs, programBTF)
	assert.NotContains(t, spec.Programs, programTracepoint)
}

func TestPrepareSpecRequiresObjects(t *testing.T) {
	spec := heartbeatSpec()
	delete(spec.Programs, programBTF)
	assert.NotNil(t, prepareSpec(spec, AttachBTF, capture.ModeFull))

	spec = heartbeatSpec()
	delete(spec.Maps, eventsMap)
	assert.NotNil(t, prepareSpec(spec, AttachTracepoint, capture.ModeFull))

	// the gate constant is not declared in the object
	spec = heartbeatSpec()
	err := prepareSpec(spec, AttachTracepoint, capture.ModeFull)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "rewrite the cgroup resolution")
}

func TestPrepareSpecRewritesResolution(t *testing.T) {
	tests := []struct {
		name   string
		mode   capture.Mode
		attach string
		want   []byte
	}{
		{name: "full", mode: capture.ModeFull, attach: AttachBTF, want: []byte{1, 0, 0, 0}},
		{name: "unsupported", mode: capture.ModeUnsupported, attach: AttachTracepoint, want: []byte{0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := withResolutionGate(heartbeatSpec())
			assert.Nil(t, prepareSpec(spec, tt.attach, tt.mode))
			assert.Len(t, spec.Programs, 1)
			assert.Equal(t, tt.want, spec.Maps[".rodata"].Contents[0].Value)
		})
	}
}

func TestNewSource(t *testing.T) {
	_, err := NewSource("", AttachAuto, 4096, capture.ModeFull)
	assert.NotNil(t, err)
	_, err = NewSource("bpf/heartbeat.o", "kprobe", 4096, capture.ModeFull)
	assert.NotNil(t, err)
	s, err := NewSource("bpf/heartbeat.o", "", 4096, capture.ModeFull)
	assert.Nil(t, err)
	assert.Equal(t, AttachAuto, s.AttachMode())
	assert.NotNil(t, s.Start(context.Background()))
	assert.Nil(t, s.Detach())
}
