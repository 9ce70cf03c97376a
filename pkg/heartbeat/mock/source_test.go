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

package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
)

func TestNewSourceValidation(t *testing.T) {
	_, err := NewSource(&Config{Period: "abc", Tasks: 1}, capture.ModeFull)
	assert.NotNil(t, err)
	_, err = NewSource(&Config{Period: "0s", Tasks: 1}, capture.ModeFull)
	assert.NotNil(t, err)
	_, err = NewSource(&Config{Period: "10ms", Tasks: 0}, capture.ModeFull)
	assert.NotNil(t, err)
}

func TestGeneratedTasks(t *testing.T) {
	s, err := NewSource(&Config{Period: "1ms", Tasks: 20}, capture.ModeFull)
	require.Nil(t, err)
	output, err := channel.New(2, 64)
	require.Nil(t, err)
	require.Nil(t, s.Attach(output))

	tasks := s.Tasks()
	assert.Equal(t, 20, len(tasks))
	assert.Equal(t, uint32(1), tasks[0].PID)
	assert.Equal(t, "init.scope", tasks[0].Cgroup)
	assert.Equal(t, "kubelet.service", tasks[8].Cgroup)
	assert.Regexp(t, `^kubepods-burstable-pod[0-9a-f]{8}_[0-9a-f]{4}_[0-9a-f]{4}_[0-9a-f]{4}_[0-9a-f]{12}\.slice$`, tasks[3].Cgroup)
	assert.Regexp(t, `^cri-containerd-[0-9a-f]{64}\.scope$`, tasks[1].Cgroup)

	// same seed generates the same identities
	other, err := NewSource(&Config{Period: "1ms", Tasks: 20}, capture.ModeFull)
	require.Nil(t, err)
	require.Nil(t, other.Attach(output))
	assert.Equal(t, tasks[1].Cgroup, other.Tasks()[1].Cgroup)
}

func TestSourceProducesRecords(t *testing.T) {
	s, err := NewSource(&Config{Period: "1ms", Tasks: 16}, capture.ModeFull)
	require.Nil(t, err)
	output, err := channel.New(2, 256)
	require.Nil(t, err)
	require.Nil(t, s.Attach(output))
	assert.Equal(t, capture.ModeFull, s.hook.ResolverMode())
	require.Nil(t, s.Start(context.Background()))

	records := make(map[uint32]events.Record)
	deadline := time.After(5 * time.Second)
	for len(records) < 16 {
		select {
		case <-output.Notify():
		case <-deadline:
			t.Fatalf("only received %d distinct tasks", len(records))
		}
		output.DrainAll(func(cpu int, rec *events.Record) {
			records[rec.PID] = *rec
		})
	}
	assert.Nil(t, s.Detach())

	for _, task := range s.Tasks() {
		rec, exist := records[task.PID]
		require.True(t, exist, "pid %d", task.PID)
		assert.Equal(t, task.Comm, rec.CommString())
		if task.PID != 1 {
			assert.Equal(t, uint32(1), rec.PPID)
		}
		if task.Comm == "envoy" {
			assert.Equal(t, events.CgroupUnresolved, rec.CgroupPathString())
			continue
		}
		expected := task.Cgroup
		if len(expected) > events.CgroupPathLen-1 {
			expected = expected[:events.CgroupPathLen-1]
		}
		assert.Equal(t, expected, rec.CgroupPathString())
	}
}

func TestSourceOnUnsupportedKernel(t *testing.T) {
	s, err := NewSource(&Config{Period: "1ms", Tasks: 4}, capture.ModeUnsupported)
	require.Nil(t, err)
	output, err := channel.New(1, 16)
	require.Nil(t, err)
	require.Nil(t, s.Attach(output))
	assert.Equal(t, capture.ModeUnsupported, s.hook.ResolverMode())
	require.Nil(t, s.Start(context.Background()))
	defer s.Detach()

	select {
	case <-output.Notify():
	case <-time.After(5 * time.Second):
		t.Fatal("no record produced")
	}
	output.Drain(0, func(rec *events.Record) {
		assert.Equal(t, events.CgroupUnsupportedKernel, rec.CgroupPathString())
	})
}
