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

// Package mock drives the capture hook with a synthetic kernel memory,
// so the whole pipeline could run without the kernel privileges.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/cpu"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
	"github.com/earthworm-io/earthworm/pkg/logger"
)

const SourceName = "mock"

var log = logger.GetLogger("heartbeat", "mock")

var processNames = []string{
	"kubelet", "containerd-shim", "nginx", "coredns", "kube-proxy", "etcd", "pause", "envoy",
}

type Config struct {
	Period string `mapstructure:"period"`
	Tasks  int    `mapstructure:"tasks"`
	// Seed of the generated pod and container identities, zero means the fixed default seed
	Seed int64 `mapstructure:"seed"`
}

// Task is a generated process with its cgroup name
type Task struct {
	PID    uint32
	Comm   string
	Cgroup string
	addr   kernel.Address
}

type Source struct {
	period time.Duration
	tasks  int
	seed   int64
	mode   capture.Mode

	image     *kernel.Image
	generated []*Task
	hook      *capture.Hook
	output    *channel.PerCPU

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSource with the decided cgroup resolution mode
func NewSource(conf *Config, mode capture.Mode) (*Source, error) {
	period, err := time.ParseDuration(conf.Period)
	if err != nil {
		return nil, fmt.Errorf("parse the mock period failure: %v", err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("the mock period must be positive: %s", conf.Period)
	}
	if conf.Tasks <= 0 {
		return nil, fmt.Errorf("the mock task count must be positive: %d", conf.Tasks)
	}
	seed := conf.Seed
	if seed == 0 {
		seed = 1
	}
	return &Source{period: period, tasks: conf.Tasks, seed: seed, mode: mode}, nil
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) CPUs() (int, error) {
	return cpu.Counts(true)
}

// Attach builds the kernel image of the generated tasks and the capture hook writing into the output
func (s *Source) Attach(output *channel.PerCPU) error {
	s.image = kernel.NewImage(kernel.DefaultLayout())
	resolver, err := capture.StrategyFor(s.mode, s.image, s.image.Layout())
	if err != nil {
		return err
	}
	s.generated = s.generateTasks()
	s.hook = capture.NewHook(capture.NewExtractor(s.image, s.image.Layout()), resolver, capture.MonotonicClock{}, output)
	s.output = output
	log.Infof("mock heartbeat source attached, tasks: %d, cpus: %d, cgroup resolution: %s",
		len(s.generated), output.CPUs(), s.hook.ResolverMode())
	return nil
}

// Tasks generated by the source, available after Attach
func (s *Source) Tasks() []*Task {
	return s.generated
}

func (s *Source) Start(ctx context.Context) error {
	if s.hook == nil {
		return fmt.Errorf("the mock source is not attached")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		prev := make([]uint32, s.output.CPUs())
		cursor := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for c := range prev {
				task := s.generated[cursor%len(s.generated)]
				cursor++
				s.hook.Handle(&capture.SwitchEvent{
					CPU:     uint32(c),
					PrevPID: prev[c],
					NextPID: task.PID,
					Next:    task.addr,
				})
				prev[c] = task.PID
			}
		}
	}()
	return nil
}

func (s *Source) Detach() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// generateTasks builds a systemd root, the kubelet on the host and the pod processes.
// Every eighth pod process has an exiting task which cgroup set is already released.
func (s *Source) generateTasks() []*Task {
	random := rand.New(rand.NewSource(s.seed))
	initTask := &Task{PID: 1, Comm: "systemd", Cgroup: "init.scope"}
	initTask.addr = s.image.AddTask(kernel.Task{PID: 1, TGID: 1, Comm: initTask.Comm,
		Cgroups: s.image.AddCgroupChain(initTask.Cgroup)})
	result := []*Task{initTask}

	for i := 1; i < s.tasks; i++ {
		pid := uint32(100 + i*7)
		comm := processNames[i%len(processNames)]
		var cgroup string
		switch {
		case comm == "kubelet":
			cgroup = "kubelet.service"
		case i%3 == 0:
			// the systemd driver escapes the "-" of the pod UID
			cgroup = fmt.Sprintf("kubepods-burstable-pod%s.slice", strings.ReplaceAll(podUID(random), "-", "_"))
		default:
			cgroup = fmt.Sprintf("cri-containerd-%s.scope", containerID(random))
		}
		cgroups := s.image.AddCgroupChain(cgroup)
		if i%8 == 7 {
			s.image.Unmap(cgroups)
		}
		t := &Task{PID: pid, Comm: comm, Cgroup: cgroup}
		t.addr = s.image.AddTask(kernel.Task{PID: pid, TGID: pid, Comm: comm, RealParent: initTask.addr, Cgroups: cgroups})
		result = append(result, t)
	}
	return result
}

func podUID(random *rand.Rand) string {
	// reading from the math/rand source never fails
	uid, _ := uuid.NewRandomFromReader(random)
	return uid.String()
}

func containerID(random *rand.Rand) string {
	b := make([]byte, 32)
	random.Read(b)
	return fmt.Sprintf("%x", b)
}
