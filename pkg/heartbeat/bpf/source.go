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
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/channel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/events"
	"github.com/earthworm-io/earthworm/pkg/logger"
	"github.com/earthworm-io/earthworm/pkg/tools/btf"
	"github.com/earthworm-io/earthworm/pkg/tools/host"
)

const SourceName = "ebpf"

var log = logger.GetLogger("heartbeat", "bpf")

var decodeFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "earthworm",
	Subsystem: "heartbeat",
	Name:      "decode_failures_total",
	Help:      "The count of perf samples which are not a heartbeat record",
})

func init() {
	_ = prometheus.Register(decodeFailureCounter)
}

// Source attaches the eBPF program to the sched_switch
type Source struct {
	objectPath   string
	attach       string
	perCPUBuffer int
	mode         capture.Mode

	objects *objects
	linker  *btf.Linker
	output  *channel.PerCPU
}

func NewSource(objectPath, attach string, perCPUBuffer int, mode capture.Mode) (*Source, error) {
	attach, err := ParseAttach(attach)
	if err != nil {
		return nil, err
	}
	if objectPath == "" {
		return nil, fmt.Errorf("the eBPF object path is required")
	}
	return &Source{objectPath: objectPath, attach: attach, perCPUBuffer: perCPUBuffer, mode: mode}, nil
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) CPUs() (int, error) {
	return host.PossibleCPUs()
}

// AttachMode is the decided attach mode, available after Attach
func (s *Source) AttachMode() string {
	return s.attach
}

func (s *Source) Attach(output *channel.PerCPU) error {
	s.attach = DecideAttach(s.attach)
	objs, err := loadObjects(s.objectPath, s.attach, s.mode)
	if err != nil {
		return err
	}
	s.objects = objs
	s.output = output
	s.linker = btf.NewLinker()

	if s.attach == AttachTracepoint {
		s.linker.AddTracePoint("sched", "sched_switch", objs.Program)
	} else {
		s.linker.AddTracing(objs.Program)
	}
	if err := s.linker.HasError(); err != nil {
		return err
	}
	log.Infof("heartbeat program attached, attach mode: %s, cgroup resolution: %s", s.attach, s.mode)
	return nil
}

func (s *Source) Start(_ context.Context) error {
	if s.linker == nil {
		return fmt.Errorf("the eBPF source is not attached")
	}
	s.linker.ReadEventAsync(s.objects.Events, s.perCPUBuffer, s.onSample, s.onLost)
	return s.linker.HasError()
}

func (s *Source) onSample(cpu int, sample []byte) {
	rec, err := events.Decode(sample)
	if err != nil {
		decodeFailureCounter.Inc()
		log.Debugf("decode the heartbeat sample from cpu %d failure: %v", cpu, err)
		return
	}
	s.output.Submit(uint32(cpu), rec)
}

func (s *Source) onLost(cpu int, count uint64) {
	s.output.Lost(uint32(cpu), count)
}

// Detach closes the links and the reader first, then the program and the map
func (s *Source) Detach() error {
	var err error
	if s.linker != nil {
		if e := s.linker.Close(); e != nil {
			err = multierror.Append(err, e)
		}
	}
	if s.objects != nil {
		if e := s.objects.Close(); e != nil {
			err = multierror.Append(err, e)
		}
		s.objects = nil
	}
	return err
}
