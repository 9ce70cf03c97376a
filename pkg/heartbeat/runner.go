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

package heartbeat

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/bpf"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/mock"
	"github.com/earthworm-io/earthworm/pkg/tools/operator"
	"github.com/earthworm-io/earthworm/pkg/tools/version"
)

// Runner decides the cgroup resolution, then drives the probe and the consumer
type Runner struct {
	config        *Config
	resolution    *Resolution
	kernelRelease string

	source   Source
	probe    *Probe
	consumer *Consumer
	liveness *Liveness
}

func NewRunner(config *Config) (*Runner, error) {
	if err := config.check(); err != nil {
		return nil, err
	}
	kernelVersion, release, err := operator.KernelVersion()
	if err != nil {
		log.Warnf("read the kernel version failure, the cgroup resolution could not be decided automatically: %v", err)
	}
	resolution, err := decideSourceResolution(config, kernelVersion)
	if err != nil {
		return nil, err
	}
	log.Infof("the cgroup resolution of the kernel %s is %s: %s", release, resolution.Mode, resolution.Reason)

	source, err := buildSource(config, resolution.Mode)
	if err != nil {
		return nil, err
	}
	ttl, err := config.livenessTTL()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		config:        config,
		resolution:    resolution,
		kernelRelease: release,
		source:        source,
		probe:         NewProbe(source, config.QueueSize),
		consumer:      NewConsumer(),
		liveness:      NewLiveness(ttl, ttl/2),
	}
	r.consumer.AddListener(r.liveness)
	return r, nil
}

// decideSourceResolution checks the layout of the memory read by the source,
// the mock source reads the synthetic memory so only the kernel version matters
func decideSourceResolution(config *Config, kernelVersion *version.Version) (*Resolution, error) {
	mode, err := capture.ParseMode(config.CgroupResolution)
	if err != nil {
		return nil, err
	}
	var layout *kernel.Layout
	if config.Source == SourceMock {
		layout = kernel.DefaultLayout()
	} else if mode == capture.ModeAuto {
		if layout, err = kernel.LoadKernelLayout(); err != nil {
			log.Warnf("resolve the kernel struct layout failure: %v", err)
		}
	}
	return DecideResolution(mode, config.MinKernelVersion, kernelVersion, layout)
}

func buildSource(config *Config, mode capture.Mode) (Source, error) {
	switch config.Source {
	case SourceMock:
		return mock.NewSource(&config.Mock, mode)
	case SourceEBPF:
		bufferSize, err := config.perCPUBufferSize()
		if err != nil {
			return nil, err
		}
		return bpf.NewSource(config.ObjectPath, config.Attach, bufferSize, mode)
	default:
		return nil, fmt.Errorf("unknown heartbeat source: %s", config.Source)
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if err := r.probe.Attach(); err != nil {
		return err
	}
	r.liveness.Start()
	r.consumer.Start(ctx, r.probe.Channel())
	if err := r.probe.Run(ctx); err != nil {
		var result error
		result = multierror.Append(result, err)
		if e := r.Stop(); e != nil {
			result = multierror.Append(result, e)
		}
		return result
	}
	log.Infof("heartbeat probe is running, source: %s, cpus: %d", r.source.Name(), r.probe.Channel().CPUs())
	return nil
}

func (r *Runner) AddListener(l Listener) {
	r.consumer.AddListener(l)
}

// Stop detaches the probe, then delivers the records already in the channel
func (r *Runner) Stop() error {
	err := r.probe.Detach()
	r.consumer.Stop()
	r.liveness.Stop()
	stats := r.consumer.Stats()
	var dropped, lost uint64
	for _, s := range stats.CPUs {
		dropped += s.Dropped
		lost += s.Lost
	}
	log.Infof("heartbeat probe detached, consumed: %d, dropped: %d, lost: %d, alive processes: %d",
		stats.Consumed, dropped, lost, len(r.liveness.Processes()))
	return err
}
