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
	"fmt"
	"time"

	"github.com/docker/go-units"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/mock"
	"github.com/earthworm-io/earthworm/pkg/module"
)

const (
	SourceEBPF = "ebpf"
	SourceMock = "mock"
)

type Config struct {
	module.Config `mapstructure:",squash"`

	Source           string      `mapstructure:"source"`
	ObjectPath       string      `mapstructure:"object_path"`
	Attach           string      `mapstructure:"attach"`
	CgroupResolution string      `mapstructure:"cgroup_resolution"`
	MinKernelVersion string      `mapstructure:"min_kernel_version"`
	PerCPUBuffer     string      `mapstructure:"per_cpu_buffer"`
	QueueSize        int         `mapstructure:"queue_size"`
	LivenessTTL      string      `mapstructure:"liveness_ttl"`
	Mock             mock.Config `mapstructure:"mock"`
}

func (c *Config) check() error {
	switch c.Source {
	case SourceEBPF, SourceMock:
	default:
		return fmt.Errorf("unknown heartbeat source: %s", c.Source)
	}
	if _, err := capture.ParseMode(c.CgroupResolution); err != nil {
		return err
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("the queue size must be positive: %d", c.QueueSize)
	}
	if _, err := c.perCPUBufferSize(); err != nil {
		return err
	}
	if _, err := c.livenessTTL(); err != nil {
		return err
	}
	return nil
}

func (c *Config) livenessTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.LivenessTTL)
	if err != nil {
		return 0, fmt.Errorf("parse the liveness ttl %s failure: %v", c.LivenessTTL, err)
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("the liveness ttl must be positive: %s", c.LivenessTTL)
	}
	return ttl, nil
}

func (c *Config) perCPUBufferSize() (int, error) {
	if c.PerCPUBuffer == "" {
		return 0, fmt.Errorf("the per cpu buffer size is required")
	}
	size, err := units.RAMInBytes(c.PerCPUBuffer)
	if err != nil {
		return 0, fmt.Errorf("parse the per cpu buffer size %s failure: %v", c.PerCPUBuffer, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("the per cpu buffer size must be positive: %s", c.PerCPUBuffer)
	}
	return int(size), nil
}
