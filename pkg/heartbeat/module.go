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

	"github.com/earthworm-io/earthworm/pkg/logger"
	"github.com/earthworm-io/earthworm/pkg/module"
)

const ModuleName = "heartbeat"

var log = logger.GetLogger("heartbeat")

// Operator is exposed to the other modules
type Operator interface {
	// AddListener receives every heartbeat consumed from the probe
	AddListener(l Listener)
	Stats() *Stats
	Resolution() *Resolution
	KernelRelease() string
	SourceName() string
	// AliveProcesses are the processes which heartbeats are received in the liveness TTL
	AliveProcesses() []*ProcessActivity
}

type Module struct {
	config *Config

	runner *Runner
}

func NewModule() *Module {
	return &Module{config: &Config{}}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RequiredModules() []string {
	return []string{logger.ModuleName}
}

func (m *Module) Config() module.ConfigInterface {
	return m.config
}

func (m *Module) Start(ctx context.Context, mgr *module.Manager) error {
	runner, err := NewRunner(m.config)
	if err != nil {
		return err
	}
	m.runner = runner
	return runner.Start(ctx)
}

func (m *Module) NotifyStartSuccess() {
}

func (m *Module) Shutdown(ctx context.Context, mgr *module.Manager) error {
	if m.runner != nil {
		return m.runner.Stop()
	}
	return nil
}

func (m *Module) AddListener(l Listener) {
	m.runner.AddListener(l)
}

func (m *Module) Stats() *Stats {
	return m.runner.consumer.Stats()
}

func (m *Module) Resolution() *Resolution {
	return m.runner.resolution
}

func (m *Module) KernelRelease() string {
	return m.runner.kernelRelease
}

func (m *Module) SourceName() string {
	return m.runner.source.Name()
}

func (m *Module) AliveProcesses() []*ProcessActivity {
	return m.runner.liveness.Processes()
}
