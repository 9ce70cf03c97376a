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

package boot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthworm-io/earthworm/pkg/module"
)

type sequenceMonitor struct {
	mutex    sync.Mutex
	start    []string
	notify   []string
	shutdown []string
}

func (s *sequenceMonitor) append(target *[]string, name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	*target = append(*target, name)
}

type testModule struct {
	name         string
	dependencies []string
	inactive     bool
	startErr     error
	monitor      *sequenceMonitor
}

func (t *testModule) Name() string {
	return t.name
}

func (t *testModule) RequiredModules() []string {
	return t.dependencies
}

func (t *testModule) Config() module.ConfigInterface {
	return &module.Config{Active: !t.inactive}
}

func (t *testModule) Start(context.Context, *module.Manager) error {
	if t.monitor != nil {
		t.monitor.append(&t.monitor.start, t.name)
	}
	return t.startErr
}

func (t *testModule) NotifyStartSuccess() {
	if t.monitor != nil {
		t.monitor.append(&t.monitor.notify, t.name)
	}
}

func (t *testModule) Shutdown(context.Context, *module.Manager) error {
	if t.monitor != nil {
		t.monitor.append(&t.monitor.shutdown, t.name)
	}
	return nil
}

func names(modules []module.Module) []string {
	result := make([]string, 0, len(modules))
	for _, m := range modules {
		result = append(result, m.Name())
	}
	return result
}

func TestResolveDependency(t *testing.T) {
	tests := []struct {
		name     string
		modules  []*testModule
		sequence []string
		hasErr   bool
	}{
		{
			name:     "no dependency",
			modules:  []*testModule{{name: "heartbeat"}, {name: "exporter"}},
			sequence: []string{"heartbeat", "exporter"},
		},
		{
			name: "logger always first",
			modules: []*testModule{
				{name: "heartbeat", dependencies: []string{"logger"}},
				{name: "exporter"},
				{name: "logger"},
			},
			sequence: []string{"logger", "heartbeat", "exporter"},
		},
		{
			name: "chained dependency",
			modules: []*testModule{
				{name: "kubernetes", dependencies: []string{"heartbeat"}},
				{name: "heartbeat", dependencies: []string{"logger"}},
				{name: "logger"},
			},
			sequence: []string{"logger", "heartbeat", "kubernetes"},
		},
		{
			name: "inactive module is skipped",
			modules: []*testModule{
				{name: "heartbeat"},
				{name: "kubernetes", dependencies: []string{"heartbeat"}, inactive: true},
			},
			sequence: []string{"heartbeat"},
		},
		{
			name:    "required module not declared",
			modules: []*testModule{{name: "kubernetes", dependencies: []string{"heartbeat"}}},
			hasErr:  true,
		},
		{
			name: "required module inactive",
			modules: []*testModule{
				{name: "kubernetes", dependencies: []string{"heartbeat"}},
				{name: "heartbeat", inactive: true},
			},
			hasErr: true,
		},
		{
			name: "cyclic dependency",
			modules: []*testModule{
				{name: "heartbeat", dependencies: []string{"kubernetes"}},
				{name: "kubernetes", dependencies: []string{"heartbeat"}},
			},
			hasErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			modules := make([]module.Module, 0)
			for _, m := range tt.modules {
				modules = append(modules, m)
			}
			starter := NewModuleStarter(modules)
			err := starter.ResolveDependency()
			if tt.hasErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.sequence, names(starter.orderedModules))
		})
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name            string
		dependencies    map[string][]string
		triggerShutdown func(cancel context.CancelFunc, mgr *module.Manager)
	}{
		{
			name:         "shutdown by module",
			dependencies: map[string][]string{"kubernetes": {"heartbeat"}, "heartbeat": nil},
			triggerShutdown: func(_ context.CancelFunc, mgr *module.Manager) {
				mgr.ShutdownModules(fmt.Errorf("perf reader closed"))
			},
		},
		{
			name:         "shutdown by context",
			dependencies: map[string][]string{"kubernetes": {"heartbeat"}, "heartbeat": nil},
			triggerShutdown: func(cancel context.CancelFunc, _ *module.Manager) {
				cancel()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := &sequenceMonitor{}
			modules := []module.Module{
				&testModule{name: "kubernetes", dependencies: tt.dependencies["kubernetes"], monitor: monitor},
				&testModule{name: "heartbeat", dependencies: tt.dependencies["heartbeat"], monitor: monitor},
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			finished := make(chan error, 1)
			go func() {
				finished <- NewModuleStarter(modules).Run(ctx, func(mgr *module.Manager) {
					go tt.triggerShutdown(cancel, mgr)
				})
			}()

			select {
			case err := <-finished:
				assert.Nil(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("the modules are not shutdown")
			}
			assert.Equal(t, []string{"heartbeat", "kubernetes"}, monitor.start)
			assert.Equal(t, []string{"heartbeat", "kubernetes"}, monitor.notify)
			assert.Equal(t, []string{"kubernetes", "heartbeat"}, monitor.shutdown)
		})
	}
}

func TestRunStartFailure(t *testing.T) {
	monitor := &sequenceMonitor{}
	modules := []module.Module{
		&testModule{name: "heartbeat", monitor: monitor},
		&testModule{name: "kubernetes", dependencies: []string{"heartbeat"}, monitor: monitor,
			startErr: fmt.Errorf("could not found the node")},
	}
	callback := false
	err := NewModuleStarter(modules).Run(context.Background(), func(*module.Manager) {
		callback = true
	})
	assert.NotNil(t, err)
	assert.False(t, callback)
	assert.Equal(t, []string{"heartbeat", "kubernetes"}, monitor.start)
	assert.Empty(t, monitor.notify)
	// only the started modules are shutdown
	assert.Equal(t, []string{"heartbeat"}, monitor.shutdown)
}

func TestRunWithoutActiveModule(t *testing.T) {
	err := NewModuleStarter([]module.Module{&testModule{name: "heartbeat", inactive: true}}).Run(context.Background(), nil)
	assert.NotNil(t, err)
}
