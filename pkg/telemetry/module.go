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

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/earthworm-io/earthworm/pkg/heartbeat"
	"github.com/earthworm-io/earthworm/pkg/logger"
	"github.com/earthworm-io/earthworm/pkg/module"
)

const ModuleName = "telemetry"

var log = logger.GetLogger("telemetry")

// Module serves the metrics and the alive processes over HTTP
type Module struct {
	config *Config

	mutex    sync.Mutex
	server   *http.Server
	listener net.Listener
}

func NewModule() *Module {
	return &Module{config: &Config{}}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RequiredModules() []string {
	return []string{logger.ModuleName, heartbeat.ModuleName}
}

func (m *Module) Config() module.ConfigInterface {
	return m.config
}

func (m *Module) Start(_ context.Context, mgr *module.Manager) error {
	if err := m.config.check(); err != nil {
		return err
	}
	op, ok := mgr.FindModule(heartbeat.ModuleName).(heartbeat.Operator)
	if !ok {
		return fmt.Errorf("the heartbeat module is not found")
	}
	registry := prometheus.NewRegistry()
	for _, c := range heartbeatCollectors(op) {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("register the heartbeat metrics failure: %v", err)
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", m.config.Port))
	if err != nil {
		return fmt.Errorf("listen the telemetry port %d failure: %v", m.config.Port, err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listener = listener
	m.server = &http.Server{
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           newHandler(registry, op, m.config.Pprof),
	}
	server := m.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mgr.ShutdownModules(err)
		}
	}()
	log.Infof("telemetry server is listening on %s", listener.Addr())
	return nil
}

// Addr is the listening address of the server, nil before started
func (m *Module) Addr() net.Addr {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Module) NotifyStartSuccess() {
}

func (m *Module) Shutdown(ctx context.Context, _ *module.Manager) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
