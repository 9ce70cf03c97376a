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

package kubernetes

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/earthworm-io/earthworm/pkg/heartbeat"
	"github.com/earthworm-io/earthworm/pkg/logger"
	"github.com/earthworm-io/earthworm/pkg/module"
)

const (
	ModuleName = "kubernetes"

	cacheSyncTimeout = time.Minute
)

var log = logger.GetLogger("kubernetes")

type Module struct {
	config *Config

	registry   *Registry
	correlator *Correlator
	stopChan   chan struct{}
}

func NewModule() *Module {
	return &Module{config: &Config{}}
}

func (m *Module) Name() string {
	return ModuleName
}

func (m *Module) RequiredModules() []string {
	return []string{heartbeat.ModuleName}
}

func (m *Module) Config() module.ConfigInterface {
	return m.config
}

func (m *Module) Start(ctx context.Context, mgr *module.Manager) error {
	if err := m.config.check(); err != nil {
		return err
	}
	cli, err := m.buildClient(ctx)
	if err != nil {
		return err
	}
	return m.startWithClient(ctx, mgr, cli)
}

func (m *Module) startWithClient(ctx context.Context, mgr *module.Manager, cli kubernetes.Interface) error {
	m.registry = NewRegistry(cli, m.config.namespaces(), m.config.NodeName)
	correlator, err := NewCorrelator(m.registry, m.config.CacheSize)
	if err != nil {
		return err
	}
	m.correlator = correlator
	m.registry.OnChange(correlator.Purge)

	m.stopChan = make(chan struct{})
	m.registry.Start(m.stopChan)
	syncCtx, cancel := context.WithTimeout(ctx, cacheSyncTimeout)
	defer cancel()
	if !m.registry.WaitForCacheSync(syncCtx.Done()) {
		close(m.stopChan)
		m.stopChan = nil
		return fmt.Errorf("wait for the pods of node %s synced failure: %v", m.config.NodeName, syncCtx.Err())
	}

	mgr.FindModule(heartbeat.ModuleName).(heartbeat.Operator).AddListener(correlator)
	return nil
}

func (m *Module) buildClient(ctx context.Context) (kubernetes.Interface, error) {
	var k8sConfig *rest.Config
	var err error
	if m.config.KubeConfig != "" {
		k8sConfig, err = clientcmd.BuildConfigFromFlags("", m.config.KubeConfig)
	} else {
		// init kubernetes client, must be inside kubernetes cluster
		k8sConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("please make sure started inside the kubernetes cluster or the kubeconfig is valid: %v", err)
	}
	cli, err := kubernetes.NewForConfig(k8sConfig)
	if err != nil {
		return nil, err
	}

	// check node exists
	if _, err = cli.CoreV1().Nodes().Get(ctx, m.config.NodeName, metav1.GetOptions{}); err != nil {
		return nil, fmt.Errorf("could not found the node: %s, %v", m.config.NodeName, err)
	}
	return cli, nil
}

func (m *Module) NotifyStartSuccess() {
}

func (m *Module) Shutdown(ctx context.Context, mgr *module.Manager) error {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
	return nil
}

// Correlate the cgroup name to the pod
func (m *Module) Correlate(cgroupName string) *Identity {
	return m.correlator.Correlate(cgroupName)
}
