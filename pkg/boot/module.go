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
	"os"
	"os/signal"
	"syscall"

	"github.com/earthworm-io/earthworm/pkg/logger"
	"github.com/earthworm-io/earthworm/pkg/module"
)

type ModuleStarter struct {
	activeModules  []module.Module
	moduleMap      map[string]module.Module
	visited        map[string]bool
	orderedModules []module.Module
	startedModules []module.Module
	moduleManager  *module.Manager
}

func NewModuleStarter(modules []module.Module) *ModuleStarter {
	activeModules := make([]module.Module, 0)
	moduleMap := make(map[string]module.Module)
	for _, mod := range modules {
		moduleMap[mod.Name()] = mod
		if mod.Config().IsActive() {
			activeModules = append(activeModules, mod)
		}
	}
	return &ModuleStarter{
		activeModules:  activeModules,
		moduleMap:      moduleMap,
		orderedModules: make([]module.Module, 0),
		visited:        make(map[string]bool),
		startedModules: make([]module.Module, 0),
	}
}

// Run starts the modules in dependency order and blocks until a shutdown is requested
// by a signal, the context or one of the modules.
func (m *ModuleStarter) Run(ctx context.Context, startUpSuccessCallback func(*module.Manager)) error {
	if err := m.ResolveDependency(); err != nil {
		return err
	}
	if len(m.orderedModules) == 0 {
		return fmt.Errorf("no module is active")
	}

	shutdownChannel := make(chan error, 1)
	m.moduleManager = module.NewManager(m.orderedModules, func(err error) {
		shutdownChannel <- err
	})

	defer m.shutdownModules(ctx)
	for _, mod := range m.orderedModules {
		log.Debugf("starting module %s", mod.Name())
		if err := mod.Start(ctx, m.moduleManager); err != nil {
			return fmt.Errorf("start module %s failure: %v", mod.Name(), err)
		}
		log.Infof("module %s start successful", mod.Name())
		m.startedModules = append(m.startedModules, mod)
	}

	for _, mod := range m.startedModules {
		mod.NotifyStartSuccess()
	}
	if startUpSuccessCallback != nil {
		startUpSuccessCallback(m.moduleManager)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(signals)
	select {
	case sig := <-signals:
		log.Infof("detect shutdown signal: %v", sig)
	case <-ctx.Done():
		log.Infof("detect background context have been done: %v", ctx.Err())
	case err := <-shutdownChannel:
		log.Warnf("detect module shutdown notify: %v", err)
	}
	return nil
}

// ResolveDependency orders the active modules so every module starts after its required modules,
// the logger module always comes first.
func (m *ModuleStarter) ResolveDependency() error {
	for _, mod := range m.activeModules {
		for _, required := range mod.RequiredModules() {
			if m.moduleMap[required] == nil {
				return fmt.Errorf("module %s is required %s, please declare in the config", mod.Name(), required)
			}
			if !m.moduleMap[required].Config().IsActive() {
				return fmt.Errorf("module %s is required %s, but it is not active", mod.Name(), required)
			}
		}
	}

	if loggerModule := m.moduleMap[logger.ModuleName]; loggerModule != nil && loggerModule.Config().IsActive() {
		if err := m.appendToResolve(loggerModule, nil); err != nil {
			return err
		}
	}
	for _, mod := range m.activeModules {
		if err := m.appendToResolve(mod, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *ModuleStarter) appendToResolve(mod, parentModule module.Module) error {
	if m.visited[mod.Name()] {
		for _, added := range m.orderedModules {
			if added.Name() == mod.Name() {
				return nil
			}
		}
		if parentModule == nil {
			return fmt.Errorf("found cyclic dependency in %s", mod.Name())
		}
		return fmt.Errorf("found cyclic dependency between in %s and %s", mod.Name(), parentModule.Name())
	}
	m.visited[mod.Name()] = true
	for _, required := range mod.RequiredModules() {
		if err := m.appendToResolve(m.moduleMap[required], mod); err != nil {
			return err
		}
	}
	m.orderedModules = append(m.orderedModules, mod)
	return nil
}

func (m *ModuleStarter) shutdownModules(ctx context.Context) {
	for i := len(m.startedModules) - 1; i >= 0; i-- {
		mod := m.startedModules[i]
		if err := mod.Shutdown(ctx, m.moduleManager); err != nil {
			log.Warnf("shutdown module %s failure: %v", mod.Name(), err)
			continue
		}
		log.Infof("module %s shutdown successful", mod.Name())
	}
}
