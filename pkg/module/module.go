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

package module

import "context"

// Module is a component declared in the config file, started by the boot package
type Module interface {
	// Name is the top level key of the module in the config file
	Name() string

	// RequiredModules must be active and started before this module
	RequiredModules() []string

	// Config is filled from the config file before Start
	Config() ConfigInterface

	// Start returns after the module is ready, a failure stops the startup
	Start(ctx context.Context, mgr *Manager) error

	// NotifyStartSuccess is called once all modules have been started
	NotifyStartSuccess()

	// Shutdown is called in the reverse order of Start, when another module fails to start,
	// a module calls Manager.ShutdownModules, or the process receives a close signal
	Shutdown(ctx context.Context, mgr *Manager) error
}
