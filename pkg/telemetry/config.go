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
	"fmt"

	"github.com/earthworm-io/earthworm/pkg/module"
)

type Config struct {
	module.Config `mapstructure:",squash"`

	// Port of the HTTP server, a random port is picked when 0
	Port int `mapstructure:"port"`
	// Pprof enables the "/debug/pprof" endpoints
	Pprof bool `mapstructure:"pprof"`
}

func (c *Config) check() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid telemetry port: %d", c.Port)
	}
	return nil
}
