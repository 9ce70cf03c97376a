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
	"fmt"
	"strings"

	v1 "k8s.io/api/core/v1"

	"github.com/earthworm-io/earthworm/pkg/module"
)

type Config struct {
	module.Config `mapstructure:",squash"`

	NodeName   string `mapstructure:"node_name"`
	Namespaces string `mapstructure:"namespaces"`
	// KubeConfig is the kubeconfig file path, the in-cluster config is used when empty
	KubeConfig string `mapstructure:"kubeconfig"`
	CacheSize  int    `mapstructure:"cache_size"`
}

func (c *Config) check() error {
	if c.NodeName == "" {
		return fmt.Errorf("the node name is required for watching the pods")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("the correlation cache size must be positive: %d", c.CacheSize)
	}
	return nil
}

func (c *Config) namespaces() []string {
	if c.Namespaces == "" {
		return []string{v1.NamespaceAll}
	}
	result := make([]string, 0)
	for _, ns := range strings.Split(c.Namespaces, ",") {
		if ns = strings.TrimSpace(ns); ns != "" {
			result = append(result, ns)
		}
	}
	if len(result) == 0 {
		return []string{v1.NamespaceAll}
	}
	return result
}
