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

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
)

// Config is the YAML configuration, each top level key declares a module
type Config struct {
	conf *viper.Viper
}

func Load(file string) (*Config, error) {
	absolutePath, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, err
	}
	return LoadFromBytes(content)
}

// LoadFromBytes reads the YAML content and resolves the environment placeholders
func LoadFromBytes(content []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("parse yaml config failure: %v", err)
	}

	overrideEnv(v)
	return &Config{conf: v}, nil
}

// GetTopLevelKeys returns the sorted module names declared in the config
func (c *Config) GetTopLevelKeys() []string {
	settings := c.conf.AllSettings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSet checks the key is declared, the nested key is joined by "."
func (c *Config) IsSet(key string) bool {
	return c.conf.IsSet(key)
}

// UnMarshalWithKey to the config value reference
func (c *Config) UnMarshalWithKey(key string, val interface{}) error {
	return c.conf.UnmarshalKey(key, val)
}
