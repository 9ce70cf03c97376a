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
	"os"
	"regexp"

	"github.com/spf13/viper"
)

// EnvRegularRegex matches "${NAME:default}", a string could contain multiple placeholders
var EnvRegularRegex = regexp.MustCompile(`\${(?P<ENV>[_A-Z0-9]+):(?P<DEF>[^}]*)}`)

func overrideEnv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		v.Set(key, overrideValue(v.Get(key)))
	}
}

func overrideValue(val interface{}) interface{} {
	switch d := val.(type) {
	case string:
		return overrideString(d)
	case []interface{}:
		res := make([]interface{}, 0, len(d))
		for _, item := range d {
			res = append(res, overrideValue(item))
		}
		return res
	case map[interface{}]interface{}:
		res := make(map[string]interface{}, len(d))
		for k, item := range d {
			if name, ok := k.(string); ok {
				res[name] = overrideValue(item)
			}
		}
		return res
	case map[string]interface{}:
		res := make(map[string]interface{}, len(d))
		for k, item := range d {
			res[k] = overrideValue(item)
		}
		return res
	default:
		return d
	}
}

func overrideString(val string) string {
	return EnvRegularRegex.ReplaceAllStringFunc(val, func(placeholder string) string {
		groups := EnvRegularRegex.FindStringSubmatch(placeholder)
		if v := os.Getenv(groups[1]); v != "" {
			return v
		}
		return groups[2]
	})
}
