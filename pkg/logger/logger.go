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

package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

var root = initializeDefaultLogger()

// Logger carries the "module" field, the module path is joined by "."
type Logger struct {
	*logrus.Entry
	module []string
}

func GetLogger(modules ...string) *Logger {
	return &Logger{Entry: root.WithField("module", strings.Join(modules, ".")), module: modules}
}

// Sub creates the logger of a child component
func (l *Logger) Sub(name string) *Logger {
	modules := make([]string, 0, len(l.module)+1)
	modules = append(modules, l.module...)
	return GetLogger(append(modules, name)...)
}

// Enable checks the level is enabled in the root logger
func (l *Logger) Enable(level logrus.Level) bool {
	return l.Logger.IsLevelEnabled(level)
}
