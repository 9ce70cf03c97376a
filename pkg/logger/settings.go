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
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLoggerLevel = logrus.InfoLevel

	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Level string `mapstructure:"level"`
	// Format of the output lines, "text" or "json"
	Format string `mapstructure:"format"`
}

func (c *Config) IsActive() bool {
	return true
}

func setupLogger(config *Config) error {
	return updateLogger(root, config)
}

func updateLogger(log *logrus.Logger, config *Config) error {
	level := DefaultLoggerLevel
	if config.Level != "" {
		parsed, err := logrus.ParseLevel(strings.ToLower(config.Level))
		if err != nil {
			return err
		}
		level = parsed
	}
	formatter, err := buildFormatter(config.Format)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(formatter)
	return nil
}

func buildFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}, nil
	case FormatJSON:
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

func initializeDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(DefaultLoggerLevel)
	f, _ := buildFormatter(FormatText)
	l.SetFormatter(f)
	return l
}
