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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/earthworm-io/earthworm/pkg/boot"
	"github.com/earthworm-io/earthworm/pkg/heartbeat"
	"github.com/earthworm-io/earthworm/pkg/module"
	"github.com/earthworm-io/earthworm/pkg/tools/operator"
)

const heartbeatWaitTimes = 3

func newCheckCmd() *cobra.Command {
	configPath := ""
	outputPath := ""
	outputFormat := ""
	cmd := &cobra.Command{
		Use:   "check",
		Short: "start the modules once and check the heartbeat could be received",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(configPath, outputPath, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/earthworm.yaml", "the earthworm config file path")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "output.txt", "the earthworm check output file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "plain", "the check output format, support \"json\", \"plain\"")
	return cmd
}

func check(configPath, outputPath, format string) error {
	if configPath == "" || outputPath == "" {
		return fmt.Errorf("the config and output path is required")
	}

	err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm)
	if err != nil {
		log.Fatalf("failed to create the output file directory: %v", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		log.Fatalf("failed to create the output file: %v", err)
	}
	defer outFile.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var data *outputData
	err = boot.RunModules(ctx, configPath, func(manager *module.Manager) {
		// startup success, shutdown the modules after checked
		data = checkHeartbeat(manager)
		cancel()
	})
	if err != nil {
		data = &outputData{Startup: err}
	}
	if data.Kernel == "" {
		if uname, e := operator.GetOSUname(); e == nil {
			data.Kernel = uname.Release
		}
	}
	writeOutput(data, outFile, format)
	return nil
}

func checkHeartbeat(mgr *module.Manager) *outputData {
	data := &outputData{}
	op, ok := mgr.FindModule(heartbeat.ModuleName).(heartbeat.Operator)
	if !ok {
		data.Startup = fmt.Errorf("the heartbeat module is not active")
		return data
	}
	data.Kernel = op.KernelRelease()
	data.Source = op.SourceName()
	if resolution := op.Resolution(); resolution != nil {
		data.CgroupResolution = fmt.Sprintf("%s (%s)", resolution.Mode, resolution.Reason)
	}

	for i := 0; i < heartbeatWaitTimes; i++ {
		if op.Stats().Consumed > 0 {
			data.AliveProcesses = len(op.AliveProcesses())
			return data
		}
		time.Sleep(time.Second)
	}
	data.Heartbeat = fmt.Errorf("no heartbeat received in %d seconds", heartbeatWaitTimes)
	return data
}

func writeOutput(data *outputData, file io.Writer, format string) {
	if format != "json" {
		sprintData := fmt.Sprintf("Kernel: %s\nSource: %s\nCgroupResolution: %s\nStartup: %s\nHeartbeat: %s\nAliveProcesses: %d",
			data.Kernel, data.Source, data.CgroupResolution, errorOrSuccess(data.Startup), errorOrSuccess(data.heartbeatResult()),
			data.AliveProcesses)
		_, _ = file.Write([]byte(sprintData))
		return
	}
	// some error could not be marshaled, such as multierror
	jsonData := &outputDataJSON{
		Kernel:           data.Kernel,
		Source:           data.Source,
		CgroupResolution: data.CgroupResolution,
		Startup:          errorOrSuccess(data.Startup),
		Heartbeat:        errorOrSuccess(data.heartbeatResult()),
		AliveProcesses:   data.AliveProcesses,
	}
	marshal, err := json.Marshal(jsonData)
	if err != nil {
		log.Printf("format the output failure: %v", err)
		return
	}
	_, _ = file.Write(marshal)
}

func errorOrSuccess(data error) string {
	if data != nil {
		return data.Error()
	}
	return "true"
}

type outputData struct {
	Kernel           string
	Source           string
	CgroupResolution string
	Startup          error
	Heartbeat        error
	AliveProcesses   int
}

// heartbeatResult could not be success when the modules failed to start
func (d *outputData) heartbeatResult() error {
	if d.Startup != nil && d.Heartbeat == nil {
		return fmt.Errorf("skipped")
	}
	return d.Heartbeat
}

type outputDataJSON struct {
	Kernel           string
	Source           string
	CgroupResolution string
	Startup          string
	Heartbeat        string
	AliveProcesses   int
}
