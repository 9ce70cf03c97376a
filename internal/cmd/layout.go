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
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/earthworm-io/earthworm/pkg/heartbeat"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
	"github.com/earthworm-io/earthworm/pkg/tools/operator"
	"github.com/earthworm-io/earthworm/pkg/tools/version"
)

func newLayoutCmd() *cobra.Command {
	minKernel := ""
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "print the kernel struct offsets read by the probe and the cgroup resolution decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := kernel.LoadKernelLayout()
			if err != nil {
				return err
			}
			kernelVersion, release, err := operator.KernelVersion()
			if err != nil {
				return err
			}
			return printLayout(cmd.OutOrStdout(), release, kernelVersion, minKernel, layout)
		},
	}

	cmd.Flags().StringVarP(&minKernel, "min-kernel", "k", "5.5.0", "the min kernel version of the full cgroup resolution")
	return cmd
}

func printLayout(w io.Writer, release string, kernelVersion *version.Version, minKernel string, layout *kernel.Layout) error {
	resolution, err := heartbeat.DecideResolution(capture.ModeAuto, minKernel, kernelVersion, layout)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Kernel: %s\nCgroupResolution: %s (%s)\n", release, resolution.Mode, resolution.Reason); err != nil {
		return err
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"MEMBER", "OFFSET"})
	for _, m := range layout.Members() {
		tw.Append([]string{m[0], m[1]})
	}
	tw.Render()
	return nil
}
