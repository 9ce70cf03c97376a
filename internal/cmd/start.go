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

	"github.com/spf13/cobra"

	"github.com/earthworm-io/earthworm/pkg/boot"
)

func newStartCmd() *cobra.Command {
	configPath := ""
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the heartbeat probe until receiving the shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return boot.RunModules(context.Background(), configPath, nil)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/earthworm.yaml", "the earthworm config file path")
	return cmd
}
