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

package heartbeat

import (
	"fmt"

	"github.com/earthworm-io/earthworm/pkg/heartbeat/capture"
	"github.com/earthworm-io/earthworm/pkg/heartbeat/kernel"
	"github.com/earthworm-io/earthworm/pkg/tools/version"
)

// Resolution is the cgroup resolution decided before the probe attached
type Resolution struct {
	Mode   capture.Mode
	Reason string
}

// DecideResolution resolves the auto mode by the kernel version and the struct layout.
// The configured full or unsupported mode is always respected.
func DecideResolution(configured capture.Mode, minKernel string, kernelVersion *version.Version,
	layout *kernel.Layout) (*Resolution, error) {
	switch configured {
	case capture.ModeFull:
		return &Resolution{Mode: capture.ModeFull, Reason: "configured"}, nil
	case capture.ModeUnsupported:
		return &Resolution{Mode: capture.ModeUnsupported, Reason: "configured"}, nil
	case capture.ModeAuto:
	default:
		return nil, fmt.Errorf("unknown cgroup resolution mode: %s", configured)
	}

	minVersion, err := version.Parse(minKernel)
	if err != nil {
		return nil, fmt.Errorf("parse the min kernel version %s failure: %v", minKernel, err)
	}
	if kernelVersion == nil {
		return &Resolution{Mode: capture.ModeUnsupported, Reason: "unknown kernel version"}, nil
	}
	if !kernelVersion.GreaterOrEquals(minVersion) {
		return &Resolution{Mode: capture.ModeUnsupported,
			Reason: fmt.Sprintf("kernel %s is older than %s", kernelVersion, minVersion)}, nil
	}
	if layout == nil {
		return &Resolution{Mode: capture.ModeUnsupported, Reason: "kernel layout is unknown"}, nil
	}
	if !layout.CgroupWalkSupported() {
		return &Resolution{Mode: capture.ModeUnsupported,
			Reason: fmt.Sprintf("missing kernel members: %v", layout.Missing)}, nil
	}
	return &Resolution{Mode: capture.ModeFull, Reason: fmt.Sprintf("kernel %s", kernelVersion)}, nil
}
