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

package host

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/cpu"
)

const possibleCPUsPath = "/sys/devices/system/cpu/possible"

// PossibleCPUs is the count of the per-CPU buffers created by the kernel,
// fallback to the logical CPU count when the possible mask is not readable.
func PossibleCPUs() (int, error) {
	content, err := os.ReadFile(GetFileInHost(possibleCPUsPath))
	if err != nil {
		return cpu.Counts(true)
	}
	return parseCPUMask(strings.TrimSpace(string(content)))
}

// parseCPUMask reads the mask such as "0-7" or "0,2-3", returns the highest CPU index plus one
func parseCPUMask(mask string) (int, error) {
	if mask == "" {
		return 0, fmt.Errorf("empty cpu mask")
	}
	highest := -1
	for _, part := range strings.Split(mask, ",") {
		bounds := strings.SplitN(part, "-", 2)
		last, err := strconv.Atoi(bounds[len(bounds)-1])
		if err != nil {
			return 0, fmt.Errorf("parse the cpu mask %q failure: %v", mask, err)
		}
		if last > highest {
			highest = last
		}
	}
	return highest + 1, nil
}
