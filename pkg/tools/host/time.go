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
	"time"

	"golang.org/x/sys/unix"
)

// BootTime is the wall time when CLOCK_MONOTONIC was zero
var BootTime = bootTime()

func bootTime() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic(fmt.Errorf("init boot time error: %v", err))
	}
	// strip the monotonic reading, the boot time is only used for the wall time conversion
	return time.Now().Add(-time.Duration(ts.Nano())).Round(0)
}

// Time converts the monotonic nanoseconds (bpf_ktime_get_ns) to the wall time
func Time(monotonic uint64) time.Time {
	return BootTime.Add(time.Duration(monotonic))
}

// MonotonicNanos reads the same clock as bpf_ktime_get_ns, zero when the clock is unavailable
func MonotonicNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}
