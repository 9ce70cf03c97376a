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

package capture

import "github.com/earthworm-io/earthworm/pkg/tools/host"

// Clock stamps the record, the value must be non-decreasing on the same CPU
type Clock interface {
	Now(cpu uint32) uint64
}

// MonotonicClock reads the same clock as bpf_ktime_get_ns
type MonotonicClock struct{}

func (MonotonicClock) Now(uint32) uint64 {
	return host.MonotonicNanos()
}
