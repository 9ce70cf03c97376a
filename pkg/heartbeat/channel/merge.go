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

package channel

import "github.com/earthworm-io/earthworm/pkg/heartbeat/events"

// MergeByTimestamp merges the per-CPU streams, each one already ordered by its own CPU,
// into one stream ordered by the timestamp. Equal timestamps keep the order of the streams.
// The timestamps of different CPUs are not synchronized, so the result is only an approximation
// of the global order.
func MergeByTimestamp(streams ...[]events.Record) []events.Record {
	total := 0
	for _, s := range streams {
		total += len(s)
	}
	result := make([]events.Record, 0, total)
	positions := make([]int, len(streams))
	for len(result) < total {
		selected := -1
		for i, s := range streams {
			if positions[i] >= len(s) {
				continue
			}
			if selected < 0 || s[positions[i]].Timestamp < streams[selected][positions[selected]].Timestamp {
				selected = i
			}
		}
		result = append(result, streams[selected][positions[selected]])
		positions[selected]++
	}
	return result
}
