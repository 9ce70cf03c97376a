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

package events

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthworm-io/earthworm/pkg/tools/btf"
)

func TestSize(t *testing.T) {
	assert.Equal(t, 96, Size)
	assert.Equal(t, Size, btf.SizeOf(&Record{}))

	r := &Record{}
	data, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, Size)
}

func TestDecode(t *testing.T) {
	// pid=1234 ppid=1 comm=nginx cgroup=podabc123 timestamp=0x0002305a7be12d4e
	raw := strings.Join([]string{
		"d2 04 00 00 01 00 00 00",
		"6e 67 69 6e 78 00 00 00 00 00 00 00 00 00 00 00",
		"70 6f 64 61 62 63 31 32 33 00 00 00 00 00 00 00",
		"00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00",
		"00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00",
		"00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00",
		"4e 2d e1 7b 5a 30 02 00",
	}, " ")
	sample, err := hex.DecodeString(strings.ReplaceAll(raw, " ", ""))
	require.NoError(t, err)

	r, err := Decode(sample)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), r.PID)
	assert.Equal(t, uint32(1), r.PPID)
	assert.Equal(t, "nginx", r.CommString())
	assert.Equal(t, "podabc123", r.CgroupPathString())
	assert.True(t, r.IsCgroupResolved())
	assert.Equal(t, uint64(0x0002305a7be12d4e), r.Timestamp)

	encoded, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, sample, encoded)

	// perf pads the raw sample to 8 bytes alignment
	padded := append(append([]byte{}, sample...), 0, 0, 0, 0)
	_, err = Decode(padded)
	assert.NoError(t, err)

	_, err = Decode(sample[:Size-1])
	assert.Error(t, err)
	_, err = Decode(append(append([]byte{}, sample...), 1))
	assert.Error(t, err)
}

func TestTruncation(t *testing.T) {
	r := &Record{}
	r.SetComm("a-very-long-command-name")
	assert.Equal(t, "a-very-long-com", r.CommString())
	assert.Equal(t, byte(0), r.Comm[CommLen-1])

	r.SetCgroupPath(strings.Repeat("c", 100))
	assert.Len(t, r.CgroupPathString(), CgroupPathLen-1)

	r.SetCgroupPath(CgroupUnresolved)
	assert.False(t, r.IsCgroupResolved())
	r.SetCgroupPath(CgroupUnsupportedKernel)
	assert.False(t, r.IsCgroupResolved())
	assert.Equal(t, CgroupUnsupportedKernel, r.CgroupPathString())
}
