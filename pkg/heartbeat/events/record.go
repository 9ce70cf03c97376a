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
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/earthworm-io/earthworm/pkg/tools/btf"
	"github.com/earthworm-io/earthworm/pkg/tools/host"
)

const (
	// CommLen is the kernel TASK_COMM_LEN
	CommLen = 16
	// CgroupPathLen bounds the cgroup name copied from the kernfs node
	CgroupPathLen = 64

	// Size of the record on the wire, must be same with struct heartbeat_record:
	//
	//	offset  size  field
	//	0       4     pid
	//	4       4     ppid
	//	8       16    comm
	//	24      64    cgroup_path
	//	88      8     timestamp
	//
	// timestamp is naturally 8 bytes aligned, so there is no padding.
	Size = 4 + 4 + CommLen + CgroupPathLen + 8
)

const (
	// CgroupUnresolved is written when any pointer of the cgroup chain is null or unreadable
	CgroupUnresolved = "unsupported_or_null"
	// CgroupUnsupportedKernel is written when the kernel is older than the supported cgroup layout
	CgroupUnsupportedKernel = "unsupported_kernel"
)

// Record is the heartbeat emitted on every context switch
type Record struct {
	PID        uint32
	PPID       uint32
	Comm       [CommLen]byte
	CgroupPath [CgroupPathLen]byte
	Timestamp  uint64
}

func (r *Record) ReadFrom(reader btf.Reader) {
	r.PID = reader.ReadUint32()
	r.PPID = reader.ReadUint32()
	reader.ReadUint8Array(r.Comm[:], CommLen)
	reader.ReadUint8Array(r.CgroupPath[:], CgroupPathLen)
	r.Timestamp = reader.ReadUint64()
}

// Decode the raw sample of the perf event array, the sample must be exactly one record.
// The perf buffer pads the raw sample to 8 bytes, so only the trailing zero padding is allowed.
func Decode(sample []byte) (*Record, error) {
	if len(sample) < Size {
		return nil, fmt.Errorf("short heartbeat sample: got=%d want=%d", len(sample), Size)
	}
	if len(sample) > Size && len(bytes.Trim(sample[Size:], "\x00")) != 0 {
		return nil, fmt.Errorf("oversized heartbeat sample: got=%d want=%d", len(sample), Size)
	}
	r := &Record{}
	reader := btf.NewReader(sample[:Size])
	r.ReadFrom(reader)
	if err := reader.HasError(); err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalBinary encodes the record in the wire layout, always Size bytes
func (r *Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], r.PID)
	binary.LittleEndian.PutUint32(buf[4:8], r.PPID)
	copy(buf[8:24], r.Comm[:])
	copy(buf[24:88], r.CgroupPath[:])
	binary.LittleEndian.PutUint64(buf[88:96], r.Timestamp)
	return buf, nil
}

// SetComm copies the name with the same truncation as the kernel: at most CommLen-1 bytes and a NUL
func (r *Record) SetComm(comm string) {
	r.Comm = [CommLen]byte{}
	copyTerminated(r.Comm[:], comm)
}

// SetCgroupPath copies the path truncated to CgroupPathLen-1 bytes and a NUL
func (r *Record) SetCgroupPath(p string) {
	r.CgroupPath = [CgroupPathLen]byte{}
	copyTerminated(r.CgroupPath[:], p)
}

func (r *Record) CommString() string {
	return terminatedString(r.Comm[:])
}

func (r *Record) CgroupPathString() string {
	return terminatedString(r.CgroupPath[:])
}

// IsCgroupResolved is false when the cgroup path is one of the sentinels
func (r *Record) IsCgroupResolved() bool {
	p := r.CgroupPathString()
	return p != CgroupUnresolved && p != CgroupUnsupportedKernel
}

// Time converts the monotonic timestamp to the wall time
func (r *Record) Time() time.Time {
	return host.Time(r.Timestamp)
}

func (r *Record) String() string {
	return fmt.Sprintf("pid=%d ppid=%d comm=%s cgroup=%s ts=%d",
		r.PID, r.PPID, r.CommString(), r.CgroupPathString(), r.Timestamp)
}

func copyTerminated(dst []byte, src string) {
	n := len(src)
	if n > len(dst)-1 {
		n = len(dst) - 1
	}
	copy(dst, src[:n])
}

func terminatedString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
