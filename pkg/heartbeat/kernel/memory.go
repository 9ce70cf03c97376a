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

// Package kernel models the kernel memory read by the heartbeat probe.
// Every read is a bounded copy which could fail, same as bpf_probe_read_kernel.
package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFault is returned when the address is null or not readable
var ErrFault = errors.New("kernel memory fault")

// Address in the kernel space, zero is the null pointer
type Address uint64

func (a Address) Add(offset uint32) Address {
	return a + Address(offset)
}

func (a Address) IsNull() bool {
	return a == 0
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Memory is the readable kernel memory
type Memory interface {
	// ReadBytes copies exactly len(dst) bytes, dst is zeroed when failure
	ReadBytes(addr Address, dst []byte) error
	// ReadString copies the NUL terminated string with at most len(dst)-1 characters and the NUL,
	// returns the copied length including the NUL. dst is zeroed when failure.
	ReadString(addr Address, dst []byte) (int, error)
}

// ReadPointer reads the pointer stored at the address
func ReadPointer(m Memory, addr Address) (Address, error) {
	var buf [8]byte
	if err := m.ReadBytes(addr, buf[:]); err != nil {
		return 0, err
	}
	return Address(binary.LittleEndian.Uint64(buf[:])), nil
}

// ReadUint32 reads the 32 bits integer stored at the address
func ReadUint32(m Memory, addr Address) (uint32, error) {
	var buf [4]byte
	if err := m.ReadBytes(addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
