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

package kernel

import (
	"encoding/binary"
	"sort"
	"sync"
)

const (
	imageBase  Address = 0xffff888000000000
	imageAlign         = 64
	// nullPage is never mapped, same as the kernel
	nullPage Address = 4096
)

type region struct {
	start Address
	data  []byte
}

func (r *region) end() Address {
	return r.start + Address(len(r.data))
}

// Image is a sparse synthetic kernel memory, built from the kernel objects with the given layout.
// It is used by the mock source and the tests, every address out of the allocated regions is unreadable.
type Image struct {
	layout  *Layout
	regions []*region
	next    Address
	mutex   sync.RWMutex
}

func NewImage(layout *Layout) *Image {
	if layout == nil {
		layout = DefaultLayout()
	}
	return &Image{layout: layout, next: imageBase}
}

func (i *Image) Layout() *Layout {
	return i.layout
}

// Alloc a zeroed region
func (i *Image) Alloc(size int) Address {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if size <= 0 {
		size = 1
	}
	addr := i.next
	i.regions = append(i.regions, &region{start: addr, data: make([]byte, size)})
	i.next += Address((size + imageAlign - 1) / imageAlign * imageAlign)
	return addr
}

// Unmap the region which starts from the address, all reads into it would fault
func (i *Image) Unmap(addr Address) bool {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	for inx, r := range i.regions {
		if r.start == addr {
			i.regions = append(i.regions[:inx], i.regions[inx+1:]...)
			return true
		}
	}
	return false
}

// Write the data into the allocated region
func (i *Image) Write(addr Address, data []byte) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	r := i.find(addr)
	if r == nil || addr+Address(len(data)) > r.end() {
		return ErrFault
	}
	copy(r.data[addr-r.start:], data)
	return nil
}

func (i *Image) PutPointer(addr, value Address) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	return i.Write(addr, buf[:])
}

func (i *Image) PutUint32(addr Address, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return i.Write(addr, buf[:])
}

// AllocString allocates the NUL terminated string
func (i *Image) AllocString(s string) Address {
	addr := i.Alloc(len(s) + 1)
	_ = i.Write(addr, []byte(s))
	return addr
}

func (i *Image) ReadBytes(addr Address, dst []byte) error {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	r := i.find(addr)
	if r == nil || addr+Address(len(dst)) > r.end() {
		clear(dst)
		return ErrFault
	}
	copy(dst, r.data[addr-r.start:])
	return nil
}

func (i *Image) ReadString(addr Address, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	clear(dst)
	r := i.find(addr)
	if r == nil {
		return 0, ErrFault
	}
	src := r.data[addr-r.start:]
	limit := len(dst) - 1
	for n := 0; n < limit; n++ {
		if n >= len(src) {
			clear(dst)
			return 0, ErrFault
		}
		if src[n] == 0 {
			return n + 1, nil
		}
		dst[n] = src[n]
	}
	return len(dst), nil
}

func (i *Image) find(addr Address) *region {
	if addr < nullPage {
		return nil
	}
	inx := sort.Search(len(i.regions), func(n int) bool {
		return i.regions[n].end() > addr
	})
	if inx == len(i.regions) || i.regions[inx].start > addr {
		return nil
	}
	return i.regions[inx]
}
