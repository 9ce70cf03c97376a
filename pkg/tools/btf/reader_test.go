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

package btf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesReader(t *testing.T) {
	r := NewReader([]byte{
		0xd2, 0x04, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		'a', 'b',
	})
	assert.Equal(t, uint32(1234), r.ReadUint32())
	assert.Equal(t, uint64(1), r.ReadUint64())

	buf := make([]byte, 4)
	r.ReadUint8Array(buf, 4)
	assert.Error(t, r.HasError())
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
	assert.Equal(t, uint32(0), r.ReadUint32())
}

type sizedEvent struct{}

func (s *sizedEvent) ReadFrom(r Reader) {
	r.ReadUint32()
	r.ReadUint8Array(nil, 16)
	r.ReadUint64()
}

func TestSizeOf(t *testing.T) {
	assert.Equal(t, 28, SizeOf(&sizedEvent{}))
}
