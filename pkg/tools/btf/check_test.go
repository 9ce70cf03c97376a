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

func TestVmlinuxCandidates(t *testing.T) {
	files := vmlinuxCandidates("5.15.0-91-generic")
	assert.Len(t, files, len(vmlinuxLocations))
	assert.Contains(t, files, "/boot/vmlinux-5.15.0-91-generic")
	assert.Contains(t, files, "/lib/modules/5.15.0-91-generic/vmlinux-5.15.0-91-generic")
	assert.Contains(t, files, "/usr/lib/debug/boot/vmlinux-5.15.0-91-generic.debug")
}

func TestIsELF(t *testing.T) {
	assert.False(t, isELF("testdata/not-exists"))
}
