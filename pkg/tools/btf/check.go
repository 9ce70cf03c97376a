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
	"debug/elf"
	"fmt"

	"github.com/earthworm-io/earthworm/pkg/tools/host"
	"github.com/earthworm-io/earthworm/pkg/tools/operator"
	"github.com/earthworm-io/earthworm/pkg/tools/path"
)

// KernelBTFPath is exposed by the kernels built with CONFIG_DEBUG_INFO_BTF
const KernelBTFPath = "/sys/kernel/btf/vmlinux"

// the vmlinux locations searched by libbpf, "%s" is the kernel release
var vmlinuxLocations = []string{
	"/boot/vmlinux-%s",
	"/lib/modules/%s/vmlinux-%[1]s",
	"/lib/modules/%s/build/vmlinux",
	"/usr/lib/modules/%s/kernel/vmlinux",
	"/usr/lib/debug/boot/vmlinux-%s",
	"/usr/lib/debug/boot/vmlinux-%s.debug",
	"/usr/lib/debug/lib/modules/%s/vmlinux",
}

// ExistKernelBTF returns the sysfs BTF path, or the vmlinux file on the disk of the running kernel
func ExistKernelBTF() (string, error) {
	if path.Exists(host.GetFileInHost(KernelBTFPath)) {
		return KernelBTFPath, nil
	}
	uname, err := operator.GetOSUname()
	if err != nil {
		return "", err
	}
	for _, file := range vmlinuxCandidates(uname.Release) {
		if isELF(file) {
			return file, nil
		}
	}
	return "", fmt.Errorf("could not found the kernel BTF of %s", uname.Release)
}

func vmlinuxCandidates(release string) []string {
	files := make([]string, 0, len(vmlinuxLocations))
	for _, loc := range vmlinuxLocations {
		files = append(files, host.GetFileInHost(fmt.Sprintf(loc, release)))
	}
	return files
}

func isELF(file string) bool {
	f, err := elf.Open(file)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
