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
	"sync"

	"github.com/cilium/ebpf"
	ciliumbtf "github.com/cilium/ebpf/btf"

	"github.com/earthworm-io/earthworm/pkg/logger"
)

var (
	kernelSpec     *ciliumbtf.Spec
	kernelSpecErr  error
	findKernelOnce sync.Once

	log = logger.GetLogger("tools", "btf")
)

// KernelSpec loads the BTF of the running kernel, from sysfs or from the vmlinux found on the disk
func KernelSpec() (*ciliumbtf.Spec, error) {
	findKernelOnce.Do(func() {
		btfPath, err := ExistKernelBTF()
		if err != nil {
			kernelSpecErr = err
			return
		}
		if btfPath == KernelBTFPath {
			kernelSpec, kernelSpecErr = ciliumbtf.LoadKernelSpec()
			return
		}
		log.Infof("the kernel BTF is not exposed by sysfs, loading from %s", btfPath)
		kernelSpec, kernelSpecErr = ciliumbtf.LoadSpec(btfPath)
	})
	return kernelSpec, kernelSpecErr
}

// GetEBPFCollectionOptionsIfNeed returns the options only when the BTF should be loaded from the vmlinux file
func GetEBPFCollectionOptionsIfNeed() *ebpf.CollectionOptions {
	btfPath, err := ExistKernelBTF()
	if err != nil {
		log.Warnf("found BTF failure: %v", err)
		return nil
	}
	if btfPath == KernelBTFPath {
		return nil
	}
	spec, err := KernelSpec()
	if err != nil {
		log.Warnf("load the kernel BTF from %s failure: %v", btfPath, err)
		return nil
	}
	return &ebpf.CollectionOptions{Programs: ebpf.ProgramOptions{KernelTypes: spec}}
}
