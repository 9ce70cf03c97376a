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

package operator

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/earthworm-io/earthworm/pkg/tools/version"
)

type UnameInfo struct {
	SysName  string
	Nodename string
	Release  string
	Version  string
	Machine  string
}

func GetOSUname() (*UnameInfo, error) {
	u := unix.Utsname{}
	if e := unix.Uname(&u); e != nil {
		return nil, e
	}
	return &UnameInfo{
		SysName:  charsToString(u.Sysname[:]),
		Nodename: charsToString(u.Nodename[:]),
		Release:  charsToString(u.Release[:]),
		Version:  charsToString(u.Version[:]),
		Machine:  charsToString(u.Machine[:]),
	}, nil
}

// KernelVersion of the running kernel, parsed from the uname release
func KernelVersion() (*version.Version, string, error) {
	uname, err := GetOSUname()
	if err != nil {
		return nil, "", err
	}
	v, err := version.ParseKernelRelease(uname.Release)
	if err != nil {
		return nil, uname.Release, err
	}
	return v, uname.Release, nil
}

func charsToString(ca []byte) string {
	if i := bytes.IndexByte(ca, 0); i >= 0 {
		return string(ca[:i])
	}
	return string(ca)
}
