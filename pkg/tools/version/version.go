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

package version

import (
	"fmt"
	"regexp"
	"strconv"
)

var kernelReleaseRegex = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

type Version struct {
	Major int
	Minor int
	Patch int
}

func Build(major, minor, patch int) *Version {
	return &Version{Major: major, Minor: minor, Patch: patch}
}

func Read(majorVal, minorVal, patchVal string) (*Version, error) {
	result := &Version{}
	var err error
	result.Major, err = parseVal(err, "major", majorVal)
	result.Minor, err = parseVal(err, "minor", minorVal)
	result.Patch, err = parseVal(err, "patch", patchVal)
	return result, err
}

// Parse the "major.minor.patch" version, minor and patch are optional
func Parse(val string) (*Version, error) {
	groups := kernelReleaseRegex.FindStringSubmatch(val)
	if len(groups) == 0 {
		return nil, fmt.Errorf("could not parse version: %s", val)
	}
	return Read(groups[1], groups[2], groups[3])
}

// ParseKernelRelease reads the version from the uname release, such as "5.15.0-91-generic".
// The kernel is known to report patch levels above 255 on stable branches, they are kept as is.
func ParseKernelRelease(release string) (*Version, error) {
	v, err := Parse(release)
	if err != nil {
		return nil, fmt.Errorf("unknown kernel release %q: %v", release, err)
	}
	return v, nil
}

func (v *Version) GreaterOrEquals(o *Version) bool {
	return v.Compare(o) >= 0
}

// Compare returns -1, 0 or 1 when the version is lower, equals or greater than the other one
func (v *Version) Compare(o *Version) int {
	var compare int
	compare = v.compare(compare, v.Major, o.Major)
	compare = v.compare(compare, v.Minor, o.Minor)
	compare = v.compare(compare, v.Patch, o.Patch)
	return compare
}

func (v *Version) compare(res, before, after int) int {
	if res != 0 {
		return res
	}
	if before > after {
		return 1
	} else if before == after {
		return 0
	}
	return -1
}

func (v *Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func parseVal(err error, name, val string) (int, error) {
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, nil
	}
	atoi, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("the %s version is a number, version: %s", name, val)
	}
	return atoi, nil
}
