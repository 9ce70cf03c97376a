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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKernelRelease(t *testing.T) {
	tests := []struct {
		release string
		expect  *Version
	}{
		{release: "5.15.0-91-generic", expect: Build(5, 15, 0)},
		{release: "6.1.55-75.123.amzn2023.x86_64", expect: Build(6, 1, 55)},
		{release: "4.19.0", expect: Build(4, 19, 0)},
		{release: "6.8", expect: Build(6, 8, 0)},
		{release: "4.9.337+", expect: Build(4, 9, 337)},
	}
	for _, tt := range tests {
		v, err := ParseKernelRelease(tt.release)
		require.NoError(t, err, tt.release)
		assert.Equal(t, tt.expect, v, tt.release)
	}

	_, err := ParseKernelRelease("generic")
	assert.Error(t, err)
}

func TestGreaterOrEquals(t *testing.T) {
	minimal := Build(5, 5, 0)
	assert.True(t, Build(5, 5, 0).GreaterOrEquals(minimal))
	assert.True(t, Build(5, 15, 0).GreaterOrEquals(minimal))
	assert.True(t, Build(6, 0, 0).GreaterOrEquals(minimal))
	assert.False(t, Build(5, 4, 255).GreaterOrEquals(minimal))
	assert.False(t, Build(4, 19, 0).GreaterOrEquals(minimal))
	assert.Equal(t, "5.5.0", minimal.String())
}
