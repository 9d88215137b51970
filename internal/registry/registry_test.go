// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeID(t *testing.T) {
	a := Alert{Owner: "p1", ID: "A1"}
	assert.Equal(t, "p1::A1", a.CompositeID())

	owner, id, ok := SplitCompositeID("p1::A1::extra")
	assert.True(t, ok)
	assert.Equal(t, "p1", owner)
	assert.Equal(t, "A1::extra", id)

	_, _, ok = SplitCompositeID("no-separator")
	assert.False(t, ok)
}
