/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingHeadNextWraps(t *testing.T) {
	indexes := []string{"index.html", "index.htm", "default.html"}
	r := NewFromSlice(indexes)
	assert.Equal(t, len(indexes), r.Len())

	item := r.Head()
	assert.Equal(t, indexes[0], item.Value())
	assert.Equal(t, 0, item.Index())

	for i := 1; i < len(indexes); i++ {
		next, ok := r.Next(item.Index())
		assert.True(t, ok)
		assert.Equal(t, indexes[i], next.Value())
		item = next
	}

	// wraps back to head past the last item
	next, ok := r.Next(item.Index())
	assert.True(t, ok)
	assert.Equal(t, indexes[0], next.Value())

	_, ok = r.Next(len(indexes) + 1)
	assert.False(t, ok)
}

func TestRingEmpty(t *testing.T) {
	r := NewFromSlice[string](nil)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Head())
}
