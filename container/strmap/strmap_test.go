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

package strmap

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/webserv-go/webserv/internal/hack"
	"github.com/stretchr/testify/require"
)

func randStrings(m, n int) []string {
	b := make([]byte, m*n)
	_, _ = rand.Read(b)
	ret := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s := b[m*i:]
		s = s[:m]
		ret = append(ret, hack.ByteSliceToString(s))
	}
	return ret
}

func TestStrMap(t *testing.T) {
	names := []string{"example.com", "www.example.com", "api.example.com"}
	sm := NewFromSlice(names, []int{0, 0, 1})
	require.Equal(t, len(names), sm.Len())

	for i, name := range names {
		idx, ok := sm.Get(name)
		require.True(t, ok)
		require.Equal(t, []int{0, 0, 1}[i], idx)
	}
	_, ok := sm.Get("unknown.example.com")
	require.False(t, ok)

	for i := 0; i < sm.Len(); i++ {
		k, v := sm.Item(i)
		require.Contains(t, names, k)
		require.GreaterOrEqual(t, v, 0)
	}
}

func TestStrMapLarge(t *testing.T) {
	n := 100000
	names := randStrings(20, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sm := NewFromSlice(names, idx)
	require.Equal(t, n, sm.Len())
	for i, name := range names {
		v, ok := sm.Get(name)
		require.True(t, ok)
		require.Equal(t, idx[i], v)
	}
}

func BenchmarkLoadFromSlice(b *testing.B) {
	sz := 50
	n := 100000
	kk := randStrings(sz, n)
	vv := make([]int, n)
	for i := range vv {
		vv[i] = i
	}
	p := New[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.LoadFromSlice(kk, vv)
	}
}

func BenchmarkGet(b *testing.B) {
	sizes := []int{20, 50, 100}
	nn := []int{100000, 200000}

	for _, n := range nn {
		for _, sz := range sizes {
			ss := randStrings(sz, n)
			idx := make([]int, n)
			for i := range idx {
				idx[i] = i
			}
			sm := NewFromSlice(ss, idx)
			b.Run(fmt.Sprintf("keysize_%d_n_%d", sz, n), func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					sm.Get(ss[i%len(ss)])
				}
			})
		}
	}
}
