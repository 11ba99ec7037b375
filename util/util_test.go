// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestPrime(t *testing.T) {
	v, err := NearestPrime(20)
	assert.NoError(t, err)
	assert.Equal(t, 23, v)
	v, err = NearestPrime(29)
	assert.NoError(t, err)
	assert.Equal(t, 29, v)
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("syn2020", []string{"x", "y"}, map[string]int{"b": 1, "a": 2})
	b := ContentHash("syn2020", []string{"x", "y"}, map[string]int{"a": 2, "b": 1})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ContentHash("syn2020", []string{"y", "x"}, map[string]int{"a": 2, "b": 1}))
	assert.Len(t, a, 40)
}

func TestPaginate(t *testing.T) {
	from, to, last := Paginate(25, 3, 10)
	assert.Equal(t, 20, from)
	assert.Equal(t, 25, to)
	assert.Equal(t, 3, last)

	from, to, last = Paginate(0, 1, 10)
	assert.Equal(t, 0, from)
	assert.Equal(t, 0, to)
	assert.Equal(t, 1, last)

	from, to, _ = Paginate(5, 4, 10)
	assert.Equal(t, 5, from)
	assert.Equal(t, 5, to)
}
