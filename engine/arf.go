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

package engine

import "sort"

// ARF calculates the average reduced frequency of an item occurring
// at `positions` within a text of `textSize` tokens.
func ARF(positions []int, textSize int) float64 {
	freq := len(positions)
	if freq == 0 || textSize <= 0 {
		return 0
	}
	sorted := make([]int, freq)
	copy(sorted, positions)
	sort.Ints(sorted)
	v := float64(textSize) / float64(freq)
	var ans float64
	for i := 0; i < freq; i++ {
		var dist int
		if i == 0 {
			dist = sorted[0] + textSize - sorted[freq-1]

		} else {
			dist = sorted[i] - sorted[i-1]
		}
		ans += min(float64(dist), v)
	}
	return ans / v
}
