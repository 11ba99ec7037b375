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

package pquery

import (
	"cmp"
	"concbench/formargs"
	"slices"
	"strings"
)

// FreqTable maps attribute values to their frequencies
type FreqTable map[string]int

// Row is a single value of a paradigmatic query along with its
// frequencies in the individual concordances
type Row struct {
	Value string `json:"value"`
	Freqs []int  `json:"freqs"`
}

func (r Row) Sum() int {
	var ans int
	for _, f := range r.Freqs {
		ans += f
	}
	return ans
}

// tables contains frequency distributions needed to evaluate a query.
// The `matching` tables follow the order of concordance IDs.
type tables struct {
	matching    []FreqTable
	complements []FreqTable
	superset    FreqTable
}

// aggregate keeps only values present in all the `matching` tables
// and satisfying possible constraints. Rows are sorted by the sum
// of their frequencies (descending).
func aggregate(tabs tables, complements *formargs.SubsetComplementsConstraint, superset *formargs.SupersetConstraint) []Row {
	if len(tabs.matching) == 0 {
		return []Row{}
	}
	ans := make([]Row, 0, len(tabs.matching[0]))
	for value, f0 := range tabs.matching[0] {
		row := Row{Value: value, Freqs: make([]int, len(tabs.matching))}
		row.Freqs[0] = f0
		inAll := true
		for i := 1; i < len(tabs.matching); i++ {
			f, ok := tabs.matching[i][value]
			if !ok {
				inAll = false
				break
			}
			row.Freqs[i] = f
		}
		if !inAll {
			continue
		}
		sum := float64(row.Sum())
		if complements != nil && !satisfiesComplements(tabs.complements, value, sum, complements.MaxNonMatchingRatio) {
			continue
		}
		if superset != nil && !satisfiesSuperset(tabs.superset, value, sum, superset.MaxNonMatchingRatio) {
			continue
		}
		ans = append(ans, row)
	}
	slices.SortFunc(ans, func(a, b Row) int {
		if c := cmp.Compare(b.Sum(), a.Sum()); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
	return ans
}

// satisfiesComplements tests the "almost never" constraint against
// each of the complement concordances
func satisfiesComplements(complements []FreqTable, value string, sum, maxRatio float64) bool {
	for _, tab := range complements {
		c := float64(tab[value])
		if c > 0 && c/(sum+c) > maxRatio/100 {
			return false
		}
	}
	return true
}

// satisfiesSuperset tests the "almost always" constraint
func satisfiesSuperset(superset FreqTable, value string, sum, maxRatio float64) bool {
	s := float64(superset[value])
	if s == 0 {
		return false
	}
	if s > sum {
		return 100-sum/s*100 <= maxRatio
	}
	return true
}
