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

package subcorpus

import (
	"concbench/cncdb"
	"concbench/engine"
	"concbench/texttypes"
	"fmt"
)

func complement(ranges []engine.Range, size int) []engine.Range {
	ans := make([]engine.Range, 0, len(ranges)+1)
	var curr int
	for _, r := range ranges {
		if r.Start > curr {
			ans = append(ans, engine.Range{Start: curr, End: r.Start})
		}
		curr = max(curr, r.End)
	}
	if curr < size {
		ans = append(ans, engine.Range{Start: curr, End: size})
	}
	return ans
}

func withinItemRanges(corp engine.Corpus, item cncdb.WithinCondItem) ([]engine.Range, error) {
	expr := fmt.Sprintf("<%s/>", item.StructureName)
	if item.AttributeCQL != "" {
		expr = fmt.Sprintf("<%s %s/>", item.StructureName, item.AttributeCQL)
	}
	hits, err := corp.Search("[] within "+expr, nil)
	if err != nil {
		return nil, err
	}
	ans := engine.MergeRanges(hits)
	if item.Negated {
		ans = complement(ans, corp.Size())
	}
	return ans, nil
}

// dataRanges evaluates a subcorpus payload. Within conditions
// are conjunctive.
func dataRanges(corp engine.Corpus, data Data) ([]engine.Range, error) {
	switch {
	case data.CQL != nil:
		hits, err := corp.Search(*data.CQL, nil)
		if err != nil {
			return nil, err
		}
		return engine.MergeRanges(hits), nil
	case data.WithinCond != nil:
		ans := []engine.Range{{Start: 0, End: corp.Size()}}
		for _, item := range data.WithinCond {
			curr, err := withinItemRanges(corp, item)
			if err != nil {
				return nil, err
			}
			ans = engine.IntersectRanges(ans, curr)
		}
		return ans, nil
	case data.TextTypes != nil:
		if err := texttypes.Validate(data.TextTypes, corp); err != nil {
			return nil, err
		}
		conds, err := texttypes.Compile(data.TextTypes, nil)
		if err != nil {
			return nil, err
		}
		ans, err := texttypes.Ranges(corp, conds)
		if err != nil {
			return nil, err
		}
		return engine.MergeRanges(ans), nil
	}
	return nil, fmt.Errorf("empty subcorpus definition")
}
