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

package concord

import (
	"cmp"
	"concbench/apperr"
	"concbench/engine"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
)

// Line is a single concordance line
type Line struct {

	// Kwic is a KWIC range within the currently active corpus
	Kwic engine.Hit `json:"kwic"`

	// Main is a KWIC range within the primary corpus
	Main engine.Hit `json:"main"`
}

// result is a materialized concordance as stored in the cache
type result struct {
	Lines []Line `json:"lines"`

	// ActiveCorpus is the corpus KWICs currently refer to
	ActiveCorpus string `json:"activeCorpus"`

	// FullSize is an estimated size of the concordance as if
	// no sampling was applied
	FullSize int `json:"fullsize"`

	// FullRatio relates observed lines to the estimated population
	FullRatio float64 `json:"fullRatio"`
	Sampled   bool    `json:"sampled"`
}

func (res *result) clone() *result {
	ans := *res
	ans.Lines = slices.Clone(res.Lines)
	return &ans
}

func (res *result) updateFullSize() {
	res.FullSize = int(math.Round(float64(len(res.Lines)) * res.FullRatio))
}

// computation evaluates operations over corpora
type computation struct {
	primary engine.Corpus

	// aligned maps names of aligned corpora to their handles
	aligned map[string]engine.Corpus

	// subcRanges restricts the initial query (nil = whole corpus)
	subcRanges []engine.Range
	cutoff     int
}

func (comp *computation) corpus(name string) (engine.Corpus, error) {
	if name == comp.primary.Name() {
		return comp.primary, nil
	}
	corp, ok := comp.aligned[name]
	if !ok {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("corpus %s is not aligned with %s", name, comp.primary.Name()), nil)
	}
	return corp, nil
}

// mapEngineError translates corpus engine errors to error kinds
// understood by the rest of the application
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrQuerySyntax):
		return apperr.NewConcordanceQueryParamsError(err.Error(), err)
	case errors.Is(err, engine.ErrUnknownAttr), errors.Is(err, engine.ErrUnknownStructure):
		return apperr.NewConcordanceSpecificationError(err.Error(), err)
	}
	return apperr.NewEngineError(err)
}

func opSeed(corpname string, prefix []string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(corpname))
	for _, t := range prefix {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s>>7|s<<57))
}

func (comp *computation) applyQuery(op QueryOp) (*result, error) {
	if comp.subcRanges != nil && len(comp.subcRanges) == 0 {
		return &result{Lines: []Line{}, ActiveCorpus: comp.primary.Name(), FullRatio: 1}, nil
	}
	var hits []engine.Hit
	var err error
	if op.DefaultAttr != "" && op.DefaultAttr != comp.primary.DefaultAttr() {
		srch, ok := comp.primary.(engine.DefaultAttrSearcher)
		if !ok {
			return nil, apperr.NewConcordanceSpecificationError(
				"corpus engine does not support custom default attributes", nil)
		}
		hits, err = srch.SearchWithDefaultAttr(op.CQL, op.DefaultAttr, comp.subcRanges)

	} else {
		hits, err = comp.primary.Search(op.CQL, comp.subcRanges)
	}
	if err != nil {
		return nil, mapEngineError(err)
	}
	ans := &result{
		Lines:        make([]Line, 0, len(hits)),
		ActiveCorpus: comp.primary.Name(),
		FullSize:     len(hits),
		FullRatio:    1,
	}
	if comp.cutoff > 0 && len(hits) > comp.cutoff {
		hits = hits[:comp.cutoff]
		ans.FullRatio = float64(ans.FullSize) / float64(comp.cutoff)
	}
	for _, h := range hits {
		ans.Lines = append(ans.Lines, Line{Kwic: h, Main: h})
	}
	return ans, nil
}

type filterMatch struct {
	key int
	hit engine.Hit
}

func (comp *computation) applyFilter(res *result, op FilterOp) (*result, error) {
	corp, err := comp.corpus(res.ActiveCorpus)
	if err != nil {
		return nil, err
	}
	hits, err := corp.Search(op.CQL, nil)
	if err != nil {
		return nil, mapEngineError(err)
	}
	matches := make([]filterMatch, len(hits))
	for i, h := range hits {
		matches[i] = filterMatch{key: h.Start, hit: h}
		if op.Rank < 0 {
			matches[i].key = h.End - 1
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].key < matches[j].key
	})
	ans := res.clone()
	ans.Lines = make([]Line, 0, len(res.Lines))
	for _, line := range res.Lines {
		found := false
		if line.Kwic.Len() > 0 {
			from, to := op.From.Resolve(line.Kwic), op.To.Resolve(line.Kwic)
			i := sort.Search(len(matches), func(i int) bool {
				return matches[i].key >= from
			})
			for ; i < len(matches) && matches[i].key <= to; i++ {
				m := matches[i].hit
				if op.InclKwic || m.End <= line.Kwic.Start || m.Start >= line.Kwic.End {
					found = true
					break
				}
			}
		}
		if found == op.Positive {
			ans.Lines = append(ans.Lines, line)
		}
	}
	ans.updateFullSize()
	return ans, nil
}

func reverseString(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}

func (comp *computation) sortKeyValue(corp engine.Corpus, key SortKey, kwic engine.Hit) string {
	from, to := key.Ctx.Resolve(kwic)
	step := 1
	if from > to {
		step = -1
	}
	values := make([]string, 0, 4)
	for pos := from; ; pos += step {
		if pos >= 0 && pos < corp.Size() {
			v := corp.Value(key.Attr, pos)
			if key.Icase {
				v = strings.ToLower(v)
			}
			if key.Bward {
				v = reverseString(v)
			}
			values = append(values, v)
		}
		if pos == to {
			break
		}
	}
	return strings.Join(values, " ")
}

func (comp *computation) applySort(ctx context.Context, res *result, op SortOp) (*result, error) {
	corp, err := comp.corpus(res.ActiveCorpus)
	if err != nil {
		return nil, err
	}
	for _, k := range op.Keys {
		if !corp.HasPosAttr(k.Attr) {
			return nil, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("unknown sort attribute `%s`", k.Attr), engine.ErrUnknownAttr)
		}
	}
	type sortItem struct {
		line Line
		keys []string
	}
	items := make([]sortItem, len(res.Lines))
	for i, line := range res.Lines {
		if i%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		items[i].line = line
		items[i].keys = make([]string, len(op.Keys))
		for j, k := range op.Keys {
			items[i].keys[j] = comp.sortKeyValue(corp, k, line.Kwic)
		}
	}
	slices.SortStableFunc(items, func(a, b sortItem) int {
		for j := range a.keys {
			if c := cmp.Compare(a.keys[j], b.keys[j]); c != 0 {
				return c
			}
		}
		return 0
	})
	ans := res.clone()
	for i, item := range items {
		ans.Lines[i] = item.line
	}
	return ans, nil
}

func (comp *computation) applySample(res *result, op SampleOp, prefix []string) *result {
	if op.Size >= len(res.Lines) {
		return res
	}
	rnd := opSeed(comp.primary.Name(), prefix)
	idxs := rnd.Perm(len(res.Lines))[:op.Size]
	sort.Ints(idxs)
	ans := res.clone()
	ans.Lines = make([]Line, len(idxs))
	for i, idx := range idxs {
		ans.Lines[i] = res.Lines[idx]
	}
	ans.FullRatio = float64(res.FullSize) / float64(op.Size)
	ans.Sampled = true
	ans.updateFullSize()
	return ans
}

func (comp *computation) applyShuffle(res *result, prefix []string) *result {
	rnd := opSeed(comp.primary.Name(), prefix)
	ans := res.clone()
	rnd.Shuffle(len(ans.Lines), func(i, j int) {
		ans.Lines[i], ans.Lines[j] = ans.Lines[j], ans.Lines[i]
	})
	return ans
}

func (comp *computation) applySwitch(res *result, op SwitchAlignedOp) (*result, error) {
	ans := res.clone()
	ans.ActiveCorpus = op.Corpus
	if op.Corpus == comp.primary.Name() {
		for i := range ans.Lines {
			ans.Lines[i].Kwic = ans.Lines[i].Main
		}
		return ans, nil
	}
	target, err := comp.corpus(op.Corpus)
	if err != nil {
		return nil, err
	}
	for i, line := range ans.Lines {
		rng, err := engine.AlignedRange(comp.primary, target, line.Main.Start)
		if err != nil {
			return nil, mapEngineError(err)
		}
		ans.Lines[i].Kwic = rng
	}
	return ans, nil
}

func (comp *computation) applyRemoveEmpty(res *result) (*result, error) {
	ans := res.clone()
	ans.Lines = make([]Line, 0, len(res.Lines))
	for _, line := range res.Lines {
		keep := true
		for _, al := range comp.aligned {
			rng, err := engine.AlignedRange(comp.primary, al, line.Main.Start)
			if err != nil {
				return nil, mapEngineError(err)
			}
			if rng.Len() == 0 {
				keep = false
				break
			}
		}
		if keep {
			ans.Lines = append(ans.Lines, line)
		}
	}
	ans.updateFullSize()
	return ans, nil
}

// apply evaluates a single operation. The `prefix` contains all the
// tokens up to and including the operation (it seeds random operations
// so they are reproducible).
func (comp *computation) apply(ctx context.Context, res *result, op Operation, prefix []string) (*result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res == nil {
		qop, ok := op.(QueryOp)
		if !ok {
			return nil, apperr.NewConcordanceSpecificationError("a chain must start with a query", nil)
		}
		return comp.applyQuery(qop)
	}
	switch tOp := op.(type) {
	case FilterOp:
		return comp.applyFilter(res, tOp)
	case SortOp:
		return comp.applySort(ctx, res, tOp)
	case SampleOp:
		return comp.applySample(res, tOp, prefix), nil
	case ShuffleOp:
		return comp.applyShuffle(res, prefix), nil
	case SwitchAlignedOp:
		return comp.applySwitch(res, tOp)
	case RemoveEmptyOp:
		return comp.applyRemoveEmpty(res)
	}
	return nil, apperr.NewUnknownConcordanceAction(op.Token())
}
