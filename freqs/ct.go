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

package freqs

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/engine"
	"concbench/worker"
	"context"
	"slices"
	"strings"
)

// CTArgs specifies a two-dimensional frequency distribution
type CTArgs struct {
	Crit1    string
	Crit2    string
	FLimit   int
	NormKind string
}

// CTCell is a cell of a contingency table. Ipm is related to the size
// of the text type given by structural attributes of both the criteria
// (or to the corpus size if there are none).
type CTCell struct {
	Word1   string   `json:"word1"`
	Word2   string   `json:"word2"`
	Abs     int      `json:"abs"`
	Norm    int64    `json:"norm"`
	Ipm     float64  `json:"ipm"`
	Pfilter []string `json:"pfilter"`
}

type CTResult struct {
	Attr1    string   `json:"attr1"`
	Attr2    string   `json:"attr2"`
	Values1  []string `json:"values1"`
	Values2  []string `json:"values2"`
	Data     []CTCell `json:"data"`
	ConcSize int      `json:"concsize"`
}

func structValueAt(corp engine.Corpus, structAttr string, pos int) (string, bool) {
	st, attr, _ := strings.Cut(structAttr, ".")
	occ, ok := corp.StructAt(st, pos)
	if !ok {
		return "", false
	}
	return occ.Attrs[attr], true
}

// jointNorms counts corpus positions per a pair of structural
// attribute values
func jointNorms(corp engine.Corpus, attr1, attr2 string) map[[2]string]int64 {
	ans := make(map[[2]string]int64)
	for pos := 0; pos < corp.Size(); pos++ {
		v1, ok1 := structValueAt(corp, attr1, pos)
		v2, ok2 := structValueAt(corp, attr2, pos)
		if ok1 && ok2 {
			ans[[2]string{v1, v2}]++
		}
	}
	return ans
}

func (s *Service) ctNorm(corp engine.Corpus, lev1, lev2 Level, kind string) (func(w1, w2 string) int64, error) {
	switch {
	case lev1.IsStructAttr() && lev2.IsStructAttr():
		joint := jointNorms(corp, lev1.Attr, lev2.Attr)
		return func(w1, w2 string) int64 { return joint[[2]string{w1, w2}] }, nil
	case lev1.IsStructAttr():
		norms, err := s.norms(corp, lev1.Attr, kind)
		if err != nil {
			return nil, err
		}
		return func(w1, w2 string) int64 { return norms[w1] }, nil
	case lev2.IsStructAttr():
		norms, err := s.norms(corp, lev2.Attr, kind)
		if err != nil {
			return nil, err
		}
		return func(w1, w2 string) int64 { return norms[w2] }, nil
	}
	size := int64(corp.Size())
	return func(w1, w2 string) int64 { return size }, nil
}

// CalcCT calculates a contingency table of two single-level criteria
func (s *Service) CalcCT(conc *concord.Concordance, args CTArgs) (CTResult, error) {
	corp, err := activeCorpus(conc)
	if err != nil {
		return CTResult{}, err
	}
	crit1, err := ParseCrit(args.Crit1, 1, corp)
	if err != nil {
		return CTResult{}, err
	}
	crit2, err := ParseCrit(args.Crit2, 1, corp)
	if err != nil {
		return CTResult{}, err
	}
	kind := args.NormKind
	if kind == "" {
		kind = NormTokens
	}
	lev1, lev2 := crit1.Levels[0], crit2.Levels[0]
	normOf, err := s.ctNorm(corp, lev1, lev2, kind)
	if err != nil {
		return CTResult{}, err
	}
	counters := countValues(corp, conc.Lines(), Crit{Levels: []Level{lev1, lev2}})
	ans := CTResult{
		Attr1:    lev1.Attr,
		Attr2:    lev2.Attr,
		Data:     make([]CTCell, 0, len(counters)),
		ConcSize: conc.Size(),
	}
	vals1 := make(map[string]bool)
	vals2 := make(map[string]bool)
	for _, c := range counters {
		if c.freq < args.FLimit {
			continue
		}
		w1, w2 := c.words[0], c.words[1]
		cell := CTCell{
			Word1:   w1,
			Word2:   w2,
			Abs:     c.freq,
			Norm:    normOf(w1, w2),
			Pfilter: []string{lev1.filter(w1, true), lev2.filter(w2, true)},
		}
		if cell.Norm > 0 {
			cell.Ipm = float64(cell.Abs) / float64(cell.Norm) * 1e6
		}
		ans.Data = append(ans.Data, cell)
		vals1[w1] = true
		vals2[w2] = true
	}
	slices.SortFunc(ans.Data, func(a, b CTCell) int {
		if c := strings.Compare(a.Word1, b.Word1); c != 0 {
			return c
		}
		return strings.Compare(a.Word2, b.Word2)
	})
	ans.Values1 = sortedKeys(vals1)
	ans.Values2 = sortedKeys(vals2)
	return ans, nil
}

func sortedKeys(m map[string]bool) []string {
	ans := make([]string, 0, len(m))
	for k := range m {
		ans = append(ans, k)
	}
	slices.Sort(ans)
	return ans
}

// FreqsCT calculates a contingency table as a background task
func (s *Service) FreqsCT(ctx context.Context, conc *concord.Concordance, args CTArgs) (CTResult, error) {
	if args.Crit1 == "" || args.Crit2 == "" {
		return CTResult{}, apperr.NewUserInputError("two criteria required")
	}
	fut := s.pool.Submit(worker.TaskCalculateFreqsCT, func(ctx context.Context) (any, error) {
		return s.CalcCT(conc, args)
	})
	ans, err := fut.Wait(ctx)
	if err != nil {
		return CTResult{}, err
	}
	return ans.(CTResult), nil
}
