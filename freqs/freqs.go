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

// Package freqs calculates frequency distributions of concordances.
package freqs

import (
	"cmp"
	"concbench/apperr"
	"concbench/concord"
	"concbench/engine"
	"concbench/util"
	"concbench/worker"
	"context"
	"slices"
	"strconv"
	"strings"
)

const (
	SortFreq = "freq"
	SortRel  = "rel"
)

// Args specifies a frequency calculation
type Args struct {
	Fcrit []string

	// FLimit is a minimum frequency of an item
	FLimit int

	// FreqSort is either SortFreq, SortRel or an index of a level
	// (sorting by its values)
	FreqSort string

	// NormKind applies to criteria with structural attributes
	NormKind string

	// Page and PageSize apply only to single-criterion requests
	Page     int
	PageSize int
}

// Item is a row of a frequency block. Pfilter contains concordance
// tokens to be appended to the concordance's `q` to obtain the lines
// of the item, Nfilter (if set) the complementary ones.
type Item struct {
	Word    []string `json:"Word"`
	Freq    int      `json:"freq"`
	Norm    int64    `json:"norm"`
	Rel     float64  `json:"rel"`
	Pfilter []string `json:"pfilter"`
	Nfilter []string `json:"nfilter,omitempty"`
}

// Block is a frequency distribution of a single criterion. An empty
// block has NoResult set.
type Block struct {
	Fcrit     string   `json:"fcrit"`
	Head      []string `json:"Head"`
	Items     []Item   `json:"Items"`
	Total     int      `json:"total"`
	TotalFreq int      `json:"totalFreq"`
	RelMode   int      `json:"relMode"`
	NoResult  bool     `json:"noResult"`
}

type Result struct {
	Blocks    []Block `json:"Blocks"`
	ConcSize  int     `json:"concsize"`
	Paginated bool    `json:"paginated"`
	Page      int     `json:"page"`
	LastPage  int     `json:"lastpage"`
}

type Service struct {
	conf       *Conf
	pool       *worker.Pool
	normsStore NormsStore
}

func (s *Service) Conf() *Conf {
	return s.conf
}

func activeCorpus(conc *concord.Concordance) (engine.Corpus, error) {
	return conc.AlignedCorpus(conc.ActiveCorpus())
}

type counter struct {
	key   string
	words []string
	freq  int
}

// countValues counts values of criterion levels. Lines the criterion
// cannot be applied to are skipped.
func countValues(corp engine.Corpus, lines []concord.Line, crit Crit) []*counter {
	idx := make(map[string]*counter)
	ans := make([]*counter, 0, 100)
	words := make([]string, len(crit.Levels))
	for _, line := range lines {
		ok := true
		for i, lev := range crit.Levels {
			if words[i], ok = lev.value(corp, line.Kwic); !ok {
				break
			}
		}
		if !ok {
			continue
		}
		key := strings.Join(words, "\x00")
		c, found := idx[key]
		if !found {
			c = &counter{key: key, words: slices.Clone(words)}
			idx[key] = c
			ans = append(ans, c)
		}
		c.freq++
	}
	return ans
}

func sortItems(items []Item, freqSort string) error {
	switch freqSort {
	case SortFreq, "":
		slices.SortStableFunc(items, func(a, b Item) int {
			if a.Freq != b.Freq {
				return b.Freq - a.Freq
			}
			return slices.Compare(a.Word, b.Word)
		})
	case SortRel:
		slices.SortStableFunc(items, func(a, b Item) int {
			if c := cmp.Compare(b.Rel, a.Rel); c != 0 {
				return c
			}
			return slices.Compare(a.Word, b.Word)
		})
	default:
		lev, err := strconv.Atoi(freqSort)
		if err != nil || len(items) > 0 && (lev < 0 || lev >= len(items[0].Word)) {
			return apperr.NewUserInputError("invalid freq_sort `%s`", freqSort)
		}
		slices.SortStableFunc(items, func(a, b Item) int {
			return strings.Compare(a.Word[lev], b.Word[lev])
		})
	}
	return nil
}

// calcBlock produces a frequency block. In relative mode 1 (positional
// attributes only), `rel` is a percentage of the block's total frequency.
// Otherwise `rel` is an i.p.m. relative to the size of the text type
// given by the first structural level.
func (s *Service) calcBlock(conc *concord.Concordance, crit Crit, args Args) (Block, error) {
	corp, err := activeCorpus(conc)
	if err != nil {
		return Block{}, err
	}
	lines := conc.Lines()
	counters := countValues(corp, lines, crit)
	ans := Block{
		Fcrit: crit.String(),
		Head:  make([]string, len(crit.Levels)),
		Items: make([]Item, 0, len(counters)),
	}
	for i, lev := range crit.Levels {
		ans.Head[i] = lev.Attr
	}
	for _, c := range counters {
		ans.TotalFreq += c.freq
	}
	var norms map[string]int64
	structLev := crit.structLevel()
	if structLev >= 0 {
		kind := args.NormKind
		if kind == "" {
			kind = NormTokens
		}
		norms, err = s.norms(corp, crit.Levels[structLev].Attr, kind)
		if err != nil {
			return Block{}, err
		}

	} else {
		ans.RelMode = 1
	}
	for _, c := range counters {
		if c.freq < args.FLimit {
			continue
		}
		item := Item{Word: c.words, Freq: c.freq}
		if ans.RelMode == 1 {
			item.Norm = int64(ans.TotalFreq)
			item.Rel = 100 * float64(c.freq) / float64(ans.TotalFreq)

		} else {
			item.Norm = norms[c.words[structLev]]
			if item.Norm > 0 {
				item.Rel = float64(c.freq) / float64(item.Norm) * 1e6
			}
		}
		item.Pfilter = make([]string, len(crit.Levels))
		for i, lev := range crit.Levels {
			item.Pfilter[i] = lev.filter(c.words[i], true)
		}
		if len(crit.Levels) == 1 && c.freq < len(lines) {
			item.Nfilter = []string{crit.Levels[0].filter(c.words[0], false)}
		}
		ans.Items = append(ans.Items, item)
	}
	if err := sortItems(ans.Items, args.FreqSort); err != nil {
		return Block{}, err
	}
	ans.Total = len(ans.Items)
	ans.NoResult = ans.Total == 0
	return ans, nil
}

// Calc calculates frequency blocks of a finished concordance
func (s *Service) Calc(conc *concord.Concordance, args Args) (Result, error) {
	if len(args.Fcrit) == 0 {
		return Result{}, apperr.NewUserInputError("missing frequency criterion")
	}
	corp, err := activeCorpus(conc)
	if err != nil {
		return Result{}, err
	}
	crits := make([]Crit, len(args.Fcrit))
	for i, src := range args.Fcrit {
		crits[i], err = ParseCrit(src, s.conf.MaxLevels, corp)
		if err != nil {
			return Result{}, err
		}
	}
	ans := Result{
		Blocks:   make([]Block, 0, len(crits)),
		ConcSize: conc.Size(),
	}
	for _, crit := range crits {
		block, err := s.calcBlock(conc, crit, args)
		if err != nil {
			return Result{}, err
		}
		ans.Blocks = append(ans.Blocks, block)
	}
	if len(ans.Blocks) == 1 {
		pageSize := args.PageSize
		if pageSize <= 0 {
			pageSize = s.conf.DefaultPageSize
		}
		block := &ans.Blocks[0]
		from, to, lastPage := util.Paginate(block.Total, args.Page, pageSize)
		block.Items = block.Items[from:to]
		ans.Paginated = true
		ans.Page = max(args.Page, 1)
		ans.LastPage = lastPage
	}
	return ans, nil
}

// Freqs calculates frequencies as a background task
func (s *Service) Freqs(ctx context.Context, conc *concord.Concordance, args Args) (Result, error) {
	fut := s.pool.Submit(worker.TaskCalculateFreqs, func(ctx context.Context) (any, error) {
		return s.Calc(conc, args)
	})
	ans, err := fut.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	return ans.(Result), nil
}

func NewService(conf *Conf, pool *worker.Pool, normsStore NormsStore) *Service {
	return &Service{
		conf:       conf,
		pool:       pool,
		normsStore: normsStore,
	}
}
