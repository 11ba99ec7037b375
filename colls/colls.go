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

// Package colls calculates collocations of concordance KWICs.
// Background frequencies are taken from frequency databases
// (see package freqdb) which are built on demand.
package colls

import (
	"cmp"
	"concbench/apperr"
	"concbench/concord"
	"concbench/engine"
	"concbench/fcache"
	"concbench/freqdb"
	"concbench/texttypes"
	"concbench/util"
	"concbench/worker"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// SortFreq sorts collocates by their co-occurrence frequency
	SortFreq = "f"
)

type Args struct {
	Cattr    string
	Cfromw   int
	Ctow     int
	Cminfreq int
	Cminbgr  int
	Csortfn  string
	Cbgrfns  []string
	Page     int
	PerPage  int
}

func (args Args) validate(corp engine.Corpus) error {
	if !corp.HasPosAttr(args.Cattr) {
		return apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("unknown attribute `%s`", args.Cattr), engine.ErrUnknownAttr)
	}
	if args.Cfromw > args.Ctow {
		return apperr.NewUserInputError("invalid collocation window %d..%d", args.Cfromw, args.Ctow)
	}
	if len(args.Cbgrfns) == 0 {
		return apperr.NewUserInputError("no collocation function specified")
	}
	for _, fn := range args.Cbgrfns {
		if _, ok := scoreFuncs[fn]; !ok {
			return apperr.NewUserInputError("unknown collocation function `%s`", fn)
		}
	}
	if args.Csortfn != SortFreq && !slices.Contains(args.Cbgrfns, args.Csortfn) {
		return apperr.NewUserInputError("sort function `%s` must be one of the calculated functions", args.Csortfn)
	}
	if args.Page < 1 || args.PerPage < 1 {
		return apperr.NewUserInputError("invalid page %d (%d items per page)", args.Page, args.PerPage)
	}
	return nil
}

type HeadItem struct {
	N string `json:"n"`
	S string `json:"s"`
}

type Item struct {
	Str      string    `json:"str"`
	Freq     int       `json:"freq"`
	CorpFreq int       `json:"corpFreq"`
	Stats    []float64 `json:"Stats"`
	Pfilter  string    `json:"pfilter"`
	Nfilter  string    `json:"nfilter"`
}

// table is a complete sorted result as stored in the cache
type table struct {
	Head  []HeadItem `json:"head"`
	Items []Item     `json:"items"`
}

type Result struct {
	Head     []HeadItem `json:"Head"`
	Items    []Item     `json:"Items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	LastPage int        `json:"lastpage"`

	// Processing is set in case a required frequency database
	// is being built (TaskID then refers to the task)
	Processing bool   `json:"processing,omitempty"`
	TaskID     string `json:"taskId,omitempty"`
}

type Service struct {
	conf   *Conf
	files  *fcache.Cache
	freqDB *freqdb.Store
	pool   *worker.Pool
}

func (s *Service) Conf() *Conf {
	return s.conf
}

func cacheKey(conc *concord.Concordance, args Args) string {
	cargs := conc.Args()
	return util.ContentHash(
		cargs.Corpora, cargs.Subcorpus, cargs.Q, conc.ActiveCorpus(),
		args.Cattr, args.Csortfn, args.Cbgrfns, args.Cfromw, args.Ctow,
		args.Cminbgr, args.Cminfreq,
	)
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (s *Service) filter(positive bool, args Args, value string) string {
	return concord.FilterOp{
		Positive: positive,
		From:     windowPos(args.Cfromw),
		To:       windowPos(args.Ctow),
		Rank:     concord.RankFirst,
		CQL:      fmt.Sprintf(`[%s="%s"]`, args.Cattr, texttypes.EscapeValue(value)),
	}.Token()
}

// windowPos converts a window offset to a context position. Negative
// offsets refer to KWIC start, positive ones to its end.
func windowPos(offset int) engine.CtxPos {
	return engine.CtxPos{Offset: offset, FromEnd: offset > 0}
}

// countCollocates counts values of the collocation attribute within
// the window around each KWIC (the KWIC itself excluded)
func countCollocates(corp engine.Corpus, lines []concord.Line, args Args) map[string]int {
	ans := make(map[string]int)
	from, to := windowPos(args.Cfromw), windowPos(args.Ctow)
	for _, line := range lines {
		if line.Kwic.Len() == 0 {
			continue
		}
		start, end := max(from.Resolve(line.Kwic), 0), min(to.Resolve(line.Kwic), corp.Size()-1)
		for pos := start; pos <= end; pos++ {
			if line.Kwic.Contains(pos) {
				continue
			}
			ans[corp.Value(args.Cattr, pos)]++
		}
	}
	return ans
}

func (s *Service) calc(conc *concord.Concordance, db *freqdb.DB, args Args) (table, error) {
	corp, err := conc.AlignedCorpus(conc.ActiveCorpus())
	if err != nil {
		return table{}, err
	}
	ans := table{
		Head:  make([]HeadItem, 0, len(args.Cbgrfns)+1),
		Items: make([]Item, 0, 100),
	}
	ans.Head = append(ans.Head, HeadItem{N: "Freq", S: SortFreq})
	for _, fn := range args.Cbgrfns {
		ans.Head = append(ans.Head, HeadItem{N: scoreFuncs[fn].name, S: fn})
	}
	fx := float64(conc.Size())
	n := float64(db.Size)
	for value, fxy := range countCollocates(corp, conc.Lines(), args) {
		fy := db.Items[value].Freq
		if fy == 0 || fy < args.Cminfreq || fxy < args.Cminbgr {
			continue
		}
		item := Item{
			Str:      value,
			Freq:     fxy,
			CorpFreq: fy,
			Stats:    make([]float64, len(args.Cbgrfns)),
			Pfilter:  s.filter(true, args, value),
			Nfilter:  s.filter(false, args, value),
		}
		for i, fn := range args.Cbgrfns {
			item.Stats[i] = finiteOrZero(scoreFuncs[fn].fn(float64(fxy), fx, float64(fy), n))
		}
		ans.Items = append(ans.Items, item)
	}
	sortIdx := slices.Index(args.Cbgrfns, args.Csortfn)
	slices.SortFunc(ans.Items, func(a, b Item) int {
		var c int
		if sortIdx >= 0 {
			c = cmp.Compare(b.Stats[sortIdx], a.Stats[sortIdx])

		} else {
			c = cmp.Compare(b.Freq, a.Freq)
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Str, b.Str)
	})
	return ans, nil
}

func paginate(tab table, page, perPage int) Result {
	from, to, lastPage := util.Paginate(len(tab.Items), page, perPage)
	return Result{
		Head:     tab.Head,
		Items:    tab.Items[from:to],
		Total:    len(tab.Items),
		Page:     page,
		LastPage: lastPage,
	}
}

// Colls returns a page of collocates. In case a frequency database
// for the collocation attribute is missing, its build is started and
// a result with Processing set is returned along with
// a MissingSubCorpFreqFile error.
func (s *Service) Colls(ctx context.Context, conc *concord.Concordance, args Args) (Result, error) {
	corp, err := conc.AlignedCorpus(conc.ActiveCorpus())
	if err != nil {
		return Result{}, err
	}
	if err := args.validate(corp); err != nil {
		return Result{}, err
	}
	key := cacheKey(conc, args)
	var tab table
	if err := s.files.ReadJSON(key, &tab); err == nil {
		return paginate(tab, args.Page, args.PerPage), nil

	} else if !errors.Is(err, fcache.ErrCacheMiss) {
		log.Error().Err(err).Str("key", key).Msg("failed to read cached collocations, recalculating")
	}
	subc := conc.Args().Subcorpus
	if corp.Name() != conc.Corpus().Name() {
		subc = ""
	}
	db, err := s.freqDB.Get(corp.Name(), subc, args.Cattr)
	if errors.Is(err, apperr.MissingSubCorpFreqFile) {
		fut := s.freqDB.BuildAsync(corp.Name(), subc, args.Cattr)
		return Result{Processing: true, TaskID: fut.ID()}, err

	} else if err != nil {
		return Result{}, err
	}
	fut := s.pool.Submit(worker.TaskCalculateColls, func(ctx context.Context) (any, error) {
		t0 := time.Now()
		ans, err := s.calc(conc, db, args)
		if err != nil {
			return nil, err
		}
		if err := s.files.WriteJSON(key, ans); err != nil {
			log.Error().Err(err).Str("key", key).Msg("failed to store collocations")
		}
		log.Debug().
			Str("corpus", corp.Name()).
			Int("numItems", len(ans.Items)).
			Dur("procTime", time.Since(t0)).
			Msg("calculated collocations")
		return ans, nil
	})
	ans, err := fut.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	return paginate(ans.(table), args.Page, args.PerPage), nil
}

// SweepCache removes cached results not used for longer
// than the configured TTL
func (s *Service) SweepCache() (int, error) {
	return s.files.Sweep(s.conf.CacheTTLDur())
}

func NewService(conf *Conf, freqDB *freqdb.Store, pool *worker.Pool) *Service {
	return &Service{
		conf:   conf,
		files:  fcache.New(conf.CacheDir, ".colls.json"),
		freqDB: freqDB,
		pool:   pool,
	}
}
