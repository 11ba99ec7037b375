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

// Package wordlist provides listings of attribute values of
// (sub)corpora - word lists and keywords. Both are calculated
// out of frequency databases (see package freqdb).
package wordlist

import (
	"cmp"
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/engine"
	"concbench/formargs"
	"concbench/freqdb"
	"concbench/pipeline"
	"concbench/qpersist"
	"concbench/util"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/czcorpus/cnc-gokit/collections"
	"github.com/rs/zerolog/log"
)

const (
	SortFreq  = "f"
	SortValue = "a"
)

type Item struct {
	Str  string  `json:"str"`
	Freq int     `json:"freq"`
	ARF  float64 `json:"arf"`
}

type Result struct {
	Items    []Item `json:"data"`
	Total    int    `json:"total"`
	Page     int    `json:"wlpage"`
	LastPage int    `json:"lastpage"`
}

// valueFilter decides which values of an attribute are listed
type valueFilter struct {
	pattern   *regexp.Regexp
	nonwords  *regexp.Regexp
	whitelist *collections.Set[string]
	blacklist *collections.Set[string]
	minFreq   int
	maxFreq   int
}

func (vf *valueFilter) accepts(value string, freq int) bool {
	if freq < vf.minFreq || (vf.maxFreq > 0 && freq > vf.maxFreq) {
		return false
	}
	if vf.pattern != nil && !vf.pattern.MatchString(value) {
		return false
	}
	if vf.nonwords != nil && vf.nonwords.MatchString(value) {
		return false
	}
	if vf.whitelist != nil && !vf.whitelist.Contains(value) {
		return false
	}
	if vf.blacklist != nil && vf.blacklist.Contains(value) {
		return false
	}
	return true
}

func compileFullMatch(expr, name string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	ans, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError(fmt.Sprintf("invalid %s `%s`", name, expr), err)
	}
	return ans, nil
}

func wordSet(words []string) *collections.Set[string] {
	if len(words) == 0 {
		return nil
	}
	ans := collections.NewSet[string]()
	for _, w := range words {
		ans.Add(w)
	}
	return ans
}

func newValueFilter(
	corp engine.Corpus,
	pattern string,
	includeNonwords bool,
	minFreq, maxFreq int,
	whitelist, blacklist []string,
) (*valueFilter, error) {
	ans := &valueFilter{
		whitelist: wordSet(whitelist),
		blacklist: wordSet(blacklist),
		minFreq:   max(minFreq, 1),
		maxFreq:   maxFreq,
	}
	var err error
	if ans.pattern, err = compileFullMatch(pattern, "pattern"); err != nil {
		return nil, err
	}
	if !includeNonwords {
		ans.nonwords, err = compileFullMatch(corp.NonWordsRegexp(), "non-words expression")
		if err != nil {
			return nil, apperr.NewConcordanceSpecificationError(err.Error(), err)
		}
	}
	return ans, nil
}

type Service struct {
	conf    *Conf
	corpora engine.Provider
	freqDB  *freqdb.Store
	records pipeline.RecordStore
	history pipeline.HistoryWriter
}

func (s *Service) Conf() *Conf {
	return s.conf
}

func (s *Service) AnonymousUserID() int {
	return s.records.AnonymousUserID()
}

func (s *Service) corpus(name, attr string) (engine.Corpus, error) {
	corp, err := s.corpora.Corpus(name)
	if err != nil {
		return nil, apperr.NewConcordanceSpecificationError(err.Error(), err)
	}
	if !corp.HasPosAttr(attr) {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("unknown attribute `%s` in %s", attr, name), engine.ErrUnknownAttr)
	}
	return corp, nil
}

// Wordlist lists values of an attribute matching the form
func (s *Service) Wordlist(ctx context.Context, fa *formargs.WlistFormArgs, page, pageSize int) (Result, error) {
	if err := fa.Validate(); err != nil {
		return Result{}, err
	}
	corp, err := s.corpus(fa.Corpname, fa.WLAttr)
	if err != nil {
		return Result{}, err
	}
	filter, err := newValueFilter(
		corp, fa.WLPattern, fa.IncludeNonwords, fa.WLMinFreq, fa.WLMaxFreq, fa.PFilterWords, fa.NFilterWords)
	if err != nil {
		return Result{}, err
	}
	db, err := s.freqDB.GetOrBuild(ctx, fa.Corpname, fa.UseSubcorp, fa.WLAttr)
	if err != nil {
		return Result{}, err
	}
	items := make([]Item, 0, 100)
	for value, entry := range db.Items {
		if filter.accepts(value, entry.Freq) {
			items = append(items, Item{Str: value, Freq: entry.Freq, ARF: entry.ARF})
		}
	}
	if fa.WLSort == SortValue {
		slices.SortFunc(items, func(a, b Item) int {
			return strings.Compare(a.Str, b.Str)
		})

	} else {
		slices.SortFunc(items, func(a, b Item) int {
			if c := cmp.Compare(b.Freq, a.Freq); c != 0 {
				return c
			}
			return strings.Compare(a.Str, b.Str)
		})
	}
	if len(items) > s.conf.MaxItems {
		items = items[:s.conf.MaxItems]
	}
	from, to, lastPage := util.Paginate(len(items), page, pageSize)
	return Result{
		Items:    items[from:to],
		Total:    len(items),
		Page:     max(page, 1),
		LastPage: lastPage,
	}, nil
}

func (s *Service) storeQuery(
	ctx context.Context,
	userID int,
	corpname, subcorpus string,
	form formargs.FormArgs,
	supertype cncdb.QuerySupertype,
) (string, error) {
	rec := &qpersist.Record{
		Corpora:    []string{corpname},
		UseSubcorp: subcorpus,
	}
	rec.SetForm(form)
	id, err := s.records.Store(ctx, userID, rec, nil)
	if err != nil {
		return "", err
	}
	if s.history != nil && s.records.IsRegistered(userID) {
		if err := s.history.Store(userID, corpname, id, supertype); err != nil {
			log.Error().
				Err(err).
				Int("userId", userID).
				Str("queryId", id).
				Msg("failed to store query history item")
		}
	}
	return id, nil
}

// SubmitWordlist validates a form, prepares required data and stores
// the form as an operation record. The ID of the record is returned.
func (s *Service) SubmitWordlist(ctx context.Context, userID int, fa *formargs.WlistFormArgs) (string, error) {
	fa.Kind = formargs.FormTypeWlist
	if _, err := s.Wordlist(ctx, fa, 1, 1); err != nil {
		return "", err
	}
	return s.storeQuery(ctx, userID, fa.Corpname, fa.UseSubcorp, fa, cncdb.QuerySupertypeWlist)
}

func (s *Service) openForm(queryID string, kind formargs.FormType) (formargs.FormArgs, error) {
	rec, err := s.records.Open(queryID)
	if err != nil {
		return nil, err
	}
	if rec.FormType() != kind {
		return nil, apperr.NewUserInputError("record %s is not a %s query", queryID, kind)
	}
	return rec.FormArgs()
}

func (s *Service) OpenWordlist(queryID string) (*formargs.WlistFormArgs, error) {
	form, err := s.openForm(queryID, formargs.FormTypeWlist)
	if err != nil {
		return nil, err
	}
	return form.(*formargs.WlistFormArgs), nil
}

func NewService(
	conf *Conf,
	corpora engine.Provider,
	freqDB *freqdb.Store,
	records pipeline.RecordStore,
	history pipeline.HistoryWriter,
) *Service {
	return &Service{
		conf:    conf,
		corpora: corpora,
		freqDB:  freqDB,
		records: records,
		history: history,
	}
}
