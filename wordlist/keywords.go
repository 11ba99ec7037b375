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

package wordlist

import (
	"cmp"
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/util"
	"context"
	"math"
	"slices"
	"strings"
)

const (
	ScoreSimple = "simple"
	ScoreLogL   = "logL"
)

type KeywordItem struct {
	Str     string  `json:"str"`
	Score   float64 `json:"score"`
	Freq    int     `json:"freq"`
	RefFreq int     `json:"ref_freq"`
	IPM     float64 `json:"ipm"`
	RefIPM  float64 `json:"ref_ipm"`
}

type KeywordsResult struct {
	Items     []KeywordItem `json:"data"`
	Total     int           `json:"total"`
	Page      int           `json:"kwpage"`
	LastPage  int           `json:"lastpage"`
	ScoreType string        `json:"score_type"`
}

// simpleMathsScore compares relative frequencies (per million) of a focus
// and a reference corpus, `n` is a smoothing constant
func simpleMathsScore(ipm, refIPM, n float64) float64 {
	return (ipm + n) / (refIPM + n)
}

// logLikelihoodScore is Dunning's log-likelihood of a value with frequencies
// `a` and `b` in corpora of sizes `c` and `d`
func logLikelihoodScore(a, b, c, d float64) float64 {
	e1 := c * (a + b) / (c + d)
	e2 := d * (a + b) / (c + d)
	var ans float64
	if a > 0 {
		ans += a * math.Log(a/e1)
	}
	if b > 0 {
		ans += b * math.Log(b/e2)
	}
	return 2 * ans
}

// Keywords lists values of an attribute typical for a focus (sub)corpus
// when compared with a reference one. With the log-likelihood score only
// values relatively more frequent in the focus corpus are listed.
func (s *Service) Keywords(ctx context.Context, fa *formargs.KwordsFormArgs, page, pageSize int) (KeywordsResult, error) {
	if err := fa.Validate(); err != nil {
		return KeywordsResult{}, err
	}
	if fa.Corpname == fa.RefCorpname && fa.UseSubcorp == fa.RefUsesubcorp {
		return KeywordsResult{}, apperr.NewUserInputError("focus and reference corpora must differ")
	}
	corp, err := s.corpus(fa.Corpname, fa.WLAttr)
	if err != nil {
		return KeywordsResult{}, err
	}
	if _, err := s.corpus(fa.RefCorpname, fa.WLAttr); err != nil {
		return KeywordsResult{}, err
	}
	filter, err := newValueFilter(corp, fa.WLPattern, fa.IncludeNonwords, fa.WLMinFreq, fa.WLMaxFreq, nil, nil)
	if err != nil {
		return KeywordsResult{}, err
	}
	focus, err := s.freqDB.GetOrBuild(ctx, fa.Corpname, fa.UseSubcorp, fa.WLAttr)
	if err != nil {
		return KeywordsResult{}, err
	}
	ref, err := s.freqDB.GetOrBuild(ctx, fa.RefCorpname, fa.RefUsesubcorp, fa.WLAttr)
	if err != nil {
		return KeywordsResult{}, err
	}
	scoreType := fa.ScoreType
	if scoreType == "" {
		scoreType = ScoreSimple
	}
	smoothingN := fa.SmoothingN
	if smoothingN <= 0 {
		smoothingN = s.conf.DefaultSmoothingN
	}
	focusSize, refSize := float64(max(focus.Size, 1)), float64(max(ref.Size, 1))
	items := make([]KeywordItem, 0, 100)
	for value, entry := range focus.Items {
		if !filter.accepts(value, entry.Freq) {
			continue
		}
		refFreq := ref.Items[value].Freq
		item := KeywordItem{
			Str:     value,
			Freq:    entry.Freq,
			RefFreq: refFreq,
			IPM:     float64(entry.Freq) / focusSize * 1e6,
			RefIPM:  float64(refFreq) / refSize * 1e6,
		}
		if scoreType == ScoreLogL {
			if item.IPM <= item.RefIPM {
				continue
			}
			item.Score = logLikelihoodScore(float64(entry.Freq), float64(refFreq), focusSize, refSize)

		} else {
			item.Score = simpleMathsScore(item.IPM, item.RefIPM, smoothingN)
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b KeywordItem) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return strings.Compare(a.Str, b.Str)
	})
	if len(items) > s.conf.MaxItems {
		items = items[:s.conf.MaxItems]
	}
	from, to, lastPage := util.Paginate(len(items), page, pageSize)
	return KeywordsResult{
		Items:     items[from:to],
		Total:     len(items),
		Page:      max(page, 1),
		LastPage:  lastPage,
		ScoreType: scoreType,
	}, nil
}

// SubmitKeywords validates a form, prepares required data and stores
// the form as an operation record. The ID of the record is returned.
func (s *Service) SubmitKeywords(ctx context.Context, userID int, fa *formargs.KwordsFormArgs) (string, error) {
	fa.Kind = formargs.FormTypeKwords
	if _, err := s.Keywords(ctx, fa, 1, 1); err != nil {
		return "", err
	}
	return s.storeQuery(ctx, userID, fa.Corpname, fa.UseSubcorp, fa, cncdb.QuerySupertypeKwords)
}

func (s *Service) OpenKeywords(queryID string) (*formargs.KwordsFormArgs, error) {
	form, err := s.openForm(queryID, formargs.FormTypeKwords)
	if err != nil {
		return nil, err
	}
	return form.(*formargs.KwordsFormArgs), nil
}
