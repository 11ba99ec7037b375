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

package formargs

import (
	"concbench/apperr"
	"fmt"
	"sort"
	"strings"
)

// SubsetComplementsConstraint is the "almost never" constraint of
// a paradigmatic query: values should (almost) not appear in
// the listed concordances.
type SubsetComplementsConstraint struct {
	ConcIDs             []string `json:"conc_ids"`
	MaxNonMatchingRatio float64  `json:"max_non_matching_ratio"`
}

// SupersetConstraint is the "almost always" constraint of a paradigmatic
// query: values should appear (almost) always in the concordance
type SupersetConstraint struct {
	ConcID              string  `json:"conc_id"`
	MaxNonMatchingRatio float64 `json:"max_non_matching_ratio"`
}

type PqueryFormArgs struct {
	Common
	Corpname   string   `json:"corpname"`
	UseSubcorp string   `json:"usesubcorp"`
	ConcIDs    []string `json:"conc_ids"`
	Attr       string   `json:"attr"`

	// Position is a position relative to KWIC (e.g. `0`, `-1`, `2`)
	Position string `json:"position"`
	MinFreq  int    `json:"min_freq"`

	ConcSubsetComplements *SubsetComplementsConstraint `json:"conc_subset_complements"`
	ConcSuperset          *SupersetConstraint          `json:"conc_superset"`
}

func (fa *PqueryFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *PqueryFormArgs) Validate() error {
	if len(fa.ConcIDs) < 2 {
		return apperr.NewConcordanceQueryParamsError("at least two concordances are required", nil)
	}
	if fa.Attr == "" {
		return apperr.NewConcordanceQueryParamsError("missing attribute", nil)
	}
	if fa.MinFreq < 1 {
		return apperr.NewConcordanceQueryParamsError("min. frequency must be at least 1", nil)
	}
	if !filterPosRegexp.MatchString(fa.Position) {
		return apperr.NewConcordanceQueryParamsError("invalid position `"+fa.Position+"`", nil)
	}
	if fa.ConcSubsetComplements != nil {
		r := fa.ConcSubsetComplements.MaxNonMatchingRatio
		if r < 0 || r > 100 || len(fa.ConcSubsetComplements.ConcIDs) == 0 {
			return apperr.NewConcordanceQueryParamsError("invalid subset complements constraint", nil)
		}
	}
	if fa.ConcSuperset != nil {
		r := fa.ConcSuperset.MaxNonMatchingRatio
		if r < 0 || r > 100 || fa.ConcSuperset.ConcID == "" {
			return apperr.NewConcordanceQueryParamsError("invalid superset constraint", nil)
		}
	}
	return nil
}

// CacheKeyParts returns values identifying the result of the query
// (order of concordances does not matter)
func (fa *PqueryFormArgs) CacheKeyParts() []any {
	concIDs := make([]string, len(fa.ConcIDs))
	copy(concIDs, fa.ConcIDs)
	sort.Strings(concIDs)
	var compl, sup string
	if fa.ConcSubsetComplements != nil {
		ids := make([]string, len(fa.ConcSubsetComplements.ConcIDs))
		copy(ids, fa.ConcSubsetComplements.ConcIDs)
		sort.Strings(ids)
		compl = fmt.Sprintf("%s/%v", strings.Join(ids, ","), fa.ConcSubsetComplements.MaxNonMatchingRatio)
	}
	if fa.ConcSuperset != nil {
		sup = fmt.Sprintf("%s/%v", fa.ConcSuperset.ConcID, fa.ConcSuperset.MaxNonMatchingRatio)
	}
	return []any{fa.Corpname, fa.UseSubcorp, fa.Attr, fa.Position, fa.MinFreq, concIDs, compl, sup}
}

// -------------------------------

type WlistFormArgs struct {
	Common
	Corpname        string   `json:"corpname"`
	UseSubcorp      string   `json:"usesubcorp"`
	WLAttr          string   `json:"wlattr"`
	WLPattern       string   `json:"wlpat"`
	WLMinFreq       int      `json:"wlminfreq"`
	WLMaxFreq       int      `json:"wlmaxfreq"`
	PFilterWords    []string `json:"pfilter_words"`
	NFilterWords    []string `json:"nfilter_words"`
	IncludeNonwords bool     `json:"include_nonwords"`

	// WLSort is either `f` (frequency) or `a` (alphabetical)
	WLSort string `json:"wlsort"`
}

func (fa *WlistFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *WlistFormArgs) Validate() error {
	if fa.WLAttr == "" {
		return apperr.NewConcordanceQueryParamsError("missing attribute", nil)
	}
	if fa.WLMaxFreq > 0 && fa.WLMaxFreq < fa.WLMinFreq {
		return apperr.NewConcordanceQueryParamsError("max. frequency is lower than min. frequency", nil)
	}
	if fa.WLSort != "" && fa.WLSort != "f" && fa.WLSort != "a" {
		return apperr.NewConcordanceQueryParamsError("invalid sort `"+fa.WLSort+"`", nil)
	}
	return nil
}

// -------------------------------

type KwordsFormArgs struct {
	Common
	Corpname        string `json:"corpname"`
	UseSubcorp      string `json:"usesubcorp"`
	RefCorpname     string `json:"ref_corpname"`
	RefUsesubcorp   string `json:"ref_usesubcorp"`
	WLAttr          string `json:"wlattr"`
	WLPattern       string `json:"wlpat"`
	WLMinFreq       int    `json:"wlminfreq"`
	WLMaxFreq       int    `json:"wlmaxfreq"`
	IncludeNonwords bool   `json:"include_nonwords"`

	// ScoreType is either `simple` (simple maths) or `logL`
	ScoreType string `json:"score_type"`

	// SmoothingN is the `N` constant of the simple maths score
	SmoothingN float64 `json:"smoothing_n"`
}

func (fa *KwordsFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *KwordsFormArgs) Validate() error {
	if fa.WLAttr == "" || fa.RefCorpname == "" {
		return apperr.NewConcordanceQueryParamsError("missing attribute or reference corpus", nil)
	}
	if fa.ScoreType != "" && fa.ScoreType != "simple" && fa.ScoreType != "logL" {
		return apperr.NewConcordanceQueryParamsError("invalid score type `"+fa.ScoreType+"`", nil)
	}
	return nil
}
