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
	"regexp"
)

const (
	dfltSampleSize = 1000
	dfltSortPos    = 3

	// MaxSortLevels is the maximum number of levels of a multi-level sort
	MaxSortLevels = 4
)

var (
	filterPosRegexp = regexp.MustCompile(`^-?\d+[<>]?$`)
	sortCtxRegexp   = regexp.MustCompile(`^-?\d+[<>]0(~-?\d+[<>]0)?$`)
)

// QueryFormArgs represents the first query of a concordance chain.
// Most of the values are stored per corpus (the first one is the primary
// corpus, the rest are aligned corpora).
type QueryFormArgs struct {
	Common
	CurrQueries            map[string]string `json:"curr_queries"`
	CurrQueryTypes         map[string]string `json:"curr_query_types"`
	CurrQmcaseValues       map[string]bool   `json:"curr_qmcase_values"`
	CurrDefaultAttrValues  map[string]string `json:"curr_default_attr_values"`
	CurrLposValues         map[string]string `json:"curr_lpos_values"`
	CurrPcqPosNegValues    map[string]string `json:"curr_pcq_pos_neg_values"`
	CurrIncludeEmptyValues map[string]bool   `json:"curr_include_empty_values"`

	// SelectedTextTypes maps `struct.attr` to selected values
	SelectedTextTypes map[string][]string `json:"selected_text_types"`

	// BibMapping maps bibliography IDs to their labels
	BibMapping     map[string]string `json:"bib_mapping"`
	NoQueryHistory bool              `json:"no_query_history"`
	Asnc           bool              `json:"asnc"`

	// Context filters generating automatic filter operations
	FcLemwordType  string   `json:"fc_lemword_type"`
	FcLemwordWsize [2]int   `json:"fc_lemword_wsize"`
	FcLemword      string   `json:"fc_lemword"`
	FcPosType      string   `json:"fc_pos_type"`
	FcPosWsize     [2]int   `json:"fc_pos_wsize"`
	FcPos          []string `json:"fc_pos"`
}

func (fa *QueryFormArgs) initCorpora(corpora []string) {
	if fa.CurrQueries == nil {
		fa.CurrQueries = make(map[string]string)
	}
	if fa.CurrQueryTypes == nil {
		fa.CurrQueryTypes = make(map[string]string)
	}
	if fa.CurrQmcaseValues == nil {
		fa.CurrQmcaseValues = make(map[string]bool)
	}
	if fa.CurrDefaultAttrValues == nil {
		fa.CurrDefaultAttrValues = make(map[string]string)
	}
	if fa.CurrLposValues == nil {
		fa.CurrLposValues = make(map[string]string)
	}
	if fa.CurrPcqPosNegValues == nil {
		fa.CurrPcqPosNegValues = make(map[string]string)
	}
	if fa.CurrIncludeEmptyValues == nil {
		fa.CurrIncludeEmptyValues = make(map[string]bool)
	}
	if fa.SelectedTextTypes == nil {
		fa.SelectedTextTypes = make(map[string][]string)
	}
	if fa.BibMapping == nil {
		fa.BibMapping = make(map[string]string)
	}
	for _, corp := range corpora {
		if _, ok := fa.CurrQueryTypes[corp]; !ok {
			fa.CurrQueryTypes[corp] = "simple"
		}
		if _, ok := fa.CurrPcqPosNegValues[corp]; !ok {
			fa.CurrPcqPosNegValues[corp] = "pos"
		}
		if _, ok := fa.CurrDefaultAttrValues[corp]; !ok {
			fa.CurrDefaultAttrValues[corp] = "word"
		}
	}
	if fa.FcLemwordType == "" {
		fa.FcLemwordType = "all"
	}
	if fa.FcPosType == "" {
		fa.FcPosType = "all"
	}
	if fa.FcLemwordWsize == [2]int{} {
		fa.FcLemwordWsize = [2]int{-5, 5}
	}
	if fa.FcPosWsize == [2]int{} {
		fa.FcPosWsize = [2]int{-5, 5}
	}
}

func (fa *QueryFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *QueryFormArgs) Validate() error {
	if len(fa.CurrQueries) == 0 {
		return apperr.NewConcordanceQueryParamsError("no query specified", nil)
	}
	for corp, qt := range fa.CurrQueryTypes {
		if qt != "simple" && qt != "advanced" {
			return apperr.NewConcordanceQueryParamsError(
				"invalid query type `"+qt+"` for corpus "+corp, nil)
		}
	}
	for corp, pn := range fa.CurrPcqPosNegValues {
		if pn != "pos" && pn != "neg" {
			return apperr.NewConcordanceQueryParamsError(
				"invalid aligned query flag `"+pn+"` for corpus "+corp, nil)
		}
	}
	for _, v := range []string{fa.FcLemwordType, fa.FcPosType} {
		if v != "" && v != "all" && v != "any" && v != "none" {
			return apperr.NewConcordanceQueryParamsError("invalid context filter type `"+v+"`", nil)
		}
	}
	return nil
}

// HasContextFilter tells whether the form requires automatically
// generated filter operations.
func (fa *QueryFormArgs) HasContextFilter() bool {
	return fa.FcLemword != "" || len(fa.FcPos) > 0
}

// -------------------------------

// FilterFormArgs represents a positive/negative filter applied
// on an existing concordance
type FilterFormArgs struct {
	Common
	Maincorp    string `json:"maincorp"`
	Query       string `json:"query"`
	QueryType   string `json:"query_type"`
	Qmcase      bool   `json:"qmcase"`
	DefaultAttr string `json:"default_attr"`

	// Pnfilter is one of p, n, P, N
	Pnfilter string `json:"pnfilter"`

	// Filfl is `f` (first match) or `l` (last match)
	Filfl    string `json:"filfl"`
	Filfpos  string `json:"filfpos"`
	Filtpos  string `json:"filtpos"`
	Inclkwic bool   `json:"inclkwic"`

	// WithinCorp is an aligned corpus the filter should be applied
	// to (empty = primary corpus)
	WithinCorp string `json:"within_corp"`
}

func (fa *FilterFormArgs) initDefaults(corpora []string) {
	if len(corpora) > 0 {
		fa.Maincorp = corpora[0]
	}
	fa.QueryType = "simple"
	fa.DefaultAttr = "word"
	fa.Pnfilter = "p"
	fa.Filfl = "f"
	fa.Filfpos = "-5"
	fa.Filtpos = "5"
	fa.Inclkwic = true
}

func (fa *FilterFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *FilterFormArgs) Validate() error {
	switch fa.Pnfilter {
	case "p", "n", "P", "N":
	default:
		return apperr.NewConcordanceQueryParamsError("invalid filter type `"+fa.Pnfilter+"`", nil)
	}
	if fa.Filfl != "" && fa.Filfl != "f" && fa.Filfl != "l" {
		return apperr.NewConcordanceQueryParamsError("invalid first/last flag `"+fa.Filfl+"`", nil)
	}
	if !filterPosRegexp.MatchString(fa.Filfpos) || !filterPosRegexp.MatchString(fa.Filtpos) {
		return apperr.NewConcordanceQueryParamsError(
			"invalid filter range `"+fa.Filfpos+"`, `"+fa.Filtpos+"`", nil)
	}
	if fa.Query == "" {
		return apperr.NewConcordanceQueryParamsError("empty filter query", nil)
	}
	return nil
}

// -------------------------------

// SortFormArgs represents a simple (single level) sort
type SortFormArgs struct {
	Common
	SAttr string `json:"sattr"`

	// SKey is one of lc (left context), kw (KWIC), rc (right context)
	SKey string `json:"skey"`
	SPos int    `json:"spos"`

	// SIcase is either empty or `i`
	SIcase string `json:"sicase"`

	// SBward is either empty or `r`
	SBward string `json:"sbward"`
}

func (fa *SortFormArgs) initDefaults() {
	fa.SAttr = "word"
	fa.SKey = "rc"
	fa.SPos = dfltSortPos
}

func (fa *SortFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *SortFormArgs) Validate() error {
	if fa.SAttr == "" {
		return apperr.NewConcordanceQueryParamsError("missing sort attribute", nil)
	}
	if fa.SKey != "lc" && fa.SKey != "kw" && fa.SKey != "rc" {
		return apperr.NewConcordanceQueryParamsError("invalid sort key `"+fa.SKey+"`", nil)
	}
	if fa.SKey != "kw" && fa.SPos < 1 {
		return apperr.NewConcordanceQueryParamsError("sort position must be a positive number", nil)
	}
	if fa.SIcase != "" && fa.SIcase != "i" || fa.SBward != "" && fa.SBward != "r" {
		return apperr.NewConcordanceQueryParamsError("invalid sort flags", nil)
	}
	return nil
}

// SortLevel is a single level of a multi-level sort
type SortLevel struct {
	MLxAttr  string `json:"mlxattr"`
	MLxIcase string `json:"mlxicase"`
	MLxBward string `json:"mlxbward"`

	// MLxCtx is an engine context specification (e.g. `-1<0`, `0~0>0`)
	MLxCtx string `json:"mlxctx"`
}

// MLSortFormArgs represents a multi-level sort
type MLSortFormArgs struct {
	Common
	Levels []SortLevel `json:"levels"`
}

func (fa *MLSortFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *MLSortFormArgs) Validate() error {
	if len(fa.Levels) == 0 || len(fa.Levels) > MaxSortLevels {
		return apperr.NewConcordanceQueryParamsError("invalid number of sort levels", nil)
	}
	for _, lev := range fa.Levels {
		if lev.MLxAttr == "" || !sortCtxRegexp.MatchString(lev.MLxCtx) {
			return apperr.NewConcordanceQueryParamsError(
				"invalid sort level `"+lev.MLxAttr+" "+lev.MLxCtx+"`", nil)
		}
	}
	return nil
}

// -------------------------------

type SampleFormArgs struct {
	Common
	RLines int `json:"rlines"`
}

func (fa *SampleFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *SampleFormArgs) Validate() error {
	if fa.RLines <= 0 {
		return apperr.NewConcordanceQueryParamsError("sample size must be a positive number", nil)
	}
	return nil
}

// -------------------------------

type ShuffleFormArgs struct {
	Common
}

func (fa *ShuffleFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *ShuffleFormArgs) Validate() error {
	return nil
}

// -------------------------------

// LgroupFormArgs represents an edit of manual line groups. The
// operation does not change the query, only the `lines_groups` value.
type LgroupFormArgs struct {
	Common
	Groups [][3]int `json:"groups"`
}

func (fa *LgroupFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *LgroupFormArgs) Validate() error {
	for _, g := range fa.Groups {
		if g[0] < 0 || g[1] < g[0] || g[2] < 0 {
			return apperr.NewConcordanceQueryParamsError("invalid line group range", nil)
		}
	}
	return nil
}

// -------------------------------

// LockedFormArgs represents a replayable operation which
// cannot be edited by a user (e.g. a manual selection of lines)
type LockedFormArgs struct {
	Common
	Payload map[string]any `json:"payload"`
}

func (fa *LockedFormArgs) ToDict() map[string]any {
	return toDict(fa)
}

func (fa *LockedFormArgs) Validate() error {
	return nil
}
