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
	"concbench/apperr"
	"concbench/engine"
	"concbench/formargs"
	"concbench/texttypes"
	"fmt"
	"strings"
)

const (
	ctxFilterLemmaAttr = "lemma"
	ctxFilterTagAttr   = "tag"
)

// SimpleQueryToCQL converts a "simple" query (whitespace separated
// words) to CQL. Words are matched literally, ignoring case unless
// `matchCase` is set.
func SimpleQueryToCQL(query, attr string, matchCase bool) string {
	var ans strings.Builder
	for _, w := range strings.Fields(query) {
		ans.WriteString(fmt.Sprintf(`[%s="%s"`, attr, texttypes.EscapeValue(w)))
		if !matchCase {
			ans.WriteString("%c")
		}
		ans.WriteString("]")
	}
	return ans.String()
}

func userQueryToCQL(query, qtype, attr string, matchCase bool) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", apperr.NewConcordanceQueryParamsError("empty query", nil)
	}
	if qtype == "simple" {
		return SimpleQueryToCQL(query, attr, matchCase), nil
	}
	return query, nil
}

// CompileQuery translates a query form into operation tokens. The
// first token is the primary corpus query, possibly followed by
// aligned corpora queries (each wrapped in KWIC switching tokens).
// Text types selection is applied to the primary query.
func CompileQuery(form *formargs.QueryFormArgs, corpora []string, prov engine.Provider) ([]string, error) {
	if len(corpora) == 0 {
		return nil, apperr.NewConcordanceQueryParamsError("no corpus specified", nil)
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	primary, err := prov.Corpus(corpora[0])
	if err != nil {
		return nil, apperr.NewNotFoundError("corpus %s not found", corpora[0])
	}
	defaultAttr := form.CurrDefaultAttrValues[corpora[0]]
	if defaultAttr == "" {
		defaultAttr = primary.DefaultAttr()
	}
	if !primary.HasPosAttr(defaultAttr) {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("unknown default attribute `%s`", defaultAttr), nil)
	}
	cql, err := userQueryToCQL(
		form.CurrQueries[corpora[0]], form.CurrQueryTypes[corpora[0]],
		defaultAttr, form.CurrQmcaseValues[corpora[0]])
	if err != nil {
		return nil, err
	}
	if len(form.SelectedTextTypes) > 0 {
		if err := texttypes.Validate(form.SelectedTextTypes, primary); err != nil {
			return nil, err
		}
		idAttr, labelAttr := primary.BibAttrs()
		bib := &texttypes.BibConf{IDAttr: idAttr, LabelAttr: labelAttr, Mapping: form.BibMapping}
		conds, err := texttypes.Compile(form.SelectedTextTypes, bib)
		if err != nil {
			return nil, err
		}
		cql += texttypes.WithinQuery(conds)
	}
	first := QueryOp{CQL: cql}
	if defaultAttr != primary.DefaultAttr() {
		first.DefaultAttr = defaultAttr
	}
	ans := []string{first.Token()}
	var removeEmpty bool
	for _, aligned := range corpora[1:] {
		alQuery := strings.TrimSpace(form.CurrQueries[aligned])
		if !form.CurrIncludeEmptyValues[aligned] {
			removeEmpty = true
		}
		if alQuery == "" {
			continue
		}
		alAttr := form.CurrDefaultAttrValues[aligned]
		if alAttr == "" {
			alAttr = "word"
		}
		alCQL, err := userQueryToCQL(
			alQuery, form.CurrQueryTypes[aligned], alAttr, form.CurrQmcaseValues[aligned])
		if err != nil {
			return nil, err
		}
		filter := FilterOp{
			Positive: form.CurrPcqPosNegValues[aligned] != "neg",
			InclKwic: true,
			From:     engine.CtxPos{Offset: 0},
			To:       engine.CtxPos{Offset: 0, FromEnd: true},
			Rank:     RankFirst,
			CQL:      alCQL,
		}
		ans = append(
			ans,
			SwitchAlignedOp{Corpus: aligned}.Token(),
			filter.Token(),
			SwitchAlignedOp{Corpus: corpora[0]}.Token(),
		)
	}
	if removeEmpty {
		ans = append(ans, RemoveEmptyOp{}.Token())
	}
	return ans, nil
}

// FilterTokens translates a filter form into operation tokens
func FilterTokens(form *formargs.FilterFormArgs) ([]string, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	from, err := engine.ParseCtxPos(form.Filfpos)
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError("invalid filter range", err)
	}
	to, err := engine.ParseCtxPos(form.Filtpos)
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError("invalid filter range", err)
	}
	attr := form.DefaultAttr
	if attr == "" {
		attr = "word"
	}
	cql, err := userQueryToCQL(form.Query, form.QueryType, attr, form.Qmcase)
	if err != nil {
		return nil, err
	}
	op := FilterOp{
		Positive: strings.ToLower(form.Pnfilter) == "p",
		InclKwic: form.Inclkwic && strings.ToLower(form.Pnfilter) == form.Pnfilter,
		From:     from,
		To:       to,
		Rank:     RankFirst,
		CQL:      cql,
	}
	if form.Filfl == "l" {
		op.Rank = RankLast
	}
	if form.WithinCorp != "" && form.WithinCorp != form.Maincorp {
		return []string{
			SwitchAlignedOp{Corpus: form.WithinCorp}.Token(),
			op.Token(),
			SwitchAlignedOp{Corpus: form.Maincorp}.Token(),
		}, nil
	}
	return []string{op.Token()}, nil
}

// SortCtx translates a simple sort key and position to a context range
func SortCtx(skey string, spos int) (engine.CtxRange, error) {
	switch skey {
	case "lc":
		return engine.CtxRange{
			From: engine.CtxPos{Offset: -1},
			To:   engine.CtxPos{Offset: -spos},
		}, nil
	case "kw":
		return engine.CtxRange{
			From: engine.CtxPos{Offset: 0},
			To:   engine.CtxPos{Offset: 0, FromEnd: true},
		}, nil
	case "rc":
		return engine.CtxRange{
			From: engine.CtxPos{Offset: 1, FromEnd: true},
			To:   engine.CtxPos{Offset: spos, FromEnd: true},
		}, nil
	}
	return engine.CtxRange{}, apperr.NewConcordanceQueryParamsError("invalid sort key `"+skey+"`", nil)
}

func SortToken(form *formargs.SortFormArgs) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	ctx, err := SortCtx(form.SKey, form.SPos)
	if err != nil {
		return "", err
	}
	op := SortOp{Keys: []SortKey{{
		Attr:  form.SAttr,
		Icase: form.SIcase == "i",
		Bward: form.SBward == "r",
		Ctx:   ctx,
	}}}
	return op.Token(), nil
}

func MLSortToken(form *formargs.MLSortFormArgs) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	var op SortOp
	for _, lev := range form.Levels {
		ctx, err := engine.ParseCtxRange(lev.MLxCtx)
		if err != nil {
			return "", apperr.NewConcordanceQueryParamsError("invalid sort context", err)
		}
		op.Keys = append(op.Keys, SortKey{
			Attr:  lev.MLxAttr,
			Icase: lev.MLxIcase == "i",
			Bward: lev.MLxBward == "r",
			Ctx:   ctx,
		})
	}
	return op.Token(), nil
}

func SampleToken(form *formargs.SampleFormArgs) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}
	return SampleOp{Size: form.RLines}.Token(), nil
}

func ShuffleToken() string {
	return ShuffleOp{}.Token()
}

// -------------------------

func ctxFilterForms(
	corpname string,
	attr string,
	values []string,
	filterType string,
	wsize [2]int,
) []*formargs.FilterFormArgs {
	if len(values) == 0 {
		return []*formargs.FilterFormArgs{}
	}
	mkForm := func(pn string, vals []string) *formargs.FilterFormArgs {
		escaped := make([]string, len(vals))
		for i, v := range vals {
			escaped[i] = texttypes.EscapeValue(v)
		}
		return &formargs.FilterFormArgs{
			Common:      formargs.Common{Kind: formargs.FormTypeFilter, OpKeyID: formargs.OpKeyNew},
			Maincorp:    corpname,
			Query:       fmt.Sprintf(`[%s="%s"]`, attr, strings.Join(escaped, "|")),
			QueryType:   "advanced",
			DefaultAttr: attr,
			Pnfilter:    pn,
			Filfl:       "f",
			Filfpos:     fmt.Sprint(wsize[0]),
			Filtpos:     fmt.Sprint(wsize[1]),
		}
	}
	switch filterType {
	case "all":
		ans := make([]*formargs.FilterFormArgs, len(values))
		for i, v := range values {
			ans[i] = mkForm("p", []string{v})
		}
		return ans
	case "any":
		return []*formargs.FilterFormArgs{mkForm("p", values)}
	case "none":
		return []*formargs.FilterFormArgs{mkForm("n", values)}
	}
	return []*formargs.FilterFormArgs{}
}

// ContextFilterForms produces filters automatically generated
// by a query form with a context filter (lemmas or tags around KWIC).
func ContextFilterForms(form *formargs.QueryFormArgs, corp engine.Corpus) []*formargs.FilterFormArgs {
	lemmaAttr := ctxFilterLemmaAttr
	if !corp.HasPosAttr(lemmaAttr) {
		lemmaAttr = corp.DefaultAttr()
	}
	ans := ctxFilterForms(
		corp.Name(), lemmaAttr, strings.Fields(form.FcLemword), form.FcLemwordType, form.FcLemwordWsize)
	if corp.HasPosAttr(ctxFilterTagAttr) {
		ans = append(
			ans,
			ctxFilterForms(corp.Name(), ctxFilterTagAttr, form.FcPos, form.FcPosType, form.FcPosWsize)...)
	}
	return ans
}
