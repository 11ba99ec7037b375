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

package concord_test

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/concord/conctest"
	"concbench/formargs"
	"concbench/kcache"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mainStarts(conc *concord.Concordance) []int {
	ans := []int{}
	for _, line := range conc.Lines() {
		ans = append(ans, line.Main.Start)
	}
	return ans
}

func TestCompileChainBuildTokens(t *testing.T) {
	reg := conctest.NewRegistry(t)
	qf, err := formargs.NewFormArgs(formargs.FormTypeQuery, []string{"c1"})
	assert.NoError(t, err)
	qform := qf.(*formargs.QueryFormArgs)
	qform.CurrQueries["c1"] = `[word="dog"]`
	qform.CurrQueryTypes["c1"] = "advanced"
	q, err := concord.CompileQuery(qform, []string{"c1"}, reg)
	assert.NoError(t, err)
	assert.Equal(t, []string{`q[word="dog"]`}, q)

	fform := &formargs.FilterFormArgs{
		Maincorp:  "c1",
		Pnfilter:  "p",
		Filfpos:   "-5",
		Filtpos:   "5",
		Filfl:     "f",
		Query:     `[tag="N.*"]`,
		QueryType: "advanced",
	}
	tokens, err := concord.FilterTokens(fform)
	assert.NoError(t, err)
	assert.Equal(t, []string{`P-5 5 0 [tag="N.*"]`}, tokens)

	fform.Inclkwic = true
	fform.Filfl = "l"
	tokens, err = concord.FilterTokens(fform)
	assert.NoError(t, err)
	assert.Equal(t, []string{`p-5 5 -1 [tag="N.*"]`}, tokens)
}

func TestCompileQueryTextTypesAndAttr(t *testing.T) {
	reg := conctest.NewRegistry(t)
	qf, _ := formargs.NewFormArgs(formargs.FormTypeQuery, []string{"c1"})
	qform := qf.(*formargs.QueryFormArgs)
	qform.CurrQueries["c1"] = "dog"
	qform.CurrDefaultAttrValues["c1"] = "lemma"
	qform.SelectedTextTypes["doc.genre"] = []string{"news"}
	q, err := concord.CompileQuery(qform, []string{"c1"}, reg)
	assert.NoError(t, err)
	assert.Equal(t, []string{`alemma,[lemma="dog"%c] within <doc genre="news"/>`}, q)

	mat := conctest.NewMaterializer(t, nil)
	conc := conctest.MustGetConc(t, mat, q...)
	assert.Equal(t, []int{11, 15}, mainStarts(conc))

	qform.CurrDefaultAttrValues["c1"] = "foo"
	_, err = concord.CompileQuery(qform, []string{"c1"}, reg)
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
}

func TestFilters(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	conc := conctest.MustGetConc(t, mat, `q[word="dog"]`)
	assert.Equal(t, []int{1, 6, 15}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[word="dog"]`, `P-1 1 0 [tag="DT"]`)
	assert.Equal(t, []int{1, 15}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[word="dog"]`, `N-1 1 0 [tag="DT"]`)
	assert.Equal(t, []int{6}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, `p0 0 0 [tag="NN"]`)
	assert.Equal(t, []int{1, 6, 15}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, `P0 0 0 [tag="NN"]`)
	assert.Equal(t, []int{}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, `p0 0 -1 [tag="DT"][tag="NN"]`)
	assert.Equal(t, []int{1, 15}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, `p0 0 0 [tag="DT"][tag="NN"]`)
	assert.Equal(t, []int{}, mainStarts(conc))
}

func TestSort(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	token, err := concord.SortToken(&formargs.SortFormArgs{SAttr: "word", SKey: "rc", SPos: 1})
	assert.NoError(t, err)
	assert.Equal(t, "sword/ 1>0", token)
	conc := conctest.MustGetConc(t, mat, `q[lemma="dog"]`, token)
	assert.Equal(t, []int{15, 6, 11, 1}, mainStarts(conc))

	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, `sword/i 0<0~0>0`)
	assert.Equal(t, []int{1, 6, 15, 11}, mainStarts(conc))

	token, err = concord.MLSortToken(&formargs.MLSortFormArgs{Levels: []formargs.SortLevel{
		{MLxAttr: "tag", MLxCtx: "-1<0"},
		{MLxAttr: "word", MLxCtx: "1>0", MLxBward: "r"},
	}})
	assert.NoError(t, err)
	conc = conctest.MustGetConc(t, mat, `q[lemma="dog"]`, token)
	// left tags: DT (1, 15), JJ (6), NN (11); ties resolved by reversed right words
	assert.Equal(t, []int{15, 1, 6, 11}, mainStarts(conc))

	_, err = mat.GetConc(
		context.Background(),
		concord.Args{Corpora: []string{"c1"}, Q: []string{`q[lemma="dog"]`, `sfoo/ 1>0`}},
		false,
	)
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
}

func TestSampleAndShuffle(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	conc := conctest.MustGetConc(t, mat, `q[word="the"%c]`, "r2")
	assert.Len(t, conc.Lines(), 2)
	sizes := conc.Sizes()
	assert.Equal(t, 2, sizes.ConcSize)
	assert.Equal(t, 2, sizes.SampledSize)
	assert.Equal(t, 4, sizes.FullSize)
	assert.Equal(t, 0.0, sizes.ARF)

	mat2 := conctest.NewMaterializer(t, nil)
	conc2 := conctest.MustGetConc(t, mat2, `q[word="the"%c]`, "r2")
	assert.Equal(t, mainStarts(conc), mainStarts(conc2))

	conc = conctest.MustGetConc(t, mat, `q[word="the"%c]`, "f")
	assert.ElementsMatch(t, []int{0, 9, 14, 17}, mainStarts(conc))
	assert.Equal(t, 0, conc.Sizes().SampledSize)
	assert.Equal(t, 4, conc.Sizes().FullSize)
}

func TestAlignedQuery(t *testing.T) {
	reg := conctest.NewRegistry(t)
	corpora := []string{"en", "cs"}
	qf, _ := formargs.NewFormArgs(formargs.FormTypeQuery, corpora)
	qform := qf.(*formargs.QueryFormArgs)
	qform.CurrQueries["en"] = `[lemma="dog|cat|bird"]`
	qform.CurrQueryTypes["en"] = "advanced"
	qform.CurrQueries["cs"] = `[lemma="kočka"]`
	qform.CurrQueryTypes["cs"] = "advanced"
	q, err := concord.CompileQuery(qform, corpora, reg)
	assert.NoError(t, err)
	assert.Equal(
		t,
		[]string{`q[lemma="dog|cat|bird"]`, "x-cs", `p0 0> 0 [lemma="kočka"]`, "x-en", "D"},
		q,
	)
	mat := conctest.NewMaterializer(t, nil)
	conc, err := mat.GetConc(context.Background(), concord.Args{Corpora: corpora, Q: q}, false)
	assert.NoError(t, err)
	assert.Equal(t, []int{4}, mainStarts(conc))
	assert.Equal(t, "en", conc.ActiveCorpus())

	qform.CurrPcqPosNegValues["cs"] = "neg"
	q, err = concord.CompileQuery(qform, corpora, reg)
	assert.NoError(t, err)
	conc, err = mat.GetConc(context.Background(), concord.Args{Corpora: corpora, Q: q}, false)
	assert.NoError(t, err)
	assert.Equal(t, []int{1}, mainStarts(conc))

	qform.CurrIncludeEmptyValues["cs"] = true
	q, err = concord.CompileQuery(qform, corpora, reg)
	assert.NoError(t, err)
	assert.Equal(t, "x-en", q[len(q)-1])
	conc, err = mat.GetConc(context.Background(), concord.Args{Corpora: corpora, Q: q}, false)
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 6}, mainStarts(conc))

	page, err := mat.View(conc, concord.ViewArgs{})
	assert.NoError(t, err)
	assert.Equal(t, []concord.AlignedPart{{Corpus: "cs", Text: "Pes běží"}}, page.Lines[0].Align)
	assert.Equal(t, []concord.AlignedPart{{Corpus: "cs", Text: ""}}, page.Lines[1].Align)

	_, err = mat.GetConc(
		context.Background(),
		concord.Args{Corpora: []string{"en"}, Q: []string{`q[word="dog"]`, "x-cs"}},
		false,
	)
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
}

func TestAsyncConcordance(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	args := concord.Args{Corpora: []string{"c1"}, Q: []string{`q[lemma="dog"]`}}
	conc, err := mat.GetConc(context.Background(), args, true)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, conc.Size(), 0)
	assert.NoError(t, conc.Wait(context.Background()))
	assert.True(t, conc.Finished())
	assert.Equal(t, 4, conc.Size())
	assert.NotEmpty(t, conc.TaskID())

	entry, err := mat.Status(args)
	assert.NoError(t, err)
	assert.True(t, entry.Finished)
	assert.Equal(t, 4, entry.ConcSize)
	assert.InDelta(t, 4.0/20.0*1e6, entry.RelConcSize, 0.001)

	cached, err := mat.GetConc(context.Background(), args, true)
	assert.NoError(t, err)
	assert.True(t, cached.Finished())
	assert.Empty(t, cached.TaskID())
	assert.Equal(t, 4, cached.Size())
}

func TestPrefixesAreCached(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	conctest.MustGetConc(t, mat, `q[word="dog"]`, `P-1 1 0 [tag="DT"]`, "f")
	for _, q := range [][]string{
		{`q[word="dog"]`},
		{`q[word="dog"]`, `P-1 1 0 [tag="DT"]`},
	} {
		entry, err := mat.Status(concord.Args{Corpora: []string{"c1"}, Q: q})
		assert.NoError(t, err)
		assert.True(t, entry.Finished)
	}
	desc, err := mat.Describe(
		concord.Args{Corpora: []string{"c1"}},
		[]concord.ChainStep{
			{OpID: "A", Q: []string{`q[word="dog"]`}, NumNew: 1},
			{OpID: "B", Q: []string{`q[word="dog"]`, `P-1 1 0 [tag="DT"]`}, NumNew: 1},
		},
	)
	assert.NoError(t, err)
	assert.Len(t, desc, 2)
	assert.Equal(t, "Query", desc[0].Op)
	assert.Equal(t, "q", desc[0].OpID)
	assert.Equal(t, `[word="dog"]`, desc[0].NiceArg)
	assert.Equal(t, "q=~A", desc[0].ToURL)
	assert.Equal(t, 3, desc[0].Size)
	assert.Equal(t, "Positive filter", desc[1].Op)
	assert.Equal(t, 2, desc[1].Size)
}

func TestQueryErrors(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	args := concord.Args{Corpora: []string{"c1"}, Q: []string{`q[wordd="dog"]`}}
	_, err := mat.GetConc(context.Background(), args, false)
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
	entry, err := mat.Status(args)
	assert.NoError(t, err)
	assert.NotEmpty(t, entry.Error)

	_, err = mat.GetConc(
		context.Background(), concord.Args{Corpora: []string{"c1"}, Q: []string{`q[word="dog"`}}, false)
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)

	_, err = mat.GetConc(
		context.Background(), concord.Args{Corpora: []string{"foo"}, Q: []string{`q[]`}}, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	conc := conctest.MustGetConc(t, mat, `q[word="unicorn"]`)
	assert.True(t, conc.Finished())
	assert.Equal(t, 0, conc.Size())
}

func TestView(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	conc := conctest.MustGetConc(t, mat, `q[word="dog"]`)
	page, err := mat.View(conc, concord.ViewArgs{Page: 1, PageSize: 2})
	assert.NoError(t, err)
	assert.Equal(t, 2, page.LastPage)
	assert.Len(t, page.Lines, 2)
	assert.Equal(t, concord.KwicLine{
		LineNum: 0,
		Pos:     1,
		Ref:     "d1",
		Left:    "The",
		Kwic:    "dog",
		Right:   "runs . A black dog",
	}, page.Lines[0])

	page, err = mat.View(conc, concord.ViewArgs{Page: 2, PageSize: 2, Attr: "tag"})
	assert.NoError(t, err)
	assert.Len(t, page.Lines, 1)
	assert.Equal(t, "NN", page.Lines[0].Kwic)
	assert.Equal(t, "d2", page.Lines[0].Ref)

	_, err = mat.View(conc, concord.ViewArgs{Attr: "foo"})
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
}

func TestSweepCache(t *testing.T) {
	mat := conctest.NewMaterializer(t, nil)
	args := concord.Args{Corpora: []string{"c1"}, Q: []string{`q[word="dog"]`}}
	_, err := mat.GetConc(context.Background(), args, false)
	assert.NoError(t, err)
	n, err := mat.SweepCache()
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	entry, err := mat.Status(args)
	assert.NoError(t, err)
	old := time.Now().Add(-3 * time.Hour)
	assert.NoError(t, os.Chtimes(entry.CacheFile, old, old))
	n, err = mat.SweepCache()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = mat.Status(args)
	assert.ErrorIs(t, err, kcache.ErrEntryNotFound)
}

func TestContextFilterForms(t *testing.T) {
	reg := conctest.NewRegistry(t)
	corp, err := reg.Corpus("c1")
	assert.NoError(t, err)
	qform := &formargs.QueryFormArgs{
		FcLemword:      "cat bark",
		FcLemwordType:  "all",
		FcLemwordWsize: [2]int{-5, 5},
		FcPos:          []string{"JJ", "CC"},
		FcPosType:      "none",
		FcPosWsize:     [2]int{-1, 1},
	}
	forms := concord.ContextFilterForms(qform, corp)
	var tokens []string
	for _, f := range forms {
		tk, err := concord.FilterTokens(f)
		assert.NoError(t, err)
		tokens = append(tokens, tk...)
	}
	assert.Equal(
		t,
		[]string{
			`P-5 5 0 [lemma="cat"]`,
			`P-5 5 0 [lemma="bark"]`,
			`N-1 1 0 [tag="JJ|CC"]`,
		},
		tokens,
	)
	mat := conctest.NewMaterializer(t, nil)
	conc := conctest.MustGetConc(t, mat, append([]string{`q[word="dog"]`}, tokens...)...)
	assert.Equal(t, []int{}, mainStarts(conc))
	conc = conctest.MustGetConc(t, mat, `q[word="dog"]`, tokens[0])
	assert.Equal(t, []int{6, 15}, mainStarts(conc))
}
