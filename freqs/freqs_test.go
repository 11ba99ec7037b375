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
	"concbench/concord/conctest"
	"concbench/qpersist"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type testEnv struct {
	svc   *Service
	mat   *concord.Materializer
	norms *MemNormsStore
}

func newTestEnv(t *testing.T) *testEnv {
	conf := &Conf{}
	assert.NoError(t, conf.ValidateAndDefaults())
	norms := NewMemNormsStore()
	return &testEnv{
		svc:   NewService(conf, conctest.NewPool(t), norms),
		mat:   conctest.NewMaterializer(t, nil),
		norms: norms,
	}
}

func (env *testEnv) concSize(t *testing.T, q []string) int {
	conc, err := env.mat.GetConc(context.Background(), concord.Args{Corpora: []string{"c1"}, Q: q}, false)
	assert.NoError(t, err)
	return conc.Size()
}

func words(block Block) []string {
	ans := make([]string, len(block.Items))
	for i, item := range block.Items {
		ans[i] = item.Word[0]
	}
	return ans
}

func TestFreqWithFilterLink(t *testing.T) {
	env := newTestEnv(t)
	q := []string{"q[]"}
	conc := conctest.MustGetConc(t, env.mat, q...)
	ans, err := env.svc.Freqs(context.Background(), conc, Args{Fcrit: []string{"word/i 0"}, FLimit: 1, PageSize: 100})
	assert.NoError(t, err)
	assert.Len(t, ans.Blocks, 1)
	block := ans.Blocks[0]
	assert.Equal(t, 1, block.RelMode)
	top := block.Items[0]
	assert.Equal(t, []string{"the"}, top.Word)
	assert.Equal(t, 4, top.Freq)
	assert.Equal(t, []string{`p0 0 0 [word="the"%c]`}, top.Pfilter)
	assert.InDelta(t, 20.0, top.Rel, 0.0001)
	assert.Equal(t, 4, env.concSize(t, append(slices.Clone(q), top.Pfilter...)))
}

func TestFilterLinkSoundness(t *testing.T) {
	env := newTestEnv(t)
	for _, item := range []struct {
		q     []string
		fcrit string
	}{
		{[]string{"q[]"}, "word/i 0"},
		{[]string{"q[]"}, "tag 1"},
		{[]string{`q[lemma="dog"]`}, "word -1<0~0"},
		{[]string{"q[]"}, "doc.genre 0"},
		{[]string{`q[tag="NN.*"]`}, "doc.id 0"},
	} {
		conc := conctest.MustGetConc(t, env.mat, item.q...)
		ans, err := env.svc.Calc(conc, Args{Fcrit: []string{item.fcrit}, PageSize: 100})
		assert.NoError(t, err)
		for _, row := range ans.Blocks[0].Items {
			assert.Equal(t, row.Freq, env.concSize(t, append(slices.Clone(item.q), row.Pfilter...)), row.Pfilter)
			if row.Freq < conc.Size() {
				assert.Len(t, row.Nfilter, 1)
				assert.Equal(t, conc.Size()-row.Freq, env.concSize(t, append(slices.Clone(item.q), row.Nfilter...)))

			} else {
				assert.Empty(t, row.Nfilter)
			}
		}
	}
}

func TestStructAttrNorms(t *testing.T) {
	env := newTestEnv(t)
	conc := conctest.MustGetConc(t, env.mat, `q[lemma="dog"]`)
	ans, err := env.svc.Calc(conc, Args{Fcrit: []string{"doc.genre 0"}})
	assert.NoError(t, err)
	block := ans.Blocks[0]
	assert.Equal(t, 0, block.RelMode)
	assert.Equal(t, []string{"fiction", "news"}, words(block))
	assert.Equal(t, int64(11), block.Items[0].Norm)
	assert.InDelta(t, 2.0/11*1e6, block.Items[0].Rel, 0.01)
	assert.Equal(t, `p0 0 1 [] within <doc genre="fiction"/>`, block.Items[0].Pfilter[0])
	assert.Equal(t, `n0 0 1 [] within <doc genre="fiction"/>`, block.Items[0].Nfilter[0])

	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"doc.genre 0"}, NormKind: NormFreq})
	assert.NoError(t, err)
	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"doc.genre 0"}})
	assert.NoError(t, err)
	assert.Equal(t, 2, env.norms.NumSets())
	cached, err := env.norms.Get("c1", "doc.genre", NormFreq)
	assert.NoError(t, err)
	assert.Equal(t, map[string]int64{"fiction": 1, "news": 1}, cached)
}

func TestMultiLevel(t *testing.T) {
	env := newTestEnv(t)
	q := []string{`q[lemma="dog"]`}
	conc := conctest.MustGetConc(t, env.mat, q...)
	ans, err := env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0 tag 0"}})
	assert.NoError(t, err)
	block := ans.Blocks[0]
	assert.Equal(t, []string{"word", "tag"}, block.Head)
	assert.Len(t, block.Items, 2)
	assert.Equal(t, []string{"dog", "NN"}, block.Items[0].Word)
	assert.Equal(t, 3, block.Items[0].Freq)
	assert.Len(t, block.Items[0].Pfilter, 2)
	assert.Empty(t, block.Items[0].Nfilter)
	assert.Equal(t, 3, env.concSize(t, append(slices.Clone(q), block.Items[0].Pfilter...)))

	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"word 0 word 1 word 2 word 3 word 4"}})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

func TestPaginationAndSorting(t *testing.T) {
	env := newTestEnv(t)
	conc := conctest.MustGetConc(t, env.mat, "q[]")
	ans, err := env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0"}, Page: 2, PageSize: 5})
	assert.NoError(t, err)
	assert.True(t, ans.Paginated)
	assert.Equal(t, 2, ans.Page)
	assert.Equal(t, 3, ans.LastPage)
	assert.Len(t, ans.Blocks[0].Items, 5)
	assert.Equal(t, 14, ans.Blocks[0].Total)

	ans, err = env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0"}, FLimit: 2})
	assert.NoError(t, err)
	assert.Equal(t, []string{"the", "dog", "cat"}, words(ans.Blocks[0]))

	ans, err = env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0"}, FLimit: 2, FreqSort: "0"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog", "the"}, words(ans.Blocks[0]))

	ans, err = env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0", "doc.genre 0"}, PageSize: 5})
	assert.NoError(t, err)
	assert.False(t, ans.Paginated)
	assert.Len(t, ans.Blocks, 2)
	assert.Len(t, ans.Blocks[0].Items, 14)

	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"word/i 0"}, FreqSort: "x"})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

func TestEmptyAndInvalid(t *testing.T) {
	env := newTestEnv(t)
	conc := conctest.MustGetConc(t, env.mat, `q[word="unicorn"]`)
	ans, err := env.svc.Calc(conc, Args{Fcrit: []string{"word 0"}})
	assert.NoError(t, err)
	assert.True(t, ans.Blocks[0].NoResult)
	assert.Empty(t, ans.Blocks[0].Items)

	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"foo 0"}})
	assert.ErrorIs(t, err, apperr.ErrSpecification)
	_, err = env.svc.Calc(conc, Args{Fcrit: []string{"word"}})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
	_, err = env.svc.Calc(conc, Args{})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

func TestContingencyTable(t *testing.T) {
	env := newTestEnv(t)
	q := []string{`q[lemma="dog"]`}
	conc := conctest.MustGetConc(t, env.mat, q...)
	ans, err := env.svc.FreqsCT(context.Background(), conc, CTArgs{Crit1: "doc.genre 0", Crit2: "tag 0"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"fiction", "news"}, ans.Values1)
	assert.Equal(t, []string{"NN", "NNS"}, ans.Values2)
	assert.Len(t, ans.Data, 3)
	cell := ans.Data[0]
	assert.Equal(t, "fiction", cell.Word1)
	assert.Equal(t, "NN", cell.Word2)
	assert.Equal(t, 2, cell.Abs)
	assert.Equal(t, int64(11), cell.Norm)
	assert.InDelta(t, 2.0/11*1e6, cell.Ipm, 0.01)
	assert.Equal(t, 2, env.concSize(t, append(slices.Clone(q), cell.Pfilter...)))

	ans, err = env.svc.CalcCT(conc, CTArgs{Crit1: "doc.genre 0", Crit2: "doc.id 0"})
	assert.NoError(t, err)
	assert.Equal(t, int64(11), ans.Data[0].Norm)

	ans, err = env.svc.CalcCT(conc, CTArgs{Crit1: "word 0", Crit2: "tag 0"})
	assert.NoError(t, err)
	assert.Equal(t, int64(20), ans.Data[0].Norm)

	_, err = env.svc.FreqsCT(context.Background(), conc, CTArgs{Crit1: "word 0"})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
	_, err = env.svc.CalcCT(conc, CTArgs{Crit1: "word 0 tag 0", Crit2: "tag 0"})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

// ----

type testResolver struct {
	mat *concord.Materializer
}

func (r *testResolver) ResolveConc(ctx *gin.Context) (*qpersist.Record, *concord.Concordance, error) {
	rec := &qpersist.Record{Corpora: []string{"c1"}, Q: ctx.QueryArray("q")}
	conc, err := r.mat.GetConc(ctx.Request.Context(), concord.Args{Corpora: rec.Corpora, Q: rec.Q}, false)
	if err != nil {
		return nil, nil, err
	}
	return rec, conc, nil
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)
	actions := NewActions(env.svc, &testResolver{mat: env.mat})
	router := gin.New()
	router.GET("/freqs", actions.Freqs)
	router.GET("/freqml", actions.FreqML)
	router.GET("/freqct", actions.FreqCT)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/freqs?q=q%5B%5D&fcrit=word%2Fi+0&fpagesize=3")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans freqsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &ans))
	assert.Equal(t, []string{"q[]"}, ans.Q)
	assert.Len(t, ans.Blocks[0].Items, 3)
	assert.Equal(t, 5, ans.LastPage)

	w = get("/freqml?q=q%5B%5D&ml1attr=word&ml1icase=1&ml2attr=tag&ml2ctx=1")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &ans))
	assert.Equal(t, "word/i 0<0 tag 1>0", ans.Blocks[0].Fcrit)

	w = get("/freqml?q=q%5B%5D")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get("/freqct?q=q%5B%5D&ctfcrit1=doc.genre+0&ctfcrit2=tag+0")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ct ctResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &ct))
	assert.Equal(t, []string{"fiction", "news"}, ct.Values1)
}
