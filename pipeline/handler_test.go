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

package pipeline

import (
	"bytes"
	"concbench/concord/conctest"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type testServer struct {
	env    *testEnv
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	env := newTestEnv()
	actions := NewActions(env.svc, conctest.NewMaterializer(t, nil))
	router := gin.New()
	router.POST("/query_submit", actions.QuerySubmit)
	router.POST("/filter", actions.Filter)
	router.POST("/sort", actions.Sort)
	router.POST("/mlsort", actions.MLSort)
	router.POST("/sample", actions.Sample)
	router.POST("/shuffle", actions.Shuffle)
	router.POST("/lgroup", actions.Lgroup)
	router.GET("/view", actions.View)
	router.GET("/concdesc_json", actions.ConcDesc)
	return &testServer{env: env, router: router}
}

func (ts *testServer) do(t *testing.T, method, path string, args url.Values, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	if len(args) > 0 {
		path += "?" + args.Encode()
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", strconv.Itoa(registeredUser))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) submit(t *testing.T, path string, args url.Values, body any) concResponse {
	w := ts.do(t, http.MethodPost, path, args, body)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ans concResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &ans))
	return ans
}

func ref(id string) url.Values {
	return url.Values{"q": []string{"~" + id}}
}

var dogQuery = map[string]any{
	"queries": []map[string]any{
		{"corpname": "c1", "qtype": "advanced", "query": `[word="dog"]`},
	},
}

var nounFilter = map[string]any{
	"pnfilter":   "p",
	"filfpos":    "-5",
	"filtpos":    "5",
	"query":      `[tag="N.*"]`,
	"query_type": "advanced",
}

func TestScenarioChainBuild(t *testing.T) {
	ts := newTestServer(t)
	a := ts.submit(t, "/query_submit", nil, dogQuery)
	assert.Equal(t, []string{`q[word="dog"]`}, a.Q)
	assert.Equal(t, 3, a.Size)
	assert.True(t, a.Finished)
	assert.Equal(t, "~"+a.ConcPersistenceOpID, a.ConcArgs.Q)
	assert.Equal(t, "owner", a.Ownership)

	b := ts.submit(t, "/filter", ref(a.ConcPersistenceOpID), nounFilter)
	assert.Equal(t, []string{`q[word="dog"]`, `P-5 5 0 [tag="N.*"]`}, b.Q)
	assert.Equal(t, 3, b.Size)

	rec, err := ts.env.svc.Open(b.ConcPersistenceOpID)
	assert.NoError(t, err)
	assert.Equal(t, a.ConcPersistenceOpID, rec.PrevID)
	chain, err := ts.env.svc.LoadPipeline(b.ConcPersistenceOpID)
	assert.NoError(t, err)
	assert.Len(t, chain, 2)
}

func TestScenarioFork(t *testing.T) {
	ts := newTestServer(t)
	a := ts.submit(t, "/query_submit", nil, dogQuery)
	b1 := ts.submit(t, "/sort", ref(a.ConcPersistenceOpID), map[string]any{"sattr": "word", "skey": "rc", "spos": 1})
	b2 := ts.submit(t, "/sort", ref(a.ConcPersistenceOpID), map[string]any{"sattr": "tag", "skey": "lc", "spos": 1})
	assert.NotEqual(t, b1.ConcPersistenceOpID, b2.ConcPersistenceOpID)
	for _, b := range []concResponse{b1, b2} {
		rec, err := ts.env.svc.Open(b.ConcPersistenceOpID)
		assert.NoError(t, err)
		assert.Equal(t, a.ConcPersistenceOpID, rec.PrevID)
	}
}

func TestScenarioIdempotentStore(t *testing.T) {
	ts := newTestServer(t)
	a := ts.submit(t, "/query_submit", nil, dogQuery)
	b1 := ts.submit(t, "/filter", ref(a.ConcPersistenceOpID), nounFilter)
	b2 := ts.submit(t, "/filter", ref(a.ConcPersistenceOpID), nounFilter)
	assert.Equal(t, b1.ConcPersistenceOpID, b2.ConcPersistenceOpID)
	assert.Equal(t, 2, ts.env.cold.Size())
}

func TestQuerySubmitWithContextFilter(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"queries": dogQuery["queries"],
		"context": map[string]any{
			"fc_lemword":       "cat",
			"fc_lemword_type":  "all",
			"fc_lemword_wsize": []int{-5, 5},
		},
	}
	ans := ts.submit(t, "/query_submit", nil, body)
	assert.Equal(t, []string{`q[word="dog"]`, `P-5 5 0 [lemma="cat"]`}, ans.Q)
	assert.Equal(t, 2, ans.Size)
	chain, err := ts.env.svc.LoadPipeline(ans.ConcPersistenceOpID)
	assert.NoError(t, err)
	assert.Len(t, chain, 2)
	assert.NoError(t, Validate(chain))
}

func TestQuerySubmitErrorStoresNothing(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"queries": []map[string]any{
			{"corpname": "c1", "qtype": "advanced", "query": `[wordd="dog"]`},
		},
	}
	w := ts.do(t, http.MethodPost, "/query_submit", nil, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ts.env.hot.NumWrites())

	w = ts.do(t, http.MethodPost, "/filter", ref("aaaaaaaaaaaa"), nounFilter)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSampleShuffleAndLgroup(t *testing.T) {
	ts := newTestServer(t)
	a := ts.submit(t, "/query_submit", nil, dogQuery)
	smp := ts.submit(t, "/sample", ref(a.ConcPersistenceOpID), map[string]any{"rlines": 2})
	assert.Equal(t, "r2", smp.Q[len(smp.Q)-1])
	assert.Equal(t, 2, smp.Size)
	assert.Equal(t, 2, smp.Sizes.SampledSize)
	assert.Equal(t, 3, smp.Sizes.FullSize)

	shf := ts.submit(t, "/shuffle", ref(a.ConcPersistenceOpID), nil)
	assert.Equal(t, "f", shf.Q[len(shf.Q)-1])

	lg := ts.submit(
		t, "/lgroup", ref(a.ConcPersistenceOpID), map[string]any{"groups": [][3]int{{1, 2, 1}}, "sorted": true})
	assert.Equal(t, a.Q, lg.Q)
	assert.NotEqual(t, a.ConcPersistenceOpID, lg.ConcPersistenceOpID)

	w := ts.do(t, http.MethodGet, "/view", ref(lg.ConcPersistenceOpID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var view viewResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []int{1, 1, 0}, []int{view.Lines[0].LineGroup, view.Lines[1].LineGroup, view.Lines[2].LineGroup})
	assert.Equal(t, []int{6, 15, 1}, []int{view.Lines[0].Pos, view.Lines[1].Pos, view.Lines[2].Pos})
}

func TestViewAndConcDesc(t *testing.T) {
	ts := newTestServer(t)
	a := ts.submit(t, "/query_submit", nil, dogQuery)
	b := ts.submit(t, "/filter", ref(a.ConcPersistenceOpID), nounFilter)

	args := ref(a.ConcPersistenceOpID)
	args.Set("pagesize", "2")
	w := ts.do(t, http.MethodGet, "/view", args, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var view viewResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Len(t, view.Lines, 2)
	assert.Equal(t, 3, view.ConcSize)
	assert.Equal(t, 2, view.Pagination.LastPage)
	assert.True(t, view.Finished)
	assert.Equal(t, "dog", view.Lines[0].Kwic)

	w = ts.do(t, http.MethodGet, "/view", url.Values{"q": {`q[lemma="cat"]`}, "corpname": {"c1"}}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var adhocView viewResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &adhocView))
	assert.Equal(t, 2, adhocView.ConcSize)
	assert.Empty(t, adhocView.ConcPersistenceOpID)

	w = ts.do(t, http.MethodGet, "/concdesc_json", ref(b.ConcPersistenceOpID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var desc struct {
		Desc []struct {
			Op     string `json:"op"`
			ToURL  string `json:"tourl"`
			Size   int    `json:"size"`
			OpID   string `json:"opid"`
			PersID string `json:"conc_persistence_op_id"`
		} `json:"Desc"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &desc))
	assert.Len(t, desc.Desc, 2)
	assert.Equal(t, "Query", desc.Desc[0].Op)
	assert.Equal(t, "q=~"+a.ConcPersistenceOpID, desc.Desc[0].ToURL)
	assert.Equal(t, 3, desc.Desc[0].Size)
	assert.Equal(t, "Positive filter", desc.Desc[1].Op)
	assert.Equal(t, "P", desc.Desc[1].OpID)
	assert.Equal(t, b.ConcPersistenceOpID, desc.Desc[1].PersID)
}
