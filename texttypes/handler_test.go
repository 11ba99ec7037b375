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

package texttypes

import (
	"bytes"
	"concbench/engine/vert"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	corp, err := vert.ReadVertical(
		&vert.CorpusConf{Name: "c1", PosAttrs: []string{"word"}},
		strings.NewReader(testVertical),
	)
	assert.NoError(t, err)
	reg := vert.NewEmptyRegistry()
	reg.Add(corp)
	actions := NewActions(reg)
	router := gin.New()
	router.GET("/text_types/:corpname", actions.Values)
	router.POST("/text_types/:corpname/compile", actions.Compile)
	return router
}

func request(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestValuesHandler(t *testing.T) {
	router := newTestRouter(t)
	w := request(router, http.MethodGet, "/text_types/c1?attr=doc.year", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string][]ValueInfo
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(
		t,
		[]ValueInfo{
			{Value: "2000", NumOccurrences: 1, NumTokens: 2},
			{Value: "2001", NumOccurrences: 2, NumTokens: 4},
		},
		resp["doc.year"],
	)

	w = request(router, http.MethodGet, "/text_types/c1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	resp = nil
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 3)

	w = request(router, http.MethodGet, "/text_types/c1?attr=doc.foo", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = request(router, http.MethodGet, "/text_types/c2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompileHandler(t *testing.T) {
	router := newTestRouter(t)
	w := request(
		router, http.MethodPost, "/text_types/c1/compile", Selection{"doc.genre": {"news"}})
	assert.Equal(t, http.StatusOK, w.Code)
	var resp compiledSelection
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ` within <doc genre="news"/>`, resp.Within)
	assert.Equal(t, "doc.genre: news", resp.Description)

	w = request(
		router, http.MethodPost, "/text_types/c1/compile", Selection{"doc.foo": {"x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
