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

package main

import (
	"concbench/archiver"
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/pipeline"
	"concbench/qpersist"
	"concbench/reporting"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const testUserID = 17

type testEnv struct {
	router   *gin.Engine
	pipeline *pipeline.Service
	hot      *qpersist.MemHotStore
}

type noHistory struct{}

func (nh noHistory) Store(userID int, corpname, queryID string, supertype cncdb.QuerySupertype) error {
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	cold := cncdb.NewDummyConcArch()
	hot := qpersist.NewMemHotStore()
	dedup, err := archiver.NewDeduplicator(cold, "")
	assert.NoError(t, err)
	records := qpersist.NewStore(
		&qpersist.Conf{
			TTLDays:              14,
			AnonymousTTLDays:     1,
			ArchiveMode:          qpersist.ArchiveModeSync,
			ArchiveRetentionDays: 365,
			CleanupMaxItems:      100,
		},
		hot, cold, dedup, time.UTC,
	)
	pipelineService := pipeline.NewService(records, noHistory{})
	arch := archiver.NewArchKeeper(
		nil, records, cold, dedup, &reporting.DummyWriter{}, time.UTC,
		&archiver.Conf{CheckIntervalSecs: 31, CheckIntervalChunk: 10})
	actions := NewActions(arch, nil, pipelineService)
	router := gin.New()
	router.GET("/overview", actions.Overview)
	router.GET("/record/:id", actions.GetRecord)
	router.GET("/validate/:id", actions.Validate)
	router.POST("/dedup-reset", actions.DedupReset)
	return &testEnv{router: router, pipeline: pipelineService, hot: hot}
}

func (env *testEnv) storeQuery(t *testing.T) *qpersist.Record {
	fa, err := formargs.NewFormArgs(formargs.FormTypeQuery, []string{"c1"})
	assert.NoError(t, err)
	form := fa.(*formargs.QueryFormArgs)
	form.CurrQueries["c1"] = `[word="dog"]`
	form.CurrQueryTypes["c1"] = "advanced"
	action := pipeline.NewQueryAction([]string{"c1"}, "", []string{`q[word="dog"]`}, form)
	rec, err := env.pipeline.Commit(context.Background(), testUserID, action)
	assert.NoError(t, err)
	return rec
}

func (env *testEnv) get(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestGetRecord(t *testing.T) {
	env := newTestEnv(t)
	root := env.storeQuery(t)

	w := env.get(http.MethodGet, "/record/"+root.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp recordResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, root.ID, resp.ID)
	assert.NotNil(t, resp.Decoded)
	assert.Equal(t, []string{`q[word="dog"]`}, resp.Decoded.Q)

	w = env.get(http.MethodGet, "/record/foo")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidateChain(t *testing.T) {
	env := newTestEnv(t)
	root := env.storeQuery(t)

	w := env.get(http.MethodGet, "/validate/"+root.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp["message"])
	assert.Equal(t, []any{root.ID}, resp["visitedIds"])

	// a successor whose query does not extend the predecessor's one
	broken := root.Clone()
	broken.PrevID = root.ID
	broken.Q = []string{`q[word="cat"]`, "f"}
	broken.ID = qpersist.Fingerprint(broken)
	data, err := broken.Encode()
	assert.NoError(t, err)
	assert.NoError(t, env.hot.SetConcRecord(broken.ID, data, time.Hour))

	w = env.get(http.MethodGet, "/validate/"+broken.ID)
	assert.Equal(t, http.StatusOK, w.Code)
	resp = nil
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["message"], "not a prefix")
	assert.Equal(t, []any{root.ID, broken.ID}, resp["visitedIds"])

	w = env.get(http.MethodGet, "/validate/AAAAAAAAAAAA")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)
	env.storeQuery(t)

	w := env.get(http.MethodGet, "/overview?force=1")
	assert.Equal(t, http.StatusOK, w.Code)
	var resp archiver.Overview
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalArchived)
	assert.Len(t, resp.ArchSizesByYears, 1)
	assert.Equal(t, int64(0), resp.QueueSize)
	assert.False(t, resp.YearsUnavailable)
}

func TestDedupReset(t *testing.T) {
	env := newTestEnv(t)
	w := env.get(http.MethodPost, "/dedup-reset")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
}
