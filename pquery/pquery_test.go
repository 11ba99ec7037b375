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

package pquery

import (
	"bytes"
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/concord/conctest"
	"concbench/formargs"
	"concbench/freqs"
	"concbench/qpersist"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

const (
	anonymousUser  = 0
	registeredUser = 17
)

type historyItem struct {
	userID    int
	queryID   string
	supertype cncdb.QuerySupertype
}

type fakeHistory struct {
	items []historyItem
}

func (fh *fakeHistory) Store(userID int, corpname, queryID string, supertype cncdb.QuerySupertype) error {
	fh.items = append(fh.items, historyItem{userID: userID, queryID: queryID, supertype: supertype})
	return nil
}

type testEnv struct {
	svc     *Service
	records *qpersist.Store
	history *fakeHistory
}

func newTestEnv(t *testing.T) *testEnv {
	qconf := &qpersist.Conf{
		TTLDays:              14,
		AnonymousTTLDays:     1,
		ArchiveMode:          qpersist.ArchiveModeSync,
		ArchiveRetentionDays: 365,
		CleanupMaxItems:      100,
		AnonymousUserID:      anonymousUser,
	}
	records := qpersist.NewStore(qconf, qpersist.NewMemHotStore(), cncdb.NewDummyConcArch(), nil, time.UTC)
	fconf := &freqs.Conf{}
	assert.NoError(t, fconf.ValidateAndDefaults())
	conf := &Conf{CacheDir: t.TempDir()}
	assert.NoError(t, conf.ValidateAndDefaults())
	history := &fakeHistory{}
	pool := conctest.NewPool(t)
	return &testEnv{
		svc: NewService(
			conf,
			records,
			history,
			conctest.NewMaterializer(t, nil),
			freqs.NewService(fconf, pool, freqs.NewMemNormsStore()),
		),
		records: records,
		history: history,
	}
}

func (env *testEnv) storeConc(t *testing.T, q string) string {
	rec := &qpersist.Record{Corpora: []string{"c1"}, Q: []string{q}}
	id, err := env.records.Store(context.Background(), registeredUser, rec, nil)
	assert.NoError(t, err)
	return id
}

// column returns frequencies of a row in order of the concordance IDs
func column(page Page, row Row, concID string) int {
	return row.Freqs[slices.Index(page.ConcIDs, concID)]
}

func TestScenarioAlmostNever(t *testing.T) {
	tabs := tables{
		matching: []FreqTable{
			{"run": 20, "dog": 10, "cat": 6},
			{"run": 15, "dog": 8},
		},
		complements: []FreqTable{{"run": 50, "dog": 1}},
	}
	rows := aggregate(tabs, &formargs.SubsetComplementsConstraint{ConcIDs: []string{"Z"}, MaxNonMatchingRatio: 10}, nil)
	assert.Equal(t, []Row{{Value: "dog", Freqs: []int{10, 8}}}, rows)

	rows = aggregate(tabs, nil, nil)
	assert.Equal(t, []string{"run", "dog"}, []string{rows[0].Value, rows[1].Value})
}

func TestAlmostAlways(t *testing.T) {
	tabs := tables{
		matching: []FreqTable{{"a": 5, "b": 5, "c": 5}, {"a": 5, "b": 5, "c": 5}},
		superset: FreqTable{"a": 10, "b": 20},
	}
	rows := aggregate(tabs, nil, &formargs.SupersetConstraint{ConcID: "S", MaxNonMatchingRatio: 10})
	assert.Equal(t, []Row{{Value: "a", Freqs: []int{5, 5}}}, rows)
	rows = aggregate(tabs, nil, &formargs.SupersetConstraint{ConcID: "S", MaxNonMatchingRatio: 50})
	assert.Len(t, rows, 2)
}

func randomTable(rnd *rand.Rand) FreqTable {
	ans := make(FreqTable)
	for i := 0; i < 30; i++ {
		if rnd.IntN(3) > 0 {
			ans[fmt.Sprintf("v%d", i)] = rnd.IntN(20) + 1
		}
	}
	return ans
}

func TestAggregateConstraintsHold(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		tabs := tables{
			matching:    []FreqTable{randomTable(rnd), randomTable(rnd), randomTable(rnd)},
			complements: []FreqTable{randomTable(rnd), randomTable(rnd)},
			superset:    randomTable(rnd),
		}
		ratio := float64(rnd.IntN(101))
		rows := aggregate(
			tabs,
			&formargs.SubsetComplementsConstraint{ConcIDs: []string{"a", "b"}, MaxNonMatchingRatio: ratio},
			&formargs.SupersetConstraint{ConcID: "s", MaxNonMatchingRatio: ratio},
		)
		for i, row := range rows {
			if i > 0 {
				assert.GreaterOrEqual(t, rows[i-1].Sum(), row.Sum())
			}
			sum := float64(row.Sum())
			for j, tab := range tabs.matching {
				assert.Equal(t, tab[row.Value], row.Freqs[j])
			}
			for _, tab := range tabs.complements {
				c := float64(tab[row.Value])
				assert.LessOrEqual(t, c/(sum+c), ratio/100)
			}
			s := float64(tabs.superset[row.Value])
			assert.Greater(t, s, 0.0)
			assert.True(t, s <= sum || 100-sum/s*100 <= ratio)
		}
	}
}

func TestResultFileSorting(t *testing.T) {
	env := newTestEnv(t)
	rf := resultFile{files: env.svc.files, key: "test"}
	rows := []Row{
		{Value: "b", Freqs: []int{5, 4}},
		{Value: "a", Freqs: []int{1, 7}},
		{Value: "c", Freqs: []int{2, 1}},
	}
	assert.NoError(t, rf.write(rows))
	concIDs := []string{"X", "Y"}

	page, err := rf.readPage(PageArgs{Sort: SortFreq, Offset: 1, Limit: 1}, concIDs)
	assert.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []Row{rows[1]}, page.Rows)

	page, err = rf.readPage(PageArgs{Sort: SortValue, Limit: 10}, concIDs)
	assert.NoError(t, err)
	assert.Equal(t, []Row{rows[1], rows[0], rows[2]}, page.Rows)

	page, err = rf.readPage(PageArgs{Sort: "freq-Y", Reverse: true, Limit: 2}, concIDs)
	assert.NoError(t, err)
	assert.Equal(t, []Row{rows[2], rows[0]}, page.Rows)

	page, err = rf.readPage(PageArgs{Sort: SortFreq, Reverse: true, Limit: 10}, concIDs)
	assert.NoError(t, err)
	assert.Equal(t, "c", page.Rows[0].Value)

	_, err = rf.readPage(PageArgs{Sort: "freq-Z", Limit: 10}, concIDs)
	assert.ErrorIs(t, err, apperr.ErrUserInput)

	missing := resultFile{files: env.svc.files, key: "missing"}
	_, err = missing.readPage(PageArgs{Sort: SortFreq, Limit: 10}, concIDs)
	assert.ErrorIs(t, err, apperr.PqueryResultNotFound)
}

func TestSubmitAndResult(t *testing.T) {
	env := newTestEnv(t)
	x := env.storeConc(t, `q[tag="DT"]`)
	y := env.storeConc(t, `q[tag="DT|JJ"]`)
	fa := &formargs.PqueryFormArgs{
		Corpname: "c1",
		ConcIDs:  []string{x, y},
		Attr:     "lemma",
		Position: "1",
		MinFreq:  2,
	}
	queryID, err := env.svc.Submit(context.Background(), registeredUser, fa)
	assert.NoError(t, err)
	assert.Equal(t, []historyItem{{registeredUser, queryID, cncdb.QuerySupertypePquery}}, env.history.items)

	stored, err := env.svc.OpenForm(queryID)
	assert.NoError(t, err)
	page, err := env.svc.Result(stored, PageArgs{Sort: SortFreq, Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "dog", page.Rows[0].Value)
	assert.Equal(t, 2, column(page, page.Rows[0], x))
	assert.Equal(t, 3, column(page, page.Rows[0], y))
	assert.Equal(t, "cat", page.Rows[1].Value)

	// order of concordances does not matter
	fa2 := *fa
	fa2.ConcIDs = []string{y, x}
	page2, err := env.svc.Result(&fa2, PageArgs{Sort: SortFreq, Limit: 10})
	assert.NoError(t, err)
	if diff := cmp.Diff(page, page2); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestComplementsOnStoredConcs(t *testing.T) {
	env := newTestEnv(t)
	x := env.storeConc(t, `q[tag="DT"]`)
	y := env.storeConc(t, `q[tag="DT|JJ"]`)
	z := env.storeConc(t, `q[word="The"]`)
	fa := &formargs.PqueryFormArgs{
		Corpname: "c1",
		ConcIDs:  []string{x, y},
		Attr:     "lemma",
		Position: "1",
		MinFreq:  2,
		ConcSubsetComplements: &formargs.SubsetComplementsConstraint{
			ConcIDs:             []string{z},
			MaxNonMatchingRatio: 10,
		},
	}
	_, err := env.svc.Calc(context.Background(), fa)
	assert.NoError(t, err)
	page, err := env.svc.Result(fa, PageArgs{Sort: SortFreq, Limit: 10})
	assert.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "cat", page.Rows[0].Value)
}

func TestSubmitInvalid(t *testing.T) {
	env := newTestEnv(t)
	x := env.storeConc(t, `q[tag="DT"]`)
	_, err := env.svc.Submit(context.Background(), registeredUser, &formargs.PqueryFormArgs{
		Corpname: "c1", ConcIDs: []string{x}, Attr: "lemma", Position: "1", MinFreq: 1,
	})
	assert.ErrorIs(t, err, apperr.ErrUserInput)

	_, err = env.svc.Submit(context.Background(), registeredUser, &formargs.PqueryFormArgs{
		Corpname: "c1", ConcIDs: []string{x, "aaaaaaaaaaaa"}, Attr: "lemma", Position: "1", MinFreq: 1,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.svc.Submit(context.Background(), registeredUser, &formargs.PqueryFormArgs{
		Corpname: "en", ConcIDs: []string{x, x}, Attr: "lemma", Position: "1", MinFreq: 1,
	})
	assert.ErrorIs(t, err, apperr.ErrSpecification)
}

func TestHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)
	actions := NewActions(env.svc)
	router := gin.New()
	router.POST("/pquery_submit", actions.Submit)
	router.GET("/pquery_result", actions.Result)

	x := env.storeConc(t, `q[tag="DT"]`)
	y := env.storeConc(t, `q[tag="DT|JJ"]`)
	body, err := json.Marshal(map[string]any{
		"corpname": "c1",
		"conc_ids": []string{x, y},
		"attr":     "lemma",
		"position": "1",
		"min_freq": 1,
	})
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/pquery_submit", bytes.NewReader(body))
	req.Header.Set("X-User-ID", strconv.Itoa(registeredUser))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sub submitResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))

	// results are recalculated after the cache is cleared
	assert.NoError(t, env.svc.files.Remove(env.svc.resultFile(mustForm(t, env, sub.QueryID)).key))
	args := url.Values{"q": {"~" + sub.QueryID}, "sort": {"value"}, "limit": {"2"}}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pquery_result?"+args.Encode(), nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res resultResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"black", "cat"}, []string{res.Rows[0].Value, res.Rows[1].Value})

	args.Set("sort", "foo")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pquery_result?"+args.Encode(), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func mustForm(t *testing.T, env *testEnv, queryID string) *formargs.PqueryFormArgs {
	fa, err := env.svc.OpenForm(queryID)
	assert.NoError(t, err)
	return fa
}
