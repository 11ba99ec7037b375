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


package history

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/indexer/ftclient"
	"concbench/qpersist"
	"concbench/reporting"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	anonymousUser  = 0
	registeredUser = 17
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []string
}

func (fp *fakePublisher) TriggerChan(chname, value string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.messages = append(fp.messages, chname+":"+value)
	return nil
}

type fakeQueue struct {
	items []cncdb.HistoryRecord
}

func (fq *fakeQueue) EnqueueHistory(rec cncdb.HistoryRecord) error {
	fq.items = append(fq.items, rec)
	return nil
}

type fakeFulltext struct {
	searchResult []cncdb.HistoryKey
	names        map[cncdb.HistoryKey]string
	deleted      []cncdb.HistoryKey
	failing      bool
}

func (ff *fakeFulltext) Search(
	ctx context.Context,
	userID int,
	items []ftclient.QueryItem,
	limit int,
) ([]cncdb.HistoryKey, error) {
	return ff.searchResult, nil
}

func (ff *fakeFulltext) SetName(ctx context.Context, key cncdb.HistoryKey, name string) error {
	if ff.failing {
		return fmt.Errorf("fulltext service unavailable")
	}
	ff.names[key] = name
	return nil
}

func (ff *fakeFulltext) Delete(ctx context.Context, key cncdb.HistoryKey) error {
	if ff.failing {
		return fmt.Errorf("fulltext service unavailable")
	}
	ff.deleted = append(ff.deleted, key)
	return nil
}

type dummySubcNames map[string]string

func (d dummySubcNames) GetNames(ids []string) (map[string]string, error) {
	ans := make(map[string]string)
	for _, id := range ids {
		if v, ok := d[id]; ok {
			ans[id] = v
		}
	}
	return ans, nil
}

type testEnv struct {
	service   *Service
	store     *qpersist.Store
	cold      *cncdb.DummyConcArch
	db        *cncdb.DummyQueryHist
	publisher *fakePublisher
	queue     *fakeQueue
	fulltext  *fakeFulltext
	currTime  int64
}

func prepareService(preserve int) *testEnv {
	cold := cncdb.NewDummyConcArch()
	store := qpersist.NewStore(
		&qpersist.Conf{
			TTLDays:              14,
			AnonymousTTLDays:     1,
			ArchiveMode:          qpersist.ArchiveModeSync,
			ArchiveRetentionDays: 365,
			CleanupMaxItems:      100,
			AnonymousUserID:      anonymousUser,
		},
		qpersist.NewMemHotStore(),
		cold,
		nil,
		time.UTC,
	)
	env := &testEnv{
		store:     store,
		cold:      cold,
		db:        cncdb.NewDummyQueryHist(),
		publisher: &fakePublisher{},
		queue:     &fakeQueue{},
		fulltext:  &fakeFulltext{names: make(map[cncdb.HistoryKey]string)},
		currTime:  1700000000,
	}
	conf := &Conf{
		PreserveAmount:      preserve,
		CleanupInterval:     "1h",
		DeletedItemsChannel: "deleted",
	}
	env.service = NewService(
		conf, env.db, store, dummySubcNames{"s1": "Fiction only"}, env.publisher, env.queue, env.fulltext)
	env.service.now = func() time.Time {
		env.currTime++
		return time.Unix(env.currTime, 0)
	}
	return env
}

func (env *testEnv) storeChain(t *testing.T, userID int, query string) (string, string, string) {
	ctx := context.Background()
	qRec := &qpersist.Record{
		Corpora:    []string{"c1", "c1_en"},
		UseSubcorp: "s1",
		Q:          []string{"q" + query},
		LastopForm: map[string]any{
			"form_type":           "query",
			"curr_queries":        map[string]any{"c1": query, "c1_en": `[word="pes"]`},
			"curr_query_types":    map[string]any{"c1": "advanced", "c1_en": "advanced"},
			"selected_text_types": map[string]any{"doc.genre": []any{"fiction"}},
		},
	}
	queryID, err := env.store.Store(ctx, userID, qRec, nil)
	assert.NoError(t, err)
	fRec := qRec.Clone()
	fRec.ID = ""
	fRec.Q = append(fRec.Q, `p0 0 0 [tag="JJ"]`)
	fRec.LastopForm = map[string]any{
		"form_type":  "filter",
		"query":      `[tag="JJ"]`,
		"query_type": "advanced",
		"pnfilter":   "p",
		"filfpos":    "-1",
		"filtpos":    "-1",
		"inclkwic":   true,
	}
	filterID, err := env.store.Store(ctx, userID, fRec, qRec)
	assert.NoError(t, err)
	sRec := fRec.Clone()
	sRec.ID = ""
	sRec.Q = append(sRec.Q, "sword/ 0")
	sRec.LastopForm = map[string]any{"form_type": "sort"}
	sortID, err := env.store.Store(ctx, userID, sRec, fRec)
	assert.NoError(t, err)
	return queryID, filterID, sortID
}

func TestStoreAndList(t *testing.T) {
	env := prepareService(100)
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", queryID, cncdb.QuerySupertypeConc))
	assert.Len(t, env.queue.items, 1)

	err := env.service.Store(registeredUser, "c1", queryID, "foo")
	assert.ErrorIs(t, err, apperr.ErrUserInput)

	items, err := env.service.GetUserQueries(context.Background(), registeredUser, SearchArgs{})
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, queryID, item.QueryID)
	assert.Equal(t, queryID, item.AnchorID)
	assert.Equal(t, "c1", item.Corpname)
	assert.Equal(t, []string{"c1_en"}, item.Aligned)
	assert.Equal(t, "Fiction only", item.SubcorpusName)
	assert.Equal(t, `[lemma="dog"]`, item.Queries["c1"])
	assert.Equal(t, []string{"fiction"}, item.SelectedTextTypes["doc.genre"])
	assert.Len(t, item.Filters, 0)
}

func TestHydrateReanchored(t *testing.T) {
	env := prepareService(100)
	queryID, filterID, sortID := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", sortID, cncdb.QuerySupertypeConc))
	items, err := env.service.GetUserQueries(context.Background(), registeredUser, SearchArgs{})
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, sortID, items[0].QueryID)
	assert.Equal(t, filterID, items[0].AnchorID)
	assert.Equal(t, `[lemma="dog"]`, items[0].Queries["c1"])
	assert.Equal(t, []FilterInfo{{
		Query:     `[tag="JJ"]`,
		QueryType: "advanced",
		Pnfilter:  "p",
		Filfpos:   "-1",
		Filtpos:   "-1",
		Inclkwic:  true,
	}}, items[0].Filters)
	assert.NotEqual(t, queryID, items[0].AnchorID)
}

func TestHydrateNonConc(t *testing.T) {
	env := prepareService(100)
	rec := &qpersist.Record{
		Corpora: []string{"c1"},
		LastopForm: map[string]any{
			"form_type": "wlist",
			"corpname":  "c1",
			"wlattr":    "lemma",
			"wlpat":     "do.*",
		},
	}
	id, err := env.store.Store(context.Background(), registeredUser, rec, nil)
	assert.NoError(t, err)
	assert.NoError(t, env.service.Store(registeredUser, "c1", id, cncdb.QuerySupertypeWlist))
	items, err := env.service.GetUserQueries(context.Background(), registeredUser, SearchArgs{})
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].Corpname)
	assert.Equal(t, "do.*", items[0].LastopForm["wlpat"])
}

func TestMissingOperationIsSkipped(t *testing.T) {
	env := prepareService(100)
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", queryID, cncdb.QuerySupertypeConc))
	assert.NoError(t, env.service.Store(registeredUser, "c1", "xxxxxxxxxxxx", cncdb.QuerySupertypeConc))
	items, err := env.service.GetUserQueries(context.Background(), registeredUser, SearchArgs{})
	assert.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMakePersistentExisting(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", queryID, cncdb.QuerySupertypeConc))
	recs, _ := env.db.GetUserRecords(registeredUser, 10)
	key := cncdb.HistoryKey{UserID: registeredUser, QueryID: queryID, Created: recs[0].Created}

	hRec, err := env.service.MakePersistent(ctx, key, cncdb.QuerySupertypeConc, "dogs")
	assert.NoError(t, err)
	assert.Equal(t, "dogs", hRec.Name)
	stored, err := env.db.GetRecord(key)
	assert.NoError(t, err)
	assert.Equal(t, "dogs", stored.Name)
	assert.Equal(t, "dogs", env.fulltext.names[key])
	archived, err := env.cold.LoadRecordByID(queryID)
	assert.NoError(t, err)
	assert.Equal(t, 1, archived.Permanent)

	items, err := env.service.GetUserQueries(ctx, registeredUser, SearchArgs{
		HistoryFilter: cncdb.HistoryFilter{ArchivedOnly: true},
	})
	assert.NoError(t, err)
	assert.Len(t, items, 1)

	assert.NoError(t, env.service.MakeTransient(ctx, key))
	stored, err = env.db.GetRecord(key)
	assert.NoError(t, err)
	assert.Equal(t, "", stored.Name)
	assert.Equal(t, "", env.fulltext.names[key])
}

func TestMakePersistentInsertsMissingItem(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	key := cncdb.HistoryKey{UserID: registeredUser, QueryID: queryID}
	hRec, err := env.service.MakePersistent(ctx, key, cncdb.QuerySupertypeConc, "dogs")
	assert.NoError(t, err)
	assert.Equal(t, "c1", hRec.CorpusName)
	assert.NotZero(t, hRec.Created)
	recs, err := env.db.GetUserRecords(registeredUser, 10)
	assert.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, "dogs", recs[0].Name)
	assert.Len(t, env.queue.items, 1)
}

func TestMakePersistentErrors(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	key := cncdb.HistoryKey{UserID: registeredUser, QueryID: "xxxxxxxxxxxx", Created: 10}
	_, err := env.service.MakePersistent(ctx, key, cncdb.QuerySupertypeConc, "")
	assert.ErrorIs(t, err, apperr.ErrUserInput)
	_, err = env.service.MakePersistent(ctx, key, cncdb.QuerySupertypeConc, "foo")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = env.service.MakeTransient(ctx, key)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFulltextFailureDoesNotRollback(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	env.fulltext.failing = true
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", queryID, cncdb.QuerySupertypeConc))
	recs, _ := env.db.GetUserRecords(registeredUser, 10)
	key := cncdb.HistoryKey{UserID: registeredUser, QueryID: queryID, Created: recs[0].Created}
	_, err := env.service.MakePersistent(ctx, key, cncdb.QuerySupertypeConc, "dogs")
	assert.NoError(t, err)
	assert.NoError(t, env.service.Delete(ctx, key))
	size, _ := env.db.TableSize()
	assert.Equal(t, int64(0), size)
}

func TestDelete(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	queryID, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", queryID, cncdb.QuerySupertypeConc))
	recs, _ := env.db.GetUserRecords(registeredUser, 10)
	key := cncdb.HistoryKey{UserID: registeredUser, QueryID: queryID, Created: recs[0].Created}

	assert.NoError(t, env.service.Delete(ctx, key))
	assert.Equal(t, []string{"deleted:" + recs[0].CreateIndexID()}, env.publisher.messages)
	assert.Equal(t, []cncdb.HistoryKey{key}, env.fulltext.deleted)
	assert.ErrorIs(t, env.service.Delete(ctx, key), apperr.ErrNotFound)
}

func TestFulltextSearchOrder(t *testing.T) {
	env := prepareService(100)
	ctx := context.Background()
	id1, _, _ := env.storeChain(t, registeredUser, `[lemma="dog"]`)
	id2, _, _ := env.storeChain(t, registeredUser, `[lemma="cat"]`)
	assert.NoError(t, env.service.Store(registeredUser, "c1", id1, cncdb.QuerySupertypeConc))
	assert.NoError(t, env.service.Store(registeredUser, "c1", id2, cncdb.QuerySupertypeConc))
	recs, _ := env.db.GetUserRecords(registeredUser, 10)
	keys := make(map[string]cncdb.HistoryKey)
	for _, r := range recs {
		keys[r.QueryID] = cncdb.HistoryKey{UserID: r.UserID, QueryID: r.QueryID, Created: r.Created}
	}
	env.fulltext.searchResult = []cncdb.HistoryKey{
		keys[id1],
		{UserID: registeredUser, QueryID: "removed", Created: 1},
		keys[id2],
	}
	items, err := env.service.GetUserQueries(ctx, registeredUser, SearchArgs{
		FullSearch: []ftclient.QueryItem{{Field: "raw_query", Value: "dog"}},
	})
	assert.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, id1, items[0].QueryID)
	assert.Equal(t, id2, items[1].QueryID)

	items, err = env.service.GetUserQueries(ctx, registeredUser, SearchArgs{
		HistoryFilter: cncdb.HistoryFilter{Offset: 2, Limit: 10},
		FullSearch:    []ftclient.QueryItem{{Field: "raw_query", Value: "dog"}},
	})
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, id2, items[0].QueryID)

	_, err = env.service.GetUserQueries(ctx, registeredUser, SearchArgs{
		FullSearch: []ftclient.QueryItem{{Field: "foo", Value: "dog"}},
	})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

func TestDeleteOldRecords(t *testing.T) {
	env := prepareService(2)
	ctx := context.Background()
	for i, q := range []string{`[lemma="a"]`, `[lemma="b"]`, `[lemma="c"]`, `[lemma="d"]`} {
		id, _, _ := env.storeChain(t, registeredUser, q)
		assert.NoError(t, env.service.Store(registeredUser, "c1", id, cncdb.QuerySupertypeConc), i)
	}
	id, _, _ := env.storeChain(t, registeredUser, `[lemma="e"]`)
	_, err := env.service.MakePersistent(
		ctx, cncdb.HistoryKey{UserID: registeredUser, QueryID: id}, cncdb.QuerySupertypeConc, "kept")
	assert.NoError(t, err)
	env.db.InsertRecord(cncdb.HistoryRecord{
		QueryID: "gone", UserID: registeredUser, CorpusName: "c1",
		Supertype: cncdb.QuerySupertypeConc, Created: 1, Name: "named but gone",
	})

	stats, err := env.service.DeleteOldRecords(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, stats.NumDeleted)
	assert.Equal(t, 0, stats.NumErrors)
	assert.Len(t, env.publisher.messages, 3)
	recs, _ := env.db.GetUserRecords(registeredUser, 10)
	assert.Len(t, recs, 3)
}

func TestGarbageCollectorRunOnce(t *testing.T) {
	env := prepareService(1)
	for _, q := range []string{`[lemma="a"]`, `[lemma="b"]`} {
		id, _, _ := env.storeChain(t, registeredUser, q)
		assert.NoError(t, env.service.Store(registeredUser, "c1", id, cncdb.QuerySupertypeConc))
	}
	writer := &reporting.DummyWriter{}
	gc := NewGarbageCollector(env.service, nil, writer, env.service.conf)
	stats := gc.runOnce(context.Background())
	assert.Equal(t, 1, stats.NumDeleted)
	assert.Equal(t, int64(1), stats.SQLTableSize)
	assert.Equal(t, stats, writer.LastHistDel)
	assert.Equal(t, time.Hour, gc.checkInterval)
}
