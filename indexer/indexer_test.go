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


package indexer

import (
	"concbench/cncdb"
	"concbench/indexer/ftclient"
	"concbench/qpersist"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

const (
	testUser  = 17
	otherUser = 18
)

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

type dummySubscriber struct {
	ch chan *redis.Message
}

func (ds *dummySubscriber) ChannelSubscribe(name string) <-chan *redis.Message {
	return ds.ch
}

type testEnv struct {
	idx     *Indexer
	store   *qpersist.Store
	history *cncdb.DummyQueryHist
}

func prepareIndexer(t *testing.T) *testEnv {
	store := qpersist.NewStore(
		&qpersist.Conf{
			TTLDays:              14,
			AnonymousTTLDays:     1,
			ArchiveMode:          qpersist.ArchiveModeSync,
			ArchiveRetentionDays: 365,
			CleanupMaxItems:      100,
		},
		qpersist.NewMemHotStore(),
		cncdb.NewDummyConcArch(),
		nil,
		time.UTC,
	)
	hist := cncdb.NewDummyQueryHist()
	conf := &Conf{IndexDirPath: t.TempDir(), SearchMaxResults: 20}
	idxer, err := NewIndexer(conf, hist, store, dummySubcNames{"s1": "my fiction"})
	assert.NoError(t, err)
	t.Cleanup(func() { idxer.Close() })
	return &testEnv{idx: idxer, store: store, history: hist}
}

func (env *testEnv) storeConc(t *testing.T, userID int, created int64, query, qtype string) cncdb.HistoryRecord {
	rec := &qpersist.Record{
		Corpora:    []string{"c1"},
		UseSubcorp: "s1",
		Q:          []string{"q" + query},
		LastopForm: map[string]any{
			"form_type":           "query",
			"curr_queries":        map[string]any{"c1": query},
			"curr_query_types":    map[string]any{"c1": qtype},
			"selected_text_types": map[string]any{"doc.genre": []any{"fiction"}},
		},
	}
	id, err := env.store.Store(context.Background(), userID, rec, nil)
	assert.NoError(t, err)
	hRec := cncdb.HistoryRecord{
		QueryID:    id,
		UserID:     userID,
		CorpusName: "c1",
		Supertype:  cncdb.QuerySupertypeConc,
		Created:    created,
	}
	assert.NoError(t, env.history.InsertRecord(hRec))
	return hRec
}

func (env *testEnv) search(t *testing.T, userID int, items ...ftclient.QueryItem) []string {
	res, err := env.idx.Search(userID, items, 0, []string{"-_score", "-created"}, []string{"name"})
	assert.NoError(t, err)
	ans := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ans[i] = hit.ID
	}
	return ans
}

func TestIndexAndSearch(t *testing.T) {
	env := prepareIndexer(t)
	h1 := env.storeConc(t, testUser, 1700000000, `[lemma="dog"]`, "advanced")
	h2 := env.storeConc(t, testUser, 1700000100, `[word="doc.*"]`, "advanced")
	h3 := env.storeConc(t, otherUser, 1700000200, `[lemma="dog"]`, "advanced")
	for _, h := range []cncdb.HistoryRecord{h1, h2, h3} {
		ok, err := env.idx.IndexRecord(&h)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	cnt, err := env.idx.DocCount()
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), cnt)

	ids := env.search(t, testUser, ftclient.QueryItem{Field: "raw_query", Value: "dog", Requirement: "must"})
	assert.Equal(t, []string{h1.CreateIndexID()}, ids)

	ids = env.search(t, testUser, ftclient.QueryItem{Field: "raw_query", Value: "do*", IsWildCard: true})
	assert.ElementsMatch(t, []string{h1.CreateIndexID(), h2.CreateIndexID()}, ids)

	ids = env.search(t, testUser, ftclient.QueryItem{Field: "struct_attr_values", Value: "fiction"})
	assert.Len(t, ids, 2)

	ids = env.search(t, testUser, ftclient.QueryItem{Field: "query_supertype", Value: "wlist"})
	assert.Len(t, ids, 0)

	ids = env.search(
		t,
		testUser,
		ftclient.QueryItem{Field: "_all", Value: "fiction"},
		ftclient.QueryItem{Field: "raw_query", Value: "dog", Requirement: RequirementMustNot},
	)
	assert.Equal(t, []string{h2.CreateIndexID()}, ids)

	_, err = env.idx.Search(testUser, []ftclient.QueryItem{{Field: "foo", Value: "x"}}, 0, nil, nil)
	assert.Error(t, err)
}

func TestSetNameAndDelete(t *testing.T) {
	env := prepareIndexer(t)
	h1 := env.storeConc(t, testUser, 1700000000, `[lemma="dog"]`, "advanced")
	_, err := env.idx.IndexRecord(&h1)
	assert.NoError(t, err)

	key := cncdb.HistoryKey{UserID: h1.UserID, QueryID: h1.QueryID, Created: h1.Created}
	assert.NoError(t, env.idx.SetName(key, "barking"))
	ids := env.search(t, testUser, ftclient.QueryItem{Field: "name", Value: "barking"})
	assert.Equal(t, []string{h1.CreateIndexID()}, ids)

	assert.NoError(t, env.idx.Delete(h1.CreateIndexID()))
	cnt, err := env.idx.DocCount()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), cnt)

	err = env.idx.SetName(cncdb.HistoryKey{UserID: 1, QueryID: "x", Created: 1}, "foo")
	assert.ErrorIs(t, err, cncdb.ErrRecordNotFound)
}

func TestSimpleQueryAndSubcorpus(t *testing.T) {
	env := prepareIndexer(t)
	h1 := env.storeConc(t, testUser, 1700000000, "black dog", "simple")
	doc, err := env.idx.conv.RecToDoc(&h1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"black", "dog"}, doc.PosAttrs["word"])
	assert.Equal(t, []string{"my fiction"}, doc.Subcorpora)
	assert.Equal(t, []string{"doc"}, doc.Structures)
	assert.Equal(t, []string{"fiction"}, doc.StructAttrs["doc.genre"])
}

func TestIndexUserRecords(t *testing.T) {
	env := prepareIndexer(t)
	env.storeConc(t, testUser, 1700000000, `[lemma="dog"]`, "advanced")
	env.storeConc(t, testUser, 1700000100, `[lemma="cat"]`, "advanced")
	env.history.InsertRecord(cncdb.HistoryRecord{
		QueryID: "xxxxxxxxxxxx", UserID: testUser, CorpusName: "c1",
		Supertype: cncdb.QuerySupertypeConc, Created: 1700000200,
	})
	num, err := env.idx.IndexUserRecords(testUser, 100)
	assert.NoError(t, err)
	assert.Equal(t, 2, num)
}

func TestServiceRemovesDeletedItems(t *testing.T) {
	env := prepareIndexer(t)
	h1 := env.storeConc(t, testUser, 1700000000, `[lemma="dog"]`, "advanced")
	_, err := env.idx.IndexRecord(&h1)
	assert.NoError(t, err)

	sub := &dummySubscriber{ch: make(chan *redis.Message)}
	service := NewService(env.idx, sub, "deleted")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)
	sub.ch <- &redis.Message{Channel: "deleted", Payload: h1.CreateIndexID()}
	assert.Eventually(
		t,
		func() bool {
			cnt, err := env.idx.DocCount()
			return err == nil && cnt == 0
		},
		time.Second,
		10*time.Millisecond,
	)
}

func TestServiceIndexesHistoryItems(t *testing.T) {
	env := prepareIndexer(t)
	h1 := env.storeConc(t, testUser, 1700000000, `[lemma="dog"]`, "advanced")
	sub := &dummySubscriber{ch: make(chan *redis.Message)}
	service := NewService(env.idx, sub, "deleted")
	service.OnHistoryItem(h1)
	ids := env.search(t, testUser, ftclient.QueryItem{Field: "raw_query", Value: "dog"})
	assert.Equal(t, []string{h1.CreateIndexID()}, ids)
}
