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
	"concbench/cncdb"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memProgress map[string]string

func (mp memProgress) Get(k string) (string, error) {
	return mp[k], nil
}

func (mp memProgress) Set(k string, v any, ttl time.Duration) error {
	mp[k] = fmt.Sprint(v)
	return nil
}

type fakeUserIndexer struct {
	processed []int
}

func (fi *fakeUserIndexer) IndexUserRecords(userID, numLatest int) (int, error) {
	fi.processed = append(fi.processed, userID)
	return 2, nil
}

func TestDataInitializerChunks(t *testing.T) {
	db := cncdb.NewDummyQueryHist()
	for _, uid := range []int{3, 1, 2} {
		db.InsertRecord(cncdb.HistoryRecord{
			QueryID: fmt.Sprintf("q%d", uid), UserID: uid, CorpusName: "c1",
			Supertype: cncdb.QuerySupertypeConc, Created: 100,
		})
	}
	progress := make(memProgress)
	idx := &fakeUserIndexer{}
	di := NewDataInitializer(db, progress, idx, &Conf{PreserveAmount: 10}, time.UTC)
	ctx := context.Background()

	stats, err := di.Run(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, ReindexStats{NumUsers: 2, NumIndexed: 4}, stats)
	assert.Equal(t, "2", progress[reindexProgressKey])

	stats, err = di.Run(ctx, 2)
	assert.NoError(t, err)
	assert.Equal(t, ReindexStats{NumUsers: 1, NumIndexed: 2, Finished: true}, stats)
	assert.True(t, strings.HasPrefix(progress[reindexProgressKey], finishedPrefix))

	stats, err = di.Run(ctx, 2)
	assert.NoError(t, err)
	assert.True(t, stats.Finished)
	assert.Equal(t, []int{1, 2, 3}, idx.processed)
}

func TestDataInitializerInvalidProgress(t *testing.T) {
	progress := memProgress{reindexProgressKey: "foo"}
	di := NewDataInitializer(cncdb.NewDummyQueryHist(), progress, &fakeUserIndexer{}, &Conf{}, time.UTC)
	_, err := di.Run(context.Background(), 10)
	assert.Error(t, err)
}

func TestConfDefaults(t *testing.T) {
	conf := &Conf{}
	assert.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, dfltPreserveAmount, conf.PreserveAmount)
	assert.Equal(t, time.Hour, conf.CleanupIntervalDur())
	assert.Equal(t, dfltDeletedItemsChannel, conf.DeletedItemsChannel)
	assert.Equal(t, 0, conf.FulltextTimeoutSecs)

	conf = &Conf{FulltextServiceURL: "http://localhost:8080"}
	assert.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, 10*time.Second, conf.FulltextTimeout())

	conf = &Conf{CleanupInterval: "foo"}
	assert.Error(t, conf.ValidateAndDefaults())

	var nilConf *Conf
	assert.Error(t, nilConf.ValidateAndDefaults())
}
