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

package cncdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func mkHist(queryID string, created int64, name string) HistoryRecord {
	return HistoryRecord{UserID: 1, CorpusName: "syn2020", QueryID: queryID, Created: created, Name: name}
}

func TestSelectDeletableHistory(t *testing.T) {
	recs := []HistoryRecord{
		mkHist("a", 1, ""),
		mkHist("b", 5, ""),
		mkHist("c", 3, "named"),
		mkHist("d", 4, ""),
		mkHist("e", 2, "broken"),
	}
	ans := SelectDeletableHistory(recs, 2, func(r HistoryRecord) bool {
		return r.QueryID != "e"
	})
	ids := make([]string, len(ans))
	for i, v := range ans {
		ids[i] = v.QueryID
	}
	assert.ElementsMatch(t, []string{"a", "e"}, ids)
}

func TestDummyQueryHistPruning(t *testing.T) {
	db := NewDummyQueryHist()
	for i := 0; i < 10; i++ {
		name := ""
		if i%4 == 0 {
			name = "n"
		}
		assert.NoError(t, db.InsertRecord(HistoryRecord{
			UserID: 7, CorpusName: "c1", QueryID: string(rune('a' + i)), Created: int64(i), Name: name}))
	}
	deleted, err := db.DeleteOldRecords(7, 3, func(HistoryRecord) bool { return true })
	assert.NoError(t, err)
	assert.Len(t, deleted, 4)
	recs, err := db.GetUserRecords(7, 100)
	assert.NoError(t, err)
	var named, unnamed int
	for _, r := range recs {
		if r.Name != "" {
			named++
		} else {
			unnamed++
		}
	}
	assert.Equal(t, 3, named)
	assert.Equal(t, 3, unnamed)
}

func TestDummyQueryHistUpsert(t *testing.T) {
	db := NewDummyQueryHist()
	assert.NoError(t, db.InsertRecord(mkHist("a", 1, "")))
	assert.NoError(t, db.InsertRecord(mkHist("a", 10, "")))
	size, err := db.TableSize()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), size)
	rec, err := db.GetRecord(HistoryKey{UserID: 1, QueryID: "a", Created: 10})
	assert.NoError(t, err)
	assert.Equal(t, "a", rec.QueryID)
}
