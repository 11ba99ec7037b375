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

package archiver

import (
	"concbench/cncdb"
	"concbench/reporting"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeQueue struct {
	items  []queueRecord
	errors []queueRecord
	kv     map[string]string
}

func (q *fakeQueue) NextNArchItems(n int64) ([]queueRecord, error) {
	if int64(len(q.items)) < n {
		n = int64(len(q.items))
	}
	ans := q.items[:n]
	q.items = q.items[n:]
	return ans, nil
}

func (q *fakeQueue) AddError(item queueRecord, rec *cncdb.QueryArchRec) error {
	q.errors = append(q.errors, item)
	return nil
}

func (q *fakeQueue) Get(k string) (string, error) {
	return q.kv[k], nil
}

func (q *fakeQueue) Set(k string, v any, ttl time.Duration) error {
	q.kv[k] = fmt.Sprint(v)
	return nil
}

func (q *fakeQueue) QueueSize() (int64, error) {
	return int64(len(q.items)), nil
}

type fakeArchiver struct {
	calls map[string]bool
}

func (fa *fakeArchiver) Archive(ctx context.Context, id string, explicit bool) (int, error) {
	if id == "broken" {
		return 0, cncdb.ErrRecordNotFound
	}
	if fa.calls[id] {
		return 0, nil
	}
	fa.calls[id] = explicit
	return 2, nil
}

type fakeListener struct {
	recs []cncdb.HistoryRecord
}

func (fl *fakeListener) OnHistoryItem(rec cncdb.HistoryRecord) {
	fl.recs = append(fl.recs, rec)
}

func TestPerformCheck(t *testing.T) {
	q := &fakeQueue{
		kv: make(map[string]string),
		items: []queueRecord{
			{Type: QRTypeArchive, Key: "concordance:abc", Explicit: true},
			{Type: QRTypeArchive, Key: "concordance:abc"},
			{Type: QRTypeArchive, Key: "concordance:broken"},
			{Type: QRTypeHistory, Key: "concordance:abc", UserID: 3, Created: 100, CorpusName: "syn2020"},
		},
	}
	arch := &fakeArchiver{calls: make(map[string]bool)}
	listener := &fakeListener{}
	db := cncdb.NewDummyConcArch()
	dedup, err := NewDeduplicator(db, "")
	assert.NoError(t, err)
	job := &ArchKeeper{
		queue:              q,
		archiver:           arch,
		dbArch:             db,
		dedup:              dedup,
		reporting:          &reporting.DummyWriter{},
		checkIntervalChunk: 10,
		tz:                 time.UTC,
	}
	job.SetHistoryListener(listener)
	assert.NoError(t, job.performCheck(context.Background()))
	stats := job.GetStats()
	assert.Equal(t, 4, stats.NumFetched)
	assert.Equal(t, 2, stats.NumInserted)
	assert.Equal(t, 1, stats.NumDuplicates)
	assert.Equal(t, 1, stats.NumErrors)
	assert.Equal(t, 1, stats.NumHistory)
	assert.Len(t, q.errors, 1)
	assert.True(t, arch.calls["abc"])
	assert.Equal(t, []cncdb.HistoryRecord{
		{QueryID: "abc", UserID: 3, Created: 100, CorpusName: "syn2020"}}, listener.recs)
}

func TestDeduplicator(t *testing.T) {
	db := cncdb.NewDummyConcArch()
	now := time.Now()
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{ID: "a1", Data: "{}", Created: now}))
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{ID: "a2", Data: "{}", Created: now}))
	path := filepath.Join(t.TempDir(), "dedup.bin")
	dd, err := NewDeduplicator(db, path)
	assert.NoError(t, err)
	assert.NoError(t, dd.PreloadLastNItems(10))

	ok, err := dd.IsArchived("a1")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = dd.IsArchived("zz")
	assert.NoError(t, err)
	assert.False(t, ok)

	dd.Add("ghost")
	ok, err = dd.IsArchived("ghost")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, dd.NumFalsePositives())

	assert.NoError(t, dd.StoreToDisk())
	dd2, err := NewDeduplicator(db, path)
	assert.NoError(t, err)
	assert.True(t, dd2.TestRecord("a2"))
}

func TestOverview(t *testing.T) {
	db := cncdb.NewDummyConcArch()
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{
		ID: "a1", Data: "{}", Created: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)}))
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{
		ID: "a2", Data: "{}", Created: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}))
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{
		ID: "a3", Data: "{}", Created: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}))
	dedup, err := NewDeduplicator(db, "")
	assert.NoError(t, err)
	q := &fakeQueue{
		kv:    make(map[string]string),
		items: []queueRecord{{Type: QRTypeArchive, Key: "concordance:abc"}},
	}
	job := &ArchKeeper{
		queue:     q,
		dbArch:    db,
		dedup:     dedup,
		reporting: &reporting.DummyWriter{},
		tz:        time.UTC,
	}
	ov, err := job.Overview(false)
	assert.NoError(t, err)
	assert.Equal(t, []CountPerYear{{Year: 2023, Count: 1}, {Year: 2024, Count: 2}}, ov.ArchSizesByYears)
	assert.Equal(t, 3, ov.TotalArchived)
	assert.Equal(t, int64(1), ov.QueueSize)
	assert.NotEmpty(t, q.kv[yearStatsCacheKey])

	// cached value is used until a reload is forced
	assert.NoError(t, db.InsertRecord(cncdb.QueryArchRec{
		ID: "a4", Data: "{}", Created: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}))
	ov, err = job.Overview(false)
	assert.NoError(t, err)
	assert.Equal(t, 3, ov.TotalArchived)
	ov, err = job.Overview(true)
	assert.NoError(t, err)
	assert.Equal(t, 4, ov.TotalArchived)
}

func TestQueueRecordKeyCode(t *testing.T) {
	assert.Equal(t, "xyz", queueRecord{Key: "concordance:xyz"}.KeyCode())
	assert.Equal(t, "xyz", queueRecord{Key: "xyz"}.KeyCode())
	assert.True(t, queueRecord{Key: "xyz"}.IsArchive())
}

func TestConcCacheField(t *testing.T) {
	a := ConcCacheField("SYN2020", "", []string{"q[word=\"x\"]"}, 0)
	b := ConcCacheField("syn2020", "", []string{"q[word=\"x\"]"}, 0)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ConcCacheField("syn2020", "subc1", []string{"q[word=\"x\"]"}, 0))
	assert.Equal(t, "conc_cache:syn2020", ConcCacheKey("SYN2020"))
}
