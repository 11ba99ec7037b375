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
	"sort"
	"strings"
	"sync"
	"time"
)

// DummyConcArch is an in-memory implementation of IConcArchOps
// used by tests and by installations running without MySQL.
type DummyConcArch struct {
	mu      sync.Mutex
	records map[string]QueryArchRec
	subcs   map[string]SubcProps
}

func (dsql *DummyConcArch) LoadRecentNRecords(num int) ([]QueryArchRec, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := make([]QueryArchRec, 0, len(dsql.records))
	for _, v := range dsql.records {
		ans = append(ans, v)
	}
	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Created.After(ans[j].Created)
	})
	if len(ans) > num {
		ans = ans[:num]
	}
	return ans, nil
}

func (dsql *DummyConcArch) LoadRecordsFromDate(fromDate time.Time, maxItems int) ([]QueryArchRec, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := make([]QueryArchRec, 0, len(dsql.records))
	for _, v := range dsql.records {
		if !v.Created.Before(fromDate) {
			ans = append(ans, v)
		}
	}
	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Created.Before(ans[j].Created)
	})
	if len(ans) > maxItems {
		ans = ans[:maxItems]
	}
	return ans, nil
}

func (dsql *DummyConcArch) LoadRecordByID(concID string) (QueryArchRec, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	rec, ok := dsql.records[concID]
	if !ok {
		return QueryArchRec{}, ErrRecordNotFound
	}
	return rec, nil
}

func (dsql *DummyConcArch) ContainsRecord(concID string) (bool, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	_, ok := dsql.records[concID]
	return ok, nil
}

func (dsql *DummyConcArch) InsertRecord(rec QueryArchRec) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	if _, ok := dsql.records[rec.ID]; ok {
		return ErrDuplicateRecord
	}
	dsql.records[rec.ID] = rec
	return nil
}

func (dsql *DummyConcArch) UpdateRecord(rec QueryArchRec) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.records[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	curr.Data = rec.Data
	curr.Permanent = rec.Permanent
	dsql.records[rec.ID] = curr
	return nil
}

func (dsql *DummyConcArch) UpdateRecordStatus(id string, status int) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	curr.Permanent = status
	dsql.records[id] = curr
	return nil
}

func (dsql *DummyConcArch) RegisterAccess(concID string, tm time.Time) (QueryArchRec, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.records[concID]
	if !ok {
		return QueryArchRec{}, ErrRecordNotFound
	}
	curr.NumAccess++
	curr.LastAccess = tm
	dsql.records[concID] = curr
	return curr, nil
}

func (dsql *DummyConcArch) RemoveRecordsByID(concID string) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	delete(dsql.records, concID)
	return nil
}

func (dsql *DummyConcArch) RemoveOldRecords(olderThan time.Time, maxItems int) (int64, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	var ans int64
	for k, v := range dsql.records {
		if ans >= int64(maxItems) {
			break
		}
		if v.Permanent == 0 && v.LastAccess.Before(olderThan) {
			delete(dsql.records, k)
			ans++
		}
	}
	return ans, nil
}

func (dsql *DummyConcArch) GetArchSizesByYears(forceLoad bool) ([][2]int, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	tmp := make(map[int]int)
	for _, v := range dsql.records {
		tmp[v.Created.Year()]++
	}
	ans := make([][2]int, 0, len(tmp))
	for y, c := range tmp {
		ans = append(ans, [2]int{y, c})
	}
	sort.Slice(ans, func(i, j int) bool { return ans[i][0] < ans[j][0] })
	return ans, nil
}

func (dsql *DummyConcArch) GetSubcorpusProps(subcID string) (SubcProps, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	return dsql.subcs[subcID], nil
}

// SetSubcorpusProps registers subcorpus properties returned by GetSubcorpusProps
func (dsql *DummyConcArch) SetSubcorpusProps(subcID string, props SubcProps) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	dsql.subcs[subcID] = props
}

// Size returns number of stored records
func (dsql *DummyConcArch) Size() int {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	return len(dsql.records)
}

func NewDummyConcArch() *DummyConcArch {
	return &DummyConcArch{
		records: make(map[string]QueryArchRec),
		subcs:   make(map[string]SubcProps),
	}
}

// ----------------------------------------

// DummyQueryHist is an in-memory implementation of IQHistArchOps
type DummyQueryHist struct {
	mu   sync.Mutex
	recs []HistoryRecord
}

func (dsql *DummyQueryHist) GetAllUsersWithSomeRecords() ([]int, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	tmp := make(map[int]bool)
	ans := make([]int, 0, 10)
	for _, r := range dsql.recs {
		if !tmp[r.UserID] {
			tmp[r.UserID] = true
			ans = append(ans, r.UserID)
		}
	}
	sort.Ints(ans)
	return ans, nil
}

func (dsql *DummyQueryHist) sortedUserRecs(userID int) []HistoryRecord {
	ans := make([]HistoryRecord, 0, len(dsql.recs))
	for _, r := range dsql.recs {
		if r.UserID == userID {
			ans = append(ans, r)
		}
	}
	sort.SliceStable(ans, func(i, j int) bool {
		return ans[i].Created > ans[j].Created
	})
	return ans
}

func (dsql *DummyQueryHist) GetUserRecords(userID int, numItems int) ([]HistoryRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := dsql.sortedUserRecs(userID)
	if len(ans) > numItems {
		ans = ans[:numItems]
	}
	return ans, nil
}

func (dsql *DummyQueryHist) InsertRecord(rec HistoryRecord) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	for i, r := range dsql.recs {
		if r.UserID == rec.UserID && r.CorpusName == rec.CorpusName && r.QueryID == rec.QueryID {
			dsql.recs[i].Created = rec.Created
			if rec.Name != "" {
				dsql.recs[i].Name = rec.Name
			}
			return nil
		}
	}
	dsql.recs = append(dsql.recs, rec)
	return nil
}

func (dsql *DummyQueryHist) find(key HistoryKey) int {
	for i, r := range dsql.recs {
		if r.UserID == key.UserID && r.QueryID == key.QueryID && r.Created == key.Created {
			return i
		}
	}
	return -1
}

func (dsql *DummyQueryHist) UpdateName(key HistoryKey, name string) (bool, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	idx := dsql.find(key)
	if idx < 0 {
		return false, nil
	}
	dsql.recs[idx].Name = name
	return true, nil
}

func (dsql *DummyQueryHist) RemoveRecord(key HistoryKey) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	idx := dsql.find(key)
	if idx >= 0 {
		dsql.recs = append(dsql.recs[:idx], dsql.recs[idx+1:]...)
	}
	return nil
}

func (dsql *DummyQueryHist) FindRecords(userID int, filter HistoryFilter) ([]HistoryRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := make([]HistoryRecord, 0, 20)
	for _, r := range dsql.sortedUserRecs(userID) {
		if filter.CorpusName != "" && r.CorpusName != filter.CorpusName {
			continue
		}
		if filter.FromDate > 0 && r.Created < filter.FromDate {
			continue
		}
		if filter.ToDate > 0 && r.Created > filter.ToDate {
			continue
		}
		if filter.Supertype != "" && r.Supertype != filter.Supertype {
			continue
		}
		if filter.ArchivedOnly && r.Name == "" {
			continue
		}
		ans = append(ans, r)
	}
	if filter.Limit > 0 {
		if filter.Offset >= len(ans) {
			return []HistoryRecord{}, nil
		}
		ans = ans[filter.Offset:min(len(ans), filter.Offset+filter.Limit)]
	}
	return ans, nil
}

func (dsql *DummyQueryHist) GetRecord(key HistoryKey) (HistoryRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	idx := dsql.find(key)
	if idx < 0 {
		return HistoryRecord{}, ErrRecordNotFound
	}
	return dsql.recs[idx], nil
}

func (dsql *DummyQueryHist) DeleteOldRecords(
	userID int,
	numPreserve int,
	keepNamed func(HistoryRecord) bool,
) ([]HistoryRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	toDel := SelectDeletableHistory(dsql.sortedUserRecs(userID), numPreserve, keepNamed)
	for _, d := range toDel {
		idx := dsql.find(HistoryKey{UserID: d.UserID, QueryID: d.QueryID, Created: d.Created})
		if idx >= 0 {
			dsql.recs = append(dsql.recs[:idx], dsql.recs[idx+1:]...)
		}
	}
	return toDel, nil
}

func (dsql *DummyQueryHist) TableSize() (int64, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	return int64(len(dsql.recs)), nil
}

func NewDummyQueryHist() *DummyQueryHist {
	return &DummyQueryHist{recs: make([]HistoryRecord, 0, 100)}
}

// ----------------------------------------

// DummySubcArch is an in-memory implementation of ISubcArchOps
type DummySubcArch struct {
	mu    sync.Mutex
	recs  map[string]SubcorpusRecord
	users map[int]string
}

func (dsql *DummySubcArch) GetSubcorpus(id string) (SubcorpusRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	rec, ok := dsql.recs[id]
	if !ok {
		return SubcorpusRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

func (dsql *DummySubcArch) GetSubcorpusByName(corpusName, name string, userID int) (SubcorpusRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	for _, rec := range dsql.recs {
		if rec.CorpusName == corpusName && rec.Name == name && rec.UserID != nil && *rec.UserID == userID {
			return rec, nil
		}
	}
	return SubcorpusRecord{}, ErrRecordNotFound
}

func (dsql *DummySubcArch) InsertSubcorpus(rec SubcorpusRecord) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	if _, ok := dsql.recs[rec.ID]; ok {
		return ErrDuplicateRecord
	}
	rec.AuthorFullname = dsql.users[rec.AuthorID]
	dsql.recs[rec.ID] = rec
	return nil
}

func (dsql *DummySubcArch) UpdateSubcorpus(rec SubcorpusRecord) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.recs[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	curr.Name = rec.Name
	curr.Size = rec.Size
	curr.PublicDescription = rec.PublicDescription
	curr.IsDraft = rec.IsDraft
	curr.CQL = rec.CQL
	curr.WithinCond = rec.WithinCond
	curr.TextTypes = rec.TextTypes
	curr.Aligned = rec.Aligned
	dsql.recs[rec.ID] = curr
	return nil
}

func (dsql *DummySubcArch) SetArchived(id string, tm *time.Time) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.recs[id]
	if !ok {
		return nil
	}
	curr.Archived = tm
	dsql.recs[id] = curr
	return nil
}

func (dsql *DummySubcArch) Disassociate(id string, tm time.Time) error {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	curr, ok := dsql.recs[id]
	if !ok {
		return nil
	}
	curr.UserID = nil
	if curr.Archived == nil {
		curr.Archived = &tm
	}
	dsql.recs[id] = curr
	return nil
}

func (dsql *DummySubcArch) ListSubcorpora(filter SubcListFilter) ([]SubcorpusRecord, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := make([]SubcorpusRecord, 0, len(dsql.recs))
	for _, rec := range dsql.recs {
		if rec.UserID == nil || *rec.UserID != filter.UserID {
			continue
		}
		if filter.CorpusName != "" && rec.CorpusName != filter.CorpusName {
			continue
		}
		if filter.ArchivedOnly && rec.Archived == nil {
			continue
		}
		if filter.ActiveOnly && rec.Archived != nil {
			continue
		}
		if filter.PublishedOnly && !rec.IsPublished() {
			continue
		}
		if !filter.IncludeDrafts && rec.IsDraft {
			continue
		}
		if filter.Pattern != "" && !strings.Contains(rec.Name, filter.Pattern) &&
			!strings.Contains(rec.PublicDescription, filter.Pattern) {
			continue
		}
		if filter.IAQuery != "" {
			lastName := dsql.users[rec.AuthorID]
			if i := strings.LastIndex(lastName, " "); i >= 0 {
				lastName = lastName[i+1:]
			}
			if !strings.HasPrefix(rec.ID, filter.IAQuery) && !strings.HasPrefix(lastName, filter.IAQuery) {
				continue
			}
		}
		ans = append(ans, rec)
	}
	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Created.After(ans[j].Created)
	})
	if filter.Limit > 0 {
		if filter.Offset >= len(ans) {
			return []SubcorpusRecord{}, nil
		}
		ans = ans[filter.Offset:min(len(ans), filter.Offset+filter.Limit)]
	}
	return ans, nil
}

func (dsql *DummySubcArch) GetNames(ids []string) (map[string]string, error) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	ans := make(map[string]string)
	for _, id := range ids {
		if rec, ok := dsql.recs[id]; ok {
			ans[id] = rec.Name
		}
	}
	return ans, nil
}

// RegisterUser sets a full name ("first last") of a user so
// listing by author's last name can be tested
func (dsql *DummySubcArch) RegisterUser(userID int, fullName string) {
	dsql.mu.Lock()
	defer dsql.mu.Unlock()
	dsql.users[userID] = fullName
}

func NewDummySubcArch() *DummySubcArch {
	return &DummySubcArch{
		recs:  make(map[string]SubcorpusRecord),
		users: make(map[int]string),
	}
}
