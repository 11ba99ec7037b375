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

package qpersist

import (
	"concbench/cncdb"
	"sync"
	"time"
)

type memItem struct {
	data    string
	expires time.Time
}

type ArchiveRequest struct {
	ID       string
	Explicit bool
}

// MemHotStore is an in-memory implementation of HotStore
// used in dummy setups and tests.
type MemHotStore struct {
	mu     sync.Mutex
	items  map[string]memItem
	queue  []ArchiveRequest
	nowFn  func() time.Time
	writes int
}

func (ms *MemHotStore) GetConcRecord(id string) (cncdb.QueryArchRec, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	item, ok := ms.items[id]
	if !ok || (!item.expires.IsZero() && !ms.nowFn().Before(item.expires)) {
		delete(ms.items, id)
		return cncdb.QueryArchRec{}, cncdb.ErrRecordNotFound
	}
	return cncdb.QueryArchRec{ID: id, Data: item.data}, nil
}

func (ms *MemHotStore) SetConcRecord(id string, data string, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	item := memItem{data: data}
	if ttl > 0 {
		item.expires = ms.nowFn().Add(ttl)
	}
	ms.items[id] = item
	ms.writes++
	return nil
}

func (ms *MemHotStore) DelConcRecord(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.items, id)
	return nil
}

func (ms *MemHotStore) EnqueueArchive(id string, explicit bool) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.queue = append(ms.queue, ArchiveRequest{ID: id, Explicit: explicit})
	return nil
}

// Expire removes a record as if its TTL elapsed
func (ms *MemHotStore) Expire(id string) {
	ms.DelConcRecord(id)
}

// NumWrites returns number of performed SetConcRecord calls
func (ms *MemHotStore) NumWrites() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.writes
}

// PopQueue returns and clears pending archive requests
func (ms *MemHotStore) PopQueue() []ArchiveRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ans := ms.queue
	ms.queue = []ArchiveRequest{}
	return ans
}

func NewMemHotStore() *MemHotStore {
	return &MemHotStore{
		items: make(map[string]memItem),
		queue: make([]ArchiveRequest, 0, 10),
		nowFn: time.Now,
	}
}
