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

// Package kcache keeps status records of concordance computations
// (a concordance cache "directory") and measures computation times.
package kcache

import (
	"concbench/archiver"
	"concbench/cncdb"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrEntryNotFound = errors.New("conc cache entry not found")

// CacheEntry is compatible with KonText's ConcCacheStatus
// (see lib/plugin_types/conc_cache.py)
type CacheEntry struct {
	TaskID      string  `json:"task_id"`
	ConcSize    int     `json:"concsize"`
	FullSize    int     `json:"fullsize"`
	RelConcSize float64 `json:"relconcsize"`
	Arf         float64 `json:"arf"`
	Finished    bool    `json:"finished"`

	// Q0Hash refers to the initial user query which is at the beginning
	// of a possible query operation chain.
	Q0Hash    string `json:"q0hash"`
	CacheFile string `json:"cachefile"`
	Readable  bool   `json:"readable"`
	PID       int    `json:"pid"`

	// Created is the creation UNIX time with sub-second precision.
	Created float64 `json:"created"`

	// LastUpd is the latest update UNIX time with sub-second precision.
	LastUpd float64 `json:"last_upd"`
	Error   string  `json:"error,omitempty"`
}

// IsProcessable tests whether the record can be used
// to measure time needed to calculate concordances.
func (rec CacheEntry) IsProcessable() bool {
	return rec.Created > 0 && rec.LastUpd > 0
}

func (rec CacheEntry) ProcTime() float64 {
	if rec.IsProcessable() {
		return rec.LastUpd - rec.Created
	}
	return -1
}

func (rec CacheEntry) LastUpdTime() time.Time {
	sec := int64(rec.LastUpd)
	return time.Unix(sec, int64((rec.LastUpd-float64(sec))*1e9))
}

func UnixTimeFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EntryKey identifies a cached concordance
type EntryKey struct {
	Corpus    string
	Subcorpus string
	Q         []string
	Cutoff    int
}

func (k EntryKey) Field() string {
	return archiver.ConcCacheField(k.Corpus, k.Subcorpus, k.Q, k.Cutoff)
}

// StatusStore stores cache entries grouped by corpora
type StatusStore interface {

	// Get returns ErrEntryNotFound for unknown keys
	Get(key EntryKey) (CacheEntry, error)
	Set(key EntryKey, entry CacheEntry) error
	Del(key EntryKey) error

	// List returns all entries of a corpus (mapped by their fields)
	List(corpus string) (map[string]CacheEntry, error)

	// DelField removes an entry by its raw field
	DelField(corpus, field string) error
}

// ----------------------

// HashAdapter is a subset of a Redis client used by RedisStatusStore
// (see archiver.RedisAdapter)
type HashAdapter interface {
	HGet(key, field string) (string, error)
	HSet(key, field string, value any) error
	HDel(key, field string) error
	HGetAll(key string) (map[string]string, error)
}

// RedisStatusStore keeps entries in Redis hashes `conc_cache:<corpus>`
// shared with KonText
type RedisStatusStore struct {
	redis HashAdapter
}

func (st *RedisStatusStore) Get(key EntryKey) (CacheEntry, error) {
	raw, err := st.redis.HGet(archiver.ConcCacheKey(key.Corpus), key.Field())
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return CacheEntry{}, ErrEntryNotFound

	} else if err != nil {
		return CacheEntry{}, fmt.Errorf("failed to get conc cache entry: %w", err)
	}
	var ans CacheEntry
	if err := json.Unmarshal([]byte(raw), &ans); err != nil {
		return CacheEntry{}, fmt.Errorf("failed to decode conc cache entry: %w", err)
	}
	return ans, nil
}

func (st *RedisStatusStore) Set(key EntryKey, entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode conc cache entry: %w", err)
	}
	if err := st.redis.HSet(archiver.ConcCacheKey(key.Corpus), key.Field(), string(data)); err != nil {
		return fmt.Errorf("failed to set conc cache entry: %w", err)
	}
	return nil
}

func (st *RedisStatusStore) Del(key EntryKey) error {
	return st.DelField(key.Corpus, key.Field())
}

func (st *RedisStatusStore) DelField(corpus, field string) error {
	if err := st.redis.HDel(archiver.ConcCacheKey(corpus), field); err != nil {
		return fmt.Errorf("failed to delete conc cache entry: %w", err)
	}
	return nil
}

func (st *RedisStatusStore) List(corpus string) (map[string]CacheEntry, error) {
	items, err := st.redis.HGetAll(archiver.ConcCacheKey(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to list conc cache entries: %w", err)
	}
	ans := make(map[string]CacheEntry)
	for field, raw := range items {
		var entry CacheEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode conc cache entry %s: %w", field, err)
		}
		ans[field] = entry
	}
	return ans, nil
}

func NewRedisStatusStore(redis HashAdapter) *RedisStatusStore {
	return &RedisStatusStore{redis: redis}
}

// ----------------------

// MemStatusStore is an in-memory StatusStore for setups without Redis
type MemStatusStore struct {
	mu    sync.Mutex
	items map[string]map[string]CacheEntry
}

func (st *MemStatusStore) Get(key EntryKey) (CacheEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	entry, ok := st.items[archiver.ConcCacheKey(key.Corpus)][key.Field()]
	if !ok {
		return CacheEntry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (st *MemStatusStore) Set(key EntryKey, entry CacheEntry) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	hk := archiver.ConcCacheKey(key.Corpus)
	if _, ok := st.items[hk]; !ok {
		st.items[hk] = make(map[string]CacheEntry)
	}
	st.items[hk][key.Field()] = entry
	return nil
}

func (st *MemStatusStore) Del(key EntryKey) error {
	return st.DelField(key.Corpus, key.Field())
}

func (st *MemStatusStore) DelField(corpus, field string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.items[archiver.ConcCacheKey(corpus)], field)
	return nil
}

func (st *MemStatusStore) List(corpus string) (map[string]CacheEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ans := make(map[string]CacheEntry)
	for k, v := range st.items[archiver.ConcCacheKey(corpus)] {
		ans[k] = v
	}
	return ans, nil
}

func NewMemStatusStore() *MemStatusStore {
	return &MemStatusStore{items: make(map[string]map[string]CacheEntry)}
}
