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

package freqs

import (
	"concbench/engine"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	// NormTokens sums token counts of structure occurrences
	NormTokens = "tokens"

	// NormFreq counts structure occurrences
	NormFreq = "freq"
)

// NormsStore caches norms of structural attribute values
type NormsStore interface {

	// Get returns cached norms. An empty map means "not cached".
	Get(corpus, structAttr, kind string) (map[string]int64, error)
	Set(corpus, structAttr, kind string, norms map[string]int64) error
}

// HashAdapter is a subset of a Redis client used by RedisNormsStore
// (see archiver.RedisAdapter)
type HashAdapter interface {
	HSet(key, field string, value any) error
	HGetAll(key string) (map[string]string, error)
}

func normsKey(corpus, structAttr, kind string) string {
	return fmt.Sprintf("freq_norms:%s:%s:%s", corpus, structAttr, kind)
}

// RedisNormsStore keeps norms in Redis hashes (one per corpus,
// attribute and norm kind)
type RedisNormsStore struct {
	redis HashAdapter
}

func (st *RedisNormsStore) Get(corpus, structAttr, kind string) (map[string]int64, error) {
	raw, err := st.redis.HGetAll(normsKey(corpus, structAttr, kind))
	if err != nil {
		return nil, err
	}
	ans := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid norm value of %s in %s: %w", k, corpus, err)
		}
		ans[k] = n
	}
	return ans, nil
}

func (st *RedisNormsStore) Set(corpus, structAttr, kind string, norms map[string]int64) error {
	key := normsKey(corpus, structAttr, kind)
	for k, v := range norms {
		if err := st.redis.HSet(key, k, v); err != nil {
			return err
		}
	}
	return nil
}

func NewRedisNormsStore(redis HashAdapter) *RedisNormsStore {
	return &RedisNormsStore{redis: redis}
}

// MemNormsStore is an in-memory NormsStore
type MemNormsStore struct {
	mu   sync.Mutex
	data map[string]map[string]int64
	sets int
}

func (st *MemNormsStore) Get(corpus, structAttr, kind string) (map[string]int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data[normsKey(corpus, structAttr, kind)], nil
}

func (st *MemNormsStore) Set(corpus, structAttr, kind string, norms map[string]int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.data[normsKey(corpus, structAttr, kind)] = norms
	st.sets++
	return nil
}

// NumSets returns number of Set calls
func (st *MemNormsStore) NumSets() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sets
}

func NewMemNormsStore() *MemNormsStore {
	return &MemNormsStore{data: make(map[string]map[string]int64)}
}

// calcNorms computes norms of values of a structural attribute. Kinds
// other than NormTokens and NormFreq name an integer attribute of the same
// structure.
func calcNorms(corp engine.Corpus, structAttr, kind string) (map[string]int64, error) {
	st, attr, _ := strings.Cut(structAttr, ".")
	occs, err := corp.Structures(st)
	if err != nil {
		return nil, err
	}
	ans := make(map[string]int64)
	for _, occ := range occs {
		v := occ.Attrs[attr]
		switch kind {
		case NormTokens:
			ans[v] += int64(occ.Len())
		case NormFreq:
			ans[v]++
		default:
			n, err := strconv.ParseInt(occ.Attrs[kind], 10, 64)
			if err != nil {
				log.Warn().
					Str("corpus", corp.Name()).
					Str("attr", st+"."+kind).
					Str("value", occ.Attrs[kind]).
					Msg("invalid custom norm value, skipping")
				continue
			}
			ans[v] += n
		}
	}
	return ans, nil
}

// norms returns (possibly cached) norms
func (s *Service) norms(corp engine.Corpus, structAttr, kind string) (map[string]int64, error) {
	ans, err := s.normsStore.Get(corp.Name(), structAttr, kind)
	if err != nil {
		log.Error().Err(err).Str("corpus", corp.Name()).Msg("failed to read cached norms")

	} else if len(ans) > 0 {
		return ans, nil
	}
	ans, err = calcNorms(corp, structAttr, kind)
	if err != nil {
		return nil, err
	}
	if err := s.normsStore.Set(corp.Name(), structAttr, kind, ans); err != nil {
		log.Error().Err(err).Str("corpus", corp.Name()).Msg("failed to cache norms")
	}
	return ans, nil
}
