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

// Package freqdb provides frequency databases of positional attributes.
// A database contains absolute and average reduced frequencies of all the
// values of an attribute within a corpus or a subcorpus. Databases are
// built by the `build_arf_db` background task and stored on disk.
package freqdb

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/engine"
	"concbench/fcache"
	"concbench/util"
	"concbench/worker"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry contains frequencies of a single value
type Entry struct {
	Freq int     `json:"f"`
	ARF  float64 `json:"arf"`
}

// DB is a frequency database. Size is the number of positions
// of the corpus (or subcorpus).
type DB struct {
	Corpus    string           `json:"corpus"`
	Subcorpus string           `json:"subcorpus"`
	Attr      string           `json:"attr"`
	Size      int              `json:"size"`
	Items     map[string]Entry `json:"items"`
}

// Store loads and builds frequency databases. Loaded databases
// are kept in memory.
type Store struct {
	files      *fcache.Cache
	corpora    engine.Provider
	subcorpora concord.SubcorpusResolver
	pool       *worker.Pool

	mu     sync.Mutex
	loaded map[string]*DB
}

func dbKey(corpus, subcorpus, attr string) string {
	return util.ContentHash(corpus, subcorpus, attr)
}

// Get returns an existing database. In case it has not been built
// yet, MissingSubCorpFreqFile error is returned.
func (st *Store) Get(corpus, subcorpus, attr string) (*DB, error) {
	key := dbKey(corpus, subcorpus, attr)
	st.mu.Lock()
	ans, ok := st.loaded[key]
	st.mu.Unlock()
	if ok {
		return ans, nil
	}
	var db DB
	if err := st.files.ReadJSON(key, &db); errors.Is(err, fcache.ErrCacheMiss) {
		return nil, apperr.NewMissingSubCorpFreqFile(st.files.Path(key))

	} else if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.loaded[key] = &db
	st.mu.Unlock()
	return &db, nil
}

func (st *Store) corpusRanges(corp engine.Corpus, subcorpus string) ([]engine.Range, error) {
	if subcorpus == "" {
		return []engine.Range{{Start: 0, End: corp.Size()}}, nil
	}
	if st.subcorpora == nil {
		return nil, apperr.NewConcordanceSpecificationError("subcorpora not supported", nil)
	}
	return st.subcorpora.SubcorpusRanges(corp, subcorpus)
}

// Calc calculates a database without storing it
func (st *Store) Calc(corpus, subcorpus, attr string) (*DB, error) {
	corp, err := st.corpora.Corpus(corpus)
	if err != nil {
		return nil, apperr.NewConcordanceSpecificationError(err.Error(), err)
	}
	if !corp.HasPosAttr(attr) {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("unknown attribute `%s` in %s", attr, corpus), nil)
	}
	ranges, err := st.corpusRanges(corp, subcorpus)
	if err != nil {
		return nil, err
	}
	// positions are relative to the concatenation of ranges
	positions := make(map[string][]int)
	var offset int
	for _, rng := range ranges {
		for pos := rng.Start; pos < rng.End; pos++ {
			v := corp.Value(attr, pos)
			positions[v] = append(positions[v], offset+pos-rng.Start)
		}
		offset += rng.Len()
	}
	ans := &DB{
		Corpus:    corpus,
		Subcorpus: subcorpus,
		Attr:      attr,
		Size:      offset,
		Items:     make(map[string]Entry, len(positions)),
	}
	for v, pp := range positions {
		ans.Items[v] = Entry{Freq: len(pp), ARF: engine.ARF(pp, offset)}
	}
	return ans, nil
}

// Build calculates and stores a database
func (st *Store) Build(corpus, subcorpus, attr string) (*DB, error) {
	t0 := time.Now()
	db, err := st.Calc(corpus, subcorpus, attr)
	if err != nil {
		return nil, err
	}
	key := dbKey(corpus, subcorpus, attr)
	if err := st.files.WriteJSON(key, db); err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.loaded[key] = db
	st.mu.Unlock()
	log.Info().
		Str("corpus", corpus).
		Str("subcorpus", subcorpus).
		Str("attr", attr).
		Int("numItems", len(db.Items)).
		Dur("procTime", time.Since(t0)).
		Msg("built frequency database")
	return db, nil
}

// BuildAsync starts building a database as a background task
// (unless the same database is already being built)
func (st *Store) BuildAsync(corpus, subcorpus, attr string) *worker.Future {
	return st.pool.SubmitUnique(
		worker.TaskBuildArfDB+":"+dbKey(corpus, subcorpus, attr),
		worker.TaskBuildArfDB,
		func(ctx context.Context) (any, error) {
			return st.Build(corpus, subcorpus, attr)
		},
	)
}

// GetOrBuild returns a database, building it synchronously if needed
func (st *Store) GetOrBuild(ctx context.Context, corpus, subcorpus, attr string) (*DB, error) {
	db, err := st.Get(corpus, subcorpus, attr)
	if err == nil {
		return db, nil
	}
	if !errors.Is(err, apperr.MissingSubCorpFreqFile) {
		return nil, err
	}
	ans, err := st.BuildAsync(corpus, subcorpus, attr).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return ans.(*DB), nil
}

func NewStore(
	files *fcache.Cache,
	corpora engine.Provider,
	subcorpora concord.SubcorpusResolver,
	pool *worker.Pool,
) *Store {
	return &Store{
		files:      files,
		corpora:    corpora,
		subcorpora: subcorpora,
		pool:       pool,
		loaded:     make(map[string]*DB),
	}
}
