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

package concord

import (
	"concbench/apperr"
	"concbench/engine"
	"concbench/fcache"
	"concbench/kcache"
	"concbench/worker"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SubcorpusResolver provides token ranges of subcorpora
type SubcorpusResolver interface {
	SubcorpusRanges(corp engine.Corpus, subcID string) ([]engine.Range, error)
}

// Args specifies a concordance
type Args struct {
	Corpora   []string
	Subcorpus string
	Q         []string

	// Cutoff limits the number of lines of the initial query
	// (0 = no limit)
	Cutoff int
}

func (args Args) entryKey(q []string) kcache.EntryKey {
	return kcache.EntryKey{
		Corpus:    args.Corpora[0],
		Subcorpus: args.Subcorpus,
		Q:         q,
		Cutoff:    args.Cutoff,
	}
}

// Materializer translates operation chains into concordances. Results
// are cached on disk, their status is tracked in a StatusStore shared
// with other instances.
type Materializer struct {
	conf       *Conf
	corpora    engine.Provider
	subcorpora SubcorpusResolver
	status     kcache.StatusStore
	files      *fcache.Cache
	pool       *worker.Pool
	meter      *kcache.Meter

	// mu serializes status record changes of this instance
	mu sync.Mutex
}

func (m *Materializer) Conf() *Conf {
	return m.conf
}

func (m *Materializer) Corpora() engine.Provider {
	return m.corpora
}

func (m *Materializer) prepareComputation(args Args) (*computation, error) {
	if len(args.Corpora) == 0 {
		return nil, apperr.NewConcordanceQueryParamsError("no corpus specified", nil)
	}
	primary, err := m.corpora.Corpus(args.Corpora[0])
	if err != nil {
		return nil, apperr.NewNotFoundError("corpus %s not found", args.Corpora[0])
	}
	ans := &computation{
		primary: primary,
		aligned: make(map[string]engine.Corpus),
		cutoff:  args.Cutoff,
	}
	for _, al := range args.Corpora[1:] {
		corp, err := m.corpora.Corpus(al)
		if err != nil {
			return nil, apperr.NewNotFoundError("corpus %s not found", al)
		}
		ans.aligned[al] = corp
	}
	if args.Subcorpus != "" {
		if m.subcorpora == nil {
			return nil, apperr.NewConcordanceSpecificationError("subcorpora not supported", nil)
		}
		ranges, err := m.subcorpora.SubcorpusRanges(primary, args.Subcorpus)
		if err != nil {
			return nil, err
		}
		ans.subcRanges = engine.MergeRanges(ranges)
	}
	return ans, nil
}

func (m *Materializer) loadResult(key kcache.EntryKey) (*result, error) {
	var ans result
	if err := m.files.ReadJSON(key.Field(), &ans); err != nil {
		return nil, err
	}
	return &ans, nil
}

func (m *Materializer) searchSize(comp *computation) int {
	if comp.subcRanges != nil {
		return engine.RangesSize(comp.subcRanges)
	}
	return comp.primary.Size()
}

// storeResult writes a result file and marks the respective status
// record as finished
func (m *Materializer) storeResult(
	comp *computation,
	key kcache.EntryKey,
	res *result,
	taskID string,
	created time.Time,
) (kcache.CacheEntry, error) {
	if err := m.files.WriteJSON(key.Field(), res); err != nil {
		return kcache.CacheEntry{}, fmt.Errorf("failed to store concordance: %w", err)
	}
	entry := kcache.CacheEntry{
		TaskID:    taskID,
		ConcSize:  len(res.Lines),
		FullSize:  res.FullSize,
		Finished:  true,
		Q0Hash:    kcache.EntryKey{Corpus: key.Corpus, Subcorpus: key.Subcorpus, Q: key.Q[:1]}.Field(),
		CacheFile: m.files.Path(key.Field()),
		Readable:  true,
		PID:       os.Getpid(),
		Created:   kcache.UnixTimeFloat(created),
		LastUpd:   kcache.UnixTimeFloat(time.Now()),
	}
	if size := m.searchSize(comp); size > 0 {
		entry.RelConcSize = float64(res.FullSize) / float64(size) * 1e6
	}
	if !res.Sampled && res.FullRatio == 1 {
		positions := make([]int, len(res.Lines))
		for i, line := range res.Lines {
			positions[i] = line.Main.Start
		}
		entry.Arf = engine.ARF(positions, comp.primary.Size())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.status.Set(key, entry); err != nil {
		return kcache.CacheEntry{}, err
	}
	return entry, nil
}

func (m *Materializer) storeError(key kcache.EntryKey, taskID string, created time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := kcache.CacheEntry{
		TaskID:   taskID,
		Finished: true,
		PID:      os.Getpid(),
		Created:  kcache.UnixTimeFloat(created),
		LastUpd:  kcache.UnixTimeFloat(time.Now()),
		Error:    err.Error(),
	}
	if err2 := m.status.Set(key, entry); err2 != nil {
		log.Error().Err(err2).Str("corpus", key.Corpus).Msg("failed to store conc cache error")
	}
}

// cachedResult returns a finished and readable result or nil
func (m *Materializer) cachedResult(key kcache.EntryKey) *result {
	entry, err := m.status.Get(key)
	if err != nil || !entry.Finished || entry.Error != "" {
		return nil
	}
	res, err := m.loadResult(key)
	if err != nil {
		return nil
	}
	return res
}

// compute evaluates a chain, reusing the longest cached prefix.
// All the intermediate results are cached too.
func (m *Materializer) compute(
	ctx context.Context,
	comp *computation,
	args Args,
	ops []Operation,
	taskID string,
) (*result, error) {
	t0 := time.Now()
	var res *result
	start := 0
	for k := len(args.Q) - 1; k > 0; k-- {
		if cached := m.cachedResult(args.entryKey(args.Q[:k])); cached != nil {
			res = cached
			start = k
			break
		}
	}
	for i := start; i < len(ops); i++ {
		var err error
		res, err = comp.apply(ctx, res, ops[i], args.Q[:i+1])
		if err != nil {
			return nil, err
		}
		key := args.entryKey(args.Q[:i+1])
		if i < len(ops)-1 {
			if _, err := m.storeResult(comp, key, res, taskID, t0); err != nil {
				log.Warn().Err(err).Str("corpus", key.Corpus).Msg("failed to cache intermediate concordance")
			}
			continue
		}
		entry, err := m.storeResult(comp, key, res, taskID, t0)
		if err != nil {
			return nil, err
		}
		m.meter.RegisterEntry(
			entry, comp.primary.Name(), int64(comp.primary.Size()),
			int64(engine.RangesSize(comp.subcRanges)), args.Q[0])
	}
	return res, nil
}

// GetConc returns a concordance specified by `args`. In the asynchronous
// mode, the concordance may be unfinished (see Concordance.Finished).
// Otherwise, the call blocks until the concordance is ready.
func (m *Materializer) GetConc(ctx context.Context, args Args, asnc bool) (*Concordance, error) {
	ops, err := ParseOperations(args.Q)
	if err != nil {
		return nil, err
	}
	comp, err := m.prepareComputation(args)
	if err != nil {
		return nil, err
	}
	key := args.entryKey(args.Q)
	conc := &Concordance{
		args: args,
		key:  key,
		comp: comp,
		mat:  m,
	}
	if res := m.cachedResult(key); res != nil {
		conc.res = res
		return conc, nil
	}
	fut, err := m.ensureTask(comp, args, ops)
	if err != nil {
		return nil, err
	}
	conc.future = fut
	if !asnc {
		if err := conc.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return conc, nil
}

// ensureTask finds a running computation of a concordance or starts
// a new one
func (m *Materializer) ensureTask(comp *computation, args Args, ops []Operation) (*worker.Future, error) {
	key := args.entryKey(args.Q)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.status.Get(key)
	if err == nil && !entry.Finished && entry.TaskID != "" {
		if fut, ok := m.pool.Get(entry.TaskID); ok {
			return fut, nil
		}
		log.Warn().
			Str("corpus", key.Corpus).
			Str("taskId", entry.TaskID).
			Msg("found orphaned concordance computation, starting a new one")

	} else if err == nil && entry.Error != "" {
		log.Info().
			Str("corpus", key.Corpus).
			Str("error", entry.Error).
			Msg("previous concordance computation failed, trying again")

	} else if err != nil && !errors.Is(err, kcache.ErrEntryNotFound) {
		return nil, fmt.Errorf("failed to get concordance status: %w", err)
	}
	created := time.Now()
	var fut *worker.Future
	submitted := make(chan struct{})
	fut = m.pool.SubmitUnique(key.Field(), worker.TaskConcRegister, func(ctx context.Context) (any, error) {
		<-submitted
		ans, err := m.compute(ctx, comp, args, ops, fut.ID())
		if err != nil {
			m.storeError(key, fut.ID(), created, err)
			return nil, err
		}
		return ans, nil
	})
	close(submitted)
	pending := kcache.CacheEntry{
		TaskID:  fut.ID(),
		PID:     os.Getpid(),
		Created: kcache.UnixTimeFloat(created),
		LastUpd: kcache.UnixTimeFloat(created),
	}
	if fut.Done() {
		return fut, nil
	}
	if err := m.status.Set(key, pending); err != nil {
		return nil, fmt.Errorf("failed to set concordance status: %w", err)
	}
	return fut, nil
}

// Status returns the status record of a concordance
func (m *Materializer) Status(args Args) (kcache.CacheEntry, error) {
	if len(args.Corpora) == 0 {
		return kcache.CacheEntry{}, kcache.ErrEntryNotFound
	}
	return m.status.Get(args.entryKey(args.Q))
}

// SweepCache removes concordances not accessed for the configured time
// and status records of computations which got lost
func (m *Materializer) SweepCache() (int, error) {
	maxAge := m.conf.CacheMaxAgeDur()
	var numRemoved int
	for _, corpname := range m.corpora.CorporaNames() {
		entries, err := m.status.List(corpname)
		if err != nil {
			return numRemoved, err
		}
		for field, entry := range entries {
			var expired bool
			if entry.Finished {
				info, err := os.Stat(m.files.Path(field))
				expired = err != nil || time.Since(info.ModTime()) > maxAge

			} else {
				_, running := m.pool.Get(entry.TaskID)
				expired = !running && time.Since(entry.LastUpdTime()) > maxAge
			}
			if !expired {
				continue
			}
			m.mu.Lock()
			err := m.status.DelField(corpname, field)
			m.mu.Unlock()
			if err != nil {
				return numRemoved, err
			}
			if err := m.files.Remove(field); err != nil {
				log.Warn().Err(err).Str("field", field).Msg("failed to remove concordance file")
			}
			numRemoved++
		}
	}
	numFiles, err := m.files.Sweep(maxAge)
	if err != nil {
		return numRemoved, err
	}
	log.Debug().
		Int("numRecords", numRemoved).
		Int("numFiles", numFiles).
		Msg("swept concordance cache")
	return numRemoved, nil
}

func NewMaterializer(
	conf *Conf,
	corpora engine.Provider,
	subcorpora SubcorpusResolver,
	status kcache.StatusStore,
	pool *worker.Pool,
	meter *kcache.Meter,
) *Materializer {
	return &Materializer{
		conf:       conf,
		corpora:    corpora,
		subcorpora: subcorpora,
		status:     status,
		files:      fcache.New(conf.CacheDir, dfltCacheFileExt),
		pool:       pool,
		meter:      meter,
	}
}
