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
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// archQueue is the part of RedisAdapter the ArchKeeper depends on
type archQueue interface {
	NextNArchItems(n int64) ([]queueRecord, error)
	AddError(item queueRecord, rec *cncdb.QueryArchRec) error
	Get(k string) (string, error)
	Set(k string, v any, ttl time.Duration) error
	QueueSize() (int64, error)
}

// ArchKeeper is a background job processing the archiving queue. Archive
// requests are passed to a RecordArchiver, query history items to
// a HistoryListener (if any).
type ArchKeeper struct {
	queue              archQueue
	archiver           RecordArchiver
	histListener       HistoryListener
	dbArch             cncdb.IConcArchOps
	dedup              *Deduplicator
	reporting          reporting.IReporting
	checkInterval      time.Duration
	checkIntervalChunk int
	tz                 *time.Location
	statsLock          sync.Mutex
	stats              reporting.OpStats
}

func (job *ArchKeeper) Start(ctx context.Context) {
	ticker := time.NewTicker(job.checkInterval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close ArchKeeper")
				return
			case <-ticker.C:
				if err := job.performCheck(ctx); err != nil {
					log.Error().Err(err).Msg("archiving check failed")
				}
			}
		}
	}()
}

func (job *ArchKeeper) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping ArchKeeper")
	if err := job.dedup.OnClose(); err != nil {
		return fmt.Errorf("failed to stop ArchKeeper properly: %w", err)
	}
	return nil
}

// SetHistoryListener sets a consumer of query history items.
// It must be called before Start.
func (job *ArchKeeper) SetHistoryListener(listener HistoryListener) {
	job.histListener = listener
}

func (job *ArchKeeper) GetStats() reporting.OpStats {
	job.statsLock.Lock()
	defer job.statsLock.Unlock()
	return job.stats
}

func (job *ArchKeeper) Deduplicator() *Deduplicator {
	return job.dedup
}

func (job *ArchKeeper) LoadRecordByID(concID string) (cncdb.QueryArchRec, error) {
	return job.dbArch.LoadRecordByID(concID)
}

func (job *ArchKeeper) handleArchiveReq(ctx context.Context, item queueRecord, currStats *reporting.OpStats) {
	numIns, err := job.archiver.Archive(ctx, item.KeyCode(), item.Explicit)
	if err != nil {
		log.Error().
			Err(err).
			Str("recordId", item.Key).
			Msg("failed to archive record, skipping")
		if err := job.queue.AddError(item, nil); err != nil {
			log.Error().Err(err).Msg("failed to insert error key")
		}
		currStats.NumErrors++
		return
	}
	if numIns == 0 {
		currStats.NumDuplicates++

	} else {
		currStats.NumInserted += numIns
	}
}

func (job *ArchKeeper) handleHistoryReq(item queueRecord, currStats *reporting.OpStats) {
	currStats.NumHistory++
	if job.histListener != nil {
		job.histListener.OnHistoryItem(item.HistoryRecord())
	}
}

func (job *ArchKeeper) performCheck(ctx context.Context) error {
	items, err := job.queue.NextNArchItems(int64(job.checkIntervalChunk))
	log.Debug().
		AnErr("error", err).
		Int("itemsToProcess", len(items)).
		Msg("doing regular check")
	if err != nil {
		return fmt.Errorf("failed to fetch next queued chunk: %w", err)
	}
	var currStats reporting.OpStats
	for _, item := range items {
		currStats.NumFetched++
		switch {
		case item.IsHistory():
			job.handleHistoryReq(item, &currStats)
		case item.IsArchive():
			job.handleArchiveReq(ctx, item, &currStats)
		default:
			log.Warn().Str("type", string(item.Type)).Msg("unknown queue item type, skipping")
			currStats.NumErrors++
		}
	}
	if currStats.ShowsActivity() {
		log.Info().
			Int("numInserted", currStats.NumInserted).
			Int("numDuplicates", currStats.NumDuplicates).
			Int("numErrors", currStats.NumErrors).
			Int("numFetched", currStats.NumFetched).
			Int("numHistory", currStats.NumHistory).
			Msg("regular archiving report")
		job.reporting.WriteOperationsStatus(currStats)
	}
	job.statsLock.Lock()
	job.stats.UpdateBy(currStats)
	job.statsLock.Unlock()
	return nil
}

func NewArchKeeper(
	queue *RedisAdapter,
	archiver RecordArchiver,
	dbArch cncdb.IConcArchOps,
	dedup *Deduplicator,
	reporting reporting.IReporting,
	tz *time.Location,
	conf *Conf,
) *ArchKeeper {
	ans := &ArchKeeper{
		archiver:           archiver,
		dbArch:             dbArch,
		dedup:              dedup,
		reporting:          reporting,
		tz:                 tz,
		checkInterval:      conf.CheckInterval(),
		checkIntervalChunk: conf.CheckIntervalChunk,
	}
	if queue != nil {
		ans.queue = queue
	}
	return ans
}
