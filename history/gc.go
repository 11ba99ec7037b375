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
	"concbench/reporting"
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	timeWaitAfterDelErrors = 5 * time.Minute
)

// IndexSizer reports number of indexed documents
// (see indexer.Indexer)
type IndexSizer interface {
	DocCount() (uint64, error)
}

// GarbageCollector periodically removes old history items
type GarbageCollector struct {
	service       *Service
	index         IndexSizer
	checkInterval time.Duration
	statusWriter  reporting.IReporting
}

// runOnce performs a single cleanup and writes its status
func (gc *GarbageCollector) runOnce(ctx context.Context) reporting.QueryHistoryDelStats {
	delStats, err := gc.service.DeleteOldRecords(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to delete old query history records")
		delStats.NumErrors++
	}
	tableSize, err := gc.service.TableSize()
	if err != nil {
		delStats.NumErrors++
		log.Error().Err(err).Msg("failed to obtain query history table size")

	} else {
		delStats.SQLTableSize = tableSize
	}
	if gc.index != nil {
		indexSize, err := gc.index.DocCount()
		if err != nil {
			delStats.NumErrors++
			log.Error().Err(err).Msg("failed to obtain fulltext index size")

		} else {
			delStats.IndexSize = int64(indexSize)
		}
	}
	log.Info().
		Int("numDeleted", delStats.NumDeleted).
		Int("numErrors", delStats.NumErrors).
		Int64("tableSize", delStats.SQLTableSize).
		Msg("query history cleanup finished")
	gc.statusWriter.WriteQueryHistoryDeletionStatus(delStats)
	return delStats
}

func (gc *GarbageCollector) Start(ctx context.Context) {
	log.Info().
		Str("checkInterval", gc.checkInterval.String()).
		Msg("starting history.GarbageCollector task")
	go func() {
		timer := time.NewTimer(gc.checkInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close history.GarbageCollector")
				return
			case <-timer.C:
				delStats := gc.runOnce(ctx)
				if delStats.NumErrors == 0 {
					timer.Reset(gc.checkInterval)

				} else {
					log.Error().
						Msgf(
							"errors in deleting of old records - going to wait %01.1f minutes then continue",
							timeWaitAfterDelErrors.Minutes(),
						)
					timer.Reset(timeWaitAfterDelErrors + gc.checkInterval)
				}
			}
		}
	}()
}

func (gc *GarbageCollector) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping history.GarbageCollector task")
	return nil
}

func NewGarbageCollector(
	service *Service,
	index IndexSizer,
	statusWriter reporting.IReporting,
	conf *Conf,
) *GarbageCollector {
	return &GarbageCollector{
		service:       service,
		index:         index,
		statusWriter:  statusWriter,
		checkInterval: conf.CleanupIntervalDur(),
	}
}
