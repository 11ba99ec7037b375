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


// Package cleaner removes old data: cold archive records past their
// retention and cached computations (concordances, collocations,
// paradigmatic queries) not used for a configured time.
package cleaner

import (
	"concbench/reporting"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dtFormat = "2006-01-02T15:04:05"
)

// ArchiveCleaner removes old records of the cold store
// (see qpersist.Store)
type ArchiveCleaner interface {
	ClearOldArchiveRecords() (int64, error)
}

// CacheSweeper removes expired cached results
type CacheSweeper interface {
	SweepCache() (int, error)
}

// StatusStore keeps the time of the last cleanup
// (see archiver.RedisAdapter)
type StatusStore interface {
	Get(k string) (string, error)
	Set(k string, v any, ttl time.Duration) error
}

type Service struct {
	conf           *Conf
	archive        ArchiveCleaner
	sweepers       map[string]CacheSweeper
	status         StatusStore
	tz             *time.Location
	cleanupRunning atomic.Bool
	reporting      reporting.IReporting
}

func (job *Service) Start(ctx context.Context) {
	log.Info().
		Str("checkInterval", job.conf.CheckInterval().String()).
		Msg("starting cleaner.Service task")
	ticker := time.NewTicker(job.conf.CheckInterval())
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close Cleaner")
				return
			case <-ticker.C:
				if job.cleanupRunning.Load() {
					log.Warn().Msg("cannot run next cleanup - the previous not finished yet")

				} else if _, err := job.performCleanup(false); err != nil {
					log.Error().Err(err).Msg("failed to perform cleanup")
				}
			}
		}
	}()
}

func (job *Service) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping Cleaner")
	return nil
}

// lastCleanup returns the time of the last cleanup (zero time
// if there is no record)
func (job *Service) lastCleanup() (time.Time, error) {
	lastDateRaw, err := job.status.Get(job.conf.StatusKey)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"failed to fetch last cleanup date from Redis (key %s): %w", job.conf.StatusKey, err)
	}
	if lastDateRaw == "" {
		return time.Time{}, nil
	}
	ans, err := time.ParseInLocation(dtFormat, lastDateRaw, job.tz)
	if err != nil {
		return time.Time{}, fmt.Errorf(
			"failed to parse last cleanup date in Redis (key %s): %w", job.conf.StatusKey, err)
	}
	return ans, nil
}

// RunOnce performs a cleanup regardless of when the last one
// took place
func (job *Service) RunOnce() (reporting.CleanupStats, error) {
	return job.performCleanup(true)
}

func (job *Service) performCleanup(force bool) (reporting.CleanupStats, error) {
	var stats reporting.CleanupStats
	if !job.cleanupRunning.CompareAndSwap(false, true) {
		return stats, fmt.Errorf("another cleanup is running")
	}
	defer job.cleanupRunning.Store(false)
	t0 := time.Now()

	lastDate, err := job.lastCleanup()
	if err != nil {
		return stats, err
	}
	if !force && time.Since(lastDate) < job.conf.CheckInterval()/2 {
		log.Info().
			Time("lastCleanup", lastDate).
			Msg("cleanup performed recently by another instance, skipping")
		return stats, nil
	}
	log.Info().Time("lastCleanup", lastDate).Msg("performing cleanup")

	numRecs, err := job.archive.ClearOldArchiveRecords()
	if err != nil {
		log.Error().Err(err).Msg("failed to clean archive")
		stats.NumErrors++

	} else {
		stats.NumDeletedRecords = int(numRecs)
	}
	for name, sweeper := range job.sweepers {
		if !job.conf.sweepsCache(name) {
			continue
		}
		numFiles, err := sweeper.SweepCache()
		stats.NumDeletedFiles += numFiles
		if err != nil {
			log.Error().Err(err).Str("cache", name).Msg("failed to sweep cache")
			stats.NumErrors++
			continue
		}
		log.Debug().Str("cache", name).Int("numRemoved", numFiles).Msg("swept cache")
	}
	job.reporting.WriteCleanupStatus(stats)
	if err := job.status.Set(job.conf.StatusKey, time.Now().In(job.tz).Format(dtFormat), 0); err != nil {
		return stats, fmt.Errorf("failed to store cleanup date: %w", err)
	}
	log.Info().
		Any("stats", stats).
		Float64("procTime", time.Since(t0).Seconds()).
		Msg("cleanup done")
	return stats, nil
}

func NewService(
	archive ArchiveCleaner,
	sweepers map[string]CacheSweeper,
	status StatusStore,
	reporting reporting.IReporting,
	conf *Conf,
	tz *time.Location,
) *Service {
	return &Service{
		conf:      conf,
		archive:   archive,
		sweepers:  sweepers,
		status:    status,
		reporting: reporting,
		tz:        tz,
	}
}
