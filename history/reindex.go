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
	"concbench/cncdb"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	reindexProgressKey = "concbench_qh_reindex"
	finishedPrefix     = "finished-"
)

// ProgressStore keeps the state of a (possibly interrupted)
// reindexing (see archiver.RedisAdapter)
type ProgressStore interface {
	Get(k string) (string, error)
	Set(k string, v any, ttl time.Duration) error
}

// UserIndexer indexes history items of a single user
// (see indexer.Indexer)
type UserIndexer interface {
	IndexUserRecords(userID, numLatest int) (int, error)
}

// DataInitializer fills the fulltext index with existing query
// history. Users are processed in chunks in ascending order of their
// IDs; the last processed ID is stored so the next run can continue.
type DataInitializer struct {
	db          cncdb.IQHistArchOps
	progress    ProgressStore
	indexer     UserIndexer
	numPreserve int
	tz          *time.Location
}

// ReindexStats summarizes a single run of DataInitializer
type ReindexStats struct {
	NumUsers   int
	NumIndexed int
	Finished   bool
}

func (di *DataInitializer) lastProcessedUser() (int, bool, error) {
	v, err := di.progress.Get(reindexProgressKey)
	if err != nil {
		return -1, false, fmt.Errorf("failed to get reindexing progress: %w", err)
	}
	if v == "" {
		return -1, false, nil
	}
	if strings.HasPrefix(v, finishedPrefix) {
		return -1, true, nil
	}
	userID, err := strconv.Atoi(v)
	if err != nil {
		return -1, false, fmt.Errorf("invalid reindexing progress value `%s`: %w", v, err)
	}
	return userID, false, nil
}

// Run processes next `chunkSize` users. A finished reindexing
// is not repeated unless the progress key is removed.
func (di *DataInitializer) Run(ctx context.Context, chunkSize int) (ReindexStats, error) {
	var ans ReindexStats
	lastUser, finished, err := di.lastProcessedUser()
	if err != nil {
		return ans, err
	}
	if finished {
		log.Warn().
			Str("key", reindexProgressKey).
			Msg("it appears that a previous reindexing finished - to override, remove the key from Redis")
		ans.Finished = true
		return ans, nil
	}
	users, err := di.db.GetAllUsersWithSomeRecords()
	if err != nil {
		return ans, fmt.Errorf("failed to reindex query history: %w", err)
	}
	log.Info().
		Int("chunkSize", chunkSize).
		Int("lastProcessedUser", lastUser).
		Msg("processing next chunk of users")
	for _, userID := range users {
		if userID <= lastUser {
			continue
		}
		if ans.NumUsers >= chunkSize {
			log.Info().
				Int("numUsers", ans.NumUsers).
				Int("numIndexed", ans.NumIndexed).
				Msg("chunk processed")
			return ans, nil
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("interrupted by user")
			return ans, ctx.Err()
		default:
		}
		numIndexed, err := di.indexer.IndexUserRecords(userID, di.numPreserve)
		if err != nil {
			return ans, fmt.Errorf("failed to reindex records of user %d: %w", userID, err)
		}
		log.Info().
			Int("userId", userID).
			Int("numIndexed", numIndexed).
			Msg("processed user")
		ans.NumUsers++
		ans.NumIndexed += numIndexed
		if err := di.progress.Set(reindexProgressKey, strconv.Itoa(userID), 0); err != nil {
			return ans, fmt.Errorf("failed to store reindexing progress: %w", err)
		}
	}
	rec := fmt.Sprintf("%s%s", finishedPrefix, time.Now().In(di.tz).Format(time.RFC3339))
	log.Info().Msgf("no more items - writing '%s' to Redis and ending", rec)
	if err := di.progress.Set(reindexProgressKey, rec, 0); err != nil {
		return ans, fmt.Errorf("failed to write 'finished' record to Redis: %w", err)
	}
	ans.Finished = true
	return ans, nil
}

func NewDataInitializer(
	db cncdb.IQHistArchOps,
	progress ProgressStore,
	indexer UserIndexer,
	conf *Conf,
	tz *time.Location,
) *DataInitializer {
	return &DataInitializer{
		db:          db,
		progress:    progress,
		indexer:     indexer,
		numPreserve: conf.PreserveAmount,
		tz:          tz,
	}
}
