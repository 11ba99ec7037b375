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
	"time"

	"github.com/rs/zerolog/log"
)

// MySQLConcArchDryRun is a dry-run mode version of mysql adapter. It performs
// read operations just like normal adapter but any modifying operation
// just logs itself.
type MySQLConcArchDryRun struct {
	db *MySQLConcArch
}

func (db *MySQLConcArchDryRun) LoadRecentNRecords(num int) ([]QueryArchRec, error) {
	return db.db.LoadRecentNRecords(num)
}

func (db *MySQLConcArchDryRun) LoadRecordsFromDate(fromDate time.Time, maxItems int) ([]QueryArchRec, error) {
	return db.db.LoadRecordsFromDate(fromDate, maxItems)
}

func (db *MySQLConcArchDryRun) LoadRecordByID(concID string) (QueryArchRec, error) {
	return db.db.LoadRecordByID(concID)
}

func (db *MySQLConcArchDryRun) ContainsRecord(concID string) (bool, error) {
	return db.db.ContainsRecord(concID)
}

func (db *MySQLConcArchDryRun) InsertRecord(rec QueryArchRec) error {
	log.Info().Msgf("DRY-RUN>>> InsertRecord(QueryArchRec{ID: %s})", rec.ID)
	return nil
}

func (db *MySQLConcArchDryRun) UpdateRecord(rec QueryArchRec) error {
	log.Info().Msgf("DRY-RUN>>> UpdateRecord(QueryArchRec{ID: %s})", rec.ID)
	return nil
}

func (db *MySQLConcArchDryRun) UpdateRecordStatus(id string, status int) error {
	log.Info().Msgf("DRY-RUN>>> UpdateRecordStatus(%s, %d)", id, status)
	return nil
}

func (db *MySQLConcArchDryRun) RegisterAccess(concID string, tm time.Time) (QueryArchRec, error) {
	log.Info().Msgf("DRY-RUN>>> RegisterAccess(%s, %v)", concID, tm)
	return db.db.LoadRecordByID(concID)
}

func (db *MySQLConcArchDryRun) RemoveRecordsByID(concID string) error {
	log.Info().Msgf("DRY-RUN>>> RemoveRecordsByID(%s)", concID)
	return nil
}

func (db *MySQLConcArchDryRun) RemoveOldRecords(olderThan time.Time, maxItems int) (int64, error) {
	log.Info().Msgf("DRY-RUN>>> RemoveOldRecords(%v, %d)", olderThan, maxItems)
	return 0, nil
}

func (db *MySQLConcArchDryRun) GetArchSizesByYears(forceLoad bool) ([][2]int, error) {
	return db.db.GetArchSizesByYears(forceLoad)
}

func (db *MySQLConcArchDryRun) GetSubcorpusProps(subcID string) (SubcProps, error) {
	return db.db.GetSubcorpusProps(subcID)
}

// --------------------------------------------------------------

// MySQLQueryHistDryRun is a dry-run mode version of mysql adapter. It performs
// read operations just like normal adapter but any modifying operation
// just logs its information.
type MySQLQueryHistDryRun struct {
	db *MySQLQueryHist
}

func (ops *MySQLQueryHistDryRun) GetAllUsersWithSomeRecords() ([]int, error) {
	return ops.db.GetAllUsersWithSomeRecords()
}

func (ops *MySQLQueryHistDryRun) GetUserRecords(userID int, numItems int) ([]HistoryRecord, error) {
	return ops.db.GetUserRecords(userID, numItems)
}

func (ops *MySQLQueryHistDryRun) InsertRecord(rec HistoryRecord) error {
	log.Info().Msgf("DRY-RUN>>> InsertRecord(%s)", rec.CreateIndexID())
	return nil
}

func (ops *MySQLQueryHistDryRun) UpdateName(key HistoryKey, name string) (bool, error) {
	log.Info().Msgf("DRY-RUN>>> UpdateName(%v, %s)", key, name)
	return true, nil
}

func (ops *MySQLQueryHistDryRun) RemoveRecord(key HistoryKey) error {
	log.Info().Msgf("DRY-RUN>>> RemoveRecord(%v)", key)
	return nil
}

func (ops *MySQLQueryHistDryRun) FindRecords(userID int, filter HistoryFilter) ([]HistoryRecord, error) {
	return ops.db.FindRecords(userID, filter)
}

func (ops *MySQLQueryHistDryRun) GetRecord(key HistoryKey) (HistoryRecord, error) {
	return ops.db.GetRecord(key)
}

func (ops *MySQLQueryHistDryRun) DeleteOldRecords(
	userID int,
	numPreserve int,
	keepNamed func(HistoryRecord) bool,
) ([]HistoryRecord, error) {
	recs, err := ops.db.GetUserRecords(userID, maxRecentRecords)
	if err != nil {
		return []HistoryRecord{}, err
	}
	ans := SelectDeletableHistory(recs, numPreserve, keepNamed)
	log.Info().Msgf("DRY-RUN>>> DeleteOldRecords(%d, %d) would remove %d items", userID, numPreserve, len(ans))
	return []HistoryRecord{}, nil
}

func (ops *MySQLQueryHistDryRun) TableSize() (int64, error) {
	return ops.db.TableSize()
}

func NewMySQLDryRun(opsArch *MySQLConcArch, opsHist *MySQLQueryHist) (*MySQLConcArchDryRun, *MySQLQueryHistDryRun) {
	return &MySQLConcArchDryRun{db: opsArch}, &MySQLQueryHistDryRun{db: opsHist}
}
