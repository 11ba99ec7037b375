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
)

// IConcArchOps is an abstract interface for high level
// database operations for the "cold" operation archive.
type IConcArchOps interface {
	LoadRecentNRecords(num int) ([]QueryArchRec, error)
	LoadRecordsFromDate(fromDate time.Time, maxItems int) ([]QueryArchRec, error)

	// LoadRecordByID returns ErrRecordNotFound if nothing is found
	LoadRecordByID(concID string) (QueryArchRec, error)
	ContainsRecord(concID string) (bool, error)

	// InsertRecord returns ErrDuplicateRecord in case the ID
	// is already present
	InsertRecord(rec QueryArchRec) error

	// UpdateRecord overwrites data of an existing record.
	// ErrRecordNotFound is returned for unknown IDs.
	UpdateRecord(rec QueryArchRec) error
	UpdateRecordStatus(id string, status int) error

	// RegisterAccess atomically increments access counter and
	// updates last access time. The updated record is returned.
	RegisterAccess(concID string, tm time.Time) (QueryArchRec, error)
	RemoveRecordsByID(concID string) error

	// RemoveOldRecords removes non-permanent records which were
	// last accessed before the `olderThan` limit.
	RemoveOldRecords(olderThan time.Time, maxItems int) (int64, error)

	// GetArchSizesByYears
	// Without forceReload, the function refuses to perform actual query outside
	// defined night time.
	// Returns list of pairs where FIRST item is always YEAR, the SECOND one is COUNT
	GetArchSizesByYears(forceLoad bool) ([][2]int, error)

	// GetSubcorpusProps takes a subcorpus "hash" ID and returns
	// a corresponding name defined by the author.
	// The method should accept empty value by responding
	// with empty value (and without error).
	GetSubcorpusProps(subcID string) (SubcProps, error)
}

// IQHistArchOps is an abstract interface for the query history table
type IQHistArchOps interface {
	GetAllUsersWithSomeRecords() ([]int, error)

	// GetUserRecords returns newest `numItems` records
	GetUserRecords(userID int, numItems int) ([]HistoryRecord, error)

	// InsertRecord inserts a new record. In case the
	// same (user, corpus, query) already exists, its creation time
	// is updated instead.
	InsertRecord(rec HistoryRecord) error

	// UpdateName sets a name of a matching record. It returns
	// false in case there is no such record.
	UpdateName(key HistoryKey, name string) (bool, error)
	RemoveRecord(key HistoryKey) error
	FindRecords(userID int, filter HistoryFilter) ([]HistoryRecord, error)
	GetRecord(key HistoryKey) (HistoryRecord, error)

	// DeleteOldRecords removes (in a single transaction) records
	// of a user selected by SelectDeletableHistory and returns them.
	DeleteOldRecords(userID int, numPreserve int, keepNamed func(HistoryRecord) bool) ([]HistoryRecord, error)
	TableSize() (int64, error)
}

// ISubcArchOps is an abstract interface for the subcorpus table
type ISubcArchOps interface {
	GetSubcorpus(id string) (SubcorpusRecord, error)
	GetSubcorpusByName(corpusName, name string, userID int) (SubcorpusRecord, error)
	InsertSubcorpus(rec SubcorpusRecord) error
	UpdateSubcorpus(rec SubcorpusRecord) error
	SetArchived(id string, tm *time.Time) error

	// Disassociate sets user_id to NULL and the `archived` time
	// in case it has not been set yet.
	Disassociate(id string, tm time.Time) error
	ListSubcorpora(filter SubcListFilter) ([]SubcorpusRecord, error)
	GetNames(ids []string) (map[string]string, error)
}
