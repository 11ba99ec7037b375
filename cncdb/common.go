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
	"errors"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateEntry = 1062
)

var (
	ErrTooDemandingQuery = errors.New("too demanding query")
)

func TimeIsAtNight(t time.Time) bool {
	return t.Hour() >= 22 || t.Hour() <= 5
}

func isDuplicateEntry(err error) bool {
	var mErr *mysql.MySQLError
	return errors.As(err, &mErr) && mErr.Number == mysqlErrDuplicateEntry
}

// SelectDeletableHistory decides which history records of a single user
// should be removed. Newest `numPreserve` unnamed records are kept, named
// records are kept in case `keepNamed` confirms them (typically by
// testing that the referenced operation still exists).
// The `recs` slice does not have to be sorted.
func SelectDeletableHistory(
	recs []HistoryRecord,
	numPreserve int,
	keepNamed func(HistoryRecord) bool,
) []HistoryRecord {
	sorted := make([]HistoryRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created > sorted[j].Created
	})
	ans := make([]HistoryRecord, 0, len(sorted))
	var numUnnamed int
	for _, rec := range sorted {
		if rec.Name != "" {
			if keepNamed == nil || keepNamed(rec) {
				continue
			}
			ans = append(ans, rec)
			continue
		}
		numUnnamed++
		if numUnnamed > numPreserve {
			ans = append(ans, rec)
		}
	}
	return ans
}
