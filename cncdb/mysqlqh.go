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
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	qhColumns = "user_id, corpus_name, query_id, q_supertype, created, name"
)

func scanHistoryRows(rows *sql.Rows) ([]HistoryRecord, error) {
	defer rows.Close()
	ans := make([]HistoryRecord, 0, 100)
	for rows.Next() {
		var item HistoryRecord
		var name sql.NullString
		err := rows.Scan(
			&item.UserID, &item.CorpusName, &item.QueryID, &item.Supertype, &item.Created, &name)
		if err != nil {
			return []HistoryRecord{}, fmt.Errorf("failed to scan history row: %w", err)
		}
		item.Name = name.String
		ans = append(ans, item)
	}
	return ans, nil
}

func nullableName(name string) sql.NullString {
	return sql.NullString{String: name, Valid: name != ""}
}

// MySQLQueryHist provides access to the kontext_query_history table
type MySQLQueryHist struct {
	db *sql.DB
	tz *time.Location
}

func (ops *MySQLQueryHist) GetAllUsersWithSomeRecords() ([]int, error) {
	rows, err := ops.db.Query("SELECT DISTINCT user_id FROM kontext_query_history ORDER BY user_id")
	if err != nil {
		return []int{}, fmt.Errorf("failed to get users with history: %w", err)
	}
	defer rows.Close()
	ans := make([]int, 0, 4000)
	for rows.Next() {
		var userID int
		err := rows.Scan(&userID)
		if err != nil {
			return []int{}, fmt.Errorf("failed to get users with history: %w", err)
		}
		ans = append(ans, userID)
	}
	return ans, nil
}

func (ops *MySQLQueryHist) GetUserRecords(userID int, numItems int) ([]HistoryRecord, error) {
	rows, err := ops.db.Query(
		"SELECT "+qhColumns+" FROM kontext_query_history "+
			"WHERE user_id = ? ORDER BY created DESC LIMIT ?",
		userID, numItems,
	)
	if err != nil {
		return []HistoryRecord{}, fmt.Errorf("failed to get user query history: %w", err)
	}
	return scanHistoryRows(rows)
}

func (ops *MySQLQueryHist) InsertRecord(rec HistoryRecord) error {
	_, err := ops.db.Exec(
		"INSERT INTO kontext_query_history ("+qhColumns+") VALUES (?, ?, ?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE created = VALUES(created), "+
			"name = COALESCE(VALUES(name), name)",
		rec.UserID, rec.CorpusName, rec.QueryID, rec.Supertype, rec.Created, nullableName(rec.Name),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}
	return nil
}

func (ops *MySQLQueryHist) UpdateName(key HistoryKey, name string) (bool, error) {
	res, err := ops.db.Exec(
		"UPDATE kontext_query_history SET name = ? "+
			"WHERE user_id = ? AND query_id = ? AND created = ?",
		nullableName(name), key.UserID, key.QueryID, key.Created,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update history record name: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update history record name: %w", err)
	}
	if aff > 0 {
		return true, nil
	}
	if _, err := ops.GetRecord(key); err == nil {
		return true, nil
	}
	return false, nil
}

func (ops *MySQLQueryHist) RemoveRecord(key HistoryKey) error {
	_, err := ops.db.Exec(
		"DELETE FROM kontext_query_history WHERE user_id = ? AND query_id = ? AND created = ?",
		key.UserID, key.QueryID, key.Created,
	)
	if err != nil {
		return fmt.Errorf("failed to remove history record: %w", err)
	}
	return nil
}

func (ops *MySQLQueryHist) GetRecord(key HistoryKey) (HistoryRecord, error) {
	rows, err := ops.db.Query(
		"SELECT "+qhColumns+" FROM kontext_query_history "+
			"WHERE user_id = ? AND query_id = ? AND created = ?",
		key.UserID, key.QueryID, key.Created,
	)
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("failed to get history record: %w", err)
	}
	recs, err := scanHistoryRows(rows)
	if err != nil {
		return HistoryRecord{}, err
	}
	if len(recs) == 0 {
		return HistoryRecord{}, ErrRecordNotFound
	}
	return recs[0], nil
}

func (ops *MySQLQueryHist) FindRecords(userID int, filter HistoryFilter) ([]HistoryRecord, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if filter.CorpusName != "" {
		where = append(where, "corpus_name = ?")
		args = append(args, filter.CorpusName)
	}
	if filter.FromDate > 0 {
		where = append(where, "created >= ?")
		args = append(args, filter.FromDate)
	}
	if filter.ToDate > 0 {
		where = append(where, "created <= ?")
		args = append(args, filter.ToDate)
	}
	if filter.Supertype != "" {
		where = append(where, "q_supertype = ?")
		args = append(args, filter.Supertype)
	}
	if filter.ArchivedOnly {
		where = append(where, "name IS NOT NULL")
	}
	sqlq := "SELECT " + qhColumns + " FROM kontext_query_history WHERE " +
		strings.Join(where, " AND ") + " ORDER BY created DESC"
	if filter.Limit > 0 {
		sqlq += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := ops.db.Query(sqlq, args...)
	if err != nil {
		return []HistoryRecord{}, fmt.Errorf("failed to search query history: %w", err)
	}
	return scanHistoryRows(rows)
}

func (ops *MySQLQueryHist) DeleteOldRecords(
	userID int,
	numPreserve int,
	keepNamed func(HistoryRecord) bool,
) ([]HistoryRecord, error) {
	tx, err := ops.db.Begin()
	if err != nil {
		return []HistoryRecord{}, fmt.Errorf("failed to delete old history records: %w", err)
	}
	rows, err := tx.Query(
		"SELECT "+qhColumns+" FROM kontext_query_history WHERE user_id = ? FOR UPDATE", userID)
	if err != nil {
		tx.Rollback()
		return []HistoryRecord{}, fmt.Errorf("failed to delete old history records: %w", err)
	}
	recs, err := scanHistoryRows(rows)
	if err != nil {
		tx.Rollback()
		return []HistoryRecord{}, fmt.Errorf("failed to delete old history records: %w", err)
	}
	toDel := SelectDeletableHistory(recs, numPreserve, keepNamed)
	for _, rec := range toDel {
		_, err := tx.Exec(
			"DELETE FROM kontext_query_history WHERE user_id = ? AND query_id = ? AND created = ?",
			rec.UserID, rec.QueryID, rec.Created)
		if err != nil {
			tx.Rollback()
			return []HistoryRecord{}, fmt.Errorf("failed to delete old history records: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return []HistoryRecord{}, fmt.Errorf("failed to delete old history records: %w", err)
	}
	return toDel, nil
}

func (ops *MySQLQueryHist) TableSize() (int64, error) {
	row := ops.db.QueryRow("SELECT COUNT(*) FROM kontext_query_history")
	var ans int64
	if err := row.Scan(&ans); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get history table size: %w", err)
	}
	return ans, nil
}

func NewMySQLQueryHist(db *sql.DB, tz *time.Location) *MySQLQueryHist {
	return &MySQLQueryHist{db: db, tz: tz}
}
