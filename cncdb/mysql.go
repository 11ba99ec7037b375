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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

const (
	maxRecentRecords = 1000
	dfltPoolSize     = 20
)

type DBConf struct {
	Host     string `json:"host"`
	Name     string `json:"name"`
	User     string `json:"user"`
	Password string `json:"password"`
	PoolSize int    `json:"poolSize"`
}

func (conf *DBConf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing database configuration")
	}
	if conf.Host == "" || conf.Name == "" {
		return fmt.Errorf("database host and name must be specified")
	}
	if conf.PoolSize == 0 {
		conf.PoolSize = dfltPoolSize
		log.Warn().Int("value", conf.PoolSize).Msg("db poolSize not specified, using default")
	}
	return nil
}

func DBOpen(conf *DBConf) (*sql.DB, error) {
	mconf := mysql.NewConfig()
	mconf.Net = "tcp"
	mconf.Addr = conf.Host
	mconf.User = conf.User
	mconf.Passwd = conf.Password
	mconf.DBName = conf.Name
	mconf.ParseTime = true
	mconf.Loc = time.Local
	mconf.Params = map[string]string{"autocommit": "true"}
	db, err := sql.Open("mysql", mconf.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sql database: %w", err)
	}
	if conf.PoolSize > 0 {
		db.SetMaxOpenConns(conf.PoolSize)
		db.SetMaxIdleConns(conf.PoolSize / 2)
	}
	return db, nil
}

func generateRows(sqlRows *sql.Rows, expectedSize int) ([]QueryArchRec, error) {
	defer sqlRows.Close()
	ans := make([]QueryArchRec, 0, expectedSize)
	for sqlRows.Next() {
		var item QueryArchRec
		err := sqlRows.Scan(&item.ID, &item.Data, &item.Created, &item.NumAccess, &item.LastAccess, &item.Permanent)
		if err != nil {
			return []QueryArchRec{}, fmt.Errorf("failed to load records: %w", err)
		}
		ans = append(ans, item)
	}
	return ans, nil
}

// MySQLConcArch is the "cold" archive of operation records
// (table kontext_conc_persistence)
type MySQLConcArch struct {
	db *sql.DB
	tz *time.Location
}

func (ops *MySQLConcArch) LoadRecentNRecords(num int) ([]QueryArchRec, error) {
	// we use helperLimit to help partitioned table with millions of items
	// to avoid going through all the partitions
	helperLimit := time.Now().In(ops.tz).Add(-180 * 24 * time.Hour)
	if num > maxRecentRecords {
		return []QueryArchRec{}, fmt.Errorf("cannot load more than %d records at a time", maxRecentRecords)
	}
	rows, err := ops.db.Query(
		"SELECT id, data, created, num_access, last_access, permanent "+
			"FROM kontext_conc_persistence "+
			"WHERE created >= ? "+
			"ORDER BY created DESC LIMIT ?", helperLimit, num)
	if err != nil {
		return []QueryArchRec{}, fmt.Errorf("failed to load recent records: %w", err)
	}
	return generateRows(rows, num)
}

func (ops *MySQLConcArch) LoadRecordsFromDate(fromDate time.Time, maxItems int) ([]QueryArchRec, error) {
	rows, err := ops.db.Query(
		"SELECT id, data, created, num_access, last_access, permanent "+
			"FROM kontext_conc_persistence "+
			"WHERE created >= ? "+
			"ORDER BY created LIMIT ?", fromDate, maxItems)
	if err != nil {
		return []QueryArchRec{}, fmt.Errorf("failed to load records: %w", err)
	}
	return generateRows(rows, maxItems)
}

func (ops *MySQLConcArch) LoadRecordByID(concID string) (QueryArchRec, error) {
	row := ops.db.QueryRow(
		"SELECT id, data, created, num_access, last_access, permanent "+
			"FROM kontext_conc_persistence WHERE id = ? LIMIT 1", concID)
	var item QueryArchRec
	err := row.Scan(&item.ID, &item.Data, &item.Created, &item.NumAccess, &item.LastAccess, &item.Permanent)
	if errors.Is(err, sql.ErrNoRows) {
		return QueryArchRec{}, ErrRecordNotFound

	} else if err != nil {
		return QueryArchRec{}, fmt.Errorf("failed to get record %s: %w", concID, err)
	}
	return item, nil
}

func (ops *MySQLConcArch) ContainsRecord(concID string) (bool, error) {
	row := ops.db.QueryRow("SELECT COUNT(*) FROM kontext_conc_persistence "+
		"WHERE id = ? LIMIT 1", concID)
	var ans bool
	if err := row.Scan(&ans); err != nil {
		return false, fmt.Errorf("failed to test existence of record %s: %w", concID, err)
	}
	return ans, nil
}

func (ops *MySQLConcArch) InsertRecord(rec QueryArchRec) error {
	_, err := ops.db.Exec(
		"INSERT INTO kontext_conc_persistence (id, data, created, num_access, last_access, permanent) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Data, rec.Created, rec.NumAccess, rec.LastAccess, rec.Permanent,
	)
	if isDuplicateEntry(err) {
		return ErrDuplicateRecord

	} else if err != nil {
		return fmt.Errorf("failed to insert archive record: %w", err)
	}
	return nil
}

func (ops *MySQLConcArch) UpdateRecord(rec QueryArchRec) error {
	res, err := ops.db.Exec(
		"UPDATE kontext_conc_persistence SET data = ?, permanent = ? WHERE id = ?",
		rec.Data, rec.Permanent, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	if aff == 0 {
		// MySQL reports zero affected rows also for unchanged data
		ok, err := ops.ContainsRecord(rec.ID)
		if err != nil {
			return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
		}
		if !ok {
			return ErrRecordNotFound
		}
	}
	return nil
}

func (ops *MySQLConcArch) UpdateRecordStatus(id string, status int) error {
	res, err := ops.db.Exec(
		"UPDATE kontext_conc_persistence SET permanent = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	if aff == 0 {
		ok, err := ops.ContainsRecord(id)
		if err != nil {
			return fmt.Errorf("failed to update status of %s: %w", id, err)
		}
		if !ok {
			return fmt.Errorf("cannot update record status of %s: %w", id, ErrRecordNotFound)
		}
	}
	return nil
}

func (ops *MySQLConcArch) RegisterAccess(concID string, tm time.Time) (QueryArchRec, error) {
	tx, err := ops.db.Begin()
	if err != nil {
		return QueryArchRec{}, fmt.Errorf("failed to register access of %s: %w", concID, err)
	}
	_, err = tx.Exec(
		"UPDATE kontext_conc_persistence "+
			"SET num_access = num_access + 1, last_access = ? WHERE id = ?", tm, concID)
	if err != nil {
		tx.Rollback()
		return QueryArchRec{}, fmt.Errorf("failed to register access of %s: %w", concID, err)
	}
	row := tx.QueryRow(
		"SELECT id, data, created, num_access, last_access, permanent "+
			"FROM kontext_conc_persistence WHERE id = ?", concID)
	var item QueryArchRec
	err = row.Scan(&item.ID, &item.Data, &item.Created, &item.NumAccess, &item.LastAccess, &item.Permanent)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return QueryArchRec{}, ErrRecordNotFound

	} else if err != nil {
		tx.Rollback()
		return QueryArchRec{}, fmt.Errorf("failed to register access of %s: %w", concID, err)
	}
	if err := tx.Commit(); err != nil {
		return QueryArchRec{}, fmt.Errorf("failed to register access of %s: %w", concID, err)
	}
	return item, nil
}

func (ops *MySQLConcArch) RemoveRecordsByID(concID string) error {
	_, err := ops.db.Exec(
		"DELETE FROM kontext_conc_persistence WHERE id = ?", concID)
	if err != nil {
		return fmt.Errorf("failed to remove records with id %s: %w", concID, err)
	}
	return nil
}

func (ops *MySQLConcArch) RemoveOldRecords(olderThan time.Time, maxItems int) (int64, error) {
	res, err := ops.db.Exec(
		"DELETE FROM kontext_conc_persistence "+
			"WHERE permanent = 0 AND last_access < ? LIMIT ?", olderThan, maxItems)
	if err != nil {
		return 0, fmt.Errorf("failed to remove old records: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to remove old records: %w", err)
	}
	return aff, nil
}

func (ops *MySQLConcArch) GetArchSizesByYears(forceLoad bool) ([][2]int, error) {
	if !forceLoad && !TimeIsAtNight(time.Now().In(ops.tz)) {
		return [][2]int{}, ErrTooDemandingQuery
	}
	rows, err := ops.db.Query(
		"SELECT COUNT(*), YEAR(created) AS yc " +
			"FROM kontext_conc_persistence " +
			"GROUP BY YEAR(created) ORDER BY yc")
	if err != nil {
		return [][2]int{}, fmt.Errorf("failed to fetch arch. sizes: %w", err)
	}
	defer rows.Close()
	ans := make([][2]int, 0, 30)
	for rows.Next() {
		var v, year int
		if err := rows.Scan(&v, &year); err != nil {
			return [][2]int{}, fmt.Errorf("failed to get values from arch. sizes row: %w", err)
		}
		ans = append(ans, [2]int{year, v})
	}
	return ans, nil
}

func (ops *MySQLConcArch) GetSubcorpusProps(subcID string) (SubcProps, error) {
	if subcID == "" {
		return SubcProps{}, nil
	}
	row := ops.db.QueryRow(
		"SELECT name, text_types FROM kontext_subcorpus WHERE id = ?", subcID)
	var name string
	var ttRaw sql.NullString
	if err := row.Scan(&name, &ttRaw); err != nil {
		if err == sql.ErrNoRows {
			return SubcProps{}, nil
		}
		return SubcProps{}, fmt.Errorf("failed to get subcorpus props: %w", err)
	}
	ans := SubcProps{Name: name}
	if ttRaw.Valid && ttRaw.String != "" {
		if err := json.Unmarshal([]byte(ttRaw.String), &ans.TextTypes); err != nil {
			return SubcProps{}, fmt.Errorf("failed to get subcorpus props: %w", err)
		}
	}
	return ans, nil
}

func NewMySQLConcArch(db *sql.DB, tz *time.Location) *MySQLConcArch {
	return &MySQLConcArch{
		db: db,
		tz: tz,
	}
}
