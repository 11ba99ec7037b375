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
	"strings"
	"time"
)

const (
	subcColumns = "t1.id, t1.corpus_name, t1.name, t1.user_id, t1.author_id, " +
		"COALESCE(CONCAT(u.firstname, ' ', u.lastname), ''), t1.size, t1.created, t1.archived, " +
		"COALESCE(t1.public_description, ''), t1.is_draft, t1.cql, t1.within_cond, t1.text_types, " +
		"t1.aligned"
	subcFrom = " FROM kontext_subcorpus AS t1 LEFT JOIN kontext_user AS u ON t1.author_id = u.id "
)

func marshalNullable(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanSubcRows(rows *sql.Rows) ([]SubcorpusRecord, error) {
	defer rows.Close()
	ans := make([]SubcorpusRecord, 0, 50)
	for rows.Next() {
		var item SubcorpusRecord
		var userID sql.NullInt64
		var archived sql.NullTime
		var cqlRaw, withinRaw, ttRaw, alignedRaw sql.NullString
		err := rows.Scan(
			&item.ID, &item.CorpusName, &item.Name, &userID, &item.AuthorID, &item.AuthorFullname,
			&item.Size, &item.Created, &archived, &item.PublicDescription, &item.IsDraft,
			&cqlRaw, &withinRaw, &ttRaw, &alignedRaw,
		)
		if err != nil {
			return []SubcorpusRecord{}, fmt.Errorf("failed to scan subcorpus row: %w", err)
		}
		if userID.Valid {
			v := int(userID.Int64)
			item.UserID = &v
		}
		if archived.Valid {
			item.Archived = &archived.Time
		}
		if cqlRaw.Valid {
			item.CQL = &cqlRaw.String
		}
		if withinRaw.Valid {
			if err := json.Unmarshal([]byte(withinRaw.String), &item.WithinCond); err != nil {
				return []SubcorpusRecord{}, fmt.Errorf("failed to decode within_cond of %s: %w", item.ID, err)
			}
		}
		if ttRaw.Valid {
			if err := json.Unmarshal([]byte(ttRaw.String), &item.TextTypes); err != nil {
				return []SubcorpusRecord{}, fmt.Errorf("failed to decode text_types of %s: %w", item.ID, err)
			}
		}
		if alignedRaw.Valid && alignedRaw.String != "" {
			if err := json.Unmarshal([]byte(alignedRaw.String), &item.Aligned); err != nil {
				return []SubcorpusRecord{}, fmt.Errorf("failed to decode aligned of %s: %w", item.ID, err)
			}
		}
		ans = append(ans, item)
	}
	return ans, nil
}

type subcPayload struct {
	cql     sql.NullString
	within  sql.NullString
	tt      sql.NullString
	aligned sql.NullString
}

func encodeSubcPayload(rec SubcorpusRecord) (subcPayload, error) {
	var ans subcPayload
	var err error
	if rec.CQL != nil {
		ans.cql = sql.NullString{String: *rec.CQL, Valid: true}
	}
	ans.within, err = marshalNullable(rec.WithinCond, rec.WithinCond == nil)
	if err != nil {
		return ans, err
	}
	ans.tt, err = marshalNullable(rec.TextTypes, rec.TextTypes == nil)
	if err != nil {
		return ans, err
	}
	ans.aligned, err = marshalNullable(rec.Aligned, len(rec.Aligned) == 0)
	return ans, err
}

// MySQLSubcArch provides access to the kontext_subcorpus table
type MySQLSubcArch struct {
	db *sql.DB
	tz *time.Location
}

func (ops *MySQLSubcArch) GetSubcorpus(id string) (SubcorpusRecord, error) {
	rows, err := ops.db.Query("SELECT "+subcColumns+subcFrom+"WHERE t1.id = ?", id)
	if err != nil {
		return SubcorpusRecord{}, fmt.Errorf("failed to get subcorpus %s: %w", id, err)
	}
	ans, err := scanSubcRows(rows)
	if err != nil {
		return SubcorpusRecord{}, fmt.Errorf("failed to get subcorpus %s: %w", id, err)
	}
	if len(ans) == 0 {
		return SubcorpusRecord{}, ErrRecordNotFound
	}
	return ans[0], nil
}

func (ops *MySQLSubcArch) GetSubcorpusByName(corpusName, name string, userID int) (SubcorpusRecord, error) {
	rows, err := ops.db.Query(
		"SELECT "+subcColumns+subcFrom+
			"WHERE t1.corpus_name = ? AND t1.name = ? AND t1.user_id = ? "+
			"ORDER BY t1.created DESC LIMIT 1",
		corpusName, name, userID)
	if err != nil {
		return SubcorpusRecord{}, fmt.Errorf("failed to get subcorpus %s: %w", name, err)
	}
	ans, err := scanSubcRows(rows)
	if err != nil {
		return SubcorpusRecord{}, fmt.Errorf("failed to get subcorpus %s: %w", name, err)
	}
	if len(ans) == 0 {
		return SubcorpusRecord{}, ErrRecordNotFound
	}
	return ans[0], nil
}

func (ops *MySQLSubcArch) InsertSubcorpus(rec SubcorpusRecord) error {
	pl, err := encodeSubcPayload(rec)
	if err != nil {
		return fmt.Errorf("failed to insert subcorpus %s: %w", rec.ID, err)
	}
	_, err = ops.db.Exec(
		"INSERT INTO kontext_subcorpus (id, corpus_name, name, user_id, author_id, size, created, "+
			"public_description, is_draft, cql, within_cond, text_types, aligned) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.CorpusName, rec.Name, rec.UserID, rec.AuthorID, rec.Size, rec.Created,
		rec.PublicDescription, rec.IsDraft, pl.cql, pl.within, pl.tt, pl.aligned,
	)
	if isDuplicateEntry(err) {
		return ErrDuplicateRecord

	} else if err != nil {
		return fmt.Errorf("failed to insert subcorpus %s: %w", rec.ID, err)
	}
	return nil
}

func (ops *MySQLSubcArch) UpdateSubcorpus(rec SubcorpusRecord) error {
	pl, err := encodeSubcPayload(rec)
	if err != nil {
		return fmt.Errorf("failed to update subcorpus %s: %w", rec.ID, err)
	}
	res, err := ops.db.Exec(
		"UPDATE kontext_subcorpus SET name = ?, size = ?, public_description = ?, is_draft = ?, "+
			"cql = ?, within_cond = ?, text_types = ?, aligned = ? WHERE id = ?",
		rec.Name, rec.Size, rec.PublicDescription, rec.IsDraft,
		pl.cql, pl.within, pl.tt, pl.aligned, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subcorpus %s: %w", rec.ID, err)
	}
	if aff, err := res.RowsAffected(); err == nil && aff == 0 {
		if _, err := ops.GetSubcorpus(rec.ID); errors.Is(err, ErrRecordNotFound) {
			return ErrRecordNotFound
		}
	}
	return nil
}

func (ops *MySQLSubcArch) SetArchived(id string, tm *time.Time) error {
	var v sql.NullTime
	if tm != nil {
		v = sql.NullTime{Time: *tm, Valid: true}
	}
	_, err := ops.db.Exec("UPDATE kontext_subcorpus SET archived = ? WHERE id = ?", v, id)
	if err != nil {
		return fmt.Errorf("failed to set archived status of subcorpus %s: %w", id, err)
	}
	return nil
}

func (ops *MySQLSubcArch) Disassociate(id string, tm time.Time) error {
	_, err := ops.db.Exec(
		"UPDATE kontext_subcorpus SET user_id = NULL, archived = COALESCE(archived, ?) WHERE id = ?",
		tm, id)
	if err != nil {
		return fmt.Errorf("failed to disassociate subcorpus %s: %w", id, err)
	}
	return nil
}

func (ops *MySQLSubcArch) ListSubcorpora(filter SubcListFilter) ([]SubcorpusRecord, error) {
	where := []string{"t1.user_id = ?"}
	args := []any{filter.UserID}
	if filter.CorpusName != "" {
		where = append(where, "t1.corpus_name = ?")
		args = append(args, filter.CorpusName)
	}
	if filter.ArchivedOnly {
		where = append(where, "t1.archived IS NOT NULL")

	} else if filter.ActiveOnly {
		where = append(where, "t1.archived IS NULL")
	}
	if filter.PublishedOnly {
		where = append(where, "t1.public_description IS NOT NULL AND t1.public_description <> ''")
	}
	if !filter.IncludeDrafts {
		where = append(where, "t1.is_draft = 0")
	}
	if filter.Pattern != "" {
		where = append(where, "(t1.name LIKE ? OR t1.public_description LIKE ?)")
		p := "%" + filter.Pattern + "%"
		args = append(args, p, p)
	}
	if filter.IAQuery != "" {
		where = append(where, "(t1.id LIKE ? OR u.lastname LIKE ?)")
		p := filter.IAQuery + "%"
		args = append(args, p, p)
	}
	sqlq := "SELECT " + subcColumns + subcFrom + "WHERE " + strings.Join(where, " AND ") +
		" ORDER BY t1.created DESC"
	if filter.Limit > 0 {
		sqlq += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}
	rows, err := ops.db.Query(sqlq, args...)
	if err != nil {
		return []SubcorpusRecord{}, fmt.Errorf("failed to list subcorpora: %w", err)
	}
	return scanSubcRows(rows)
}

func (ops *MySQLSubcArch) GetNames(ids []string) (map[string]string, error) {
	ans := make(map[string]string)
	if len(ids) == 0 {
		return ans, nil
	}
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	rows, err := ops.db.Query(
		"SELECT id, name FROM kontext_subcorpus WHERE id IN ("+
			strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")+")", args...)
	if err != nil {
		return ans, fmt.Errorf("failed to get subcorpora names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return ans, fmt.Errorf("failed to get subcorpora names: %w", err)
		}
		ans[id] = name
	}
	return ans, nil
}

func NewMySQLSubcArch(db *sql.DB, tz *time.Location) *MySQLSubcArch {
	return &MySQLSubcArch{db: db, tz: tz}
}
