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

package qpersist

import (
	"concbench/apperr"
	"concbench/cncdb"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HotStore is a key-value storage of recent operation records
// (see archiver.RedisAdapter)
type HotStore interface {

	// GetConcRecord should return cncdb.ErrRecordNotFound for
	// missing (or expired) records
	GetConcRecord(id string) (cncdb.QueryArchRec, error)
	SetConcRecord(id string, data string, ttl time.Duration) error
	DelConcRecord(id string) error
	EnqueueArchive(id string, explicit bool) error
}

// ArchiveTester provides a fast way to find out whether
// a record has been already archived (see archiver.Deduplicator)
type ArchiveTester interface {
	IsArchived(concID string) (bool, error)
	Add(concID string)
}

type Store struct {
	conf  *Conf
	hot   HotStore
	cold  cncdb.IConcArchOps
	dedup ArchiveTester
	tz    *time.Location
}

func (st *Store) now() time.Time {
	return time.Now().In(st.tz)
}

func (st *Store) IsRegistered(userID int) bool {
	return userID != st.conf.AnonymousUserID
}

func (st *Store) AnonymousUserID() int {
	return st.conf.AnonymousUserID
}

func (st *Store) ttlFor(rec *Record) time.Duration {
	if rec.PersistLevel == PersistLevelRegistered {
		return st.conf.TTL()
	}
	return st.conf.AnonymousTTL()
}

// loadRaw fetches encoded record data from the hot store, falling back
// to the cold one. With `bumpAccess`, cold access statistics are updated.
func (st *Store) loadRaw(id string, bumpAccess bool) (cncdb.QueryArchRec, bool, error) {
	rec, err := st.hot.GetConcRecord(id)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, cncdb.ErrRecordNotFound) {
		return cncdb.QueryArchRec{}, false, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if bumpAccess {
		rec, err = st.cold.RegisterAccess(id, st.now())

	} else {
		rec, err = st.cold.LoadRecordByID(id)
	}
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return cncdb.QueryArchRec{}, false, apperr.NewRecNotFound(id)

	} else if err != nil {
		return cncdb.QueryArchRec{}, false, fmt.Errorf("failed to load record %s: %w", id, err)
	}
	return rec, true, nil
}

func (st *Store) openSingle(id string) (*Record, error) {
	raw, fromCold, err := st.loadRaw(id, true)
	if err != nil {
		return nil, err
	}
	rec, err := DecodeRecord(raw.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to open record %s: %w", id, err)
	}
	rec.ID = id
	if fromCold {
		rec.NumAccess = raw.NumAccess
		rec.LastAccess = raw.LastAccess
		rec.Permanent = raw.Permanent > 0
		// records are recoverable from the cold store so a failure
		// here is not fatal
		if err := st.hot.SetConcRecord(id, raw.Data, st.ttlFor(rec)); err != nil {
			log.Warn().Err(err).Str("concId", id).Msg("failed to restore record in the hot store")
		}
	}
	return rec, nil
}

// Open resolves a record by its ID. In case the record does not contain
// corpora, the chain is walked back until a record with corpora is found.
// A missing record produces apperr.RecNotFound.
func (st *Store) Open(id string) (*Record, error) {
	if !IsValidID(id) {
		return nil, apperr.NewRecNotFound(id)
	}
	rec, err := st.openSingle(id)
	if err != nil {
		return nil, err
	}
	curr := rec
	for i := 0; len(rec.Corpora) == 0 && curr.PrevID != ""; i++ {
		if i >= MaxChainLength {
			return nil, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("chain of %s is too long or cyclic", id), nil)
		}
		curr, err = st.openSingle(curr.PrevID)
		if err != nil {
			return nil, fmt.Errorf("failed to find corpora of %s: %w", id, err)
		}
		rec.Corpora = curr.Corpora
	}
	return rec, nil
}

// Store persists `curr` as a successor of `prev` (which may be nil).
// If `curr` does not differ from `prev`, prev's ID is returned and
// nothing is written. Records of registered users are archived.
func (st *Store) Store(ctx context.Context, userID int, curr, prev *Record) (string, error) {
	if prev != nil && !curr.Differs(prev) {
		return prev.ID, nil
	}
	if prev != nil {
		curr.PrevID = prev.ID

	} else {
		curr.PrevID = ""
	}
	curr.UserID = userID
	if st.IsRegistered(userID) {
		curr.PersistLevel = PersistLevelRegistered

	} else {
		curr.PersistLevel = PersistLevelAnonymous
	}
	if curr.Created == 0 {
		curr.Created = st.now().Unix()
	}
	curr.ID = Fingerprint(curr)
	data, err := curr.Encode()
	if err != nil {
		return "", err
	}
	if err := st.hot.SetConcRecord(curr.ID, data, st.ttlFor(curr)); err != nil {
		return "", fmt.Errorf("failed to store record: %w", err)
	}
	if curr.PersistLevel == PersistLevelRegistered {
		if st.conf.ArchiveMode == ArchiveModeQueue {
			if err := st.hot.EnqueueArchive(curr.ID, false); err != nil {
				return "", fmt.Errorf("failed to store record: %w", err)
			}

		} else if _, err := st.Archive(ctx, curr.ID, false); err != nil {
			return "", fmt.Errorf("failed to store record: %w", err)
		}
	}
	return curr.ID, nil
}

func (st *Store) isArchived(id string) (bool, error) {
	if st.dedup != nil {
		return st.dedup.IsArchived(id)
	}
	return st.cold.ContainsRecord(id)
}

// Archive copies a record and all its not yet archived ancestors
// to the cold store. With `explicit`, the record (not the ancestors)
// is marked as permanent. Number of inserted records is returned.
func (st *Store) Archive(ctx context.Context, id string, explicit bool) (int, error) {
	toInsert := make([]cncdb.QueryArchRec, 0, 10)
	for currID := id; currID != ""; {
		if len(toInsert) >= MaxChainLength {
			return 0, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("chain of %s is too long or cyclic", id), nil)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		archived, err := st.isArchived(currID)
		if err != nil {
			return 0, fmt.Errorf("failed to archive %s: %w", id, err)
		}
		if archived {
			if currID == id && explicit {
				if err := st.cold.UpdateRecordStatus(id, 1); err != nil {
					return 0, fmt.Errorf("failed to archive %s: %w", id, err)
				}
			}
			break
		}
		raw, _, err := st.loadRaw(currID, false)
		if err != nil {
			return 0, fmt.Errorf("failed to archive %s: %w", id, err)
		}
		data, err := raw.FetchData()
		if err != nil {
			return 0, fmt.Errorf("failed to archive %s: %w", id, err)
		}
		toInsert = append(toInsert, raw)
		currID = data.GetPrevID()
	}
	var numInserted int
	now := st.now()
	for i := len(toInsert) - 1; i >= 0; i-- {
		rec := cncdb.QueryArchRec{
			ID:         toInsert[i].ID,
			Data:       toInsert[i].Data,
			Created:    now,
			LastAccess: now,
		}
		if i == 0 && explicit {
			rec.Permanent = 1
		}
		err := st.cold.InsertRecord(rec)
		if errors.Is(err, cncdb.ErrDuplicateRecord) {
			log.Debug().Str("concId", rec.ID).Msg("record already archived")
			if i == 0 && explicit {
				if err := st.cold.UpdateRecordStatus(rec.ID, 1); err != nil {
					return numInserted, fmt.Errorf("failed to archive %s: %w", id, err)
				}
			}

		} else if err != nil {
			return numInserted, fmt.Errorf("failed to archive %s: %w", id, err)

		} else {
			numInserted++
		}
		if st.dedup != nil {
			st.dedup.Add(rec.ID)
		}
	}
	return numInserted, nil
}

// MakeTransient removes the permanent flag of an archived record
// (the record will be removed once it gets old enough)
func (st *Store) MakeTransient(id string) error {
	err := st.cold.UpdateRecordStatus(id, 0)
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return apperr.NewRecNotFound(id)
	}
	return err
}

// Update overwrites an existing record (keeping its ID) in both stores
func (st *Store) Update(rec *Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := st.hot.SetConcRecord(rec.ID, data, st.ttlFor(rec)); err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	err = st.cold.UpdateRecord(cncdb.QueryArchRec{
		ID:        rec.ID,
		Data:      data,
		Permanent: boolToInt(rec.Permanent),
	})
	if err != nil && !errors.Is(err, cncdb.ErrRecordNotFound) {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// CloneWithID stores a copy of the record `oldID` under `newID`.
// An existing `newID` produces apperr.IntegrityError.
func (st *Store) CloneWithID(oldID, newID string) error {
	if !IsValidID(newID) {
		return apperr.NewUserInputError("invalid record ID `%s`", newID)
	}
	_, _, err := st.loadRaw(newID, false)
	if err == nil {
		return apperr.NewIntegrityError(fmt.Sprintf("record %s already exists", newID), nil)

	} else if !errors.Is(err, apperr.RecNotFound) {
		return fmt.Errorf("failed to clone record %s: %w", oldID, err)
	}
	raw, _, err := st.loadRaw(oldID, false)
	if err != nil {
		return fmt.Errorf("failed to clone record %s: %w", oldID, err)
	}
	rec, err := DecodeRecord(raw.Data)
	if err != nil {
		return fmt.Errorf("failed to clone record %s: %w", oldID, err)
	}
	rec.ID = newID
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	if err := st.hot.SetConcRecord(newID, data, st.ttlFor(rec)); err != nil {
		return fmt.Errorf("failed to clone record %s: %w", oldID, err)
	}
	if rec.PersistLevel == PersistLevelRegistered {
		now := st.now()
		err := st.cold.InsertRecord(cncdb.QueryArchRec{
			ID: newID, Data: data, Created: now, LastAccess: now})
		if errors.Is(err, cncdb.ErrDuplicateRecord) {
			return apperr.NewIntegrityError(fmt.Sprintf("record %s already exists", newID), err)

		} else if err != nil {
			return fmt.Errorf("failed to clone record %s: %w", oldID, err)
		}
		if st.dedup != nil {
			st.dedup.Add(newID)
		}
	}
	return nil
}

// ClearOldArchiveRecords removes non-permanent cold records not accessed
// within the configured retention period.
func (st *Store) ClearOldArchiveRecords() (int64, error) {
	limit := st.now().Add(-st.conf.ArchiveRetention())
	n, err := st.cold.RemoveOldRecords(limit, st.conf.CleanupMaxItems)
	if err != nil {
		return 0, fmt.Errorf("failed to clear old archive records: %w", err)
	}
	log.Info().
		Int64("numRemoved", n).
		Time("olderThan", limit).
		Msg("removed old archive records")
	return n, nil
}

func NewStore(
	conf *Conf,
	hot HotStore,
	cold cncdb.IConcArchOps,
	dedup ArchiveTester,
	tz *time.Location,
) *Store {
	return &Store{
		conf:  conf,
		hot:   hot,
		cold:  cold,
		dedup: dedup,
		tz:    tz,
	}
}
