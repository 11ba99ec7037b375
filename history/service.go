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


// Package history manages users' query history. Items refer to stored
// operations (see qpersist) and can be named which makes the referenced
// operations permanent.
package history

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/indexer/ftclient"
	"concbench/qpersist"
	"concbench/reporting"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RecordStore provides access to stored operations
// (see qpersist.Store)
type RecordStore interface {
	qpersist.Opener
	Archive(ctx context.Context, id string, explicit bool) (int, error)
}

// SubcNames resolves human readable names of subcorpora
type SubcNames interface {
	GetNames(ids []string) (map[string]string, error)
}

// Publisher announces deleted items (see archiver.RedisAdapter)
type Publisher interface {
	TriggerChan(chname, value string) error
}

// ItemQueue passes new items to be indexed (see archiver.RedisAdapter)
type ItemQueue interface {
	EnqueueHistory(rec cncdb.HistoryRecord) error
}

// Fulltext is a fulltext index of query history items. It can be
// either an external service (ftclient.Client) or the embedded
// index (EmbeddedFulltext).
type Fulltext interface {
	Search(ctx context.Context, userID int, items []ftclient.QueryItem, limit int) ([]cncdb.HistoryKey, error)
	SetName(ctx context.Context, key cncdb.HistoryKey, name string) error
	Delete(ctx context.Context, key cncdb.HistoryKey) error
}

// SearchArgs specifies a search in a user's query history.
// With FullSearch set, the fulltext index is used and the scalar
// filters (except for offset and limit) are ignored.
type SearchArgs struct {
	cncdb.HistoryFilter
	FullSearch []ftclient.QueryItem
}

type Service struct {
	conf      *Conf
	db        cncdb.IQHistArchOps
	records   RecordStore
	subc      SubcNames
	publisher Publisher
	queue     ItemQueue
	fulltext  Fulltext
	now       func() time.Time
}

func (s *Service) propagateName(ctx context.Context, key cncdb.HistoryKey, name string) {
	if s.fulltext == nil {
		return
	}
	if err := s.fulltext.SetName(ctx, key, name); err != nil {
		log.Error().
			Err(err).
			Int("userId", key.UserID).
			Str("queryId", key.QueryID).
			Msg("failed to propagate history item name to fulltext index")
	}
}

func (s *Service) enqueue(rec cncdb.HistoryRecord) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueHistory(rec); err != nil {
		log.Error().
			Err(err).
			Int("userId", rec.UserID).
			Str("queryId", rec.QueryID).
			Msg("failed to enqueue history item for indexing")
	}
}

// Store adds a new item to a user's history. Storing the same
// query again moves the existing item to the top.
func (s *Service) Store(userID int, corpname, queryID string, supertype cncdb.QuerySupertype) error {
	if err := supertype.Validate(); err != nil {
		return apperr.NewUserInputError("%s", err.Error())
	}
	rec := cncdb.HistoryRecord{
		QueryID:    queryID,
		UserID:     userID,
		CorpusName: corpname,
		Supertype:  supertype,
		Created:    s.now().Unix(),
	}
	if err := s.db.InsertRecord(rec); err != nil {
		return fmt.Errorf("failed to store query history item: %w", err)
	}
	s.enqueue(rec)
	return nil
}

// MakePersistent names a history item and makes the referenced
// operation permanent. In case there is no matching item, a new
// one is inserted.
func (s *Service) MakePersistent(
	ctx context.Context,
	key cncdb.HistoryKey,
	supertype cncdb.QuerySupertype,
	name string,
) (cncdb.HistoryRecord, error) {
	if name == "" {
		return cncdb.HistoryRecord{}, apperr.NewUserInputError("missing name")
	}
	if err := supertype.Validate(); err != nil {
		return cncdb.HistoryRecord{}, apperr.NewUserInputError("%s", err.Error())
	}
	rec, err := s.records.Open(key.QueryID)
	if err != nil {
		return cncdb.HistoryRecord{}, err
	}
	if _, err := s.records.Archive(ctx, key.QueryID, true); err != nil {
		return cncdb.HistoryRecord{}, fmt.Errorf("failed to make query %s persistent: %w", key.QueryID, err)
	}
	updated, err := s.db.UpdateName(key, name)
	if err != nil {
		return cncdb.HistoryRecord{}, fmt.Errorf("failed to make query %s persistent: %w", key.QueryID, err)
	}
	hRec := cncdb.HistoryRecord{
		QueryID:    key.QueryID,
		UserID:     key.UserID,
		CorpusName: rec.PrimaryCorpus(),
		Supertype:  supertype,
		Created:    key.Created,
		Name:       name,
	}
	if updated {
		s.propagateName(ctx, key, name)
		return hRec, nil
	}
	if hRec.Created == 0 {
		hRec.Created = s.now().Unix()
	}
	if err := s.db.InsertRecord(hRec); err != nil {
		return cncdb.HistoryRecord{}, fmt.Errorf("failed to make query %s persistent: %w", key.QueryID, err)
	}
	s.enqueue(hRec)
	return hRec, nil
}

// MakeTransient removes a name of a history item. The archived
// operation stays permanent as it may be referenced by other items.
func (s *Service) MakeTransient(ctx context.Context, key cncdb.HistoryKey) error {
	updated, err := s.db.UpdateName(key, "")
	if err != nil {
		return fmt.Errorf("failed to make query %s transient: %w", key.QueryID, err)
	}
	if !updated {
		return apperr.NewNotFoundError("query history item %s not found", key.QueryID)
	}
	s.propagateName(ctx, key, "")
	return nil
}

// Delete removes a single history item
func (s *Service) Delete(ctx context.Context, key cncdb.HistoryKey) error {
	hRec, err := s.db.GetRecord(key)
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return apperr.NewNotFoundError("query history item %s not found", key.QueryID)

	} else if err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	if err := s.db.RemoveRecord(key); err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	s.publishDeleted(hRec)
	if s.fulltext != nil {
		if err := s.fulltext.Delete(ctx, key); err != nil {
			log.Error().
				Err(err).
				Str("indexId", hRec.CreateIndexID()).
				Msg("failed to remove history item from fulltext index")
		}
	}
	return nil
}

func (s *Service) publishDeleted(hRec cncdb.HistoryRecord) bool {
	if s.publisher == nil {
		return true
	}
	if err := s.publisher.TriggerChan(s.conf.DeletedItemsChannel, hRec.CreateIndexID()); err != nil {
		log.Error().
			Err(err).
			Str("indexId", hRec.CreateIndexID()).
			Msg("failed to publish deleted history item")
		return false
	}
	return true
}

func (s *Service) findRecords(ctx context.Context, userID int, args SearchArgs) ([]cncdb.HistoryRecord, error) {
	if len(args.FullSearch) == 0 {
		return s.db.FindRecords(userID, args.HistoryFilter)
	}
	if s.fulltext == nil {
		return nil, apperr.NewUserInputError("fulltext search is not available")
	}
	for _, item := range args.FullSearch {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}
	limit := 0
	if args.Limit > 0 {
		limit = args.Offset + args.Limit
	}
	keys, err := s.fulltext.Search(ctx, userID, args.FullSearch, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search query history: %w", err)
	}
	if args.Offset >= len(keys) {
		return []cncdb.HistoryRecord{}, nil
	}
	keys = keys[args.Offset:]
	ans := make([]cncdb.HistoryRecord, 0, len(keys))
	for _, key := range keys {
		hRec, err := s.db.GetRecord(key)
		if errors.Is(err, cncdb.ErrRecordNotFound) {
			log.Warn().
				Int("userId", key.UserID).
				Str("queryId", key.QueryID).
				Msg("fulltext index refers to a removed history item")
			continue

		} else if err != nil {
			return nil, fmt.Errorf("failed to search query history: %w", err)
		}
		ans = append(ans, hRec)
	}
	return ans, nil
}

// GetUserQueries returns readable history items of a user.
// Items referring to operations which no longer exist are skipped.
func (s *Service) GetUserQueries(ctx context.Context, userID int, args SearchArgs) ([]Item, error) {
	recs, err := s.findRecords(ctx, userID, args)
	if err != nil {
		return nil, err
	}
	ans := make([]Item, 0, len(recs))
	for _, hRec := range recs {
		item, err := s.hydrate(hRec)
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().
				Err(err).
				Str("queryId", hRec.QueryID).
				Msg("history item refers to a missing operation, skipping")
			continue

		} else if err != nil {
			return nil, fmt.Errorf("failed to load query history: %w", err)
		}
		ans = append(ans, item)
	}
	return ans, nil
}

// DeleteOldRecords removes old unnamed items of all users (newest
// PreserveAmount items are kept for each user). Named items are removed
// only in case their operations are gone. Deleted items are announced
// via the DeletedItemsChannel.
func (s *Service) DeleteOldRecords(ctx context.Context) (reporting.QueryHistoryDelStats, error) {
	var ans reporting.QueryHistoryDelStats
	users, err := s.db.GetAllUsersWithSomeRecords()
	if err != nil {
		return ans, fmt.Errorf("failed to delete old history records: %w", err)
	}
	keepNamed := func(hRec cncdb.HistoryRecord) bool {
		_, err := s.records.Open(hRec.QueryID)
		return !errors.Is(err, apperr.ErrNotFound)
	}
	for _, userID := range users {
		select {
		case <-ctx.Done():
			return ans, ctx.Err()
		default:
		}
		deleted, err := s.db.DeleteOldRecords(userID, s.conf.PreserveAmount, keepNamed)
		if err != nil {
			log.Error().
				Err(err).
				Int("userId", userID).
				Msg("failed to delete old history records of a user")
			ans.NumErrors++
			continue
		}
		for _, hRec := range deleted {
			if !s.publishDeleted(hRec) {
				ans.NumErrors++
			}
		}
		ans.NumDeleted += len(deleted)
		if len(deleted) > 0 {
			log.Debug().
				Int("userId", userID).
				Int("numDeleted", len(deleted)).
				Msg("deleted old history records")
		}
	}
	return ans, nil
}

func (s *Service) TableSize() (int64, error) {
	return s.db.TableSize()
}

func NewService(
	conf *Conf,
	db cncdb.IQHistArchOps,
	records RecordStore,
	subc SubcNames,
	publisher Publisher,
	queue ItemQueue,
	fulltext Fulltext,
) *Service {
	return &Service{
		conf:      conf,
		db:        db,
		records:   records,
		subc:      subc,
		publisher: publisher,
		queue:     queue,
		fulltext:  fulltext,
		now:       time.Now,
	}
}
