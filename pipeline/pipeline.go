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

// Package pipeline maintains query chains - linked lists of stored
// operation records. It turns user actions into new chain links and
// reconstructs chains from their last operation.
package pipeline

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/qpersist"
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
)

// RecordStore is a storage of operation records (see qpersist.Store)
type RecordStore interface {
	Open(id string) (*qpersist.Record, error)
	Store(ctx context.Context, userID int, curr, prev *qpersist.Record) (string, error)
	IsRegistered(userID int) bool
	AnonymousUserID() int
}

// HistoryWriter appends items to users' query history
type HistoryWriter interface {
	Store(userID int, corpname, queryID string, supertype cncdb.QuerySupertype) error
}

// Ownership describes the relation between a user and a stored record
type Ownership int

const (

	// OwnershipForeign is an anonymous user accessing a record. Such user
	// can read the chain and fork it.
	OwnershipForeign Ownership = iota

	// OwnershipAccessor is a registered user accessing a record of
	// someone else. The user can read and fork the chain.
	OwnershipAccessor

	// OwnershipOwner is the author of the record. Only the owner can
	// rename the record and make it persistent.
	OwnershipOwner
)

func (o Ownership) String() string {
	switch o {
	case OwnershipOwner:
		return "owner"
	case OwnershipAccessor:
		return "accessor"
	}
	return "foreign"
}

type autoGeneratedOp struct {
	qIndex int
	form   formargs.FormArgs
}

// Action represents a single user action. The action may produce
// more than one chain link in case some operations were generated
// automatically (e.g. context filters of a query).
type Action struct {
	prev          *qpersist.Record
	corpora       []string
	usesubcorp    string
	q             []string
	form          formargs.FormArgs
	linesGroups   *qpersist.LinesGroups
	autoGenerated []autoGeneratedOp
}

// Q returns all the tokens of the chain after the action is applied
func (a *Action) Q() []string {
	return a.q
}

func (a *Action) Corpora() []string {
	return a.corpora
}

func (a *Action) UseSubcorp() string {
	return a.usesubcorp
}

// SetLinesGroups makes the action replace manual line groups
func (a *Action) SetLinesGroups(lg qpersist.LinesGroups) {
	a.linesGroups = &lg
}

func (a *Action) firstOwnToken() int {
	if a.prev != nil {
		return len(a.prev.Q)
	}
	return 0
}

// AcknowledgeAutoGenerated registers an operation generated automatically
// as a part of the action. The `qIndex` argument is an index of the last
// token of the operation in the resulting q. Operations must be acknowledged
// in the order of their tokens and the user-visible operation must keep
// at least one token.
func (a *Action) AcknowledgeAutoGenerated(qIndex int, form formargs.FormArgs) error {
	minIdx := a.firstOwnToken()
	if len(a.autoGenerated) > 0 {
		minIdx = a.autoGenerated[len(a.autoGenerated)-1].qIndex + 1
	}
	if qIndex < minIdx || qIndex >= len(a.q)-1 {
		return apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("invalid q index %d of an auto-generated operation", qIndex), nil)
	}
	a.autoGenerated = append(a.autoGenerated, autoGeneratedOp{qIndex: qIndex, form: form})
	return nil
}

// NewQueryAction creates an action starting a new chain
func NewQueryAction(corpora []string, usesubcorp string, q []string, form formargs.FormArgs) *Action {
	return &Action{
		corpora:    slices.Clone(corpora),
		usesubcorp: usesubcorp,
		q:          slices.Clone(q),
		form:       form,
	}
}

// NewExtendAction creates an action appending `qDelta` to an existing
// chain. The `prev` record need not be stored (i.e. it may have no ID),
// in such case a new chain is started.
func NewExtendAction(prev *qpersist.Record, qDelta []string, form formargs.FormArgs) *Action {
	return &Action{
		prev:       prev,
		corpora:    slices.Clone(prev.Corpora),
		usesubcorp: prev.UseSubcorp,
		q:          slices.Concat(prev.Q, qDelta),
		form:       form,
	}
}

// -------------------------

type Service struct {
	records RecordStore
	history HistoryWriter
}

func (s *Service) Open(id string) (*qpersist.Record, error) {
	return s.records.Open(id)
}

func (s *Service) AnonymousUserID() int {
	return s.records.AnonymousUserID()
}

// LoadPipeline returns the chain ending with the record `lastID`,
// the root operation goes first.
func (s *Service) LoadPipeline(lastID string) ([]*qpersist.Record, error) {
	ans := make([]*qpersist.Record, 0, 10)
	visited := make(map[string]bool)
	for currID := lastID; currID != ""; {
		if visited[currID] {
			return nil, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("chain of %s contains a cycle at %s", lastID, currID), nil)
		}
		if len(ans) >= qpersist.MaxChainLength {
			return nil, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("chain of %s is too long", lastID), nil)
		}
		visited[currID] = true
		rec, err := s.records.Open(currID)
		if err != nil {
			return nil, fmt.Errorf("failed to load chain of %s: %w", lastID, err)
		}
		ans = append(ans, rec)
		currID = rec.PrevID
	}
	slices.Reverse(ans)
	return ans, nil
}

func (s *Service) newLink(action *Action, q []string, form formargs.FormArgs) *qpersist.Record {
	var ans *qpersist.Record
	if action.prev != nil {
		ans = action.prev.Clone()
		ans.ID = ""
		ans.Created = 0

	} else {
		ans = &qpersist.Record{
			Corpora:    slices.Clone(action.corpora),
			UseSubcorp: action.usesubcorp,
		}
	}
	if len(q) != len(ans.Q) {
		// line numbers of groups refer to the original concordance
		ans.LinesGroups = qpersist.LinesGroups{}
	}
	ans.Q = slices.Clone(q)
	ans.SetForm(form)
	return ans
}

// Commit stores all the operations of an action. Automatically generated
// operations are stored first (each with q up to and including its last
// token), the user-visible operation goes last with the complete q.
// The returned record is the last link of the chain.
func (s *Service) Commit(ctx context.Context, userID int, action *Action) (*qpersist.Record, error) {
	prev := action.prev
	if prev != nil && prev.ID == "" {
		prev = nil
	}
	for _, op := range action.autoGenerated {
		rec := s.newLink(action, action.q[:op.qIndex+1], op.form)
		id, err := s.records.Store(ctx, userID, rec, prev)
		if err != nil {
			return nil, fmt.Errorf("failed to store auto-generated operation: %w", err)
		}
		rec.ID = id
		prev = rec
	}
	final := s.newLink(action, action.q, action.form)
	if action.linesGroups != nil {
		final.LinesGroups = *action.linesGroups
	}
	id, err := s.records.Store(ctx, userID, final, prev)
	if err != nil {
		return nil, fmt.Errorf("failed to store operation: %w", err)
	}
	if prev != nil && id == prev.ID {
		return prev, nil
	}
	final.ID = id
	s.recordHistory(userID, action, final)
	return final, nil
}

func (s *Service) recordHistory(userID int, action *Action, rec *qpersist.Record) {
	if s.history == nil || !s.records.IsRegistered(userID) || action.form == nil {
		return
	}
	if qForm, ok := action.form.(*formargs.QueryFormArgs); !ok || qForm.NoQueryHistory {
		return
	}
	err := s.history.Store(userID, rec.PrimaryCorpus(), rec.ID, cncdb.QuerySupertypeConc)
	if err != nil {
		log.Error().
			Err(err).
			Int("userId", userID).
			Str("concId", rec.ID).
			Msg("failed to store query history item")
	}
}

// ExtendPipeline appends a single operation to a chain ending with `prev`
func (s *Service) ExtendPipeline(
	ctx context.Context,
	userID int,
	prev *qpersist.Record,
	form formargs.FormArgs,
	qDelta []string,
	linesGroups *qpersist.LinesGroups,
) (*qpersist.Record, error) {
	action := NewExtendAction(prev, qDelta, form)
	if linesGroups != nil {
		action.SetLinesGroups(*linesGroups)
	}
	return s.Commit(ctx, userID, action)
}

// Ownership tells how a user relates to a record
func (s *Service) Ownership(rec *qpersist.Record, userID int) Ownership {
	if !s.records.IsRegistered(userID) {
		return OwnershipForeign
	}
	if rec.UserID == userID {
		return OwnershipOwner
	}
	return OwnershipAccessor
}

// NewService creates a pipeline service. The `history` argument
// may be nil (no query history is recorded then).
func NewService(records RecordStore, history HistoryWriter) *Service {
	return &Service{
		records: records,
		history: history,
	}
}
