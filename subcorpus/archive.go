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

// Package subcorpus manages user-defined subsets of corpora. A subcorpus
// is defined either by a CQL query, by a list of structural ("within")
// conditions or by a text types selection. Its lifecycle is
// draft -> active -> archived -> deleted (disassociated from its user).
package subcorpus

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/engine"
	"concbench/util"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const preflightName = "preflight"

// Data is a subcorpus definition. Exactly one of the fields
// is expected to be set.
type Data struct {
	CQL        *string                `json:"cql"`
	WithinCond []cncdb.WithinCondItem `json:"within_cond"`
	TextTypes  map[string][]string    `json:"text_types"`
}

func (d Data) numKinds() int {
	return cncdb.SubcorpusRecord{CQL: d.CQL, WithinCond: d.WithinCond, TextTypes: d.TextTypes}.NumDataKinds()
}

func dataOf(rec cncdb.SubcorpusRecord) Data {
	return Data{CQL: rec.CQL, WithinCond: rec.WithinCond, TextTypes: rec.TextTypes}
}

// CreateArgs contains properties of a created or updated subcorpus.
// In case ID is empty, a new one is generated.
type CreateArgs struct {
	ID          string
	CorpusName  string
	Name        string
	AuthorID    int
	Description string
	Data        Data
	Aligned     []string
	IsDraft     bool
}

// Service provides subcorpus lifecycle operations and resolves
// subcorpora to token ranges of their corpora
type Service struct {
	conf    *Conf
	db      cncdb.ISubcArchOps
	corpora engine.Provider
	tz      *time.Location

	rangesMu sync.Mutex
	ranges   map[string]evaluatedRanges
}

// evaluatedRanges are cached ranges along with the corpus
// they were evaluated for
type evaluatedRanges struct {
	corpusName string
	ranges     []engine.Range
}

func (s *Service) now() time.Time {
	return time.Now().In(s.tz)
}

func (s *Service) mapDBError(id string, err error) error {
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return apperr.NewNotFoundError("subcorpus %s not found", id)
	}
	return err
}

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, engine.ErrQuerySyntax):
		return apperr.NewConcordanceQueryParamsError(err.Error(), err)
	case errors.Is(err, engine.ErrUnknownAttr),
		errors.Is(err, engine.ErrUnknownStructure),
		errors.Is(err, engine.ErrUnknownCorpus):
		return apperr.NewConcordanceSpecificationError(err.Error(), err)
	}
	return err
}

func (s *Service) evaluate(corpusName string, data Data) ([]engine.Range, error) {
	corp, err := s.corpora.Corpus(corpusName)
	if err != nil {
		return nil, mapEngineError(err)
	}
	ans, err := dataRanges(corp, data)
	if err != nil {
		return nil, mapEngineError(err)
	}
	return ans, nil
}

func (s *Service) validateArgs(args CreateArgs) (int64, error) {
	if args.CorpusName == "" {
		return 0, apperr.NewUserInputError("missing corpus name")
	}
	if strings.TrimSpace(args.Name) == "" {
		return 0, apperr.NewUserInputError("missing subcorpus name")
	}
	if args.Data.numKinds() != 1 {
		return 0, apperr.NewUserInputError(
			"exactly one of `cql`, `within_cond` and `text_types` must be specified")
	}
	ranges, err := s.evaluate(args.CorpusName, args.Data)
	if err != nil {
		return 0, err
	}
	return int64(engine.RangesSize(ranges)), nil
}

func (s *Service) invalidate(id string) {
	s.rangesMu.Lock()
	delete(s.ranges, id)
	s.rangesMu.Unlock()
}

func newSubcorpusID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create stores a new subcorpus. In case a draft with the same ID
// exists and belongs to the same author, it is finalized (or kept
// as a draft with new properties if args.IsDraft is set).
// Any other existing record with the ID means a conflict.
func (s *Service) Create(args CreateArgs) (cncdb.SubcorpusRecord, error) {
	size, err := s.validateArgs(args)
	if err != nil {
		return cncdb.SubcorpusRecord{}, err
	}
	if args.ID == "" {
		args.ID = newSubcorpusID()
	}
	curr, err := s.db.GetSubcorpus(args.ID)
	if err == nil {
		if !curr.IsDraft || curr.AuthorID != args.AuthorID {
			return cncdb.SubcorpusRecord{}, apperr.NewConflictError("subcorpus %s already exists", args.ID)
		}
		return s.update(curr, args, size)

	} else if !errors.Is(err, cncdb.ErrRecordNotFound) {
		return cncdb.SubcorpusRecord{}, err
	}
	userID := args.AuthorID
	rec := cncdb.SubcorpusRecord{
		ID:                args.ID,
		CorpusName:        args.CorpusName,
		Name:              args.Name,
		UserID:            &userID,
		AuthorID:          args.AuthorID,
		Size:              size,
		Created:           s.now(),
		PublicDescription: args.Description,
		IsDraft:           args.IsDraft,
		CQL:               args.Data.CQL,
		WithinCond:        args.Data.WithinCond,
		TextTypes:         args.Data.TextTypes,
		Aligned:           args.Aligned,
	}
	if err := s.db.InsertSubcorpus(rec); err != nil {
		if errors.Is(err, cncdb.ErrDuplicateRecord) {
			return cncdb.SubcorpusRecord{}, apperr.NewConflictError("subcorpus %s already exists", args.ID)
		}
		return cncdb.SubcorpusRecord{}, err
	}
	log.Info().
		Str("subcorpusId", rec.ID).
		Str("corpus", rec.CorpusName).
		Int64("size", rec.Size).
		Bool("isDraft", rec.IsDraft).
		Msg("created subcorpus")
	return s.db.GetSubcorpus(rec.ID)
}

func (s *Service) update(curr cncdb.SubcorpusRecord, args CreateArgs, size int64) (cncdb.SubcorpusRecord, error) {
	if curr.CorpusName != args.CorpusName {
		return cncdb.SubcorpusRecord{}, apperr.NewConflictError(
			"subcorpus %s belongs to a different corpus", curr.ID)
	}
	curr.Name = args.Name
	curr.Size = size
	curr.PublicDescription = args.Description
	curr.IsDraft = args.IsDraft
	curr.CQL = args.Data.CQL
	curr.WithinCond = args.Data.WithinCond
	curr.TextTypes = args.Data.TextTypes
	curr.Aligned = args.Aligned
	if err := s.db.UpdateSubcorpus(curr); err != nil {
		return cncdb.SubcorpusRecord{}, s.mapDBError(curr.ID, err)
	}
	s.invalidate(curr.ID)
	return s.db.GetSubcorpus(curr.ID)
}

// UpdateDraft changes properties of an existing draft
func (s *Service) UpdateDraft(args CreateArgs) (cncdb.SubcorpusRecord, error) {
	size, err := s.validateArgs(args)
	if err != nil {
		return cncdb.SubcorpusRecord{}, err
	}
	curr, err := s.db.GetSubcorpus(args.ID)
	if err != nil {
		return cncdb.SubcorpusRecord{}, s.mapDBError(args.ID, err)
	}
	if !curr.IsDraft {
		return cncdb.SubcorpusRecord{}, apperr.NewConflictError("subcorpus %s is not a draft", args.ID)
	}
	if curr.AuthorID != args.AuthorID {
		return cncdb.SubcorpusRecord{}, apperr.NewNotFoundError("subcorpus %s not found", args.ID)
	}
	args.IsDraft = true
	return s.update(curr, args, size)
}

// owned loads a subcorpus of a corpus currently associated with a user.
// Subcorpora of other users are reported as not found.
func (s *Service) owned(userID int, corpusName, id string) (cncdb.SubcorpusRecord, error) {
	rec, err := s.db.GetSubcorpus(id)
	if err != nil {
		return cncdb.SubcorpusRecord{}, s.mapDBError(id, err)
	}
	if rec.UserID == nil || *rec.UserID != userID || rec.CorpusName != corpusName {
		return cncdb.SubcorpusRecord{}, apperr.NewNotFoundError("subcorpus %s not found", id)
	}
	return rec, nil
}

// Archive marks a subcorpus as archived. For an already archived
// subcorpus, the original time is returned.
func (s *Service) Archive(userID int, corpusName, id string) (time.Time, error) {
	rec, err := s.owned(userID, corpusName, id)
	if err != nil {
		return time.Time{}, err
	}
	if rec.Archived != nil {
		return *rec.Archived, nil
	}
	tm := s.now()
	if err := s.db.SetArchived(id, &tm); err != nil {
		return time.Time{}, err
	}
	return tm, nil
}

func (s *Service) Restore(userID int, corpusName, id string) error {
	if _, err := s.owned(userID, corpusName, id); err != nil {
		return err
	}
	return s.db.SetArchived(id, nil)
}

// DeleteQuery disassociates a subcorpus from its user. The record
// itself is preserved for its author (and for operations referring
// to it).
func (s *Service) DeleteQuery(userID int, corpusName, id string) error {
	if _, err := s.owned(userID, corpusName, id); err != nil {
		return err
	}
	if err := s.db.Disassociate(id, s.now()); err != nil {
		return err
	}
	log.Info().Str("subcorpusId", id).Int("userId", userID).Msg("deleted subcorpus")
	return nil
}

func (s *Service) List(filter cncdb.SubcListFilter) ([]cncdb.SubcorpusRecord, error) {
	if filter.ArchivedOnly && (filter.ActiveOnly || filter.PublishedOnly) {
		return nil, apperr.NewUserInputError(
			"`archived_only` cannot be combined with `active_only` or `published_only`")
	}
	return s.db.ListSubcorpora(filter)
}

func (s *Service) GetInfo(id string) (cncdb.SubcorpusRecord, error) {
	rec, err := s.db.GetSubcorpus(id)
	if err != nil {
		return cncdb.SubcorpusRecord{}, s.mapDBError(id, err)
	}
	return rec, nil
}

func (s *Service) GetInfoByName(corpusName, name string, userID int) (cncdb.SubcorpusRecord, error) {
	rec, err := s.db.GetSubcorpusByName(corpusName, name, userID)
	if err != nil {
		return cncdb.SubcorpusRecord{}, s.mapDBError(name, err)
	}
	return rec, nil
}

func (s *Service) GetQuery(id string) (Data, error) {
	rec, err := s.GetInfo(id)
	if err != nil {
		return Data{}, err
	}
	return dataOf(rec), nil
}

func (s *Service) GetNames(ids []string) (map[string]string, error) {
	return s.db.GetNames(ids)
}

// CreatePreflight creates (or returns an existing) synthetic subcorpus
// owned by the shared user. It consists of the first bibliographic
// units covering at least the configured share of the corpus.
func (s *Service) CreatePreflight(corpusName string) (cncdb.SubcorpusRecord, error) {
	id := "pf" + util.ContentHash(preflightName, corpusName)[:20]
	if rec, err := s.db.GetSubcorpus(id); err == nil {
		return rec, nil

	} else if !errors.Is(err, cncdb.ErrRecordNotFound) {
		return cncdb.SubcorpusRecord{}, err
	}
	corp, err := s.corpora.Corpus(corpusName)
	if err != nil {
		return cncdb.SubcorpusRecord{}, mapEngineError(err)
	}
	idAttr, _ := corp.BibAttrs()
	structName, attr, ok := strings.Cut(idAttr, ".")
	if !ok {
		return cncdb.SubcorpusRecord{}, apperr.NewConcordanceSpecificationError(
			"corpus "+corpusName+" has no bibliography attribute", nil)
	}
	occs, err := corp.Structures(structName)
	if err != nil {
		return cncdb.SubcorpusRecord{}, mapEngineError(err)
	}
	minSize := int(s.conf.PreflightShare * float64(corp.Size()))
	var covered int
	ids := make([]string, 0, 10)
	for _, occ := range occs {
		if covered >= minSize && len(ids) > 0 {
			break
		}
		ids = append(ids, occ.Attrs[attr])
		covered += occ.Len()
	}
	return s.Create(CreateArgs{
		ID:         id,
		CorpusName: corpusName,
		Name:       preflightName,
		AuthorID:   s.conf.SharedUserID,
		Data:       Data{TextTypes: map[string][]string{idAttr: ids}},
	})
}

// SubcorpusRanges returns merged token ranges of a subcorpus
func (s *Service) SubcorpusRanges(corp engine.Corpus, subcID string) ([]engine.Range, error) {
	s.rangesMu.Lock()
	cached, ok := s.ranges[subcID]
	s.rangesMu.Unlock()
	if ok {
		if cached.corpusName != corp.Name() {
			return nil, apperr.NewConcordanceSpecificationError(
				"subcorpus "+subcID+" does not belong to "+corp.Name(), nil)
		}
		return cached.ranges, nil
	}
	rec, err := s.GetInfo(subcID)
	if err != nil {
		return nil, err
	}
	if rec.CorpusName != corp.Name() {
		return nil, apperr.NewConcordanceSpecificationError(
			"subcorpus "+subcID+" does not belong to "+corp.Name(), nil)
	}
	ranges, err := dataRanges(corp, dataOf(rec))
	if err != nil {
		return nil, mapEngineError(err)
	}
	s.rangesMu.Lock()
	s.ranges[subcID] = evaluatedRanges{corpusName: corp.Name(), ranges: ranges}
	s.rangesMu.Unlock()
	return ranges, nil
}

func NewService(conf *Conf, db cncdb.ISubcArchOps, corpora engine.Provider, tz *time.Location) *Service {
	return &Service{
		conf:    conf,
		db:      db,
		corpora: corpora,
		tz:      tz,
		ranges:  make(map[string]evaluatedRanges),
	}
}
