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

// Package pquery evaluates paradigmatic queries - queries asking which
// values of an attribute appear in all the concordances of a set
// (and, optionally, almost never or almost always in other concordances).
// Results are stored as CSV files and paginated from there.
package pquery

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/concord"
	"concbench/fcache"
	"concbench/formargs"
	"concbench/freqs"
	"concbench/pipeline"
	"concbench/qpersist"
	"concbench/util"
	"concbench/worker"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	conf    *Conf
	files   *fcache.Cache
	records pipeline.RecordStore
	history pipeline.HistoryWriter
	mat     *concord.Materializer
	freqs   *freqs.Service
}

func (s *Service) Conf() *Conf {
	return s.conf
}

func (s *Service) AnonymousUserID() int {
	return s.records.AnonymousUserID()
}

// sortedConcIDs returns IDs of the "must appear in all" concordances
// in the order used by result columns
func sortedConcIDs(fa *formargs.PqueryFormArgs) []string {
	ans := slices.Clone(fa.ConcIDs)
	slices.Sort(ans)
	return slices.Compact(ans)
}

func (s *Service) resultFile(fa *formargs.PqueryFormArgs) resultFile {
	return resultFile{files: s.files, key: util.ContentHash(fa.CacheKeyParts()...)}
}

// freqTable calculates a frequency distribution of the query attribute
// at the query position within a stored concordance
func (s *Service) freqTable(ctx context.Context, fa *formargs.PqueryFormArgs, concID string, flimit int) (FreqTable, error) {
	rec, err := s.records.Open(concID)
	if err != nil {
		return nil, err
	}
	if rec.PrimaryCorpus() != fa.Corpname {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("concordance %s does not belong to %s", concID, fa.Corpname), nil)
	}
	conc, err := s.mat.GetConc(
		ctx,
		concord.Args{Corpora: rec.Corpora, Subcorpus: rec.UseSubcorp, Q: rec.Q},
		false,
	)
	if err != nil {
		return nil, err
	}
	if err := conc.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := s.freqs.Freqs(ctx, conc, freqs.Args{
		Fcrit:    []string{fa.Attr + " " + fa.Position},
		FLimit:   flimit,
		FreqSort: freqs.SortFreq,
		Page:     1,
		PageSize: math.MaxInt32,
	})
	if err != nil {
		return nil, err
	}
	ans := make(FreqTable)
	for _, item := range res.Blocks[0].Items {
		ans[item.Word[0]] = item.Freq
	}
	return ans, nil
}

// calcTables calculates all the frequency distributions needed
// by a query. Calculations run in parallel, a failure (or a timeout)
// of any of them aborts the whole query.
func (s *Service) calcTables(ctx context.Context, fa *formargs.PqueryFormArgs) (tables, error) {
	concIDs := sortedConcIDs(fa)
	ans := tables{matching: make([]FreqTable, len(concIDs))}
	if fa.ConcSubsetComplements != nil {
		ans.complements = make([]FreqTable, len(fa.ConcSubsetComplements.ConcIDs))
	}
	ctx, cancel := context.WithTimeout(ctx, s.conf.SubtaskTimeout())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.conf.MaxParallelTasks)
	submit := func(concID string, flimit int, target *FreqTable) {
		g.Go(func() error {
			tab, err := s.freqTable(gctx, fa, concID, flimit)
			if errors.Is(err, context.DeadlineExceeded) {
				return apperr.NewTaskTimeout(worker.TaskPquerySubtask+":"+concID, s.conf.SubtaskTimeoutSecs)

			} else if err != nil {
				return fmt.Errorf("failed to calculate freqs of %s: %w", concID, err)
			}
			*target = tab
			return nil
		})
	}
	for i, concID := range concIDs {
		submit(concID, fa.MinFreq, &ans.matching[i])
	}
	if fa.ConcSubsetComplements != nil {
		for i, concID := range fa.ConcSubsetComplements.ConcIDs {
			submit(concID, 1, &ans.complements[i])
		}
	}
	if fa.ConcSuperset != nil {
		submit(fa.ConcSuperset.ConcID, fa.MinFreq, &ans.superset)
	}
	if err := g.Wait(); err != nil {
		return tables{}, err
	}
	return ans, nil
}

// Calc evaluates a query and stores its result
func (s *Service) Calc(ctx context.Context, fa *formargs.PqueryFormArgs) (int, error) {
	if err := fa.Validate(); err != nil {
		return 0, err
	}
	t0 := time.Now()
	tabs, err := s.calcTables(ctx, fa)
	if err != nil {
		return 0, err
	}
	rows := aggregate(tabs, fa.ConcSubsetComplements, fa.ConcSuperset)
	if err := s.resultFile(fa).write(rows); err != nil {
		return 0, err
	}
	log.Info().
		Str("corpus", fa.Corpname).
		Strs("concIds", fa.ConcIDs).
		Int("numRows", len(rows)).
		Dur("procTime", time.Since(t0)).
		Msg("calculated paradigmatic query")
	return len(rows), nil
}

// Submit evaluates a query (unless its result is already available)
// and stores the query as an operation record. The ID of the record
// is returned.
func (s *Service) Submit(ctx context.Context, userID int, fa *formargs.PqueryFormArgs) (string, error) {
	fa.Kind = formargs.FormTypePquery
	if err := fa.Validate(); err != nil {
		return "", err
	}
	if !s.files.Contains(s.resultFile(fa).key) {
		if _, err := s.Calc(ctx, fa); err != nil {
			return "", err
		}
	}
	rec := &qpersist.Record{
		Corpora:    []string{fa.Corpname},
		UseSubcorp: fa.UseSubcorp,
	}
	rec.SetForm(fa)
	id, err := s.records.Store(ctx, userID, rec, nil)
	if err != nil {
		return "", err
	}
	if s.history != nil && s.records.IsRegistered(userID) {
		if err := s.history.Store(userID, fa.Corpname, id, cncdb.QuerySupertypePquery); err != nil {
			log.Error().
				Err(err).
				Int("userId", userID).
				Str("queryId", id).
				Msg("failed to store query history item")
		}
	}
	return id, nil
}

// OpenForm loads the form of a stored query
func (s *Service) OpenForm(queryID string) (*formargs.PqueryFormArgs, error) {
	rec, err := s.records.Open(queryID)
	if err != nil {
		return nil, err
	}
	form, err := rec.FormArgs()
	if err != nil {
		return nil, err
	}
	fa, ok := form.(*formargs.PqueryFormArgs)
	if !ok {
		return nil, apperr.NewUserInputError("record %s is not a paradigmatic query", queryID)
	}
	return fa, nil
}

// Result reads a page of a stored result. In case the result is not
// available, PqueryResultNotFound error is returned.
func (s *Service) Result(fa *formargs.PqueryFormArgs, args PageArgs) (Page, error) {
	return s.resultFile(fa).readPage(args, sortedConcIDs(fa))
}

// SweepCache removes results not used for longer than the configured TTL
func (s *Service) SweepCache() (int, error) {
	return s.files.Sweep(s.conf.CacheTTLDur())
}

func NewService(
	conf *Conf,
	records pipeline.RecordStore,
	history pipeline.HistoryWriter,
	mat *concord.Materializer,
	freqsService *freqs.Service,
) *Service {
	return &Service{
		conf:    conf,
		files:   fcache.New(conf.CacheDir, ".csv"),
		records: records,
		history: history,
		mat:     mat,
		freqs:   freqsService,
	}
}
