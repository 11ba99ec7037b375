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

package freqs

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/qpersist"
	"concbench/util"
	"fmt"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

// ConcResolver finds a concordance a request refers to
// (see pipeline.Actions)
type ConcResolver interface {
	ResolveConc(ctx *gin.Context) (*qpersist.Record, *concord.Concordance, error)
}

type freqsResponse struct {
	Result
	Q                   []string `json:"Q"`
	ConcPersistenceOpID string   `json:"conc_persistence_op_id,omitempty"`
}

type ctResponse struct {
	CTResult
	Q                   []string `json:"Q"`
	ConcPersistenceOpID string   `json:"conc_persistence_op_id,omitempty"`
}

type Actions struct {
	svc   *Service
	concs ConcResolver
}

func (a *Actions) respondFreqs(ctx *gin.Context, fcrit []string) {
	rec, conc, err := a.concs.ResolveConc(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	flimit, err := util.IntQuery(ctx, "flimit", 0)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	page, err := util.IntQuery(ctx, "fpage", 1)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	pageSize, err := util.IntQuery(ctx, "fpagesize", a.svc.conf.DefaultPageSize)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	ans, err := a.svc.Freqs(ctx.Request.Context(), conc, Args{
		Fcrit:    fcrit,
		FLimit:   flimit,
		FreqSort: ctx.DefaultQuery("freq_sort", SortFreq),
		NormKind: ctx.Query("norm"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		freqsResponse{Result: ans, Q: rec.Q, ConcPersistenceOpID: rec.ID},
	)
}

// Freqs calculates frequencies of one or more `fcrit` criteria
func (a *Actions) Freqs(ctx *gin.Context) {
	a.respondFreqs(ctx, ctx.QueryArray("fcrit"))
}

// FreqML calculates a multi-level frequency distribution. Levels
// are specified by `ml<N>attr`, `ml<N>ctx` and `ml<N>icase` arguments
// (N = 1, 2, ...).
func (a *Actions) FreqML(ctx *gin.Context) {
	levels := make([]string, 0, a.svc.conf.MaxLevels)
	for i := 1; ; i++ {
		attr := ctx.Query(fmt.Sprintf("ml%dattr", i))
		if attr == "" {
			break
		}
		if ctx.Query(fmt.Sprintf("ml%dicase", i)) == "1" {
			attr += "/i"
		}
		levels = append(levels, attr+" "+ctx.DefaultQuery(fmt.Sprintf("ml%dctx", i), "0"))
	}
	if len(levels) == 0 {
		apperr.RespondWithError(ctx, apperr.NewUserInputError("no frequency level specified"))
		return
	}
	a.respondFreqs(ctx, []string{strings.Join(levels, " ")})
}

// FreqCT calculates a two-dimensional frequency distribution
func (a *Actions) FreqCT(ctx *gin.Context) {
	rec, conc, err := a.concs.ResolveConc(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	flimit, err := util.IntQuery(ctx, "ctminfreq", 0)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	ans, err := a.svc.FreqsCT(ctx.Request.Context(), conc, CTArgs{
		Crit1:    ctx.Query("ctfcrit1"),
		Crit2:    ctx.Query("ctfcrit2"),
		FLimit:   flimit,
		NormKind: ctx.Query("norm"),
	})
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		ctResponse{CTResult: ans, Q: rec.Q, ConcPersistenceOpID: rec.ID},
	)
}

func NewActions(svc *Service, concs ConcResolver) *Actions {
	return &Actions{svc: svc, concs: concs}
}
