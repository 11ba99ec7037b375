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

package colls

import (
	"concbench/apperr"
	"concbench/freqs"
	"concbench/util"
	"errors"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

const (
	dfltCfromw   = -5
	dfltCtow     = 5
	dfltCminfreq = 3
	dfltCminbgr  = 3
	dfltCsortfn  = "d"
)

var dfltCbgrfns = []string{"m", "t", "d"}

type response struct {
	Result
	Q                   []string `json:"Q"`
	ConcPersistenceOpID string   `json:"conc_persistence_op_id,omitempty"`
}

type Actions struct {
	svc   *Service
	concs freqs.ConcResolver
}

// Colls calculates collocations of a stored concordance. In case
// the respective frequency database is not available yet, a "processing"
// response with an ID of the build task is returned.
func (a *Actions) Colls(ctx *gin.Context) {
	rec, conc, err := a.concs.ResolveConc(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	args := Args{
		Cattr:   ctx.DefaultQuery("cattr", conc.Corpus().DefaultAttr()),
		Csortfn: ctx.DefaultQuery("csortfn", dfltCsortfn),
		Cbgrfns: ctx.QueryArray("cbgrfns"),
	}
	if len(args.Cbgrfns) == 0 {
		args.Cbgrfns = dfltCbgrfns
	}
	for _, v := range []struct {
		name  string
		dflt  int
		value *int
	}{
		{"cfromw", dfltCfromw, &args.Cfromw},
		{"ctow", dfltCtow, &args.Ctow},
		{"cminfreq", dfltCminfreq, &args.Cminfreq},
		{"cminbgr", dfltCminbgr, &args.Cminbgr},
		{"collpage", 1, &args.Page},
		{"citemsperpage", a.svc.conf.ItemsPerPage, &args.PerPage},
	} {
		*v.value, err = util.IntQuery(ctx, v.name, v.dflt)
		if err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
	}
	ans, err := a.svc.Colls(ctx.Request.Context(), conc, args)
	if errors.Is(err, apperr.MissingSubCorpFreqFile) {
		uniresp.WriteJSONResponse(ctx.Writer, ans)
		return

	} else if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		response{Result: ans, Q: rec.Q, ConcPersistenceOpID: rec.ID},
	)
}

func NewActions(svc *Service, concs freqs.ConcResolver) *Actions {
	return &Actions{svc: svc, concs: concs}
}
