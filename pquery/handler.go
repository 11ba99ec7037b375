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

package pquery

import (
	"concbench/apperr"
	"concbench/formargs"
	"concbench/util"
	"errors"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type submitResponse struct {
	QueryID string `json:"query_id"`
}

type resultResponse struct {
	Page
	QueryID string `json:"query_id"`
}

type Actions struct {
	svc *Service
}

// Submit evaluates a paradigmatic query specified
// by a JSON-encoded form
func (a *Actions) Submit(ctx *gin.Context) {
	var fa formargs.PqueryFormArgs
	if err := util.DecodeJSONBody(ctx, &fa); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	userID := util.RequestUserID(ctx, a.svc.AnonymousUserID())
	queryID, err := a.svc.Submit(ctx.Request.Context(), userID, &fa)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, submitResponse{QueryID: queryID})
}

// Result returns a page of a stored query result. Results removed
// from the cache are recalculated.
func (a *Actions) Result(ctx *gin.Context) {
	queryID := strings.TrimPrefix(ctx.Query("q"), "~")
	if queryID == "" {
		apperr.RespondWithError(ctx, apperr.NewUserInputError("missing argument `q`"))
		return
	}
	fa, err := a.svc.OpenForm(queryID)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	args := PageArgs{
		Sort:    ctx.DefaultQuery("sort", SortFreq),
		Reverse: ctx.Query("reverse") == "true" || ctx.Query("reverse") == "1",
	}
	if args.Offset, err = util.IntQuery(ctx, "offset", 0); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if args.Limit, err = util.IntQuery(ctx, "limit", a.svc.conf.DefaultPageSize); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	page, err := a.svc.Result(fa, args)
	if errors.Is(err, apperr.PqueryResultNotFound) {
		if _, err = a.svc.Calc(ctx.Request.Context(), fa); err == nil {
			page, err = a.svc.Result(fa, args)
		}
	}
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, resultResponse{Page: page, QueryID: queryID})
}

func NewActions(svc *Service) *Actions {
	return &Actions{svc: svc}
}
