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

package wordlist

import (
	"concbench/apperr"
	"concbench/formargs"
	"concbench/util"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type submitResponse struct {
	QueryID string `json:"query_id"`
}

type wordlistResponse struct {
	Result
	QueryID string `json:"query_id"`
}

type keywordsResponse struct {
	KeywordsResult
	QueryID string `json:"query_id"`
}

type Actions struct {
	svc *Service
}

func (a *Actions) queryID(ctx *gin.Context) (string, error) {
	ans := strings.TrimPrefix(ctx.Query("q"), "~")
	if ans == "" {
		return "", apperr.NewUserInputError("missing argument `q`")
	}
	return ans, nil
}

func (a *Actions) paging(ctx *gin.Context, pageArg, sizeArg string) (int, int, error) {
	page, err := util.IntQuery(ctx, pageArg, 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := util.IntQuery(ctx, sizeArg, a.svc.conf.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if pageSize < 1 {
		return 0, 0, apperr.NewUserInputError("invalid page size %d", pageSize)
	}
	return page, pageSize, nil
}

func (a *Actions) SubmitWordlist(ctx *gin.Context) {
	var fa formargs.WlistFormArgs
	if err := util.DecodeJSONBody(ctx, &fa); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	userID := util.RequestUserID(ctx, a.svc.AnonymousUserID())
	queryID, err := a.svc.SubmitWordlist(ctx.Request.Context(), userID, &fa)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, submitResponse{QueryID: queryID})
}

// WordlistResult returns a page of a stored word list
// (arguments `wlpage`, `wlpagesize`)
func (a *Actions) WordlistResult(ctx *gin.Context) {
	queryID, err := a.queryID(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	page, pageSize, err := a.paging(ctx, "wlpage", "wlpagesize")
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	fa, err := a.svc.OpenWordlist(queryID)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if sort := ctx.Query("wlsort"); sort != "" {
		fa.WLSort = sort
	}
	ans, err := a.svc.Wordlist(ctx.Request.Context(), fa, page, pageSize)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, wordlistResponse{Result: ans, QueryID: queryID})
}

func (a *Actions) SubmitKeywords(ctx *gin.Context) {
	var fa formargs.KwordsFormArgs
	if err := util.DecodeJSONBody(ctx, &fa); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	userID := util.RequestUserID(ctx, a.svc.AnonymousUserID())
	queryID, err := a.svc.SubmitKeywords(ctx.Request.Context(), userID, &fa)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, submitResponse{QueryID: queryID})
}

// KeywordsResult returns a page of stored keywords
// (arguments `kwpage`, `kwpagesize`)
func (a *Actions) KeywordsResult(ctx *gin.Context) {
	queryID, err := a.queryID(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	page, pageSize, err := a.paging(ctx, "kwpage", "kwpagesize")
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	fa, err := a.svc.OpenKeywords(queryID)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	ans, err := a.svc.Keywords(ctx.Request.Context(), fa, page, pageSize)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, keywordsResponse{KeywordsResult: ans, QueryID: queryID})
}

func NewActions(svc *Service) *Actions {
	return &Actions{svc: svc}
}
