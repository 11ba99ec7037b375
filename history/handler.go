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


package history

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/indexer/ftclient"
	"concbench/util"
	"strconv"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

const (
	dfltPageSize = 50
)

type persistArgs struct {
	Name      string               `json:"name"`
	Supertype cncdb.QuerySupertype `json:"q_supertype"`
}

type searchResponse struct {
	Items  []Item `json:"data"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// Actions handles HTTP requests for query history.
// Only registered users have query history.
type Actions struct {
	service         *Service
	anonymousUserID int
}

func (a *Actions) registeredUser(ctx *gin.Context) (int, error) {
	userID := util.RequestUserID(ctx, a.anonymousUserID)
	if userID == a.anonymousUserID {
		return 0, apperr.NewUserInputError("query history is available only to registered users")
	}
	return userID, nil
}

func (a *Actions) itemKey(ctx *gin.Context) (cncdb.HistoryKey, error) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		return cncdb.HistoryKey{}, err
	}
	created, err := strconv.ParseInt(ctx.Param("created"), 10, 64)
	if err != nil {
		return cncdb.HistoryKey{}, apperr.NewUserInputError("invalid creation time `%s`", ctx.Param("created"))
	}
	return cncdb.HistoryKey{UserID: userID, QueryID: ctx.Param("queryId"), Created: created}, nil
}

func (a *Actions) searchArgs(ctx *gin.Context) (SearchArgs, error) {
	var ans SearchArgs
	ans.CorpusName = ctx.Query("corpname")
	supertype, err := cncdb.ParseQuerySupertype(ctx.Query("supertype"))
	if err != nil {
		return ans, apperr.NewUserInputError("%s", err.Error())
	}
	ans.Supertype = supertype
	ans.ArchivedOnly = ctx.Query("archived_only") == "1"
	from, err := util.IntQuery(ctx, "from", 0)
	if err != nil {
		return ans, err
	}
	ans.FromDate = int64(from)
	to, err := util.IntQuery(ctx, "to", 0)
	if err != nil {
		return ans, err
	}
	ans.ToDate = int64(to)
	if ans.Offset, err = util.IntQuery(ctx, "offset", 0); err != nil {
		return ans, err
	}
	if ans.Limit, err = util.IntQuery(ctx, "limit", dfltPageSize); err != nil {
		return ans, err
	}
	if ans.Offset < 0 || ans.Limit < 0 {
		return ans, apperr.NewUserInputError("offset and limit must not be negative")
	}
	return ans, nil
}

func (a *Actions) respondItems(ctx *gin.Context, userID int, args SearchArgs) {
	items, err := a.service.GetUserQueries(ctx.Request.Context(), userID, args)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		searchResponse{Items: items, Offset: args.Offset, Limit: args.Limit},
	)
}

// List returns history items filtered by URL arguments
func (a *Actions) List(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	args, err := a.searchArgs(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	a.respondItems(ctx, userID, args)
}

// Search performs a fulltext search. The body is a list
// of ftclient.QueryItem.
func (a *Actions) Search(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	args, err := a.searchArgs(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := util.DecodeJSONBody(ctx, &args.FullSearch); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if len(args.FullSearch) == 0 {
		apperr.RespondWithError(ctx, apperr.NewUserInputError("empty fulltext query"))
		return
	}
	a.respondItems(ctx, userID, args)
}

func (a *Actions) MakePersistent(ctx *gin.Context) {
	key, err := a.itemKey(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var args persistArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	hRec, err := a.service.MakePersistent(ctx.Request.Context(), key, args.Supertype, args.Name)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, hRec)
}

func (a *Actions) MakeTransient(ctx *gin.Context) {
	key, err := a.itemKey(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := a.service.MakeTransient(ctx.Request.Context(), key); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (a *Actions) Delete(ctx *gin.Context) {
	key, err := a.itemKey(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := a.service.Delete(ctx.Request.Context(), key); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

// FulltextFields lists fields usable in fulltext search
func (a *Actions) FulltextFields(ctx *gin.Context) {
	uniresp.WriteJSONResponse(ctx.Writer, ftclient.KnownFields)
}

func NewActions(service *Service, anonymousUserID int) *Actions {
	return &Actions{service: service, anonymousUserID: anonymousUserID}
}
