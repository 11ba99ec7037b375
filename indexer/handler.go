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


package indexer

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/indexer/ftclient"
	"concbench/util"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

const (
	defaultNumRecentRecs = 100
	defaultSearchOrder   = "-_score,-created"
)

type setNameArgs struct {
	Name string `json:"name"`
}

type Actions struct {
	indexer *Indexer
}

func historyKey(ctx *gin.Context) (cncdb.HistoryKey, error) {
	var ans cncdb.HistoryKey
	var err error
	ans.UserID, err = strconv.Atoi(ctx.Param("userId"))
	if err != nil {
		return ans, apperr.NewUserInputError("invalid user ID")
	}
	ans.Created, err = strconv.ParseInt(ctx.Param("created"), 10, 64)
	if err != nil {
		return ans, apperr.NewUserInputError("invalid creation time")
	}
	ans.QueryID = ctx.Param("queryId")
	return ans, nil
}

func splitList(v string) []string {
	if v == "" {
		return []string{}
	}
	return strings.Split(v, ",")
}

// IndexUserRecords (re)indexes latest history items of a user
func (a *Actions) IndexUserRecords(ctx *gin.Context) {
	numRec := ctx.Query("numRec")
	if numRec == "" {
		newURL := *ctx.Request.URL
		newQuery := newURL.Query()
		newQuery.Set("numRec", strconv.Itoa(defaultNumRecentRecs))
		newURL.RawQuery = newQuery.Encode()
		ctx.Redirect(http.StatusSeeOther, newURL.String())
		return
	}
	iNumRec, err := strconv.Atoi(numRec)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return
	}
	userID, err := strconv.Atoi(ctx.Param("userId"))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return
	}
	numProc, err := a.indexer.IndexUserRecords(userID, iNumRec)
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	count, err := a.indexer.DocCount()
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"totalDocuments": count,
		"numProcessed":   numProc,
	}
	uniresp.WriteJSONResponse(ctx.Writer, resp)
}

// Search serves the fulltext protocol used by ftclient.Client
func (a *Actions) Search(ctx *gin.Context) {
	userID, err := strconv.Atoi(ctx.Param("userId"))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return
	}
	var items []ftclient.QueryItem
	if err := util.DecodeJSONBody(ctx, &items); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	limit, err := util.IntQuery(ctx, "limit", a.indexer.conf.SearchMaxResults)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	order := splitList(ctx.DefaultQuery("order", defaultSearchOrder))
	res, err := a.indexer.Search(userID, items, limit, order, splitList(ctx.Query("fields")))
	if err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusBadRequest)
		return
	}
	ans := ftclient.SearchResponse{
		Total: res.Total,
		Hits:  make([]ftclient.Hit, len(res.Hits)),
	}
	for i, hit := range res.Hits {
		ans.Hits[i] = ftclient.Hit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields}
	}
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

func (a *Actions) SetName(ctx *gin.Context) {
	key, err := historyKey(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var args setNameArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := a.indexer.SetName(key, args.Name); err != nil {
		if errors.Is(err, cncdb.ErrRecordNotFound) {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusNotFound)
			return
		}
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (a *Actions) Delete(ctx *gin.Context) {
	key, err := historyKey(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	hRec := cncdb.HistoryRecord{UserID: key.UserID, QueryID: key.QueryID, Created: key.Created}
	if err := a.indexer.Delete(hRec.CreateIndexID()); err != nil {
		uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func NewActions(indexer *Indexer) *Actions {
	return &Actions{indexer: indexer}
}
