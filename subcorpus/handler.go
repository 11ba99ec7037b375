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

package subcorpus

import (
	"concbench/apperr"
	"concbench/cncdb"
	"concbench/util"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type createArgs struct {
	SubcID      string                 `json:"subcid"`
	Corpname    string                 `json:"corpname"`
	Subcname    string                 `json:"subcname"`
	Description string                 `json:"description"`
	CQL         *string                `json:"cql"`
	WithinCond  []cncdb.WithinCondItem `json:"within_cond"`
	TextTypes   map[string][]string    `json:"text_types"`
	Aligned     []string               `json:"aligned"`
	IsDraft     bool                   `json:"is_draft"`
}

func (args createArgs) toCreateArgs(authorID int) CreateArgs {
	return CreateArgs{
		ID:          args.SubcID,
		CorpusName:  args.Corpname,
		Name:        args.Subcname,
		AuthorID:    authorID,
		Description: args.Description,
		Data:        Data{CQL: args.CQL, WithinCond: args.WithinCond, TextTypes: args.TextTypes},
		Aligned:     args.Aligned,
		IsDraft:     args.IsDraft,
	}
}

// Actions handles HTTP requests for subcorpora
type Actions struct {
	svc             *Service
	anonymousUserID int
}

// registeredUser returns ID of the requesting user. Anonymous
// users cannot own subcorpora.
func (a *Actions) registeredUser(ctx *gin.Context) (int, error) {
	userID := util.RequestUserID(ctx, a.anonymousUserID)
	if userID == a.anonymousUserID {
		return 0, apperr.NewUserInputError("subcorpora are available only to registered users")
	}
	return userID, nil
}

func (a *Actions) Create(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var args createArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	rec, err := a.svc.Create(args.toCreateArgs(userID))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, rec)
}

func (a *Actions) UpdateDraft(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var args createArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	args.SubcID = ctx.Param("id")
	rec, err := a.svc.UpdateDraft(args.toCreateArgs(userID))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, rec)
}

func (a *Actions) Archive(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	tm, err := a.svc.Archive(userID, ctx.Query("corpname"), ctx.Param("id"))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"archived": tm.Unix()})
}

func (a *Actions) Restore(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := a.svc.Restore(userID, ctx.Query("corpname"), ctx.Param("id")); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (a *Actions) Delete(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := a.svc.DeleteQuery(userID, ctx.Query("corpname"), ctx.Param("id")); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func (a *Actions) List(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	offset, err := util.IntQuery(ctx, "offset", 0)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	limit, err := util.IntQuery(ctx, "limit", 0)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	filter := cncdb.SubcListFilter{
		UserID:        userID,
		CorpusName:    ctx.Query("corpname"),
		ArchivedOnly:  ctx.Query("archived_only") == "1",
		ActiveOnly:    ctx.Query("active_only") == "1",
		PublishedOnly: ctx.Query("published_only") == "1",
		Pattern:       ctx.Query("pattern"),
		IAQuery:       ctx.Query("ia_query"),
		IncludeDrafts: ctx.Query("include_drafts") == "1",
		Offset:        offset,
		Limit:         limit,
	}
	recs, err := a.svc.List(filter)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"subcorpora": recs})
}

func (a *Actions) GetInfo(ctx *gin.Context) {
	rec, err := a.svc.GetInfo(ctx.Param("id"))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, rec)
}

func (a *Actions) GetInfoByName(ctx *gin.Context) {
	userID, err := a.registeredUser(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	rec, err := a.svc.GetInfoByName(ctx.Query("corpname"), ctx.Query("name"), userID)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, rec)
}

func (a *Actions) GetQuery(ctx *gin.Context) {
	data, err := a.svc.GetQuery(ctx.Param("id"))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, data)
}

func (a *Actions) GetNames(ctx *gin.Context) {
	ids := strings.Split(ctx.Query("ids"), ",")
	names, err := a.svc.GetNames(ids)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, names)
}

func (a *Actions) CreatePreflight(ctx *gin.Context) {
	rec, err := a.svc.CreatePreflight(ctx.Param("corpname"))
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, rec)
}

func NewActions(svc *Service, anonymousUserID int) *Actions {
	return &Actions{svc: svc, anonymousUserID: anonymousUserID}
}
