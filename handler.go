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

package main

import (
	"concbench/apperr"
	"concbench/archiver"
	"concbench/cncdb"
	"concbench/kcache"
	"concbench/pipeline"
	"concbench/qpersist"
	"encoding/json"
	"errors"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type visitedIds []string

func (v visitedIds) IDList() []string {
	if v == nil {
		return []string{}
	}
	return v
}

// ------

type recordResponse struct {
	cncdb.QueryArchRec
	Decoded *qpersist.Record `json:"decoded,omitempty"`
}

type concCacheResponse struct {
	ID    string             `json:"id"`
	Entry *kcache.CacheEntry `json:"entry"`
}

// Actions contains administration handlers
type Actions struct {
	arch     *archiver.ArchKeeper
	rdb      *archiver.RedisAdapter
	pipeline *pipeline.Service
}

func (a *Actions) Overview(ctx *gin.Context) {
	ans, err := a.arch.Overview(ctx.Query("force") == "1")
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

func (a *Actions) GetRecord(ctx *gin.Context) {
	rec, err := a.arch.LoadRecordByID(ctx.Param("id"))
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		apperr.RespondWithError(ctx, apperr.NewNotFoundError("archived record %s not found", ctx.Param("id")))
		return

	} else if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	ans := recordResponse{QueryArchRec: rec}
	if decoded, err := qpersist.DecodeRecord(rec.Data); err == nil {
		ans.Decoded = decoded
	}
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

// Validate loads the whole chain of an operation and tests its integrity
func (a *Actions) Validate(ctx *gin.Context) {
	chain, err := a.pipeline.LoadPipeline(ctx.Param("id"))
	if errors.Is(err, apperr.ErrNotFound) {
		apperr.RespondWithError(ctx, err)
		return

	} else if err != nil {
		uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"message": err.Error()})
		return
	}
	var visited visitedIds
	for _, rec := range chain {
		visited = append(visited, rec.ID)
	}
	if err := pipeline.Validate(chain); err != nil {
		uniresp.WriteJSONResponse(
			ctx.Writer,
			map[string]any{
				"message":    err.Error(),
				"visitedIds": visited.IDList(),
			},
		)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		map[string]any{
			"message":    "OK",
			"visitedIds": visited.IDList(),
		},
	)
}

// ConcCache shows a status record of a concordance calculated
// for an operation
func (a *Actions) ConcCache(ctx *gin.Context) {
	rec, err := a.rdb.GetConcCacheRawRecord(ctx.Param("id"))
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		apperr.RespondWithError(ctx, apperr.NewNotFoundError("no cache record for %s", ctx.Param("id")))
		return

	} else if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var entry kcache.CacheEntry
	if err := json.Unmarshal([]byte(rec.Data), &entry); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, concCacheResponse{ID: rec.ID, Entry: &entry})
}

func (a *Actions) DedupReset(ctx *gin.Context) {
	if err := a.arch.Deduplicator().Reset(); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"ok": true})
}

func NewActions(
	arch *archiver.ArchKeeper,
	rdb *archiver.RedisAdapter,
	pipelineService *pipeline.Service,
) *Actions {
	return &Actions{
		arch:     arch,
		rdb:      rdb,
		pipeline: pipelineService,
	}
}
