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

package texttypes

import (
	"concbench/apperr"
	"concbench/engine"
	"concbench/util"
	"errors"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type compiledSelection struct {
	Conds       []StructCond `json:"conds"`
	Within      string       `json:"within"`
	Description string       `json:"description"`
}

// Actions provide text types metadata of corpora
type Actions struct {
	corpora engine.Provider
}

func (a *Actions) corpus(ctx *gin.Context) (engine.Corpus, error) {
	corp, err := a.corpora.Corpus(ctx.Param("corpname"))
	if errors.Is(err, engine.ErrUnknownCorpus) {
		return nil, apperr.NewNotFoundError("corpus %s not found", ctx.Param("corpname"))
	}
	return corp, err
}

// Values lists values of structural attributes. Without the `attr`
// argument, all the attributes of the corpus are listed.
func (a *Actions) Values(ctx *gin.Context) {
	corp, err := a.corpus(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	attrs := ctx.QueryArray("attr")
	if len(attrs) == 0 {
		attrs = corp.StructAttrs()
	}
	ans := make(map[string][]ValueInfo)
	for _, attr := range attrs {
		values, err := ListValues(corp, attr)
		if err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		ans[attr] = values
	}
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

// Compile translates a selection (request body) into
// a `within` part of a query
func (a *Actions) Compile(ctx *gin.Context) {
	corp, err := a.corpus(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var sel Selection
	if err := util.DecodeJSONBody(ctx, &sel); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := Validate(sel, corp); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	conds, err := Compile(sel, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(
		ctx.Writer,
		compiledSelection{
			Conds:       conds,
			Within:      WithinQuery(conds),
			Description: Describe(sel, nil),
		},
	)
}

func NewActions(corpora engine.Provider) *Actions {
	return &Actions{corpora: corpora}
}
