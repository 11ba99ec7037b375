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

package pipeline

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/formargs"
	"concbench/qpersist"
	"concbench/util"
	"strings"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type submittedQuery struct {
	Corpname     string `json:"corpname"`
	QType        string `json:"qtype"`
	Query        string `json:"query"`
	Qmcase       bool   `json:"qmcase"`
	DefaultAttr  string `json:"default_attr"`
	PcqPosNeg    string `json:"pcq_pos_neg"`
	IncludeEmpty bool   `json:"include_empty"`
}

type contextFilterArgs struct {
	FcLemwordType  string   `json:"fc_lemword_type"`
	FcLemwordWsize [2]int   `json:"fc_lemword_wsize"`
	FcLemword      string   `json:"fc_lemword"`
	FcPosType      string   `json:"fc_pos_type"`
	FcPosWsize     [2]int   `json:"fc_pos_wsize"`
	FcPos          []string `json:"fc_pos"`
}

type querySubmitArgs struct {
	Queries        []submittedQuery    `json:"queries"`
	TextTypes      map[string][]string `json:"text_types"`
	BibMapping     map[string]string   `json:"bib_mapping"`
	UseSubcorp     string              `json:"usesubcorp"`
	Async          bool                `json:"async"`
	NoQueryHistory bool                `json:"no_query_history"`
	Context        *contextFilterArgs  `json:"context"`
}

func (args *querySubmitArgs) corpora() []string {
	ans := make([]string, len(args.Queries))
	for i, q := range args.Queries {
		ans[i] = q.Corpname
	}
	return ans
}

func (args *querySubmitArgs) toForm() (*formargs.QueryFormArgs, error) {
	if len(args.Queries) == 0 {
		return nil, apperr.NewConcordanceQueryParamsError("no query specified", nil)
	}
	corpora := args.corpora()
	fa, err := formargs.NewFormArgs(formargs.FormTypeQuery, corpora)
	if err != nil {
		return nil, err
	}
	form := fa.(*formargs.QueryFormArgs)
	for _, q := range args.Queries {
		if q.Corpname == "" {
			return nil, apperr.NewConcordanceQueryParamsError("missing corpus name", nil)
		}
		form.CurrQueries[q.Corpname] = q.Query
		if q.QType != "" {
			form.CurrQueryTypes[q.Corpname] = q.QType
		}
		form.CurrQmcaseValues[q.Corpname] = q.Qmcase
		if q.DefaultAttr != "" {
			form.CurrDefaultAttrValues[q.Corpname] = q.DefaultAttr
		}
		if q.PcqPosNeg != "" {
			form.CurrPcqPosNegValues[q.Corpname] = q.PcqPosNeg
		}
		form.CurrIncludeEmptyValues[q.Corpname] = q.IncludeEmpty
	}
	for k, v := range args.TextTypes {
		form.SelectedTextTypes[k] = v
	}
	for k, v := range args.BibMapping {
		form.BibMapping[k] = v
	}
	form.NoQueryHistory = args.NoQueryHistory
	form.Asnc = args.Async
	if args.Context != nil {
		form.FcLemword = args.Context.FcLemword
		form.FcPos = args.Context.FcPos
		if args.Context.FcLemwordType != "" {
			form.FcLemwordType = args.Context.FcLemwordType
		}
		if args.Context.FcPosType != "" {
			form.FcPosType = args.Context.FcPosType
		}
		if args.Context.FcLemwordWsize != [2]int{} {
			form.FcLemwordWsize = args.Context.FcLemwordWsize
		}
		if args.Context.FcPosWsize != [2]int{} {
			form.FcPosWsize = args.Context.FcPosWsize
		}
	}
	return form, nil
}

// -------------------------

type concArgs struct {
	Corpname   string   `json:"corpname"`
	Maincorp   string   `json:"maincorp"`
	Usesubcorp string   `json:"usesubcorp,omitempty"`
	Align      []string `json:"align"`
	Q          string   `json:"q"`
}

type concResponse struct {
	Q                   []string      `json:"Q"`
	ConcPersistenceOpID string        `json:"conc_persistence_op_id"`
	Size                int           `json:"size"`
	Finished            bool          `json:"finished"`
	Sizes               concord.Sizes `json:"sizes"`
	ConcArgs            concArgs      `json:"conc_args"`
	Ownership           string        `json:"ownership"`
}

type pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pagesize"`
	LastPage int `json:"lastpage"`
}

type viewResponse struct {
	Lines               []concord.KwicLine `json:"Lines"`
	Pagination          pagination         `json:"pagination"`
	ConcSize            int                `json:"concsize"`
	SampledSize         int                `json:"sampled_size"`
	FullSize            int                `json:"fullsize"`
	ResultARF           float64            `json:"result_arf"`
	ResultRelativeFreq  float64            `json:"result_relative_freq"`
	Finished            bool               `json:"finished"`
	Q                   []string           `json:"Q"`
	ConcPersistenceOpID string             `json:"conc_persistence_op_id,omitempty"`
}

type lgroupArgs struct {
	Groups [][3]int `json:"groups"`
	Sorted bool     `json:"sorted"`
}

// -------------------------

// Actions handles HTTP requests producing and viewing concordances
type Actions struct {
	pipeline *Service
	mat      *concord.Materializer
}

func (a *Actions) userID(ctx *gin.Context) int {
	return util.RequestUserID(ctx, a.pipeline.AnonymousUserID())
}

// resolveBase finds the record the request refers to. The `q` argument
// is either a reference to a stored operation (`~<id>`, optionally followed
// by additional raw tokens) or a list of raw operation tokens (then `corpname`,
// `align` and `usesubcorp` arguments specify the corpora). Records not
// backed by a stored operation have no ID.
func (a *Actions) resolveBase(ctx *gin.Context) (*qpersist.Record, error) {
	q := ctx.QueryArray("q")
	if len(q) == 0 {
		return nil, apperr.NewUserInputError("missing argument `q`")
	}
	if strings.HasPrefix(q[0], "~") {
		rec, err := a.pipeline.Open(strings.TrimPrefix(q[0], "~"))
		if err != nil {
			return nil, err
		}
		if len(q) > 1 {
			rec = rec.Clone()
			rec.ID = ""
			rec.PrevID = ""
			rec.Q = append(rec.Q, q[1:]...)
			rec.LinesGroups = qpersist.LinesGroups{}
		}
		return rec, nil
	}
	corpname := ctx.Query("corpname")
	if corpname == "" {
		return nil, apperr.NewUserInputError("missing argument `corpname`")
	}
	return &qpersist.Record{
		Corpora:    append([]string{corpname}, ctx.QueryArray("align")...),
		UseSubcorp: ctx.Query("usesubcorp"),
		Q:          q,
	}, nil
}

// ResolveConc finds the record a request refers to (see resolveBase)
// and synchronously calculates its concordance
func (a *Actions) ResolveConc(ctx *gin.Context) (*qpersist.Record, *concord.Concordance, error) {
	base, err := a.resolveBase(ctx)
	if err != nil {
		return nil, nil, err
	}
	conc, err := a.mat.GetConc(ctx.Request.Context(), a.concArgs(base), false)
	if err != nil {
		return nil, nil, err
	}
	if err := conc.Wait(ctx.Request.Context()); err != nil {
		return nil, nil, err
	}
	return base, conc, nil
}

func (a *Actions) concArgs(rec *qpersist.Record) concord.Args {
	return concord.Args{
		Corpora:   rec.Corpora,
		Subcorpus: rec.UseSubcorp,
		Q:         rec.Q,
	}
}

func (a *Actions) respondConc(ctx *gin.Context, rec *qpersist.Record, conc *concord.Concordance) {
	sizes := conc.Sizes()
	uniresp.WriteJSONResponse(
		ctx.Writer,
		concResponse{
			Q:                   rec.Q,
			ConcPersistenceOpID: rec.ID,
			Size:                sizes.ConcSize,
			Finished:            sizes.Finished,
			Sizes:               sizes,
			ConcArgs: concArgs{
				Corpname:   rec.PrimaryCorpus(),
				Maincorp:   rec.PrimaryCorpus(),
				Usesubcorp: rec.UseSubcorp,
				Align:      rec.AlignedCorpora(),
				Q:          "~" + rec.ID,
			},
			Ownership: a.pipeline.Ownership(rec, a.userID(ctx)).String(),
		},
	)
}

// commitAndRespond calculates (or starts calculating) the concordance
// of the action and stores the action. Nothing is stored in case
// the concordance cannot be calculated.
func (a *Actions) commitAndRespond(ctx *gin.Context, action *Action, asnc bool) {
	conc, err := a.mat.GetConc(
		ctx.Request.Context(),
		concord.Args{Corpora: action.Corpora(), Subcorpus: action.UseSubcorp(), Q: action.Q()},
		asnc,
	)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	rec, err := a.pipeline.Commit(ctx.Request.Context(), a.userID(ctx), action)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	a.respondConc(ctx, rec, conc)
}

// QuerySubmit starts a new chain with a query (possibly
// followed by automatically generated context filters)
func (a *Actions) QuerySubmit(ctx *gin.Context) {
	var args querySubmitArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form, err := args.toForm()
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	corpora := args.corpora()
	q, err := concord.CompileQuery(form, corpora, a.mat.Corpora())
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var ctxForms []*formargs.FilterFormArgs
	if form.HasContextFilter() {
		corp, err := a.mat.Corpora().Corpus(corpora[0])
		if err != nil {
			apperr.RespondWithError(ctx, apperr.NewNotFoundError("corpus %s not found", corpora[0]))
			return
		}
		ctxForms = concord.ContextFilterForms(form, corp)
	}
	qIndices := make([]int, 0, len(ctxForms)+1)
	qIndices = append(qIndices, len(q)-1)
	for _, f := range ctxForms {
		tokens, err := concord.FilterTokens(f)
		if err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		q = append(q, tokens...)
		qIndices = append(qIndices, len(q)-1)
	}
	action := NewQueryAction(corpora, args.UseSubcorp, q, form)
	// the query itself and all the context filters but the last one
	// become separate links, the final link carries the query form
	if len(ctxForms) > 0 {
		if err := action.AcknowledgeAutoGenerated(qIndices[0], form); err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		for i, f := range ctxForms[:len(ctxForms)-1] {
			if err := action.AcknowledgeAutoGenerated(qIndices[i+1], f); err != nil {
				apperr.RespondWithError(ctx, err)
				return
			}
		}
	}
	a.commitAndRespond(ctx, action, args.Async)
}

// extend handles actions appending tokens produced by `mkTokens`
// to an existing chain
func (a *Actions) extend(
	ctx *gin.Context,
	form formargs.FormArgs,
	mkTokens func(base *qpersist.Record) ([]string, error),
) {
	base, err := a.resolveBase(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	if err := util.DecodeJSONBody(ctx, form); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	tokens, err := mkTokens(base)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	a.commitAndRespond(ctx, NewExtendAction(base, tokens, form), ctx.Query("async") == "1")
}

func (a *Actions) Filter(ctx *gin.Context) {
	fa, err := formargs.NewFormArgs(formargs.FormTypeFilter, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form := fa.(*formargs.FilterFormArgs)
	// KWIC inclusion must be requested explicitly
	form.Inclkwic = false
	a.extend(ctx, form, func(base *qpersist.Record) ([]string, error) {
		if form.Maincorp == "" {
			form.Maincorp = base.PrimaryCorpus()
		}
		return concord.FilterTokens(form)
	})
}

func (a *Actions) Sort(ctx *gin.Context) {
	fa, err := formargs.NewFormArgs(formargs.FormTypeSort, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form := fa.(*formargs.SortFormArgs)
	a.extend(ctx, form, func(base *qpersist.Record) ([]string, error) {
		token, err := concord.SortToken(form)
		if err != nil {
			return nil, err
		}
		return []string{token}, nil
	})
}

func (a *Actions) MLSort(ctx *gin.Context) {
	fa, err := formargs.NewFormArgs(formargs.FormTypeMLSort, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form := fa.(*formargs.MLSortFormArgs)
	a.extend(ctx, form, func(base *qpersist.Record) ([]string, error) {
		token, err := concord.MLSortToken(form)
		if err != nil {
			return nil, err
		}
		return []string{token}, nil
	})
}

func (a *Actions) Sample(ctx *gin.Context) {
	fa, err := formargs.NewFormArgs(formargs.FormTypeSample, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form := fa.(*formargs.SampleFormArgs)
	a.extend(ctx, form, func(base *qpersist.Record) ([]string, error) {
		token, err := concord.SampleToken(form)
		if err != nil {
			return nil, err
		}
		return []string{token}, nil
	})
}

func (a *Actions) Shuffle(ctx *gin.Context) {
	fa, err := formargs.NewFormArgs(formargs.FormTypeShuffle, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	a.extend(ctx, fa, func(base *qpersist.Record) ([]string, error) {
		return []string{concord.ShuffleToken()}, nil
	})
}

// Lgroup changes manual line groups of a concordance (the query
// remains the same)
func (a *Actions) Lgroup(ctx *gin.Context) {
	base, err := a.resolveBase(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var args lgroupArgs
	if err := util.DecodeJSONBody(ctx, &args); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	fa, err := formargs.NewFormArgs(formargs.FormTypeLgroup, nil)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	form := fa.(*formargs.LgroupFormArgs)
	form.Groups = args.Groups
	if err := form.Validate(); err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	action := NewExtendAction(base, []string{}, form)
	action.SetLinesGroups(qpersist.LinesGroups{Data: args.Groups, Sorted: args.Sorted})
	a.commitAndRespond(ctx, action, ctx.Query("async") == "1")
}

// View returns a page of KWIC lines
func (a *Actions) View(ctx *gin.Context) {
	base, err := a.resolveBase(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	page, err := util.IntQuery(ctx, "fromp", 1)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	pageSize, err := util.IntQuery(ctx, "pagesize", a.mat.Conf().DefaultPageSize)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	conc, err := a.mat.GetConc(ctx.Request.Context(), a.concArgs(base), ctx.Query("async") == "1")
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	ans := viewResponse{
		Lines:               []concord.KwicLine{},
		Pagination:          pagination{Page: page, PageSize: pageSize, LastPage: 1},
		Q:                   base.Q,
		ConcPersistenceOpID: base.ID,
	}
	if conc.Finished() {
		if err := conc.Err(); err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		kwic, err := a.mat.View(conc, concord.ViewArgs{
			Page:        page,
			PageSize:    pageSize,
			Attr:        ctx.Query("attr"),
			LinesGroups: base.LinesGroups.Data,
			GroupSorted: base.LinesGroups.Sorted,
		})
		if err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		ans.Lines = kwic.Lines
		ans.Pagination = pagination{Page: kwic.Page, PageSize: kwic.PageSize, LastPage: kwic.LastPage}
	}
	sizes := conc.Sizes()
	ans.ConcSize = sizes.ConcSize
	ans.SampledSize = sizes.SampledSize
	ans.FullSize = sizes.FullSize
	ans.ResultARF = sizes.ARF
	ans.ResultRelativeFreq = sizes.RelConcSize
	ans.Finished = sizes.Finished
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}

// ConcDesc describes all the operations of a chain
func (a *Actions) ConcDesc(ctx *gin.Context) {
	base, err := a.resolveBase(ctx)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	var steps []concord.ChainStep
	if base.ID != "" {
		chain, err := a.pipeline.LoadPipeline(base.ID)
		if err != nil {
			apperr.RespondWithError(ctx, err)
			return
		}
		steps = ChainSteps(chain)

	} else {
		steps = make([]concord.ChainStep, len(base.Q))
		for i := range base.Q {
			steps[i] = concord.ChainStep{Q: base.Q[:i+1], NumNew: 1}
		}
	}
	desc, err := a.mat.Describe(a.concArgs(base), steps)
	if err != nil {
		apperr.RespondWithError(ctx, err)
		return
	}
	uniresp.WriteJSONResponse(ctx.Writer, map[string]any{"Desc": desc})
}

// ChainSteps converts a chain to steps described by concord.Materializer.Describe
func ChainSteps(chain []*qpersist.Record) []concord.ChainStep {
	ans := make([]concord.ChainStep, len(chain))
	var prevLen int
	for i, rec := range chain {
		ans[i] = concord.ChainStep{OpID: rec.ID, Q: rec.Q, NumNew: len(rec.Q) - prevLen}
		prevLen = len(rec.Q)
	}
	return ans
}

func NewActions(pipeline *Service, mat *concord.Materializer) *Actions {
	return &Actions{
		pipeline: pipeline,
		mat:      mat,
	}
}
