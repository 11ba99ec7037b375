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
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/qpersist"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	anonymousUser  = 0
	registeredUser = 17
	otherUser      = 23
)

type historyItem struct {
	userID    int
	corpname  string
	queryID   string
	supertype cncdb.QuerySupertype
}

type fakeHistory struct {
	mu    sync.Mutex
	items []historyItem
}

func (fh *fakeHistory) Store(userID int, corpname, queryID string, supertype cncdb.QuerySupertype) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.items = append(fh.items, historyItem{userID, corpname, queryID, supertype})
	return nil
}

type testEnv struct {
	svc     *Service
	hot     *qpersist.MemHotStore
	cold    *cncdb.DummyConcArch
	history *fakeHistory
}

func newTestEnv() *testEnv {
	conf := &qpersist.Conf{
		TTLDays:              14,
		AnonymousTTLDays:     1,
		ArchiveMode:          qpersist.ArchiveModeSync,
		ArchiveRetentionDays: 365,
		CleanupMaxItems:      100,
		AnonymousUserID:      anonymousUser,
	}
	hot := qpersist.NewMemHotStore()
	cold := cncdb.NewDummyConcArch()
	history := &fakeHistory{}
	return &testEnv{
		svc:     NewService(qpersist.NewStore(conf, hot, cold, nil, time.UTC), history),
		hot:     hot,
		cold:    cold,
		history: history,
	}
}

func queryForm(corp, query string) *formargs.QueryFormArgs {
	fa, _ := formargs.NewFormArgs(formargs.FormTypeQuery, []string{corp})
	form := fa.(*formargs.QueryFormArgs)
	form.CurrQueries[corp] = query
	form.CurrQueryTypes[corp] = "advanced"
	return form
}

func filterForm(query string) *formargs.FilterFormArgs {
	fa, _ := formargs.NewFormArgs(formargs.FormTypeFilter, []string{"c1"})
	form := fa.(*formargs.FilterFormArgs)
	form.Query = query
	form.QueryType = "advanced"
	return form
}

func sortForm(attr string) *formargs.SortFormArgs {
	fa, _ := formargs.NewFormArgs(formargs.FormTypeSort, []string{"c1"})
	form := fa.(*formargs.SortFormArgs)
	form.SAttr = attr
	return form
}

func storeRoot(t *testing.T, env *testEnv, userID int) *qpersist.Record {
	action := NewQueryAction([]string{"c1"}, "", []string{`q[word="dog"]`}, queryForm("c1", `[word="dog"]`))
	rec, err := env.svc.Commit(context.Background(), userID, action)
	assert.NoError(t, err)
	return rec
}

func TestChainBuildAndLoad(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	root := storeRoot(t, env, registeredUser)
	assert.True(t, qpersist.IsValidID(root.ID))

	rec, err := env.svc.ExtendPipeline(
		ctx, registeredUser, root, filterForm(`[tag="N.*"]`), []string{`P-5 5 0 [tag="N.*"]`}, nil)
	assert.NoError(t, err)
	assert.Equal(t, root.ID, rec.PrevID)
	assert.Equal(t, []string{`q[word="dog"]`, `P-5 5 0 [tag="N.*"]`}, rec.Q)

	chain, err := env.svc.LoadPipeline(rec.ID)
	assert.NoError(t, err)
	assert.Len(t, chain, 2)
	assert.Equal(t, root.ID, chain[0].ID)
	assert.Equal(t, rec.ID, chain[1].ID)
	assert.Equal(t, formargs.FormTypeQuery, chain[0].FormType())
	assert.Equal(t, formargs.FormTypeFilter, chain[1].FormType())
	assert.NoError(t, Validate(chain))

	// only the query is recorded in history
	assert.Equal(t, []historyItem{{registeredUser, "c1", root.ID, cncdb.QuerySupertypeConc}}, env.history.items)
}

func TestForkAndIdempotentStore(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	root := storeRoot(t, env, registeredUser)

	s1, err := env.svc.ExtendPipeline(ctx, registeredUser, root, sortForm("word"), []string{"sword/ 1>0"}, nil)
	assert.NoError(t, err)
	s2, err := env.svc.ExtendPipeline(ctx, registeredUser, root, sortForm("tag"), []string{"stag/ 1>0"}, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, root.ID, s1.PrevID)
	assert.Equal(t, root.ID, s2.PrevID)

	again, err := env.svc.ExtendPipeline(ctx, registeredUser, root, sortForm("word"), []string{"sword/ 1>0"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, s1.ID, again.ID)
	assert.Equal(t, 3, env.cold.Size())
}

func TestCommitAutoGenerated(t *testing.T) {
	env := newTestEnv()
	form := queryForm("c1", `[word="dog"]`)
	q := []string{`q[word="dog"]`, `P-5 5 0 [lemma="cat"]`, `P-5 5 0 [lemma="bark"]`}
	action := NewQueryAction([]string{"c1"}, "", q, form)
	assert.NoError(t, action.AcknowledgeAutoGenerated(0, form))
	assert.NoError(t, action.AcknowledgeAutoGenerated(1, filterForm(`[lemma="cat"]`)))
	// the user-visible operation must keep its own token
	assert.ErrorIs(t, action.AcknowledgeAutoGenerated(2, filterForm(`[lemma="bark"]`)), apperr.ErrSpecification)

	rec, err := env.svc.Commit(context.Background(), registeredUser, action)
	assert.NoError(t, err)
	assert.Equal(t, q, rec.Q)
	chain, err := env.svc.LoadPipeline(rec.ID)
	assert.NoError(t, err)
	assert.Len(t, chain, 3)
	for i, link := range chain {
		assert.Equal(t, q[:i+1], link.Q)
	}
	assert.Equal(t, formargs.FormTypeQuery, chain[0].FormType())
	assert.Equal(t, formargs.FormTypeFilter, chain[1].FormType())
	assert.Equal(t, formargs.FormTypeQuery, chain[2].FormType())
	assert.NoError(t, Validate(chain))
	assert.Len(t, env.history.items, 1)
	assert.Equal(t, rec.ID, env.history.items[0].queryID)
}

func TestAcknowledgeOrder(t *testing.T) {
	form := queryForm("c1", `[word="dog"]`)
	action := NewQueryAction([]string{"c1"}, "", []string{"q1", "p1", "p2", "p3"}, form)
	assert.NoError(t, action.AcknowledgeAutoGenerated(1, form))
	assert.Error(t, action.AcknowledgeAutoGenerated(0, form))
	assert.Error(t, action.AcknowledgeAutoGenerated(1, form))
	assert.NoError(t, action.AcknowledgeAutoGenerated(2, form))

	prev := &qpersist.Record{ID: "abcdefghijkl", Corpora: []string{"c1"}, Q: []string{"q1", "p1"}}
	ext := NewExtendAction(prev, []string{"p2", "p3"}, form)
	assert.Error(t, ext.AcknowledgeAutoGenerated(1, form))
	assert.NoError(t, ext.AcknowledgeAutoGenerated(2, form))
}

func TestLineGroups(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	root := storeRoot(t, env, anonymousUser)
	lgForm, _ := formargs.NewFormArgs(formargs.FormTypeLgroup, nil)
	groups := &qpersist.LinesGroups{Data: [][3]int{{0, 1, 1}}}
	grouped, err := env.svc.ExtendPipeline(ctx, anonymousUser, root, lgForm, nil, groups)
	assert.NoError(t, err)
	assert.NotEqual(t, root.ID, grouped.ID)
	assert.Equal(t, root.Q, grouped.Q)
	assert.Equal(t, *groups, grouped.LinesGroups)

	filtered, err := env.svc.ExtendPipeline(
		ctx, anonymousUser, grouped, filterForm(`[tag="DT"]`), []string{`P-1 1 0 [tag="DT"]`}, nil)
	assert.NoError(t, err)
	assert.False(t, filtered.LinesGroups.IsDefined())

	// anonymous queries are not recorded in history
	assert.Len(t, env.history.items, 0)
}

func TestNoQueryHistory(t *testing.T) {
	env := newTestEnv()
	form := queryForm("c1", `[word="cat"]`)
	form.NoQueryHistory = true
	_, err := env.svc.Commit(
		context.Background(), registeredUser, NewQueryAction([]string{"c1"}, "", []string{`q[word="cat"]`}, form))
	assert.NoError(t, err)
	assert.Len(t, env.history.items, 0)
}

func TestLoadPipelineMissingRecord(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.LoadPipeline("aaaaaaaaaaaa")
	assert.ErrorIs(t, err, apperr.RecNotFound)
}

func TestOwnership(t *testing.T) {
	env := newTestEnv()
	root := storeRoot(t, env, registeredUser)
	assert.Equal(t, OwnershipOwner, env.svc.Ownership(root, registeredUser))
	assert.Equal(t, OwnershipAccessor, env.svc.Ownership(root, otherUser))
	assert.Equal(t, OwnershipForeign, env.svc.Ownership(root, anonymousUser))
	assert.Equal(t, "accessor", OwnershipAccessor.String())
}

func TestValidate(t *testing.T) {
	mk := func(id, prevID string, corpora []string, q ...string) *qpersist.Record {
		return &qpersist.Record{ID: id, PrevID: prevID, Corpora: corpora, Q: q}
	}
	valid := []*qpersist.Record{
		mk("a", "", []string{"en"}, "q1"),
		mk("b", "a", []string{"en", "cs"}, "q1", "x"),
		mk("c", "b", []string{"en", "cs"}, "q1", "x", "y"),
	}
	assert.NoError(t, Validate(valid))

	for name, chain := range map[string][]*qpersist.Record{
		"empty":         {},
		"missing root":  {mk("b", "a", []string{"en"}, "q1", "x")},
		"broken link":   {mk("a", "", []string{"en"}, "q1"), mk("b", "x", []string{"en"}, "q1", "x")},
		"cycle":         {mk("a", "", []string{"en"}, "q1"), mk("a", "a", []string{"en"}, "q1", "x")},
		"primary":       {mk("a", "", []string{"en"}, "q1"), mk("b", "a", []string{"cs"}, "q1", "x")},
		"prefix":        {mk("a", "", []string{"en"}, "q1"), mk("b", "a", []string{"en"}, "q2", "x")},
		"aligned grows": {mk("a", "", []string{"en", "cs"}, "q1"), mk("b", "a", []string{"en"}, "q1", "x")},
	} {
		assert.ErrorIs(t, Validate(chain), apperr.ErrSpecification, name)
	}

	root := mk("a", "", []string{"en"}, "q1")
	root.LastopForm = map[string]any{"form_type": "filter"}
	assert.Error(t, Validate([]*qpersist.Record{root}))
}
