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
	"concbench/concord"
	"concbench/concord/conctest"
	"concbench/engine"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	author = 17
	other  = 18
)

func newTestService(t *testing.T) (*Service, *cncdb.DummySubcArch) {
	conf := &Conf{}
	assert.NoError(t, conf.ValidateAndDefaults())
	db := cncdb.NewDummySubcArch()
	return NewService(conf, db, conctest.NewRegistry(t), time.UTC), db
}

func newsArgs(id string, isDraft bool) CreateArgs {
	return CreateArgs{
		ID:          id,
		CorpusName:  "c1",
		Name:        "news",
		AuthorID:    author,
		Description: "",
		Data:        Data{TextTypes: map[string][]string{"doc.genre": {"news"}}},
		IsDraft:     isDraft,
	}
}

func TestCreateComputesSize(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.Create(newsArgs("", false))
	assert.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(9), rec.Size)
	assert.Equal(t, author, *rec.UserID)
	assert.False(t, rec.IsDraft)

	cql := `[lemma="dog"]`
	rec, err = svc.Create(CreateArgs{CorpusName: "c1", Name: "dogs", AuthorID: author, Data: Data{CQL: &cql}})
	assert.NoError(t, err)
	assert.Equal(t, int64(4), rec.Size)

	rec, err = svc.Create(CreateArgs{
		CorpusName: "c1",
		Name:       "not news",
		AuthorID:   author,
		Data: Data{WithinCond: []cncdb.WithinCondItem{
			{StructureName: "doc", AttributeCQL: `genre="news"`, Negated: true},
		}},
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(11), rec.Size)
}

func TestCreateInvalid(t *testing.T) {
	svc, _ := newTestService(t)
	cql := `[lemma="dog"]`
	args := newsArgs("", false)
	args.Data.CQL = &cql
	_, err := svc.Create(args)
	assert.ErrorIs(t, err, apperr.ErrUserInput)

	args = newsArgs("", false)
	args.Data = Data{}
	_, err = svc.Create(args)
	assert.ErrorIs(t, err, apperr.ErrUserInput)

	args = newsArgs("", false)
	args.Data = Data{TextTypes: map[string][]string{"doc.foo": {"x"}}}
	_, err = svc.Create(args)
	assert.ErrorIs(t, err, apperr.ErrSpecification)

	args = newsArgs("", false)
	args.CorpusName = "c9"
	_, err = svc.Create(args)
	assert.ErrorIs(t, err, apperr.ErrSpecification)
}

func TestDraftLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	draft, err := svc.Create(newsArgs("s1", true))
	assert.NoError(t, err)
	assert.True(t, draft.IsDraft)

	upd := newsArgs("s1", false)
	upd.Data = Data{TextTypes: map[string][]string{"doc.genre": {"fiction"}}}
	upd.Description = "fiction only"
	draft, err = svc.UpdateDraft(upd)
	assert.NoError(t, err)
	assert.True(t, draft.IsDraft)
	assert.Equal(t, int64(11), draft.Size)
	assert.Equal(t, "fiction only", draft.PublicDescription)

	foreign := newsArgs("s1", false)
	foreign.AuthorID = other
	_, err = svc.Create(foreign)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	final, err := svc.Create(newsArgs("s1", false))
	assert.NoError(t, err)
	assert.False(t, final.IsDraft)
	assert.Equal(t, int64(9), final.Size)

	_, err = svc.Create(newsArgs("s1", false))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = svc.UpdateDraft(newsArgs("s1", true))
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = svc.UpdateDraft(newsArgs("s2", true))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestArchiveRestoreDelete(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(newsArgs("s1", false))
	assert.NoError(t, err)

	tm1, err := svc.Archive(author, "c1", "s1")
	assert.NoError(t, err)
	tm2, err := svc.Archive(author, "c1", "s1")
	assert.NoError(t, err)
	assert.True(t, tm1.Equal(tm2))

	_, err = svc.Archive(other, "c1", "s1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Archive(author, "c2", "s1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.NoError(t, svc.Restore(author, "c1", "s1"))
	rec, err := svc.GetInfo("s1")
	assert.NoError(t, err)
	assert.Nil(t, rec.Archived)

	assert.NoError(t, svc.DeleteQuery(author, "c1", "s1"))
	rec, err = svc.GetInfo("s1")
	assert.NoError(t, err)
	assert.Nil(t, rec.UserID)
	assert.NotNil(t, rec.Archived)
	assert.Equal(t, author, rec.AuthorID)
	assert.ErrorIs(t, svc.DeleteQuery(author, "c1", "s1"), apperr.ErrNotFound)
}

func TestList(t *testing.T) {
	svc, db := newTestService(t)
	db.RegisterUser(author, "Jan Novák")
	s1 := newsArgs("abc1", false)
	s1.Description = "public news"
	_, err := svc.Create(s1)
	assert.NoError(t, err)
	_, err = svc.Create(newsArgs("def2", true))
	assert.NoError(t, err)
	s3 := newsArgs("ghi3", false)
	s3.Name = "archived news"
	_, err = svc.Create(s3)
	assert.NoError(t, err)
	_, err = svc.Archive(author, "c1", "ghi3")
	assert.NoError(t, err)

	ids := func(filter cncdb.SubcListFilter) []string {
		filter.UserID = author
		recs, err := svc.List(filter)
		assert.NoError(t, err)
		ans := make([]string, len(recs))
		for i, r := range recs {
			ans[i] = r.ID
		}
		return ans
	}
	assert.ElementsMatch(t, []string{"abc1", "ghi3"}, ids(cncdb.SubcListFilter{}))
	assert.ElementsMatch(t, []string{"abc1", "def2", "ghi3"}, ids(cncdb.SubcListFilter{IncludeDrafts: true}))
	assert.Equal(t, []string{"ghi3"}, ids(cncdb.SubcListFilter{ArchivedOnly: true}))
	assert.Equal(t, []string{"abc1"}, ids(cncdb.SubcListFilter{ActiveOnly: true}))
	assert.Equal(t, []string{"abc1"}, ids(cncdb.SubcListFilter{PublishedOnly: true}))
	assert.Equal(t, []string{"ghi3"}, ids(cncdb.SubcListFilter{Pattern: "archived"}))
	assert.Equal(t, []string{"abc1"}, ids(cncdb.SubcListFilter{IAQuery: "abc"}))
	assert.Len(t, ids(cncdb.SubcListFilter{IAQuery: "Nov"}), 2)

	_, err = svc.List(cncdb.SubcListFilter{UserID: author, ArchivedOnly: true, ActiveOnly: true})
	assert.ErrorIs(t, err, apperr.ErrUserInput)
}

func TestGetters(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(newsArgs("s1", false))
	assert.NoError(t, err)

	rec, err := svc.GetInfoByName("c1", "news", author)
	assert.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	_, err = svc.GetInfoByName("c1", "news", other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	data, err := svc.GetQuery("s1")
	assert.NoError(t, err)
	assert.Equal(t, map[string][]string{"doc.genre": {"news"}}, data.TextTypes)
	assert.Nil(t, data.CQL)

	names, err := svc.GetNames([]string{"s1", "s9"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"s1": "news"}, names)

	_, err = svc.GetInfo("s9")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreatePreflight(t *testing.T) {
	svc, _ := newTestService(t)
	rec, err := svc.CreatePreflight("c1")
	assert.NoError(t, err)
	assert.Equal(t, svc.conf.SharedUserID, rec.AuthorID)
	assert.Equal(t, map[string][]string{"doc.id": {"d1"}}, rec.TextTypes)
	assert.Equal(t, int64(11), rec.Size)

	again, err := svc.CreatePreflight("c1")
	assert.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	_, err = svc.CreatePreflight("en")
	assert.ErrorIs(t, err, apperr.ErrSpecification)
}

func TestSubcorpusRanges(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(newsArgs("s1", false))
	assert.NoError(t, err)
	reg := conctest.NewRegistry(t)
	c1, err := reg.Corpus("c1")
	assert.NoError(t, err)
	ranges, err := svc.SubcorpusRanges(c1, "s1")
	assert.NoError(t, err)
	assert.Equal(t, []engine.Range{{Start: 11, End: 20}}, ranges)

	en, err := reg.Corpus("en")
	assert.NoError(t, err)
	_, err = svc.SubcorpusRanges(en, "s1")
	assert.ErrorIs(t, err, apperr.ErrSpecification)

	mat := conctest.NewMaterializer(t, svc)
	conc, err := mat.GetConc(
		context.Background(),
		concord.Args{Corpora: []string{"c1"}, Subcorpus: "s1", Q: []string{`alemma,[lemma="dog"]`}},
		false,
	)
	assert.NoError(t, err)
	lines := conc.Lines()
	assert.Len(t, lines, 2)
	assert.Equal(t, 11, lines[0].Main.Start)
	assert.Equal(t, 15, lines[1].Main.Start)
}

func TestComplement(t *testing.T) {
	assert.Equal(
		t,
		[]engine.Range{{Start: 0, End: 2}, {Start: 5, End: 7}, {Start: 9, End: 10}},
		complement([]engine.Range{{Start: 2, End: 5}, {Start: 7, End: 9}}, 10),
	)
	assert.Equal(t, []engine.Range{{Start: 0, End: 10}}, complement(nil, 10))
}

func TestSubcorpusRangesOtherCorpusAfterCaching(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Create(newsArgs("s1", false))
	assert.NoError(t, err)
	reg := conctest.NewRegistry(t)
	c1, err := reg.Corpus("c1")
	assert.NoError(t, err)
	en, err := reg.Corpus("en")
	assert.NoError(t, err)

	_, err = svc.SubcorpusRanges(en, "s1")
	assert.ErrorIs(t, err, apperr.ErrSpecification)
	ranges, err := svc.SubcorpusRanges(c1, "s1")
	assert.NoError(t, err)
	assert.Equal(t, []engine.Range{{Start: 11, End: 20}}, ranges)
	// ranges are cached now
	ranges, err = svc.SubcorpusRanges(en, "s1")
	assert.ErrorIs(t, err, apperr.ErrSpecification)
	assert.Nil(t, ranges)
	ranges, err = svc.SubcorpusRanges(c1, "s1")
	assert.NoError(t, err)
	assert.Equal(t, []engine.Range{{Start: 11, End: 20}}, ranges)
}
