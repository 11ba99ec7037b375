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


package documents

import (
	"concbench/cncdb"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestDoc(queries ...cncdb.RawQuery) *MidDoc {
	ans := NewMidDoc(&cncdb.HistoryRecord{
		QueryID:   "abcdefghijkl",
		UserID:    17,
		Supertype: cncdb.QuerySupertypeConc,
		Created:   1700000000,
	})
	ans.RawQueries = queries
	return ans
}

func TestExtractCQLProps(t *testing.T) {
	doc := newTestDoc(cncdb.RawQuery{
		Value: `[word="hi|hello"] [lemma="people" & tag="N.*" & word="p.*"] within <text txtypegroup="FIC: beletrie">`,
		Type:  QueryTypeAdvanced,
	})
	err := ExtractQueryProps("word", doc.RawQueries, doc)
	assert.NoError(t, err)
	assert.Equal(t, []string{"hi|hello", "p.*"}, doc.PosAttrs["word"])
	assert.Equal(t, []string{"people"}, doc.PosAttrs["lemma"])
	assert.Equal(t, []string{"N.*"}, doc.PosAttrs["tag"])
	assert.Equal(t, []string{"text"}, doc.Structures)
	assert.Equal(t, []string{"FIC: beletrie"}, doc.StructAttrs["text.txtypegroup"])
}

func TestExtractCQLPropsWithDefaultAttr(t *testing.T) {
	doc := newTestDoc(cncdb.RawQuery{Value: `"party"`, Type: QueryTypeAdvanced})
	err := ExtractQueryProps("lemma", doc.RawQueries, doc)
	assert.NoError(t, err)
	assert.Equal(t, []string{"party"}, doc.PosAttrs["lemma"])
}

func TestExtractSimpleQueryProps(t *testing.T) {
	doc := newTestDoc(cncdb.RawQuery{Value: "black dog", Type: QueryTypeSimple})
	assert.NoError(t, ExtractQueryProps("word", doc.RawQueries, doc))
	assert.Equal(t, []string{"black", "dog"}, doc.PosAttrs["word"])
}

func TestExtractRegexpProps(t *testing.T) {
	doc := newTestDoc(
		cncdb.RawQuery{Value: "house", Type: QueryTypeRegexp},
		cncdb.RawQuery{Value: "hous.*", Type: QueryTypeRegexp},
	)
	assert.NoError(t, ExtractQueryProps("lemma", doc.RawQueries, doc))
	assert.Equal(t, []string{"house"}, doc.PosAttrs["lemma"])
}

func TestExtractInvalidCQL(t *testing.T) {
	doc := newTestDoc(cncdb.RawQuery{Value: `[word="dog"`, Type: QueryTypeAdvanced})
	assert.Error(t, ExtractQueryProps("word", doc.RawQueries, doc))
}

func TestAsIndexableDoc(t *testing.T) {
	doc := newTestDoc(cncdb.RawQuery{Value: `[lemma="dog"]`, Type: QueryTypeAdvanced})
	doc.Corpora = []string{"c1", "en"}
	doc.AddPosAttr("lemma", "dog")
	doc.AddPosAttr("tag", "NN")
	doc.AddStructAttr("doc.genre", "fiction")
	doc.AddStructure("doc")
	doc.AddStructure("doc")

	idoc := doc.AsIndexableDoc()
	conc, ok := idoc.(*Concordance)
	assert.True(t, ok)
	assert.Equal(t, "conc", conc.Type())
	assert.Equal(t, "17/1700000000/abcdefghijkl", conc.GetID())
	assert.Equal(t, "c1 en", conc.Corpora)
	assert.Equal(t, "lemma tag", conc.PosAttrNames)
	assert.Equal(t, "dog NN", conc.PosAttrValues)
	assert.Equal(t, "doc", conc.Structures)
	assert.Equal(t, time.Unix(1700000000, 0), conc.Created)
	conc.SetName("dogs")
	assert.Equal(t, "dogs", conc.Name)

	doc.QuerySupertype = cncdb.QuerySupertypeWlist
	doc.PFilterWords = []string{"a", "b"}
	wl, ok := doc.AsIndexableDoc().(*Wordlist)
	assert.True(t, ok)
	assert.Equal(t, "a b", wl.PFilterWords)

	doc.QuerySupertype = cncdb.QuerySupertypePquery
	pq, ok := doc.AsIndexableDoc().(*PQuery)
	assert.True(t, ok)
	assert.Equal(t, "pquery", pq.Type())
	assert.Equal(t, "17/1700000000/abcdefghijkl", pq.GetID())
}
