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

package vert

import (
	"concbench/engine"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testVertical = `<doc id="d1" genre="fiction">
<s>
The	the	DT
dog	dog	NN
runs	run	VBZ
.	.	PUNCT
</s>
<s>
A	a	DT
black	black	JJ
dog	dog	NN
barks	bark	VBZ
</s>
</doc>
<doc id="d2" genre="news">
<s>
Dogs	dog	NNS
run	run	VBP
fast	fast	RB
</s>
</doc>
`

func loadTestCorpus(t *testing.T) *Corpus {
	corp, err := ReadVertical(
		&CorpusConf{Name: "c1", PosAttrs: []string{"word", "lemma", "tag"}},
		strings.NewReader(testVertical),
	)
	assert.NoError(t, err)
	return corp
}

func TestReadVertical(t *testing.T) {
	corp := loadTestCorpus(t)
	assert.Equal(t, 11, corp.Size())
	assert.Equal(t, "word", corp.DefaultAttr())
	assert.Equal(t, "black", corp.Value("word", 5))
	assert.Equal(t, "", corp.Value("word", 100))
	assert.Equal(t, []string{"doc.genre", "doc.id"}, corp.StructAttrs())
	assert.True(t, corp.HasStructAttr("doc.genre"))
	assert.False(t, corp.HasStructAttr("s.id"))

	docs, err := corp.Structures("doc")
	assert.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, engine.Range{Start: 8, End: 11}, docs[1].Range)
	assert.Equal(t, "news", docs[1].Attrs["genre"])

	sents, err := corp.Structures("s")
	assert.NoError(t, err)
	assert.Len(t, sents, 3)

	occ, ok := corp.StructAt("doc", 9)
	assert.True(t, ok)
	assert.Equal(t, "d2", occ.Attrs["id"])
	_, err = corp.Structures("p")
	assert.ErrorIs(t, err, engine.ErrUnknownStructure)
}

func TestReadVerticalUnclosed(t *testing.T) {
	_, err := ReadVertical(
		&CorpusConf{Name: "c1", PosAttrs: []string{"word"}},
		strings.NewReader("<doc>\nfoo\n"),
	)
	assert.Error(t, err)
}

func TestSearchSimple(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[lemma="dog"]`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 1, End: 2}, {Start: 6, End: 7}, {Start: 8, End: 9}}, hits)

	hits, err = corp.Search(`"dog"`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = corp.Search(`"DOG"%c`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchSequence(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[tag="DT"][tag="JJ"]?[lemma="dog"]`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 0, End: 2}, {Start: 4, End: 7}}, hits)

	hits, err = corp.Search(`[lemma="dog"][]{1,2}`, nil)
	assert.NoError(t, err)
	assert.Equal(t, engine.Hit{Start: 1, End: 4}, hits[0])
}

func TestSearchBoolean(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[lemma="dog" & tag!="NNS"]`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = corp.Search(`[tag="JJ" | (lemma="run" & !tag="VBZ")]`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 5, End: 6}, {Start: 9, End: 10}}, hits)
}

func TestSearchWithin(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[lemma="dog"] within <doc genre="news"/>`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 8, End: 9}}, hits)

	hits, err = corp.Search(`[] within <doc genre="fiction"/>`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 8)

	// matches must not cross sentence boundaries
	hits, err = corp.Search(`[tag="PUNCT"][] within <s/>`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 0)

	hits, err = corp.Search(`[lemma="dog"]`, []engine.Range{{Start: 5, End: 11}})
	assert.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchErrors(t *testing.T) {
	corp := loadTestCorpus(t)
	for _, q := range []string{`[word="dog"`, `[foo="x"]`, `"unterminated`, `[word="("]`, ``, `[]{3,1}`} {
		_, err := corp.Search(q, nil)
		assert.Error(t, err, q)
	}
	_, err := corp.Search(`[foo="x"]`, nil)
	assert.ErrorIs(t, err, engine.ErrUnknownAttr)
}

func TestAlignedRange(t *testing.T) {
	corp := loadTestCorpus(t)
	aligned, err := ReadVertical(
		&CorpusConf{Name: "c1_en", PosAttrs: []string{"word"}},
		strings.NewReader("<s>\nPes\nběží\n</s>\n<s>\n</s>\n<s>\nPsi\n</s>\n"),
	)
	assert.NoError(t, err)
	rng, err := engine.AlignedRange(corp, aligned, 1)
	assert.NoError(t, err)
	assert.Equal(t, engine.Range{Start: 0, End: 2}, rng)
	rng, err = engine.AlignedRange(corp, aligned, 5)
	assert.NoError(t, err)
	assert.Equal(t, 0, rng.Len())
}

func TestRegistry(t *testing.T) {
	reg := NewEmptyRegistry()
	reg.Add(loadTestCorpus(t))
	corp, err := reg.Corpus("c1")
	assert.NoError(t, err)
	assert.Equal(t, 11, corp.Size())
	_, err = reg.Corpus("c2")
	assert.ErrorIs(t, err, engine.ErrUnknownCorpus)
	assert.Equal(t, []string{"c1"}, reg.CorporaNames())
}

func TestSearchWithinComplexCond(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[lemma="dog"] within <doc genre="news|fiction" & (id="d2" | id="d3")/>`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 8, End: 9}}, hits)

	hits, err = corp.Search(`[lemma="dog"] within <doc !genre="news"/>`, nil)
	assert.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchMultipleWithin(t *testing.T) {
	corp := loadTestCorpus(t)
	hits, err := corp.Search(`[lemma="dog"] within <doc genre="fiction"/> within <s/>`, nil)
	assert.NoError(t, err)
	assert.Equal(t, []engine.Hit{{Start: 1, End: 2}, {Start: 6, End: 7}}, hits)
	_, err = corp.Search(`[lemma="dog"] within <doc/> [word="x"]`, nil)
	assert.ErrorIs(t, err, engine.ErrQuerySyntax)
}
