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

package concord

import (
	"concbench/apperr"
	"concbench/engine"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOperationRoundTrip(t *testing.T) {
	tokens := []string{
		`q[word="dog"]`,
		`aword,dog`,
		`P-5 5 0 [tag="N.*"]`,
		`n0 0> 0 [word="x"]`,
		`p-3 -2> -1 [lemma="a"][lemma="b"]`,
		`sword/i 1>0~3>0`,
		`slemma/ir -1<0~-3<0 tag/ 0<0~0>0`,
		`r10`,
		`f`,
		`x-cs`,
		`D`,
	}
	for _, tk := range tokens {
		op, err := ParseOperation(tk)
		assert.NoError(t, err, tk)
		assert.Equal(t, tk, op.Token())
	}
}

func TestParseFilter(t *testing.T) {
	op, err := ParseOperation(`P-5 5 0 [tag="N.*"]`)
	assert.NoError(t, err)
	assert.Equal(
		t,
		FilterOp{
			Positive: true,
			InclKwic: false,
			From:     engine.CtxPos{Offset: -5},
			To:       engine.CtxPos{Offset: 5, FromEnd: true},
			Rank:     RankFirst,
			CQL:      `[tag="N.*"]`,
		},
		op,
	)
	op, err = ParseOperation(`n0< 0> -1 [word="a b"]`)
	assert.NoError(t, err)
	fop := op.(FilterOp)
	assert.False(t, fop.Positive)
	assert.True(t, fop.InclKwic)
	assert.Equal(t, RankLast, fop.Rank)
	assert.Equal(t, `[word="a b"]`, fop.CQL)
}

func TestParseOperationErrors(t *testing.T) {
	_, err := ParseOperation("")
	assert.ErrorIs(t, err, apperr.UnknownConcordanceAction)
	_, err = ParseOperation("z123")
	assert.ErrorIs(t, err, apperr.UnknownConcordanceAction)
	_, err = ParseOperation("fx")
	assert.ErrorIs(t, err, apperr.UnknownConcordanceAction)
	_, err = ParseOperation("r0")
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)
	_, err = ParseOperation("Pfoo")
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)
	_, err = ParseOperation("sword")
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)
	_, err = ParseOperation("q ")
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)
}

func TestParseOperationsChainShape(t *testing.T) {
	_, err := ParseOperations([]string{"f"})
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
	_, err = ParseOperations([]string{`q[]`, `q[]`})
	assert.ErrorIs(t, err, apperr.ConcordanceSpecificationError)
	_, err = ParseOperations([]string{})
	assert.ErrorIs(t, err, apperr.ConcordanceQueryParamsError)
	ops, err := ParseOperations([]string{`q[]`, "f", "r5"})
	assert.NoError(t, err)
	assert.Len(t, ops, 3)
}

func TestGroupLines(t *testing.T) {
	lines := make([]Line, 5)
	for i := range lines {
		lines[i] = Line{Main: engine.Hit{Start: i, End: i + 1}}
	}
	ans, groups := GroupLines(lines, [][3]int{{1, 2, 2}, {4, 4, 1}}, false)
	assert.Equal(t, lines, ans)
	assert.Equal(t, []int{0, 2, 2, 0, 1}, groups)

	ans, groups = GroupLines(lines, [][3]int{{1, 2, 2}, {4, 4, 1}}, true)
	assert.Equal(t, []int{1, 2, 2, 0, 0}, groups)
	starts := make([]int, len(ans))
	for i, l := range ans {
		starts[i] = l.Main.Start
	}
	assert.Equal(t, []int{4, 1, 2, 0, 3}, starts)
}

func TestSimpleQueryToCQL(t *testing.T) {
	assert.Equal(t, `[word="black"%c][word="dog\."%c]`, SimpleQueryToCQL("black dog.", "word", false))
	assert.Equal(t, `[lemma="dog"]`, SimpleQueryToCQL(" dog ", "lemma", true))
}
