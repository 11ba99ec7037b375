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

package qpersist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	rec := &Record{
		Corpora: []string{"c1", "c2"},
		Q:       []string{`q[word="dog"]`, "r100"},
		PrevID:  "a1b2c3d4e5f6",
	}
	id := Fingerprint(rec)
	assert.Equal(t, id, Fingerprint(rec))
	assert.Len(t, id, 12)
	assert.True(t, IsValidID(id))

	other := rec.Clone()
	other.UserID = 42
	other.Created = 1700000000
	other.LastopForm = map[string]any{"form_type": "sample", "rlines": 100}
	assert.Equal(t, id, Fingerprint(other))
}

func TestFingerprintSensitivity(t *testing.T) {
	base := &Record{
		Corpora: []string{"c1"},
		Q:       []string{`q[word="dog"]`},
	}
	id := Fingerprint(base)

	variants := []func(r *Record){
		func(r *Record) { r.Q = append(r.Q, "f") },
		func(r *Record) { r.Corpora = []string{"c2"} },
		func(r *Record) { r.UseSubcorp = "sub1" },
		func(r *Record) { r.PrevID = "a1b2c3d4e5f6" },
		func(r *Record) { r.LinesGroups = LinesGroups{Data: [][3]int{{0, 1, 2}}} },
		func(r *Record) { r.LinesGroups = LinesGroups{Sorted: true} },
	}
	for i, change := range variants {
		v := base.Clone()
		change(v)
		assert.NotEqual(t, id, Fingerprint(v), "variant %d", i)
	}
}

func TestFingerprintNilEqualsEmpty(t *testing.T) {
	r1 := &Record{Corpora: []string{"c1"}, Q: nil}
	r2 := &Record{Corpora: []string{"c1"}, Q: []string{}}
	assert.Equal(t, Fingerprint(r1), Fingerprint(r2))
}

func TestFingerprintFormOfQuerylessRecords(t *testing.T) {
	r1 := &Record{
		Corpora:    []string{"c1"},
		LastopForm: map[string]any{"form_type": "wlist", "wlattr": "lemma", "op_key": "x"},
	}
	r2 := &Record{
		Corpora:    []string{"c1"},
		LastopForm: map[string]any{"form_type": "wlist", "wlattr": "word", "op_key": "x"},
	}
	r3 := &Record{
		Corpora:    []string{"c1"},
		LastopForm: map[string]any{"form_type": "wlist", "wlattr": "lemma", "op_key": "y"},
	}
	assert.NotEqual(t, Fingerprint(r1), Fingerprint(r2))
	assert.Equal(t, Fingerprint(r1), Fingerprint(r3))
	assert.True(t, r1.Differs(r2))
	assert.False(t, r1.Differs(r3))
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("abcDEF012345"))
	assert.False(t, IsValidID("abcDEF01234"))
	assert.False(t, IsValidID("abcDEF01234-"))
	assert.False(t, IsValidID(""))
}
