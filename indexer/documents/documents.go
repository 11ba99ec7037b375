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


// Package documents defines query-history documents as stored
// in the fulltext index.
package documents

import (
	"concbench/cncdb"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2/mapping"
)

// IndexableDoc is a document in a form accepted by Bleve
type IndexableDoc interface {
	mapping.Classifier
	GetID() string
	SetName(name string)
}

// MidDoc is an intermediate form of an indexed history item.
// Attributes are arranged the way we would like to search them
// regardless of the actual fulltext backend.
type MidDoc struct {
	ID string `json:"id"`

	Name string `json:"name"`

	QuerySupertype cncdb.QuerySupertype `json:"querySupertype"`

	Created time.Time `json:"created"`

	UserID int `json:"userId"`

	// Corpora contains all the searched corpora. Length > 1 means
	// an aligned search or (for keywords) a reference corpus.
	Corpora []string `json:"corpora"`

	Subcorpora []string `json:"subcorpora"`

	// RawQueries are queries as written by a user
	// (multiple queries = aligned corpora or pquery members)
	RawQueries []cncdb.RawQuery `json:"rawQueries"`

	// Structures contains all structures involved in the query
	Structures []string `json:"structures"`

	// StructAttrs maps structural attributes (`doc.genre`) to values
	// found in the query. It does not matter whether the chunks
	// were attr=val or attr!=val.
	StructAttrs map[string][]string `json:"structAttrs"`

	PosAttrs map[string][]string `json:"posAttrs"`

	PFilterWords []string `json:"pfilterWords"`

	NFilterWords []string `json:"nfilterWords"`
}

func NewMidDoc(hRec *cncdb.HistoryRecord) *MidDoc {
	return &MidDoc{
		ID:             hRec.QueryID,
		Name:           hRec.Name,
		QuerySupertype: hRec.Supertype,
		Created:        time.Unix(hRec.Created, 0),
		UserID:         hRec.UserID,
		StructAttrs:    make(map[string][]string),
		PosAttrs:       make(map[string][]string),
	}
}

func (doc *MidDoc) AddStructAttr(name, value string) {
	doc.StructAttrs[name] = append(doc.StructAttrs[name], value)
}

func (doc *MidDoc) AddPosAttr(name, value string) {
	doc.PosAttrs[name] = append(doc.PosAttrs[name], value)
}

func (doc *MidDoc) AddStructure(name string) {
	if !slices.Contains(doc.Structures, name) {
		doc.Structures = append(doc.Structures, name)
	}
}

func (doc *MidDoc) indexID() string {
	return fmt.Sprintf("%d/%d/%s", doc.UserID, doc.Created.Unix(), doc.ID)
}

func (doc *MidDoc) rawQueriesAsString() string {
	items := make([]string, len(doc.RawQueries))
	for i, v := range doc.RawQueries {
		items[i] = v.Value
	}
	return strings.Join(items, " ")
}

// flattenAttrs produces space separated attribute names and values
// (names are sorted so the output is stable)
func flattenAttrs(attrs map[string][]string) (string, string) {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	values := make([]string, 0, len(attrs)*2)
	for _, k := range names {
		values = append(values, attrs[k]...)
	}
	return strings.Join(names, " "), strings.Join(values, " ")
}

// AsIndexableDoc converts the intermediate document into a type
// matching its query supertype
func (doc *MidDoc) AsIndexableDoc() IndexableDoc {
	common := commonFields{
		ID:             doc.indexID(),
		Name:           doc.Name,
		Created:        doc.Created,
		QuerySupertype: string(doc.QuerySupertype),
		UserID:         fmt.Sprint(doc.UserID),
		Corpora:        strings.Join(doc.Corpora, " "),
		Subcorpus:      strings.Join(doc.Subcorpora, " "),
		RawQuery:       doc.rawQueriesAsString(),
	}
	posNames, posValues := flattenAttrs(doc.PosAttrs)
	switch doc.QuerySupertype {
	case cncdb.QuerySupertypeWlist:
		return &Wordlist{
			commonFields: common,
			PosAttrNames: posNames,
			PFilterWords: strings.Join(doc.PFilterWords, " "),
			NFilterWords: strings.Join(doc.NFilterWords, " "),
		}
	case cncdb.QuerySupertypeKwords:
		return &Kwords{
			commonFields: common,
			PosAttrNames: posNames,
		}
	}
	structNames, structValues := flattenAttrs(doc.StructAttrs)
	ans := &Concordance{
		commonFields:     common,
		Structures:       strings.Join(doc.Structures, " "),
		StructAttrNames:  structNames,
		StructAttrValues: structValues,
		PosAttrNames:     posNames,
		PosAttrValues:    posValues,
	}
	if doc.QuerySupertype == cncdb.QuerySupertypePquery {
		return &PQuery{Concordance: *ans}
	}
	return ans
}
