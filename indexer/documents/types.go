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

import "time"

type commonFields struct {
	ID string `json:"id"`

	Name string `json:"name"`

	Created time.Time `json:"created"`

	QuerySupertype string `json:"query_supertype"`

	UserID string `json:"user_id"`

	Corpora string `json:"corpora"`

	Subcorpus string `json:"subcorpus"`

	RawQuery string `json:"raw_query"`
}

func (cf *commonFields) GetID() string {
	return cf.ID
}

func (cf *commonFields) SetName(name string) {
	cf.Name = name
}

// Concordance is an indexed concordance query
type Concordance struct {
	commonFields

	Structures string `json:"structures"`

	StructAttrNames string `json:"struct_attr_names"`

	StructAttrValues string `json:"struct_attr_values"`

	PosAttrNames string `json:"pos_attr_names"`

	PosAttrValues string `json:"pos_attr_values"`
}

func (doc *Concordance) Type() string {
	return "conc"
}

// PQuery merges properties of all the concordances
// of a paradigmatic query
type PQuery struct {
	Concordance
}

func (doc *PQuery) Type() string {
	return "pquery"
}

type Wordlist struct {
	commonFields

	PosAttrNames string `json:"pos_attr_names"`

	PFilterWords string `json:"pfilter_words"`

	NFilterWords string `json:"nfilter_words"`
}

func (doc *Wordlist) Type() string {
	return "wlist"
}

// Kwords stores both the focus and the reference corpus
// in the `corpora` field
type Kwords struct {
	commonFields

	PosAttrNames string `json:"pos_attr_names"`
}

func (doc *Kwords) Type() string {
	return "kwords"
}
