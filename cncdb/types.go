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

package cncdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
)

// GeneralDataRecord is a general representation of any
// stored operation (concordance, word list, paradigmatic q.).
// Internally, it is just a key-value map but it comes with
// several methods allowing for unified access to key properties like
// used (sub)corpora and search query.
type GeneralDataRecord map[string]any

func (rec GeneralDataRecord) GetPrevID() string {
	v, ok := rec["prev_id"]
	if !ok {
		return ""
	}
	typedV, ok := v.(string)
	if !ok {
		return ""
	}
	return typedV
}

func (rec GeneralDataRecord) GetSubcorpus() string {
	v, ok := rec["usesubcorp"]
	if !ok {
		return ""
	}
	typedV, ok := v.(string)
	if ok {
		return typedV
	}
	return ""
}

func (rec GeneralDataRecord) getStrings(key string) []string {
	v, ok := rec[key]
	if !ok {
		return []string{}
	}
	typedV, ok := v.([]any)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(typedV))
	for _, item := range typedV {
		strItem, ok := item.(string)
		if ok {
			result = append(result, strItem)
		} else {
			return []string{}
		}
	}
	return result
}

func (rec GeneralDataRecord) GetCorpora() []string {
	return rec.getStrings("corpora")
}

func (rec GeneralDataRecord) GetQuery() []string {
	return rec.getStrings("q")
}

// GetFormType returns `form_type` of the `lastop_form` entry
// (or of the `form` entry used by word lists and keywords)
func (rec GeneralDataRecord) GetFormType() string {
	for _, k := range []string{"lastop_form", "form"} {
		form, ok := rec[k].(map[string]any)
		if !ok {
			continue
		}
		ft, ok := form["form_type"].(string)
		if ok {
			return ft
		}
	}
	return ""
}

// ----------------------------------

// QueryArchRec is a representation of raw Redis (or MariaDB) operation record.
// The type holds record's unparsed JSON data along with ID and access metadata.
type QueryArchRec struct {
	ID         string    `json:"id"`
	Data       string    `json:"data"`
	Created    time.Time `json:"created"`
	NumAccess  int       `json:"numAccess"`
	LastAccess time.Time `json:"lastAccess"`
	Permanent  int       `json:"permanent"`
}

// FetchData parses raw JSON data and returns the most general
// representation - GeneralDataRecord - which is able to fetch common
// properties no matter if the original query is a concordance one, word list one
// or a paradimatic query one.
func (rec QueryArchRec) FetchData() (GeneralDataRecord, error) {
	ans := make(GeneralDataRecord)
	err := json.Unmarshal([]byte(rec.Data), &ans)
	if err != nil {
		return GeneralDataRecord{}, fmt.Errorf("failed to fetch QueryArchRec data: %w", err)
	}
	return ans, nil
}

// -------------------------

// CorpBoundRawRecord joins a raw operation record with
// the information about its corpus.
type CorpBoundRawRecord struct {
	RawRecord     QueryArchRec
	Corpname      string
	CorpusSize    int64
	SubcorpusSize int64
}

func (cbrec CorpBoundRawRecord) FetchData() (GeneralDataRecord, error) {
	return cbrec.RawRecord.FetchData()
}

func (cbrec CorpBoundRawRecord) ID() string {
	return cbrec.RawRecord.ID
}

// ----------------------------------

// HistoryRecord is a row of the kontext_query_history table.
// The Rec field is optional and it is filled in only in case
// a consumer needs also the operation data.
type HistoryRecord struct {
	QueryID    string         `json:"query_id"`
	UserID     int            `json:"user_id"`
	CorpusName string         `json:"corpus_name"`
	Supertype  QuerySupertype `json:"q_supertype"`
	Created    int64          `json:"created"`
	Name       string         `json:"name"`
	Rec        *QueryArchRec  `json:"-"`
}

// CreateIndexID creates an ID used by the fulltext index
func (qh *HistoryRecord) CreateIndexID() string {
	return fmt.Sprintf("%d/%d/%s", qh.UserID, qh.Created, qh.QueryID)
}

// HistoryKey identifies a single row of the query history
type HistoryKey struct {
	UserID  int
	QueryID string
	Created int64
}

// ParseIndexID is the inverse function to CreateIndexID
func ParseIndexID(ident string) (HistoryKey, error) {
	var ans HistoryKey
	_, err := fmt.Sscanf(ident, "%d/%d/%s", &ans.UserID, &ans.Created, &ans.QueryID)
	if err != nil {
		return ans, fmt.Errorf("invalid history index id %s: %w", ident, err)
	}
	return ans, nil
}

// HistoryFilter specifies a search in query history
type HistoryFilter struct {
	CorpusName   string
	FromDate     int64
	ToDate       int64
	Supertype    QuerySupertype
	ArchivedOnly bool
	Offset       int
	Limit        int
}

// ----------------------------------

// WithinCondItem is a single structural restriction used to define
// a subcorpus (e.g. <doc genre="fiction" />)
type WithinCondItem struct {
	Negated       bool   `json:"negated"`
	StructureName string `json:"structure_name"`
	AttributeCQL  string `json:"attribute_cql"`
}

// SubcorpusRecord is a row of the kontext_subcorpus table.
// Exactly one of CQL, WithinCond and TextTypes is expected
// to be non-nil.
type SubcorpusRecord struct {
	ID                string              `json:"id"`
	CorpusName        string              `json:"corpus_name"`
	Name              string              `json:"name"`
	UserID            *int                `json:"user_id"`
	AuthorID          int                 `json:"author_id"`
	AuthorFullname    string              `json:"author_fullname"`
	Size              int64               `json:"size"`
	Created           time.Time           `json:"created"`
	Archived          *time.Time          `json:"archived"`
	PublicDescription string              `json:"public_description"`
	IsDraft           bool                `json:"is_draft"`
	CQL               *string             `json:"cql"`
	WithinCond        []WithinCondItem    `json:"within_cond"`
	TextTypes         map[string][]string `json:"text_types"`
	Aligned           []string            `json:"aligned"`
}

// NumDataKinds returns number of defined subcorpus data payloads
// (cql, within_cond, text_types).
func (rec SubcorpusRecord) NumDataKinds() int {
	var ans int
	if rec.CQL != nil {
		ans++
	}
	if rec.WithinCond != nil {
		ans++
	}
	if rec.TextTypes != nil {
		ans++
	}
	return ans
}

func (rec SubcorpusRecord) IsPublished() bool {
	return rec.PublicDescription != ""
}

// SubcListFilter specifies which subcorpora should be listed
type SubcListFilter struct {
	UserID        int
	CorpusName    string
	ArchivedOnly  bool
	ActiveOnly    bool
	PublishedOnly bool
	Pattern       string
	IAQuery       string
	IncludeDrafts bool
	Offset        int
	Limit         int
}

// SubcProps contains subcorpus properties relevant for
// query indexing
type SubcProps struct {
	Name      string
	TextTypes map[string][]string
}
