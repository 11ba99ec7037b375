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

// Package qpersist stores operation records - the links of query
// chains. Records are kept in a hot key-value store (with TTL) and
// registered users' records are copied to a cold relational archive.
package qpersist

import (
	"concbench/formargs"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

const (
	PersistLevelAnonymous  = 0
	PersistLevelRegistered = 1

	// MaxChainLength limits traversal of `prev_id` links
	MaxChainLength = 100
)

// LinesGroups holds manual categorization of concordance lines
type LinesGroups struct {
	Data   [][3]int `json:"data"`
	Sorted bool     `json:"sorted"`
}

func (lg LinesGroups) IsDefined() bool {
	return len(lg.Data) > 0
}

func (lg LinesGroups) Equal(other LinesGroups) bool {
	return lg.Sorted == other.Sorted && slices.Equal(lg.Data, other.Data)
}

// Record is an operation record. Its ID identifies both the operation
// and the whole chain ending with the operation.
type Record struct {
	ID           string         `json:"id"`
	PrevID       string         `json:"prev_id,omitempty"`
	UserID       int            `json:"user_id"`
	PersistLevel int            `json:"persist_level"`
	Corpora      []string       `json:"corpora"`
	UseSubcorp   string         `json:"usesubcorp,omitempty"`
	Q            []string       `json:"q"`
	LinesGroups  LinesGroups    `json:"lines_groups"`
	LastopForm   map[string]any `json:"lastop_form"`
	Created      int64          `json:"created"`

	// access telemetry is filled in only for records resolved
	// from the cold archive
	NumAccess  int       `json:"-"`
	LastAccess time.Time `json:"-"`
	Permanent  bool      `json:"-"`
}

// Differs tells whether the record represents a different concordance
// state than `other` (i.e. whether a new chain link is needed)
func (rec *Record) Differs(other *Record) bool {
	if other == nil {
		return true
	}
	if len(rec.Q) == 0 && len(other.Q) == 0 {
		return Fingerprint(rec) != Fingerprint(&Record{
			Corpora:     other.Corpora,
			UseSubcorp:  other.UseSubcorp,
			PrevID:      rec.PrevID,
			LinesGroups: other.LinesGroups,
			LastopForm:  other.LastopForm,
		})
	}
	return !slices.Equal(rec.Q, other.Q) || !rec.LinesGroups.Equal(other.LinesGroups)
}

func (rec *Record) PrimaryCorpus() string {
	if len(rec.Corpora) == 0 {
		return ""
	}
	return rec.Corpora[0]
}

func (rec *Record) AlignedCorpora() []string {
	if len(rec.Corpora) < 2 {
		return []string{}
	}
	return rec.Corpora[1:]
}

// FormType returns the `form_type` of the embedded form (if any)
func (rec *Record) FormType() formargs.FormType {
	if rec.LastopForm == nil {
		return ""
	}
	v, _ := rec.LastopForm["form_type"].(string)
	return formargs.FormType(v)
}

// FormArgs reconstructs the embedded form with the record ID used
// as the operation key.
func (rec *Record) FormArgs() (formargs.FormArgs, error) {
	return formargs.BuildConcFormArgs(rec.Corpora, rec.LastopForm, rec.ID)
}

// SetForm embeds a form into the record
func (rec *Record) SetForm(form formargs.FormArgs) {
	rec.LastopForm = form.ToDict()
}

// Clone creates a deep copy of the record (the form is copied
// via its JSON representation)
func (rec *Record) Clone() *Record {
	ans := *rec
	ans.Corpora = slices.Clone(rec.Corpora)
	ans.Q = slices.Clone(rec.Q)
	ans.LinesGroups.Data = slices.Clone(rec.LinesGroups.Data)
	if rec.LastopForm != nil {
		data, err := json.Marshal(rec.LastopForm)
		if err == nil {
			var form map[string]any
			if err := json.Unmarshal(data, &form); err == nil {
				ans.LastopForm = form
			}
		}
	}
	return &ans
}

func (rec *Record) Encode() (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode operation record %s: %w", rec.ID, err)
	}
	return string(data), nil
}

func DecodeRecord(data string) (*Record, error) {
	var ans Record
	if err := json.Unmarshal([]byte(data), &ans); err != nil {
		return nil, fmt.Errorf("failed to decode operation record: %w", err)
	}
	return &ans, nil
}
