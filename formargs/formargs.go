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

// Package formargs contains typed representations of forms
// which produced individual operations of a query chain.
// Stored operation records embed them (key `lastop_form`)
// so UI state can be reconstructed for any point of a chain.
package formargs

import (
	"concbench/apperr"
	"encoding/json"
	"fmt"
)

type FormType string

const (
	FormTypeQuery   FormType = "query"
	FormTypeFilter  FormType = "filter"
	FormTypeSort    FormType = "sort"
	FormTypeMLSort  FormType = "mlsort"
	FormTypeSample  FormType = "sample"
	FormTypeShuffle FormType = "shuffle"
	FormTypeLgroup  FormType = "lgroup"
	FormTypeLocked  FormType = "locked"
	FormTypePquery  FormType = "pquery"
	FormTypeWlist   FormType = "wlist"
	FormTypeKwords  FormType = "kwords"

	// OpKeyLatest marks a form representing the latest stored
	// operation of a chain
	OpKeyLatest = "__latest__"

	// OpKeyNew marks a form which has not been persisted yet
	OpKeyNew = "__new__"
)

// FormArgs is implemented by all the form variants. The set of variants
// is closed, the `form_type` key acts as a discriminator.
type FormArgs interface {
	FormType() FormType
	OpKey() string
	SetOpKey(k string)

	// ToDict produces a JSON-compatible representation
	// of the form (the one stored in operation records)
	ToDict() map[string]any

	// Validate tests user-provided values
	Validate() error
	isFormArgs()
}

// Common contains properties shared by all the variants
type Common struct {
	Kind    FormType `json:"form_type"`
	OpKeyID string   `json:"op_key"`
}

func (c *Common) FormType() FormType {
	return c.Kind
}

func (c *Common) OpKey() string {
	return c.OpKeyID
}

func (c *Common) SetOpKey(k string) {
	c.OpKeyID = k
}

func (c *Common) isFormArgs() {}

func toDict(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		// all the form types are plain data structures
		panic(fmt.Sprintf("failed to serialize form args: %s", err))
	}
	var ans map[string]any
	if err := json.Unmarshal(data, &ans); err != nil {
		panic(fmt.Sprintf("failed to serialize form args: %s", err))
	}
	return ans
}

func newEmpty(kind FormType) (FormArgs, error) {
	switch kind {
	case FormTypeQuery:
		return &QueryFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeFilter:
		return &FilterFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeSort:
		return &SortFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeMLSort:
		return &MLSortFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeSample:
		return &SampleFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeShuffle:
		return &ShuffleFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeLgroup:
		return &LgroupFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeLocked:
		return &LockedFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypePquery:
		return &PqueryFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeWlist:
		return &WlistFormArgs{Common: Common{Kind: kind}}, nil
	case FormTypeKwords:
		return &KwordsFormArgs{Common: Common{Kind: kind}}, nil
	}
	return nil, apperr.NewUnknownFormType(string(kind))
}

// FromDict reconstructs a form of a specified kind from its
// dictionary representation. Unknown kinds produce UnknownFormType error.
func FromDict(kind FormType, data map[string]any) (FormArgs, error) {
	ans, err := newEmpty(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s form: %w", kind, err)
	}
	if err := json.Unmarshal(raw, ans); err != nil {
		return nil, fmt.Errorf("failed to decode %s form: %w", kind, err)
	}
	// the discriminator always wins over possibly inconsistent data
	if k, ok := ans.(interface{ setKind(FormType) }); ok {
		k.setKind(kind)
	}
	return ans, nil
}

func (c *Common) setKind(k FormType) {
	c.Kind = k
}

// NewFormArgs creates a new form of a specified kind with values
// initialized for the provided corpora. The form gets the OpKeyNew key.
func NewFormArgs(kind FormType, corpora []string) (FormArgs, error) {
	ans, err := newEmpty(kind)
	if err != nil {
		return nil, err
	}
	ans.SetOpKey(OpKeyNew)
	switch tAns := ans.(type) {
	case *QueryFormArgs:
		tAns.initCorpora(corpora)
	case *FilterFormArgs:
		tAns.initDefaults(corpora)
	case *SortFormArgs:
		tAns.initDefaults()
	case *SampleFormArgs:
		tAns.RLines = dfltSampleSize
	}
	return ans, nil
}

// BuildConcFormArgs dispatches on stored `form_type` and reconstructs
// a respective form with `opID` used as its operation key.
// In case `stored` is empty, a fresh query form with the OpKeyNew key is returned.
func BuildConcFormArgs(corpora []string, stored map[string]any, opID string) (FormArgs, error) {
	if len(stored) == 0 {
		return NewFormArgs(FormTypeQuery, corpora)
	}
	kind, ok := stored["form_type"].(string)
	if !ok {
		return nil, apperr.NewUnknownFormType(fmt.Sprintf("%v", stored["form_type"]))
	}
	ans, err := FromDict(FormType(kind), stored)
	if err != nil {
		return nil, err
	}
	if opID == "" {
		opID = OpKeyLatest
	}
	ans.SetOpKey(opID)
	if tAns, ok := ans.(*QueryFormArgs); ok {
		tAns.initCorpora(corpora)
	}
	return ans, nil
}

// IsChainStarter tells whether a form type can be the first
// operation of a chain.
func IsChainStarter(kind FormType) bool {
	switch kind {
	case FormTypeQuery, FormTypePquery, FormTypeWlist, FormTypeKwords:
		return true
	}
	return false
}
