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
	"errors"
	"fmt"
	"slices"
)

// QuerySupertype groups stored queries by the tool which
// produced them
type QuerySupertype string

const (
	QuerySupertypeConc   QuerySupertype = "conc"
	QuerySupertypePquery QuerySupertype = "pquery"
	QuerySupertypeWlist  QuerySupertype = "wlist"
	QuerySupertypeKwords QuerySupertype = "kwords"
)

var (
	ErrInvalidSupertype = errors.New("invalid query supertype")

	allSupertypes = []QuerySupertype{
		QuerySupertypeConc, QuerySupertypePquery, QuerySupertypeWlist, QuerySupertypeKwords}

	// chain starting form types and respective supertypes
	starterSupertypes = map[string]QuerySupertype{
		"query":  QuerySupertypeConc,
		"pquery": QuerySupertypePquery,
		"wlist":  QuerySupertypeWlist,
		"kwords": QuerySupertypeKwords,
	}
)

func (qs QuerySupertype) Validate() error {
	if slices.Contains(allSupertypes, qs) {
		return nil
	}
	return fmt.Errorf("%w: `%s`", ErrInvalidSupertype, qs)
}

// ParseQuerySupertype parses an optional supertype argument.
// An empty string yields an empty (i.e. any) supertype.
func ParseQuerySupertype(s string) (QuerySupertype, error) {
	if s == "" {
		return "", nil
	}
	ans := QuerySupertype(s)
	return ans, ans.Validate()
}

// FormTypeToSupertype maps a form type of the first operation
// of a chain to a history supertype. Form types which cannot
// start a chain map to an empty supertype.
func FormTypeToSupertype(ft string) QuerySupertype {
	return starterSupertypes[ft]
}

// RawQuery is a query as entered by a user along with its type
// (simple, advanced, regexp)
type RawQuery struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}
