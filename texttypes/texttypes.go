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

// Package texttypes translates selections of structural metadata
// (text types) into CQL `within` conditions.
package texttypes

import (
	"concbench/apperr"
	"concbench/engine"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// EmptyPlaceholder represents "any value" in a single-value selection
const EmptyPlaceholder = "===EMPTY==="

// Selection maps `struct.attr` to selected values
type Selection map[string][]string

// BibConf specifies bibliography attributes. Values of the label
// attribute are rewritten to IDs (labels need not be unique).
type BibConf struct {
	IDAttr    string
	LabelAttr string

	// Mapping maps bibliography IDs to labels
	Mapping map[string]string
}

// StructCond is a condition for a single structure
type StructCond struct {
	Struct string `json:"struct"`
	Cond   string `json:"cond"`
}

// WithinExpr produces a CQL `within` part (e.g. `<doc genre="x"/>`)
func (sc StructCond) WithinExpr() string {
	return fmt.Sprintf("<%s %s/>", sc.Struct, sc.Cond)
}

// EscapeValue escapes a literal value for the engine's attribute-value
// grammar (a quoted regular expression)
func EscapeValue(v string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(v), `"`, `\"`)
}

func splitStructAttr(sa string) (string, string, error) {
	items := strings.SplitN(sa, ".", 2)
	if len(items) != 2 || items[0] == "" || items[1] == "" {
		return "", "", apperr.NewUserInputError("invalid structural attribute `%s`", sa)
	}
	return items[0], items[1], nil
}

func (bib *BibConf) resolveLabels(labels []string) ([]string, error) {
	ans := make([]string, 0, len(labels))
	for _, label := range labels {
		found := false
		for id, l := range bib.Mapping {
			if l == label {
				ans = append(ans, id)
				found = true
			}
		}
		if !found {
			return nil, apperr.NewUserInputError("unknown bibliography item `%s`", label)
		}
	}
	sort.Strings(ans)
	return ans, nil
}

func attrCond(attr string, values []string) string {
	if len(values) == 1 {
		if values[0] == EmptyPlaceholder {
			return fmt.Sprintf(`%s=".*"`, attr)
		}
		return fmt.Sprintf(`%s="%s"`, attr, EscapeValue(values[0]))
	}
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = fmt.Sprintf(`%s="%s"`, attr, EscapeValue(v))
	}
	return "(" + strings.Join(items, " | ") + ")"
}

// Compile produces per-structure conditions out of a selection. Structures
// and attributes are ordered alphabetically. Any error means the selection
// cannot be used (and nothing should be derived from it).
func Compile(sel Selection, bib *BibConf) ([]StructCond, error) {
	perStruct := make(map[string]map[string][]string)
	for sa, values := range sel {
		if len(values) == 0 {
			continue
		}
		if bib != nil && bib.LabelAttr != "" && sa == bib.LabelAttr && bib.IDAttr != "" {
			ids, err := bib.resolveLabels(values)
			if err != nil {
				return nil, err
			}
			sa = bib.IDAttr
			values = ids
		}
		st, attr, err := splitStructAttr(sa)
		if err != nil {
			return nil, err
		}
		if _, ok := perStruct[st]; !ok {
			perStruct[st] = make(map[string][]string)
		}
		perStruct[st][attr] = append(perStruct[st][attr], values...)
	}
	structs := make([]string, 0, len(perStruct))
	for st := range perStruct {
		structs = append(structs, st)
	}
	sort.Strings(structs)
	ans := make([]StructCond, 0, len(structs))
	for _, st := range structs {
		attrs := make([]string, 0, len(perStruct[st]))
		for a := range perStruct[st] {
			attrs = append(attrs, a)
		}
		sort.Strings(attrs)
		conds := make([]string, len(attrs))
		for i, a := range attrs {
			conds[i] = attrCond(a, perStruct[st][a])
		}
		ans = append(ans, StructCond{Struct: st, Cond: strings.Join(conds, " & ")})
	}
	return ans, nil
}

// WithinQuery joins conditions into a CQL suffix
// (e.g. ` within <doc genre="x"/> within <text year="2000"/>`)
func WithinQuery(conds []StructCond) string {
	var ans strings.Builder
	for _, c := range conds {
		ans.WriteString(" within ")
		ans.WriteString(c.WithinExpr())
	}
	return ans.String()
}

// Validate tests whether all the selected attributes exist in a corpus
func Validate(sel Selection, corp engine.Corpus) error {
	for sa := range sel {
		if !corp.HasStructAttr(sa) {
			return apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("unknown structural attribute %s in %s", sa, corp.Name()), nil)
		}
	}
	return nil
}

// Ranges returns token ranges of structure occurrences matching all the
// conditions
func Ranges(corp engine.Corpus, conds []StructCond) ([]engine.Range, error) {
	var ans []engine.Range
	for i, c := range conds {
		hits, err := corp.Search("[] within "+c.WithinExpr(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get text types ranges: %w", err)
		}
		curr := engine.MergeRanges(hits)
		if i == 0 {
			ans = curr

		} else {
			ans = engine.IntersectRanges(ans, curr)
		}
	}
	return ans, nil
}

// Describe produces a human readable description of a selection
// (used in operation descriptions)
func Describe(sel Selection, bib *BibConf) string {
	keys := make([]string, 0, len(sel))
	for k := range sel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := sel[k]
		if bib != nil && k == bib.IDAttr && len(bib.Mapping) > 0 {
			labeled := make([]string, len(vals))
			for i, v := range vals {
				labeled[i] = v
				if l, ok := bib.Mapping[v]; ok {
					labeled[i] = l
				}
			}
			vals = labeled
		}
		items = append(items, fmt.Sprintf("%s: %s", k, strings.Join(vals, ", ")))
	}
	return strings.Join(items, "; ")
}

// ValueInfo describes a single value of a structural attribute
type ValueInfo struct {
	Value          string `json:"value"`
	NumOccurrences int    `json:"numOccurrences"`
	NumTokens      int    `json:"numTokens"`
}

// ListValues returns all the values of a structural attribute
// along with their sizes, ordered by value
func ListValues(corp engine.Corpus, structAttr string) ([]ValueInfo, error) {
	st, attr, err := splitStructAttr(structAttr)
	if err != nil {
		return nil, err
	}
	if !corp.HasStructAttr(structAttr) {
		return nil, apperr.NewConcordanceSpecificationError(
			fmt.Sprintf("unknown structural attribute %s in %s", structAttr, corp.Name()), nil)
	}
	occs, err := corp.Structures(st)
	if err != nil {
		return nil, err
	}
	tmp := make(map[string]*ValueInfo)
	for _, occ := range occs {
		v := occ.Attrs[attr]
		item, ok := tmp[v]
		if !ok {
			item = &ValueInfo{Value: v}
			tmp[v] = item
		}
		item.NumOccurrences++
		item.NumTokens += occ.Len()
	}
	ans := make([]ValueInfo, 0, len(tmp))
	for _, v := range tmp {
		ans = append(ans, *v)
	}
	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Value < ans[j].Value
	})
	return ans, nil
}
