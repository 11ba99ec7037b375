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

import (
	"concbench/cncdb"
	"fmt"
	"strings"

	"github.com/czcorpus/cqlizer/cql"
)

const (
	QueryTypeAdvanced = "advanced"
	QueryTypeSimple   = "simple"

	// QueryTypeRegexp is a plain regular expression (wordlist patterns)
	QueryTypeRegexp = "regexp"

	regexpMetaChars = `\.+*?()[]{}|^$`
)

type CQLMidDoc interface {
	AddStructAttr(name, value string)
	AddPosAttr(name, value string)
	AddStructure(name string)
}

// extractSimpleQueryProps treats words of a simple query
// as values of the default attribute
func extractSimpleQueryProps(rq cncdb.RawQuery, defaultAttr string, doc CQLMidDoc) {
	for _, w := range strings.Fields(rq.Value) {
		doc.AddPosAttr(defaultAttr, w)
	}
}

// ExtractQueryProps fills in attributes and structures found in
// provided queries. Advanced queries are parsed as CQL, bare
// regular expressions (`"party"`) are attributed to `defaultAttr`.
// Regular expressions are indexed only if they match a single literal.
func ExtractQueryProps(defaultAttr string, queries []cncdb.RawQuery, doc CQLMidDoc) error {
	for i, rq := range queries {
		switch rq.Type {
		case QueryTypeAdvanced:
		case QueryTypeRegexp:
			if rq.Value != "" && !strings.ContainsAny(rq.Value, regexpMetaChars) {
				doc.AddPosAttr(defaultAttr, rq.Value)
			}
			continue
		default:
			extractSimpleQueryProps(rq, defaultAttr, doc)
			continue
		}
		q, err := cql.ParseCQL(fmt.Sprintf("query-%d", i), rq.Value)
		if err != nil {
			return fmt.Errorf("failed to extract CQL properties: %w", err)
		}

		for _, cqlProp := range q.ExtractProps() {
			if cqlProp.IsStructAttr() {
				key := fmt.Sprintf("%s.%s", cqlProp.Structure, cqlProp.Name)
				doc.AddStructAttr(key, cqlProp.Value)

			} else if cqlProp.IsStructure() {
				doc.AddStructure(cqlProp.Structure)

			} else if cqlProp.IsPosattr() {
				if cqlProp.Name != "" {
					doc.AddPosAttr(cqlProp.Name, cqlProp.Value)

				} else {
					doc.AddPosAttr(defaultAttr, cqlProp.Value)
				}
			}
		}
	}
	return nil
}
