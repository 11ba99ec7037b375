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

package pipeline

import (
	"concbench/apperr"
	"concbench/formargs"
	"concbench/qpersist"
	"fmt"
	"slices"
)

func isPrefix(prefix, q []string) bool {
	return len(prefix) <= len(q) && slices.Equal(prefix, q[:len(prefix)])
}

func isSubset(items, of []string) bool {
	for _, v := range items {
		if !slices.Contains(of, v) {
			return false
		}
	}
	return true
}

func integrityErr(rec *qpersist.Record, msg string, args ...any) error {
	return apperr.NewConcordanceSpecificationError(
		fmt.Sprintf("invalid chain at %s: %s", rec.ID, fmt.Sprintf(msg, args...)), nil)
}

// Validate tests integrity of a chain (as returned by LoadPipeline):
// links must be consistent and acyclic, all the records must share
// the primary corpus, each q must be a prefix of its successor's q
// and the list of aligned corpora may only shrink going backward.
func Validate(chain []*qpersist.Record) error {
	if len(chain) == 0 {
		return apperr.NewConcordanceSpecificationError("empty chain", nil)
	}
	if len(chain) > qpersist.MaxChainLength {
		return apperr.NewConcordanceSpecificationError("chain is too long", nil)
	}
	root := chain[0]
	if root.PrevID != "" {
		return integrityErr(root, "missing predecessor %s", root.PrevID)
	}
	if ft := root.FormType(); ft != "" && !formargs.IsChainStarter(ft) {
		return integrityErr(root, "operation %s cannot start a chain", ft)
	}
	seen := make(map[string]bool)
	for i, rec := range chain {
		if seen[rec.ID] {
			return integrityErr(rec, "cycle detected")
		}
		seen[rec.ID] = true
		if i == 0 {
			continue
		}
		prev := chain[i-1]
		if rec.PrevID != prev.ID {
			return integrityErr(rec, "expected predecessor %s, found %s", prev.ID, rec.PrevID)
		}
		if rec.PrimaryCorpus() != root.PrimaryCorpus() {
			return integrityErr(
				rec, "primary corpus changed from %s to %s", root.PrimaryCorpus(), rec.PrimaryCorpus())
		}
		if !isPrefix(prev.Q, rec.Q) {
			return integrityErr(rec, "query of %s is not a prefix", prev.ID)
		}
		if !isSubset(prev.AlignedCorpora(), rec.AlignedCorpora()) {
			return integrityErr(rec, "aligned corpora of %s are not a subset", prev.ID)
		}
	}
	return nil
}
