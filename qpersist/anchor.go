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
	"concbench/apperr"
	"concbench/formargs"
	"fmt"
)

// Opener resolves operation records by their IDs (see Store.Open)
type Opener interface {
	Open(id string) (*Record, error)
}

// OpenAnchor resolves a record which is able to represent a whole
// chain in a readable way. I.e. in case the record `id` stores
// e.g. a sort or a sample, the chain is walked back to the nearest
// query or filter operation. The returned bool reports whether
// such a walk was needed.
func OpenAnchor(st Opener, id string) (*Record, bool, error) {
	rec, err := st.Open(id)
	if err != nil {
		return nil, false, err
	}
	var walked bool
	for i := 0; ; i++ {
		switch rec.FormType() {
		case formargs.FormTypeQuery, formargs.FormTypeFilter,
			formargs.FormTypePquery, formargs.FormTypeWlist, formargs.FormTypeKwords:
			return rec, walked, nil
		}
		if rec.PrevID == "" {
			return nil, walked, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("no query operation found in the chain of %s", id), nil)
		}
		if i >= MaxChainLength {
			return nil, walked, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("chain of %s is too long or cyclic", id), nil)
		}
		rec, err = st.Open(rec.PrevID)
		if err != nil {
			return nil, walked, fmt.Errorf("failed to find query of %s: %w", id, err)
		}
		walked = true
	}
}
