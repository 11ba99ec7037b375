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
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	idLength       = 12
	base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var idRegexp = regexp.MustCompile(`^[0-9a-zA-Z]{12}$`)

type fingerprintSrc struct {
	Q           []string       `json:"q"`
	LinesGroups [][3]int       `json:"lines_groups"`
	Sorted      bool           `json:"lines_groups_sorted"`
	Corpora     []string       `json:"corpora"`
	UseSubcorp  string         `json:"usesubcorp"`
	PrevID      string         `json:"prev_id"`
	Form        map[string]any `json:"form,omitempty"`
}

func encodeBase62(data []byte) string {
	v := new(big.Int).SetBytes(data)
	base := big.NewInt(int64(len(base62Alphabet)))
	mod := new(big.Int)
	var ans strings.Builder
	for v.Sign() > 0 {
		v.DivMod(v, base, mod)
		ans.WriteByte(base62Alphabet[mod.Int64()])
	}
	for ans.Len() < idLength {
		ans.WriteByte(base62Alphabet[0])
	}
	return ans.String()
}

// Fingerprint calculates a content-addressed ID of a record out of
// its query, line groups, corpora, subcorpus and previous ID.
// Records without any query (word lists, keywords, paradigmatic queries)
// include also their form.
func Fingerprint(rec *Record) string {
	src := fingerprintSrc{
		Q:           rec.Q,
		LinesGroups: rec.LinesGroups.Data,
		Sorted:      rec.LinesGroups.Sorted,
		Corpora:     rec.Corpora,
		UseSubcorp:  rec.UseSubcorp,
		PrevID:      rec.PrevID,
	}
	if src.Q == nil {
		src.Q = []string{}
	}
	if src.LinesGroups == nil {
		src.LinesGroups = [][3]int{}
	}
	if src.Corpora == nil {
		src.Corpora = []string{}
	}
	if len(rec.Q) == 0 && rec.LastopForm != nil {
		src.Form = make(map[string]any)
		for k, v := range rec.LastopForm {
			if k != "op_key" {
				src.Form[k] = v
			}
		}
	}
	data, err := json.Marshal(src)
	if err != nil {
		// the source contains only plain data
		panic(fmt.Sprintf("failed to calculate record fingerprint: %s", err))
	}
	sum := sha1.Sum(data)
	return encodeBase62(sum[:])[:idLength]
}

// IsValidID tests whether a string has the syntactic form of a record ID
func IsValidID(s string) bool {
	return idRegexp.MatchString(s)
}
