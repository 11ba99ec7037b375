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

package util

import (
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrPrimeSeachExhausted = errors.New("prime search exhausted")
)

// NearestPrime finds the lowest prime number >= v. We use it to tune
// intervals of periodic jobs so they do not run at the same moments.
func NearestPrime(v int) (int, error) {
	for i := v; i < v+1000; i++ {
		bi := big.NewInt(int64(i))
		if bi.ProbablyPrime(20) {
			return i, nil
		}
	}
	return -1, ErrPrimeSeachExhausted
}

// ContentHash creates a hex sha1 digest of JSON encoded values.
// Struct fields and map keys are encoded in a stable order, so the
// function is usable for content-addressed cache keys.
func ContentHash(values ...any) string {
	h := sha1.New()
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			// values are expected to be plain data
			panic(fmt.Sprintf("failed to hash value %v: %s", v, err))
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Paginate returns bounds of a page within a slice of size `total`
// (page is 1-based)
func Paginate(total, page, pageSize int) (from, to int, lastPage int) {
	if pageSize <= 0 {
		return 0, total, 1
	}
	if page < 1 {
		page = 1
	}
	lastPage = (total + pageSize - 1) / pageSize
	if lastPage == 0 {
		lastPage = 1
	}
	from = (page - 1) * pageSize
	if from > total {
		from = total
	}
	to = from + pageSize
	if to > total {
		to = total
	}
	return
}
