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

package wordlist

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	dfltPageSize   = 50
	dfltSmoothingN = 1.0
	dfltMaxItems   = 10000
)

type Conf struct {
	DefaultPageSize int `json:"defaultPageSize"`

	// MaxItems limits the number of items a single result may contain
	MaxItems int `json:"maxItems"`

	// DefaultSmoothingN is used by keywords' "simple maths" score
	// in case a query does not specify its own constant
	DefaultSmoothingN float64 `json:"defaultSmoothingN"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `wordlist` section")
	}
	if conf.DefaultPageSize == 0 {
		conf.DefaultPageSize = dfltPageSize
		log.Warn().
			Int("value", conf.DefaultPageSize).
			Msg("wordlist.defaultPageSize not specified, using default")
	}
	if conf.MaxItems == 0 {
		conf.MaxItems = dfltMaxItems
		log.Warn().
			Int("value", conf.MaxItems).
			Msg("wordlist.maxItems not specified, using default")
	}
	if conf.DefaultSmoothingN == 0 {
		conf.DefaultSmoothingN = dfltSmoothingN
		log.Warn().
			Float64("value", conf.DefaultSmoothingN).
			Msg("wordlist.defaultSmoothingN not specified, using default")
	}
	if conf.DefaultSmoothingN < 0 {
		return fmt.Errorf("wordlist.defaultSmoothingN must be positive")
	}
	return nil
}
