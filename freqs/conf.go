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

package freqs

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	dfltMaxLevels = 4
	dfltPageSize  = 50
)

type Conf struct {

	// MaxLevels limits number of levels of a multi-level criterion
	MaxLevels int `json:"maxLevels"`

	DefaultPageSize int `json:"defaultPageSize"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `freqs` section")
	}
	if conf.MaxLevels == 0 {
		conf.MaxLevels = dfltMaxLevels
		log.Warn().
			Int("value", conf.MaxLevels).
			Msg("freqs.maxLevels not specified, using default")
	}
	if conf.DefaultPageSize == 0 {
		conf.DefaultPageSize = dfltPageSize
		log.Warn().
			Int("value", conf.DefaultPageSize).
			Msg("freqs.defaultPageSize not specified, using default")
	}
	return nil
}
