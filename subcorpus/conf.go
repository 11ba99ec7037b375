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

package subcorpus

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	dfltPreflightShare = 0.05
	dfltSharedUserID   = 1
)

type Conf struct {

	// SharedUserID is a reserved user owning synthetic (preflight) subcorpora
	SharedUserID int `json:"sharedUserId"`

	// PreflightShare is a minimum share of a corpus covered
	// by its preflight subcorpus (0, 1]
	PreflightShare float64 `json:"preflightShare"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `subcorpora` section")
	}
	if conf.SharedUserID == 0 {
		conf.SharedUserID = dfltSharedUserID
		log.Warn().
			Int("value", conf.SharedUserID).
			Msg("subcorpora.sharedUserId not specified, using default")
	}
	if conf.PreflightShare == 0 {
		conf.PreflightShare = dfltPreflightShare
		log.Warn().
			Float64("value", conf.PreflightShare).
			Msg("subcorpora.preflightShare not specified, using default")
	}
	if conf.PreflightShare < 0 || conf.PreflightShare > 1 {
		return fmt.Errorf("invalid subcorpora.preflightShare %01.2f", conf.PreflightShare)
	}
	return nil
}
