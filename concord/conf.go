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

package concord

import (
	"fmt"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/rs/zerolog/log"
)

const (
	dfltCacheMaxAge  = "2h"
	dfltKwicCtxSize  = 5
	dfltPageSize     = 40
	maxKwicCtxSize   = 50
	dfltCacheFileExt = ".conc.json"
)

type Conf struct {

	// CacheDir is a root directory for materialized concordances
	CacheDir string `json:"cacheDir"`

	// CacheMaxAge specifies how long a concordance may stay
	// in the cache without being accessed
	CacheMaxAge string `json:"cacheMaxAge"`

	// KwicCtxSize is a number of tokens shown on each side of KWIC
	KwicCtxSize int `json:"kwicCtxSize"`

	DefaultPageSize int `json:"defaultPageSize"`

	// StatsPath is a path of a file storing computation times
	// (empty = disabled)
	StatsPath string `json:"statsPath"`
}

func (conf *Conf) CacheMaxAgeDur() time.Duration {
	v, err := datetime.ParseDuration(conf.CacheMaxAge)
	if err != nil {
		panic(err) // ValidateAndDefaults should prevent this
	}
	return v
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `concordance` section")
	}
	if conf.CacheDir == "" {
		return fmt.Errorf("missing concordance.cacheDir")
	}
	if conf.CacheMaxAge == "" {
		conf.CacheMaxAge = dfltCacheMaxAge
		log.Warn().Str("value", conf.CacheMaxAge).Msg("concordance.cacheMaxAge not specified, using default")
	}
	if _, err := datetime.ParseDuration(conf.CacheMaxAge); err != nil {
		return fmt.Errorf("invalid concordance.cacheMaxAge: %w", err)
	}
	if conf.KwicCtxSize == 0 {
		conf.KwicCtxSize = dfltKwicCtxSize
		log.Warn().Int("value", conf.KwicCtxSize).Msg("concordance.kwicCtxSize not specified, using default")
	}
	if conf.KwicCtxSize < 0 || conf.KwicCtxSize > maxKwicCtxSize {
		return fmt.Errorf("concordance.kwicCtxSize must be between 0 and %d", maxKwicCtxSize)
	}
	if conf.DefaultPageSize == 0 {
		conf.DefaultPageSize = dfltPageSize
		log.Warn().Int("value", conf.DefaultPageSize).Msg("concordance.defaultPageSize not specified, using default")
	}
	return nil
}
