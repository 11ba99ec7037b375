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


package cleaner

import (
	"concbench/util"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dfltStatusKey           = "concbench_cleanup_status"
	dfltCheckIntervalSecs   = 3607
	minAllowedCheckInterval = 10
)

type Conf struct {
	CheckIntervalSecs int `json:"checkIntervalSecs"`

	// StatusKey is a Redis key storing the time of the last cleanup
	// so multiple instances sharing the stores do not repeat it
	StatusKey string `json:"statusKey"`

	// SkipCaches lists result caches the cleaner must not sweep
	// (e.g. a cache directory shared with an instance sweeping it)
	SkipCaches []string `json:"skipCaches"`
}

func (conf *Conf) sweepsCache(name string) bool {
	return !slices.Contains(conf.SkipCaches, name)
}

func (conf *Conf) CheckInterval() time.Duration {
	return time.Duration(conf.CheckIntervalSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults(opsCheckIntervalSecs int) error {
	if conf == nil {
		return fmt.Errorf("missing `cleaner` section")
	}
	if conf.CheckIntervalSecs == 0 {
		conf.CheckIntervalSecs = dfltCheckIntervalSecs
		log.Warn().
			Int("value", conf.CheckIntervalSecs).
			Msg("cleaner.checkIntervalSecs not specified, using default")
	}
	if conf.CheckIntervalSecs < minAllowedCheckInterval {
		return fmt.Errorf(
			"invalid value %d for checkIntervalSecs (must be >= %d)",
			conf.CheckIntervalSecs, minAllowedCheckInterval,
		)
	}
	tmp, err := util.NearestPrime(conf.CheckIntervalSecs)
	if err != nil {
		return fmt.Errorf("failed to tune cleaner timing: %w", err)
	}
	if tmp == opsCheckIntervalSecs {
		tmp, err = util.NearestPrime(tmp + 1)
		if err != nil {
			return fmt.Errorf("failed to tune cleaner timing: %w", err)
		}
	}
	if tmp != conf.CheckIntervalSecs {
		log.Warn().
			Int("oldValue", conf.CheckIntervalSecs).
			Int("newValue", tmp).
			Msg("tuned value of checkIntervalSecs so it does not overlap with ops interval")
		conf.CheckIntervalSecs = tmp
	}
	if conf.StatusKey == "" {
		conf.StatusKey = dfltStatusKey
		log.Warn().Str("value", conf.StatusKey).Msg("cleaner.statusKey not specified, using default")
	}
	for i, c := range conf.SkipCaches {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("invalid empty item %d in cleaner.skipCaches", i)
		}
	}
	if len(conf.SkipCaches) > 0 {
		log.Info().Strs("caches", conf.SkipCaches).Msg("cleaner configured to skip some caches")
	}
	return nil
}
