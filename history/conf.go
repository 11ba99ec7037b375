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


package history

import (
	"fmt"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/rs/zerolog/log"
)

const (
	dfltPreserveAmount      = 100
	dfltCleanupInterval     = "1h"
	dfltDeletedItemsChannel = "concbench_qh_deleted"
	dfltFulltextTimeoutSecs = 10
)

type Conf struct {

	// PreserveAmount is the number of newest unnamed items kept
	// for each user
	PreserveAmount int `json:"preserveAmount"`

	// CleanupInterval specifies how often old items are removed
	// (e.g. "1h", "30m")
	CleanupInterval string `json:"cleanupInterval"`

	// DeletedItemsChannel is a pub/sub channel IDs of deleted
	// items are published to
	DeletedItemsChannel string `json:"deletedItemsChannel"`

	// FulltextServiceURL is an optional external fulltext service.
	// If empty, the embedded index is used.
	FulltextServiceURL  string `json:"fulltextServiceUrl"`
	FulltextTimeoutSecs int    `json:"fulltextTimeoutSecs"`
}

func (conf *Conf) CleanupIntervalDur() time.Duration {
	// values are validated in ValidateAndDefaults
	ans, _ := datetime.ParseDuration(conf.CleanupInterval)
	return ans
}

func (conf *Conf) FulltextTimeout() time.Duration {
	return time.Duration(conf.FulltextTimeoutSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `queryHistory` section")
	}
	if conf.PreserveAmount == 0 {
		conf.PreserveAmount = dfltPreserveAmount
		log.Warn().
			Int("value", conf.PreserveAmount).
			Msg("queryHistory.preserveAmount not specified, using default")
	}
	if conf.CleanupInterval == "" {
		conf.CleanupInterval = dfltCleanupInterval
		log.Warn().
			Str("value", conf.CleanupInterval).
			Msg("queryHistory.cleanupInterval not specified, using default")
	}
	if _, err := datetime.ParseDuration(conf.CleanupInterval); err != nil {
		return fmt.Errorf("failed to validate queryHistory.cleanupInterval: %w", err)
	}
	if conf.DeletedItemsChannel == "" {
		conf.DeletedItemsChannel = dfltDeletedItemsChannel
		log.Warn().
			Str("value", conf.DeletedItemsChannel).
			Msg("queryHistory.deletedItemsChannel not specified, using default")
	}
	if conf.FulltextServiceURL != "" && conf.FulltextTimeoutSecs == 0 {
		conf.FulltextTimeoutSecs = dfltFulltextTimeoutSecs
		log.Warn().
			Int("value", conf.FulltextTimeoutSecs).
			Msg("queryHistory.fulltextTimeoutSecs not specified, using default")
	}
	return nil
}
