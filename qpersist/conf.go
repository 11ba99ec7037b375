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
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ArchiveModeSync  = "sync"
	ArchiveModeQueue = "queue"

	dfltTTLDays              = 14
	dfltAnonymousTTLDays     = 1
	dfltArchiveRetentionDays = 365
	dfltCleanupMaxItems      = 1000
)

type Conf struct {

	// TTLDays specifies how long registered users' records live
	// in the hot store
	TTLDays int `json:"ttlDays"`

	// AnonymousTTLDays specifies how long anonymous users' records
	// live in the hot store. Such records are never archived.
	AnonymousTTLDays int `json:"anonymousTtlDays"`

	// ArchiveMode is either `sync` (records are copied to the cold
	// store within the `store` operation) or `queue` (records are
	// passed to a background archiver via a queue)
	ArchiveMode string `json:"archiveMode"`

	// ArchiveRetentionDays specifies the age of non-permanent
	// cold records which can be removed
	ArchiveRetentionDays int `json:"archiveRetentionDays"`

	CleanupMaxItems int `json:"cleanupMaxItems"`

	AnonymousUserID int `json:"anonymousUserId"`
}

func (conf *Conf) TTL() time.Duration {
	return time.Duration(conf.TTLDays) * 24 * time.Hour
}

func (conf *Conf) AnonymousTTL() time.Duration {
	return time.Duration(conf.AnonymousTTLDays) * 24 * time.Hour
}

func (conf *Conf) ArchiveRetention() time.Duration {
	return time.Duration(conf.ArchiveRetentionDays) * 24 * time.Hour
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `queryPersistence` section")
	}
	if conf.TTLDays == 0 {
		conf.TTLDays = dfltTTLDays
		log.Warn().Int("value", conf.TTLDays).Msg("queryPersistence.ttlDays not specified, using default")
	}
	if conf.AnonymousTTLDays == 0 {
		conf.AnonymousTTLDays = dfltAnonymousTTLDays
		log.Warn().
			Int("value", conf.AnonymousTTLDays).
			Msg("queryPersistence.anonymousTtlDays not specified, using default")
	}
	if conf.AnonymousTTLDays > conf.TTLDays {
		return fmt.Errorf("queryPersistence.anonymousTtlDays must not be greater than ttlDays")
	}
	switch conf.ArchiveMode {
	case ArchiveModeSync, ArchiveModeQueue:
	case "":
		conf.ArchiveMode = ArchiveModeSync
		log.Warn().Str("value", conf.ArchiveMode).Msg("queryPersistence.archiveMode not specified, using default")
	default:
		return fmt.Errorf("invalid queryPersistence.archiveMode `%s`", conf.ArchiveMode)
	}
	if conf.ArchiveRetentionDays == 0 {
		conf.ArchiveRetentionDays = dfltArchiveRetentionDays
		log.Warn().
			Int("value", conf.ArchiveRetentionDays).
			Msg("queryPersistence.archiveRetentionDays not specified, using default")
	}
	if conf.CleanupMaxItems == 0 {
		conf.CleanupMaxItems = dfltCleanupMaxItems
		log.Warn().
			Int("value", conf.CleanupMaxItems).
			Msg("queryPersistence.cleanupMaxItems not specified, using default")
	}
	return nil
}
