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

package archiver

import (
	"concbench/util"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dfltPreloadLastNItems  = 500
	dfltCheckIntervalSecs  = 31
	dfltCheckIntervalChunk = 100
	dfltQueueKey           = "conc_arch_queue"
	dfltFailedQueueKey     = "conc_arch_failed"
)

type RedisConf struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       int    `json:"db"`
	Password string `json:"password"`
}

func (conf *RedisConf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `redis` section")
	}
	if conf.Host == "" {
		conf.Host = "localhost"
		log.Warn().Str("value", conf.Host).Msg("redis host not specified, using default")
	}
	if conf.Port == 0 {
		conf.Port = 6379
		log.Warn().Int("value", conf.Port).Msg("redis port not specified, using default")
	}
	return nil
}

type Conf struct {
	DDStateFilePath    string `json:"ddStateFilePath"`
	CheckIntervalSecs  int    `json:"checkIntervalSecs"`
	CheckIntervalChunk int    `json:"checkIntervalChunk"`
	PreloadLastNItems  int    `json:"preloadLastNItems"`
	QueueKey           string `json:"queueKey"`
	FailedQueueKey     string `json:"failedQueueKey"`
}

func (conf *Conf) CheckInterval() time.Duration {
	return time.Duration(conf.CheckIntervalSecs) * time.Second
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `archiver` section")
	}
	if conf.DDStateFilePath == "" {
		return fmt.Errorf("missing path to deduplicator state file (ddStateFilePath)")
	}
	if conf.CheckIntervalSecs == 0 {
		conf.CheckIntervalSecs = dfltCheckIntervalSecs
		log.Warn().
			Int("value", conf.CheckIntervalSecs).
			Msg("archiver value `checkIntervalSecs` not set, using default")
	}
	tmp, err := util.NearestPrime(conf.CheckIntervalSecs)
	if err != nil {
		return fmt.Errorf("failed to tune ops timing: %w", err)
	}
	if tmp != conf.CheckIntervalSecs {
		log.Warn().
			Int("oldValue", conf.CheckIntervalSecs).
			Int("newValue", tmp).
			Msg("tuned value of checkIntervalSecs so it cannot be easily overlapped by other timers")
		conf.CheckIntervalSecs = tmp
	}
	if conf.CheckIntervalChunk == 0 {
		conf.CheckIntervalChunk = dfltCheckIntervalChunk
		log.Warn().
			Int("value", conf.CheckIntervalChunk).
			Msg("archiver value `checkIntervalChunk` not set, using default")
	}
	if conf.PreloadLastNItems == 0 {
		conf.PreloadLastNItems = dfltPreloadLastNItems
		log.Warn().
			Int("value", conf.PreloadLastNItems).
			Msg("archiver value `preloadLastNItems` not set, using default")
	}
	if conf.QueueKey == "" {
		conf.QueueKey = dfltQueueKey
		log.Warn().
			Str("value", conf.QueueKey).
			Msg("archiver value `queueKey` not set, using default")
	}
	if conf.FailedQueueKey == "" {
		conf.FailedQueueKey = dfltFailedQueueKey
		log.Warn().
			Str("value", conf.FailedQueueKey).
			Msg("archiver value `failedQueueKey` not set, using default")
	}
	return nil
}
