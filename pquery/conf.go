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

package pquery

import (
	"fmt"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	dfltSubtaskTimeoutSecs = 120
	dfltMaxParallelTasks   = 4
	dfltCacheTTL           = "72h"
	dfltPageSize           = 100
)

type Conf struct {
	CacheDir string `json:"cacheDir"`

	// CacheTTL specifies how long unused results are kept
	CacheTTL string `json:"cacheTTL"`

	// SubtaskTimeoutSecs limits the time spent waiting for frequency
	// distributions of individual concordances
	SubtaskTimeoutSecs int `json:"subtaskTimeoutSecs"`
	MaxParallelTasks   int `json:"maxParallelTasks"`
	DefaultPageSize    int `json:"defaultPageSize"`
}

func (conf *Conf) SubtaskTimeout() time.Duration {
	return time.Duration(conf.SubtaskTimeoutSecs) * time.Second
}

func (conf *Conf) CacheTTLDur() time.Duration {
	dur, err := datetime.ParseDuration(conf.CacheTTL)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks the value
	}
	return dur
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `pquery` section")
	}
	if conf.CacheDir == "" {
		return fmt.Errorf("missing pquery.cacheDir")
	}
	if isDir, err := fs.IsDir(conf.CacheDir); err != nil || !isDir {
		return fmt.Errorf("pquery.cacheDir `%s` is not a directory", conf.CacheDir)
	}
	if conf.CacheTTL == "" {
		conf.CacheTTL = dfltCacheTTL
		log.Warn().
			Str("value", conf.CacheTTL).
			Msg("pquery.cacheTTL not specified, using default")
	}
	if dur, err := datetime.ParseDuration(conf.CacheTTL); err != nil || dur == 0 {
		return fmt.Errorf("invalid pquery.cacheTTL `%s`", conf.CacheTTL)
	}
	if conf.SubtaskTimeoutSecs == 0 {
		conf.SubtaskTimeoutSecs = dfltSubtaskTimeoutSecs
		log.Warn().
			Int("value", conf.SubtaskTimeoutSecs).
			Msg("pquery.subtaskTimeoutSecs not specified, using default")
	}
	if conf.MaxParallelTasks == 0 {
		conf.MaxParallelTasks = dfltMaxParallelTasks
		log.Warn().
			Int("value", conf.MaxParallelTasks).
			Msg("pquery.maxParallelTasks not specified, using default")
	}
	if conf.DefaultPageSize == 0 {
		conf.DefaultPageSize = dfltPageSize
		log.Warn().
			Int("value", conf.DefaultPageSize).
			Msg("pquery.defaultPageSize not specified, using default")
	}
	return nil
}
