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

package colls

import (
	"fmt"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	dfltCacheTTL     = "24h"
	dfltItemsPerPage = 50
)

type Conf struct {
	CacheDir string `json:"cacheDir"`

	// CacheTTL specifies how long unused results are kept (e.g. `24h`)
	CacheTTL string `json:"cacheTTL"`

	ItemsPerPage int `json:"itemsPerPage"`
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
		return fmt.Errorf("missing `colls` section")
	}
	if conf.CacheDir == "" {
		return fmt.Errorf("missing colls.cacheDir")
	}
	if isDir, err := fs.IsDir(conf.CacheDir); err != nil || !isDir {
		return fmt.Errorf("colls.cacheDir `%s` is not a directory", conf.CacheDir)
	}
	if conf.CacheTTL == "" {
		conf.CacheTTL = dfltCacheTTL
		log.Warn().
			Str("value", conf.CacheTTL).
			Msg("colls.cacheTTL not specified, using default")
	}
	if dur, err := datetime.ParseDuration(conf.CacheTTL); err != nil || dur == 0 {
		return fmt.Errorf("invalid colls.cacheTTL `%s`", conf.CacheTTL)
	}
	if conf.ItemsPerPage == 0 {
		conf.ItemsPerPage = dfltItemsPerPage
		log.Warn().
			Int("value", conf.ItemsPerPage).
			Msg("colls.itemsPerPage not specified, using default")
	}
	return nil
}
