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


package indexer

import (
	"fmt"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
)

const (
	dfltSearchMaxResults = 100
	dfltReindexChunkSize = 500
)

// Conf contains indexer's configuration as obtained
// from a JSON file (or chunk). Please note that the
// instance should be treated as ready only after
// ValidateAndDefaults is called.
type Conf struct {

	// IndexDirPath specifies a directory where Bleve stores
	// its fulltext index data
	IndexDirPath string `json:"indexDirPath"`

	// SearchMaxResults is the default limit of search results
	SearchMaxResults int `json:"searchMaxResults"`

	// ReindexChunkSize specifies how many users are processed
	// by a single run of the `reindex` command
	ReindexChunkSize int `json:"reindexChunkSize"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `indexer` section")
	}
	if conf.IndexDirPath == "" {
		return fmt.Errorf("missing path to index dir (indexDirPath)")
	}
	isDir, err := fs.IsDir(conf.IndexDirPath)
	if err != nil {
		return err

	} else if !isDir {
		return fmt.Errorf("index dir does not exist (indexDirPath)")
	}
	if conf.SearchMaxResults <= 0 {
		conf.SearchMaxResults = dfltSearchMaxResults
		log.Warn().
			Int("value", conf.SearchMaxResults).
			Msg("indexer.searchMaxResults not specified, using default")
	}
	if conf.ReindexChunkSize <= 0 {
		conf.ReindexChunkSize = dfltReindexChunkSize
		log.Warn().
			Int("value", conf.ReindexChunkSize).
			Msg("indexer.reindexChunkSize not specified, using default")
	}
	return nil
}
