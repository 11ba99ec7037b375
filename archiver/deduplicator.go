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
	"bytes"
	"concbench/cncdb"
	"fmt"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom"
	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
)

const (
	bloomFilterNumBits       = 1000000
	bloomFilterProbCollision = 0.01
)

// Deduplicator keeps track of recently archived record IDs so
// the archiving procedure can stop walking a chain of operations
// once it reaches an already archived record without asking
// the database for each and every record.
// A negative answer from the filter does not mean the record is
// not archived (the filter knows only recent items).
type Deduplicator struct {
	mu              sync.Mutex
	items           *bloom.BloomFilter
	concArch        cncdb.IConcArchOps
	preloadLastN    int
	storageFilePath string
	numFalsePos     int
}

func (dd *Deduplicator) StoreToDisk() error {
	if dd.storageFilePath == "" {
		return nil
	}
	dd.mu.Lock()
	defer dd.mu.Unlock()
	var buf bytes.Buffer
	if _, err := dd.items.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to store deduplicator state to disk: %w", err)
	}
	if err := atomic.WriteFile(dd.storageFilePath, &buf); err != nil {
		return fmt.Errorf("failed to store deduplicator state to disk: %w", err)
	}
	return nil
}

func (dd *Deduplicator) OnClose() error {
	return dd.StoreToDisk()
}

func (dd *Deduplicator) LoadFromDisk() error {
	f, err := os.Open(dd.storageFilePath)
	if err != nil {
		return fmt.Errorf("failed to load deduplicator state from disk: %w", err)
	}
	defer f.Close()
	dd.mu.Lock()
	defer dd.mu.Unlock()
	_, err = dd.items.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("failed to load deduplicator state from disk: %w", err)
	}
	return nil
}

func (dd *Deduplicator) Add(concID string) {
	dd.mu.Lock()
	dd.items.AddString(concID)
	dd.mu.Unlock()
}

func (dd *Deduplicator) Reset() error {
	log.Warn().Msg("performing deduplicator reset")
	dd.mu.Lock()
	dd.items.ClearAll()
	dd.numFalsePos = 0
	dd.mu.Unlock()
	if dd.preloadLastN > 0 {
		return dd.PreloadLastNItems(dd.preloadLastN)
	}
	return nil
}

func (dd *Deduplicator) PreloadLastNItems(num int) error {
	dd.preloadLastN = num
	items, err := dd.concArch.LoadRecentNRecords(num)
	if err != nil {
		return fmt.Errorf("failed to preload last N items: %w", err)
	}
	for _, item := range items {
		dd.Add(item.ID)
	}
	log.Info().Int("numItems", len(items)).Msg("preloaded recent archive items into deduplicator")
	return nil
}

// TestRecord tests the filter only (i.e. false positives are possible)
func (dd *Deduplicator) TestRecord(concID string) bool {
	dd.mu.Lock()
	defer dd.mu.Unlock()
	return dd.items.TestString(concID)
}

// IsArchived returns true if the record is known to be archived. Filter matches
// are confirmed against the archive database. For records not known to the filter,
// false is returned without touching the database.
func (dd *Deduplicator) IsArchived(concID string) (bool, error) {
	if !dd.TestRecord(concID) {
		return false, nil
	}
	ans, err := dd.concArch.ContainsRecord(concID)
	if err != nil {
		return false, fmt.Errorf("failed to test archived record %s: %w", concID, err)
	}
	if !ans {
		log.Debug().
			Str("concId", concID).
			Msg("possible Bloom filter false positive")
		dd.mu.Lock()
		dd.numFalsePos++
		dd.mu.Unlock()
	}
	return ans, nil
}

func (dd *Deduplicator) NumFalsePositives() int {
	dd.mu.Lock()
	defer dd.mu.Unlock()
	return dd.numFalsePos
}

func NewDeduplicator(concArch cncdb.IConcArchOps, stateFilePath string) (*Deduplicator, error) {
	filter := bloom.NewWithEstimates(bloomFilterNumBits, bloomFilterProbCollision)
	d := &Deduplicator{
		items:           filter,
		concArch:        concArch,
		storageFilePath: stateFilePath,
	}
	if stateFilePath == "" {
		return d, nil
	}
	isf, err := fs.IsFile(stateFilePath)
	if err != nil {
		return d, fmt.Errorf("failed to init Deduplicator: %w", err)
	}
	if isf {
		if err := d.LoadFromDisk(); err != nil {
			return d, fmt.Errorf("failed to init Deduplicator: %w", err)
		}
		log.Info().Str("file", stateFilePath).Msg("loaded previously stored dedup. state")
	}
	return d, nil
}
