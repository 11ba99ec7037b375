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

package reporting

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DummyWriter only logs reported values. It also keeps
// the last reported items so they can be inspected.
type DummyWriter struct {
	mu          sync.Mutex
	LastOps     OpStats
	LastCleanup CleanupStats
	LastHistDel QueryHistoryDelStats
	LastComp    ComputationStats
}

func (job *DummyWriter) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		log.Info().Msg("about to close DummyWriter")
	}()
}

func (job *DummyWriter) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping DummyWriter")
	return nil
}

func (job *DummyWriter) WriteOperationsStatus(item OpStats) {
	job.mu.Lock()
	job.LastOps = item
	job.mu.Unlock()
	log.Info().Any("stats", item).Msg("writing dummy operations report")
}

func (job *DummyWriter) WriteCleanupStatus(item CleanupStats) {
	job.mu.Lock()
	job.LastCleanup = item
	job.mu.Unlock()
	log.Info().Any("stats", item).Msg("writing dummy cleanup report")
}

func (job *DummyWriter) WriteQueryHistoryDeletionStatus(item QueryHistoryDelStats) {
	job.mu.Lock()
	job.LastHistDel = item
	job.mu.Unlock()
	log.Info().Any("stats", item).Msg("writing dummy query history deletion report")
}

func (job *DummyWriter) WriteComputationStatus(item ComputationStats) {
	job.mu.Lock()
	job.LastComp = item
	job.mu.Unlock()
	log.Info().Any("stats", item).Msg("writing dummy computation report")
}

// LastComputation returns the last reported computation stats
func (job *DummyWriter) LastComputation() ComputationStats {
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.LastComp
}
