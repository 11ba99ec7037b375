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
)

// OpStats describes activity of the archiving job
type OpStats struct {
	NumErrors     int `json:"numErrors"`
	NumDuplicates int `json:"numDuplicates"`
	NumInserted   int `json:"numInserted"`
	NumFetched    int `json:"numFetched"`
	NumHistory    int `json:"numHistory"`
}

func (bgs *OpStats) UpdateBy(other OpStats) {
	bgs.NumErrors += other.NumErrors
	bgs.NumDuplicates += other.NumDuplicates
	bgs.NumInserted += other.NumInserted
	bgs.NumFetched += other.NumFetched
	bgs.NumHistory += other.NumHistory
}

func (bgs *OpStats) ShowsActivity() bool {
	return bgs.NumErrors+bgs.NumDuplicates+bgs.NumInserted+bgs.NumFetched+bgs.NumHistory > 0
}

// ------------

// CleanupStats describes a single run of the cleanup job
// (cold archive pruning and result cache sweeping)
type CleanupStats struct {
	NumDeletedRecords int `json:"numDeletedRecords"`
	NumDeletedFiles   int `json:"numDeletedFiles"`
	NumErrors         int `json:"numErrors"`
}

// ------------

// ComputationStats aggregates concordance computations finished
// within a reporting interval
type ComputationStats struct {
	NumComputed int     `json:"numComputed"`
	AvgTimeProc float64 `json:"avgTimeProc"`
	MaxTimeProc float64 `json:"maxTimeProc"`
}

// Add includes a computation taking `timeProc` seconds
func (cs *ComputationStats) Add(timeProc float64) {
	cs.AvgTimeProc = (cs.AvgTimeProc*float64(cs.NumComputed) + timeProc) / float64(cs.NumComputed+1)
	cs.NumComputed++
	cs.MaxTimeProc = max(cs.MaxTimeProc, timeProc)
}

// ------------

type QueryHistoryDelStats struct {
	IndexSize    int64 `json:"indexSize"`
	SQLTableSize int64 `json:"sqlTableSize"`
	NumDeleted   int   `json:"numDeleted"`
	NumErrors    int   `json:"numErrors"`
}

// ------------

type IReporting interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	WriteOperationsStatus(item OpStats)
	WriteCleanupStatus(item CleanupStats)
	WriteQueryHistoryDeletionStatus(item QueryHistoryDelStats)
	WriteComputationStatus(item ComputationStats)
}
