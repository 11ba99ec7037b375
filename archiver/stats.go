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
	"concbench/cncdb"
	"concbench/reporting"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	yearStatsCacheKey = "concbench_years_stats"
	yearStatsCacheTTL = 24 * time.Hour
)

// CountPerYear is a number of cold records created in a year
type CountPerYear struct {
	Year  int `json:"year"`
	Count int `json:"count"`
}

type yearsStats struct {
	Years      []CountPerYear `json:"years"`
	LastUpdate time.Time      `json:"lastUpdate"`
}

func (ys yearsStats) total() int {
	var ans int
	for _, y := range ys.Years {
		ans += y.Count
	}
	return ans
}

// Overview summarizes the cold archive and the archiving job
type Overview struct {
	Ops                 reporting.OpStats `json:"archiver"`
	ArchSizesByYears    []CountPerYear    `json:"archSizesByYears"`
	YearsLastUpdate     time.Time         `json:"yearsLastUpdate"`
	TotalArchived       int               `json:"totalArchived"`
	QueueSize           int64             `json:"queueSize"`
	DedupFalsePositives int               `json:"dedupFalsePositives"`

	// YearsUnavailable is set when the database refused to count
	// the records (the archive is too large for an ad-hoc query)
	YearsUnavailable bool `json:"yearsUnavailable"`
}

func (job *ArchKeeper) loadYearsStats(forceReload bool) (yearsStats, error) {
	var ans yearsStats
	if !forceReload && job.queue != nil {
		cached, err := job.queue.Get(yearStatsCacheKey)
		if err != nil {
			return ans, fmt.Errorf("failed to get cached years stats: %w", err)
		}
		if cached != "" {
			if err := json.Unmarshal([]byte(cached), &ans); err != nil {
				return ans, fmt.Errorf("failed to unmarshal years stats from cache: %w", err)
			}
			return ans, nil
		}
	}
	data, err := job.dbArch.GetArchSizesByYears(forceReload)
	if err != nil {
		return ans, err
	}
	ans.LastUpdate = time.Now().In(job.tz)
	ans.Years = make([]CountPerYear, len(data))
	for i, item := range data {
		ans.Years[i] = CountPerYear{Year: item[0], Count: item[1]}
	}
	sort.Slice(ans.Years, func(i, j int) bool {
		return ans.Years[i].Year < ans.Years[j].Year
	})
	if job.queue != nil {
		jsonData, err := json.Marshal(ans)
		if err != nil {
			return ans, fmt.Errorf("failed to marshal years stats: %w", err)
		}
		if err := job.queue.Set(yearStatsCacheKey, string(jsonData), yearStatsCacheTTL); err != nil {
			return ans, fmt.Errorf("failed to store years stats to cache: %w", err)
		}
	}
	return ans, nil
}

// Overview collects the current state of archiving. Yearly sizes
// of the cold archive are cached for a day unless `forceReload` is set.
func (job *ArchKeeper) Overview(forceReload bool) (Overview, error) {
	ans := Overview{
		Ops:                 job.GetStats(),
		DedupFalsePositives: job.dedup.NumFalsePositives(),
	}
	ys, err := job.loadYearsStats(forceReload)
	if errors.Is(err, cncdb.ErrTooDemandingQuery) {
		ans.YearsUnavailable = true

	} else if err != nil {
		return ans, fmt.Errorf("failed to get archive overview: %w", err)

	} else {
		ans.ArchSizesByYears = ys.Years
		ans.YearsLastUpdate = ys.LastUpdate
		ans.TotalArchived = ys.total()
	}
	if job.queue != nil {
		ans.QueueSize, err = job.queue.QueueSize()
		if err != nil {
			return ans, fmt.Errorf("failed to get archive overview: %w", err)
		}
	}
	return ans, nil
}
