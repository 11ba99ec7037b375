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

package kcache

import (
	"concbench/reporting"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	dfltMaxStatsFileSize = 50 * 1024 * 1024
	dfltReportInterval   = 5 * time.Minute
	incomingBufferSize   = 100
)

// ComputationRecord describes a finished concordance computation
type ComputationRecord struct {
	Corpus        string  `json:"corpus"`
	CorpusSize    int64   `json:"corpusSize"`
	SubcorpusSize int64   `json:"subcorpusSize"`
	TimeProc      float64 `json:"timeProc"`
	Query         string  `json:"query"`
}

// Meter is a service which stores records of finished concordance
// computations to a JSONL file for later processing by other tools
// (e.g. query complexity estimators). Aggregated values are passed
// to operational reporting once per ReportInterval.
type Meter struct {
	incoming      chan ComputationRecord
	statsFile     *os.File
	statsFilePath string
	reporting     reporting.IReporting
	currStats     reporting.ComputationStats

	// MaxFileSize is the maximum size in bytes before rotating the file
	MaxFileSize int64

	ReportInterval time.Duration
	done           chan struct{}
}

func (meter *Meter) isDummy() bool {
	return meter.statsFilePath == "" && meter.reporting == nil
}

// Register passes a record to the meter. The call never blocks,
// records are dropped if the meter cannot keep up.
func (meter *Meter) Register(rec ComputationRecord) {
	if meter == nil || meter.isDummy() {
		return
	}
	select {
	case meter.incoming <- rec:
	default:
		log.Warn().Str("corpus", rec.Corpus).Msg("meter queue full, dropping computation record")
	}
}

// RegisterEntry passes a finished cache entry to the meter
func (meter *Meter) RegisterEntry(entry CacheEntry, corpus string, corpusSize, subcSize int64, q0 string) {
	if !entry.IsProcessable() {
		return
	}
	meter.Register(ComputationRecord{
		Corpus:        corpus,
		CorpusSize:    corpusSize,
		SubcorpusSize: subcSize,
		TimeProc:      entry.ProcTime(),
		Query:         q0,
	})
}

func (meter *Meter) writeStats(rec *ComputationRecord) error {
	meter.currStats.Add(rec.TimeProc)
	if meter.statsFilePath == "" {
		return nil
	}
	if meter.statsFile != nil {
		fileInfo, err := meter.statsFile.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat stats file: %w", err)
		}
		if fileInfo.Size() >= meter.MaxFileSize {
			if err := meter.rotateStatsFile(); err != nil {
				return fmt.Errorf("failed to prepare stats file: %w", err)
			}
		}
	}
	if meter.statsFile == nil {
		file, err := os.OpenFile(meter.statsFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open stats file: %w", err)
		}
		meter.statsFile = file
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal stats record: %w", err)
	}
	data = append(data, '\n')
	if _, err := meter.statsFile.Write(data); err != nil {
		return fmt.Errorf("failed to write stats record: %w", err)
	}
	return nil
}

func (meter *Meter) rotateStatsFile() error {
	if meter.statsFile != nil {
		if err := meter.statsFile.Close(); err != nil {
			return fmt.Errorf("failed to close stats file during rotation: %w", err)
		}
		meter.statsFile = nil
	}
	rotatedPath := fmt.Sprintf("%s-%s", meter.statsFilePath, time.Now().Format("2006-01-02T150405"))
	if err := os.Rename(meter.statsFilePath, rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate stats file: %w", err)
	}
	log.Info().
		Str("from", meter.statsFilePath).
		Str("to", rotatedPath).
		Msg("rotated stats file")
	return nil
}

func (meter *Meter) flushReport() {
	if meter.reporting == nil || meter.currStats.NumComputed == 0 {
		return
	}
	meter.reporting.WriteComputationStatus(meter.currStats)
	meter.currStats = reporting.ComputationStats{}
}

func (meter *Meter) listenForData(ctx context.Context) {
	defer meter.cleanup()
	defer close(meter.done)
	ticker := time.NewTicker(meter.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("meter context cancelled, shutting down")
			meter.flushReport()
			return
		case <-ticker.C:
			meter.flushReport()
		case item := <-meter.incoming:
			if err := meter.writeStats(&item); err != nil {
				log.Error().Err(err).Str("corpus", item.Corpus).Msg("failed to write stats data")
			}
		}
	}
}

func (meter *Meter) cleanup() {
	if meter.statsFile != nil {
		if err := meter.statsFile.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close stats file during cleanup")

		} else {
			log.Info().Str("path", meter.statsFilePath).Msg("closed stats file")
		}
		meter.statsFile = nil
	}
}

// Start implements the service interface
func (meter *Meter) Start(ctx context.Context) {
	if meter.isDummy() {
		log.Info().Msg("starting meter service in dummy mode (no stats will be written)")
		close(meter.done)
		return
	}
	log.Info().
		Str("statsPath", meter.statsFilePath).
		Bool("reporting", meter.reporting != nil).
		Msg("starting meter service")
	go meter.listenForData(ctx)
}

// Stop implements the service interface
func (meter *Meter) Stop(ctx context.Context) error {
	log.Info().Msg("stopping meter service")
	select {
	case <-meter.done:
		log.Info().Msg("meter service stopped gracefully")
		return nil
	case <-ctx.Done():
		log.Warn().Msg("meter service stop timed out")
		return ctx.Err()
	}
}

// NewMeter creates a new meter. An empty `statsPath` means
// no stats file will be written, a nil `rep` disables reporting.
func NewMeter(statsPath string, rep reporting.IReporting) (*Meter, error) {
	if statsPath != "" {
		dir := filepath.Dir(statsPath)
		dirInfo, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("directory does not exist: %s", dir)
			}
			return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
		}
		if !dirInfo.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", dir)
		}
		testFile, err := os.OpenFile(statsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("cannot create or write to stats file %s: %w", statsPath, err)
		}
		testFile.Close()
	}
	return &Meter{
		incoming:      make(chan ComputationRecord, incomingBufferSize),
		statsFilePath:  statsPath,
		reporting:      rep,
		MaxFileSize:    dfltMaxStatsFileSize,
		ReportInterval: dfltReportInterval,
		done:           make(chan struct{}),
	}, nil
}
