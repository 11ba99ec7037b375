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
	"time"

	"github.com/czcorpus/hltscl"
	"github.com/rs/zerolog/log"
)

/*
Expected tables:

create table concbench_operations_stats (
  "time" timestamp with time zone NOT NULL,
  num_fetched int,
  num_errors int,
  num_duplicates int,
  num_inserted int,
  num_history int
);

select create_hypertable('concbench_operations_stats', 'time');

create table concbench_cleanup_stats (
  "time" timestamp with time zone NOT NULL,
  num_deleted_records int,
  num_deleted_files int,
  num_errors int
);

select create_hypertable('concbench_cleanup_stats', 'time');

create table concbench_qhistory_stats (
  "time" timestamp with time zone NOT NULL,
  index_size int,
  sql_table_size int,
  num_deleted int,
  num_errors int
);

select create_hypertable('concbench_qhistory_stats', 'time');

create table concbench_computation_stats (
  "time" timestamp with time zone NOT NULL,
  num_computed int,
  avg_time_proc_ms int,
  max_time_proc_ms int
);

select create_hypertable('concbench_computation_stats', 'time');
*/

type Conf struct {
	DB       *hltscl.PgConf `json:"db"`
	Disabled bool           `json:"disabled"`
}

type tableChan struct {
	writer *hltscl.TableWriter
	dataCh chan<- hltscl.Entry
	errCh  <-chan hltscl.WriteError
}

type StatusWriter struct {
	ops      tableChan
	cleanup  tableChan
	qhistory tableChan
	comp     tableChan
	location *time.Location
}

func (job *StatusWriter) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close StatusWriter")
				return
			case err := <-job.ops.errCh:
				job.logWriteError(err)
			case err := <-job.cleanup.errCh:
				job.logWriteError(err)
			case err := <-job.qhistory.errCh:
				job.logWriteError(err)
			case err := <-job.comp.errCh:
				job.logWriteError(err)
			}
		}
	}()
}

func (job *StatusWriter) logWriteError(err hltscl.WriteError) {
	log.Error().
		Err(err.Err).
		Str("entry", err.Entry.String()).
		Msg("error writing data to TimescaleDB")
}

func (job *StatusWriter) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping StatusWriter")
	return nil
}

func (job *StatusWriter) WriteOperationsStatus(item OpStats) {
	job.ops.dataCh <- *job.ops.writer.NewEntry(time.Now().In(job.location)).
		Int("num_duplicates", item.NumDuplicates).
		Int("num_errors", item.NumErrors).
		Int("num_fetched", item.NumFetched).
		Int("num_inserted", item.NumInserted).
		Int("num_history", item.NumHistory)
}

func (job *StatusWriter) WriteCleanupStatus(item CleanupStats) {
	job.cleanup.dataCh <- *job.cleanup.writer.NewEntry(time.Now().In(job.location)).
		Int("num_deleted_records", item.NumDeletedRecords).
		Int("num_deleted_files", item.NumDeletedFiles).
		Int("num_errors", item.NumErrors)
}

func (job *StatusWriter) WriteQueryHistoryDeletionStatus(item QueryHistoryDelStats) {
	job.qhistory.dataCh <- *job.qhistory.writer.NewEntry(time.Now().In(job.location)).
		Int("index_size", int(item.IndexSize)).
		Int("sql_table_size", int(item.SQLTableSize)).
		Int("num_deleted", item.NumDeleted).
		Int("num_errors", item.NumErrors)
}

func (job *StatusWriter) WriteComputationStatus(item ComputationStats) {
	job.comp.dataCh <- *job.comp.writer.NewEntry(time.Now().In(job.location)).
		Int("num_computed", item.NumComputed).
		Int("avg_time_proc_ms", int(item.AvgTimeProc*1000)).
		Int("max_time_proc_ms", int(item.MaxTimeProc*1000))
}

func NewStatusWriter(conf hltscl.PgConf, tz *time.Location) (*StatusWriter, error) {
	conn, err := hltscl.CreatePool(conf)
	if err != nil {
		return nil, err
	}
	mk := func(table string) tableChan {
		twriter := hltscl.NewTableWriter(conn, table, "time", tz)
		dataCh, errCh := twriter.Activate()
		return tableChan{writer: twriter, dataCh: dataCh, errCh: errCh}
	}
	return &StatusWriter{
		ops:      mk("concbench_operations_stats"),
		cleanup:  mk("concbench_cleanup_stats"),
		qhistory: mk("concbench_qhistory_stats"),
		comp:     mk("concbench_computation_stats"),
		location: tz,
	}, nil
}

// NewReporting creates a TimescaleDB writer or, in case the reporting
// is disabled, a logging-only dummy writer.
func NewReporting(conf *Conf, tz *time.Location) (IReporting, error) {
	if conf == nil || conf.Disabled || conf.DB == nil {
		log.Warn().Msg("TimescaleDB reporting not configured, using a dummy writer")
		return &DummyWriter{}, nil
	}
	return NewStatusWriter(*conf.DB, tz)
}
