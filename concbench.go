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

package main

import (
	"concbench/archiver"
	"concbench/cleaner"
	"concbench/cncdb"
	"concbench/cnf"
	"concbench/colls"
	"concbench/concord"
	"concbench/engine/vert"
	"concbench/fcache"
	"concbench/freqdb"
	"concbench/freqs"
	"concbench/history"
	"concbench/indexer"
	"concbench/indexer/ftclient"
	"concbench/kcache"
	"concbench/pipeline"
	"concbench/pquery"
	"concbench/qpersist"
	"concbench/reporting"
	"concbench/subcorpus"
	"concbench/wordlist"
	"concbench/worker"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
)

const (
	shutdownTimeout  = 10 * time.Second
	freqDBFileSuffix = ".json"
)

var (
	version   string
	buildDate string
	gitCommit string
)

type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

type service interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// application holds all the wired components
type application struct {
	conf        *cnf.Conf
	rdb         *archiver.RedisAdapter
	concArch    cncdb.IConcArchOps
	histDB      cncdb.IQHistArchOps
	dedup       *archiver.Deduplicator
	records     *qpersist.Store
	reporting   reporting.IReporting
	pool        *worker.Pool
	meter       *kcache.Meter
	mat         *concord.Materializer
	colls       *colls.Service
	pquery      *pquery.Service
	idx         *indexer.Indexer
	history     *history.Service
	cleaner     *cleaner.Service
	services    []service
	closeOnExit []func() error
}

func createApplication(ctx context.Context, conf *cnf.Conf) (*application, error) {
	tz := conf.TimezoneLocation()
	app := &application{conf: conf}

	app.rdb = archiver.NewRedisAdapter(ctx, conf.Redis, conf.Archiver)
	app.closeOnExit = append(app.closeOnExit, app.rdb.Close)
	log.Info().Str("redis", app.rdb.String()).Msg("connected to Redis")

	db, err := cncdb.DBOpen(conf.MySQL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.closeOnExit = append(app.closeOnExit, db.Close)
	mysqlConcArch := cncdb.NewMySQLConcArch(db, tz)
	mysqlHist := cncdb.NewMySQLQueryHist(db, tz)
	app.concArch, app.histDB = mysqlConcArch, mysqlHist
	if conf.DryRun {
		log.Warn().Msg("running in dry-run mode, no data will be written to the database")
		app.concArch, app.histDB = cncdb.NewMySQLDryRun(mysqlConcArch, mysqlHist)
	}
	subcDB := cncdb.NewMySQLSubcArch(db, tz)

	app.dedup, err = archiver.NewDeduplicator(app.concArch, conf.Archiver.DDStateFilePath)
	if err != nil {
		return nil, err
	}
	if err := app.dedup.PreloadLastNItems(conf.Archiver.PreloadLastNItems); err != nil {
		log.Error().Err(err).Msg("failed to preload deduplicator items")
	}
	app.closeOnExit = append(app.closeOnExit, app.dedup.OnClose)

	app.records = qpersist.NewStore(conf.QueryPersistence, app.rdb, app.concArch, app.dedup, tz)

	app.reporting, err = reporting.NewReporting(conf.Reporting, tz)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize status reporting: %w", err)
	}

	corpora, err := vert.LoadRegistry(conf.Corpora)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpora registry: %w", err)
	}
	subcService := subcorpus.NewService(conf.Subcorpus, subcDB, corpora, tz)

	app.pool = worker.NewPool(conf.Worker)
	app.meter, err = kcache.NewMeter(conf.Concordance.StatsPath, app.reporting)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize computation meter: %w", err)
	}
	app.mat = concord.NewMaterializer(
		conf.Concordance,
		corpora,
		subcService,
		kcache.NewRedisStatusStore(app.rdb),
		app.pool,
		app.meter,
	)
	freqDB := freqdb.NewStore(
		fcache.New(conf.FreqDBDir, freqDBFileSuffix), corpora, subcService, app.pool)
	freqsService := freqs.NewService(conf.Freqs, app.pool, freqs.NewRedisNormsStore(app.rdb))
	app.colls = colls.NewService(conf.Colls, freqDB, app.pool)

	app.idx, err = indexer.NewIndexer(conf.Indexer, app.histDB, app.records, subcService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fulltext index: %w", err)
	}
	app.closeOnExit = append(app.closeOnExit, app.idx.Close)
	var fulltext history.Fulltext
	var indexSizer history.IndexSizer
	if conf.QueryHistory.FulltextServiceURL != "" {
		fulltext = ftclient.NewClient(
			conf.QueryHistory.FulltextServiceURL, conf.QueryHistory.FulltextTimeout())
		log.Info().
			Str("url", conf.QueryHistory.FulltextServiceURL).
			Msg("using external query history fulltext service")

	} else {
		fulltext = history.NewEmbeddedFulltext(app.idx)
		indexSizer = app.idx
	}
	app.history = history.NewService(
		conf.QueryHistory, app.histDB, app.records, subcService, app.rdb, app.rdb, fulltext)

	pipelineService := pipeline.NewService(app.records, app.history)
	app.pquery = pquery.NewService(conf.Pquery, app.records, app.history, app.mat, freqsService)
	wlistService := wordlist.NewService(conf.Wordlist, corpora, freqDB, app.records, app.history)

	arch := archiver.NewArchKeeper(
		app.rdb, app.records, app.concArch, app.dedup, app.reporting, tz, conf.Archiver)
	indexerService := indexer.NewService(app.idx, app.rdb, conf.QueryHistory.DeletedItemsChannel)
	arch.SetHistoryListener(indexerService)

	app.cleaner = cleaner.NewService(
		app.records,
		map[string]cleaner.CacheSweeper{
			"concordance": app.mat,
			"colls":       app.colls,
			"pquery":      app.pquery,
		},
		app.rdb,
		app.reporting,
		conf.Cleaner,
		tz,
	)

	api := &apiServer{
		conf:      conf,
		arch:      arch,
		rdb:       app.rdb,
		corpora:   corpora,
		pipeline:  pipelineService,
		mat:       app.mat,
		freqs:     freqsService,
		colls:     app.colls,
		pquery:    app.pquery,
		wordlist:  wlistService,
		subcorpus: subcService,
		history:   app.history,
		idx:       app.idx,
	}

	app.services = []service{
		app.reporting,
		app.pool,
		app.meter,
		arch,
		indexerService,
		history.NewGarbageCollector(app.history, indexSizer, app.reporting, conf.QueryHistory),
		app.cleaner,
		api,
	}
	return app, nil
}

func (app *application) close() {
	for i := len(app.closeOnExit) - 1; i >= 0; i-- {
		if err := app.closeOnExit[i](); err != nil {
			log.Error().Err(err).Msg("failed to close resource")
		}
	}
}

func runAndBlock(app *application) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, s := range app.services {
		s.Start(ctx)
	}
	<-ctx.Done()
	log.Warn().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(app.services) - 1; i >= 0; i-- {
		if err := app.services[i].Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to stop service")
		}
	}
	app.close()
}

func runCleanup(app *application) {
	defer app.close()
	stats, err := app.cleaner.RunOnce()
	if err != nil {
		log.Fatal().Err(err).Msg("cleanup failed")
	}
	log.Info().
		Int("numDeletedRecords", stats.NumDeletedRecords).
		Int("numDeletedFiles", stats.NumDeletedFiles).
		Int("numErrors", stats.NumErrors).
		Msg("cleanup finished")
}

func runReindex(ctx context.Context, app *application) {
	defer app.close()
	initializer := history.NewDataInitializer(
		app.histDB, app.rdb, app.idx, app.conf.QueryHistory, app.conf.TimezoneLocation())
	stats, err := initializer.Run(ctx, app.conf.Indexer.ReindexChunkSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to reindex query history")
	}
	log.Info().
		Int("numUsers", stats.NumUsers).
		Int("numIndexed", stats.NumIndexed).
		Bool("finished", stats.Finished).
		Msg("query history reindex finished")
}

func cleanVersionInfo(v string) string {
	return strings.TrimLeft(strings.Trim(v, "'"), "v")
}

func main() {
	version := VersionInfo{
		Version:   cleanVersionInfo(version),
		BuildDate: cleanVersionInfo(buildDate),
		GitCommit: cleanVersionInfo(gitCommit),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Concbench - concordance workbench backend\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n\t%s [options] start [config.json]\n\t", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "%s [options] cleanup [config.json]\n\t", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "%s [options] reindex [config.json]\n\t", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "%s [options] version\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	action := flag.Arg(0)
	if action == "version" {
		fmt.Printf("concbench %s\nbuild date: %s\nlast commit: %s\n", version.Version, version.BuildDate, version.GitCommit)
		return
	}
	conf := cnf.LoadConfig(flag.Arg(1))
	logging.SetupLogging(conf.LogFile, conf.LogLevel)
	log.Info().Str("config", conf.SrcPath()).Msg("Starting Concbench")
	cnf.ValidateAndDefaults(conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, err := createApplication(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	switch action {
	case "start":
		runAndBlock(app)
	case "cleanup":
		runCleanup(app)
	case "reindex":
		runReindex(ctx, app)
	default:
		log.Fatal().Msgf("Unknown action %s", action)
	}
}
