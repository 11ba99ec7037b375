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
	"concbench/cnf"
	"concbench/colls"
	"concbench/concord"
	"concbench/engine"
	"concbench/freqs"
	"concbench/history"
	"concbench/indexer"
	"concbench/pipeline"
	"concbench/pquery"
	"concbench/subcorpus"
	"concbench/texttypes"
	"concbench/wordlist"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type apiServer struct {
	server    *http.Server
	conf      *cnf.Conf
	arch      *archiver.ArchKeeper
	rdb       *archiver.RedisAdapter
	corpora   engine.Provider
	pipeline  *pipeline.Service
	mat       *concord.Materializer
	freqs     *freqs.Service
	colls     *colls.Service
	pquery    *pquery.Service
	wordlist  *wordlist.Service
	subcorpus *subcorpus.Service
	history   *history.Service
	idx       *indexer.Indexer
}

func (api *apiServer) Start(ctx context.Context) {
	if !api.conf.LogLevel.IsDebugMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.GinMiddleware())
	engine.NoMethod(uniresp.NoMethodHandler)
	engine.NoRoute(uniresp.NotFoundHandler)

	archHandler := NewActions(api.arch, api.rdb, api.pipeline)

	engine.GET("/overview", archHandler.Overview)
	engine.GET("/record/:id", archHandler.GetRecord)
	engine.GET("/validate/:id", archHandler.Validate)
	engine.GET("/conc-cache/:id", archHandler.ConcCache)
	engine.POST("/dedup-reset", archHandler.DedupReset)

	concHandler := pipeline.NewActions(api.pipeline, api.mat)

	engine.POST("/query_submit", concHandler.QuerySubmit)
	engine.POST("/filter", concHandler.Filter)
	engine.POST("/sort", concHandler.Sort)
	engine.POST("/mlsort", concHandler.MLSort)
	engine.POST("/sample", concHandler.Sample)
	engine.POST("/shuffle", concHandler.Shuffle)
	engine.POST("/lgroup", concHandler.Lgroup)
	engine.GET("/view", concHandler.View)
	engine.GET("/concdesc_json", concHandler.ConcDesc)

	freqsHandler := freqs.NewActions(api.freqs, concHandler)

	engine.GET("/freqs", freqsHandler.Freqs)
	engine.GET("/freqml", freqsHandler.FreqML)
	engine.GET("/freqct", freqsHandler.FreqCT)

	collsHandler := colls.NewActions(api.colls, concHandler)
	engine.GET("/collx", collsHandler.Colls)

	pqueryHandler := pquery.NewActions(api.pquery)
	engine.POST("/pquery_submit", pqueryHandler.Submit)
	engine.GET("/pquery_result", pqueryHandler.Result)

	wlistHandler := wordlist.NewActions(api.wordlist)
	engine.POST("/wordlist/submit", wlistHandler.SubmitWordlist)
	engine.GET("/wordlist/result", wlistHandler.WordlistResult)
	engine.POST("/keywords/submit", wlistHandler.SubmitKeywords)
	engine.GET("/keywords/result", wlistHandler.KeywordsResult)

	ttHandler := texttypes.NewActions(api.corpora)
	engine.GET("/text_types/:corpname", ttHandler.Values)
	engine.POST("/text_types/:corpname/compile", ttHandler.Compile)

	subcHandler := subcorpus.NewActions(api.subcorpus, api.conf.AnonymousUserID)
	engine.POST("/subcorpora/create", subcHandler.Create)
	engine.POST("/subcorpora/draft/:id", subcHandler.UpdateDraft)
	engine.POST("/subcorpora/archive/:id", subcHandler.Archive)
	engine.POST("/subcorpora/restore/:id", subcHandler.Restore)
	engine.POST("/subcorpora/delete/:id", subcHandler.Delete)
	engine.POST("/subcorpora/preflight/:corpname", subcHandler.CreatePreflight)
	engine.GET("/subcorpora/list", subcHandler.List)
	engine.GET("/subcorpora/info/:id", subcHandler.GetInfo)
	engine.GET("/subcorpora/by-name", subcHandler.GetInfoByName)
	engine.GET("/subcorpora/query/:id", subcHandler.GetQuery)
	engine.GET("/subcorpora/names", subcHandler.GetNames)

	histHandler := history.NewActions(api.history, api.conf.AnonymousUserID)
	engine.GET("/query-history", histHandler.List)
	engine.POST("/query-history/search", histHandler.Search)
	engine.GET("/query-history/fields", histHandler.FulltextFields)
	engine.PUT("/query-history/:queryId/:created/name", histHandler.MakePersistent)
	engine.DELETE("/query-history/:queryId/:created/name", histHandler.MakeTransient)
	engine.DELETE("/query-history/:queryId/:created", histHandler.Delete)

	indexerHandler := indexer.NewActions(api.idx)
	engine.GET("/indexer/build/:userId", indexerHandler.IndexUserRecords)
	engine.POST("/user-query-history/:userId", indexerHandler.Search)
	engine.POST("/user-query-history/:userId/:queryId/:created", indexerHandler.SetName)
	engine.DELETE("/user-query-history/:userId/:queryId/:created", indexerHandler.Delete)

	if api.conf.MetricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	log.Info().Msgf("starting to listen at %s:%d", api.conf.ListenAddress, api.conf.ListenPort)
	api.server = &http.Server{
		Handler:      engine,
		Addr:         fmt.Sprintf("%s:%d", api.conf.ListenAddress, api.conf.ListenPort),
		WriteTimeout: time.Duration(api.conf.ServerWriteTimeoutSecs) * time.Second,
		ReadTimeout:  time.Duration(api.conf.ServerReadTimeoutSecs) * time.Second,
	}

	go func() {
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()
}

func (s *apiServer) Stop(ctx context.Context) error {
	log.Warn().Msg("shutting down http api server")
	return s.server.Shutdown(ctx)
}
