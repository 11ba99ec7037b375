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

package cnf

import (
	"concbench/archiver"
	"concbench/cleaner"
	"concbench/cncdb"
	"concbench/colls"
	"concbench/concord"
	"concbench/engine/vert"
	"concbench/freqs"
	"concbench/history"
	"concbench/indexer"
	"concbench/pquery"
	"concbench/qpersist"
	"concbench/reporting"
	"concbench/subcorpus"
	"concbench/wordlist"
	"concbench/worker"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/czcorpus/cnc-gokit/logging"
	"github.com/rs/zerolog/log"
	"github.com/tailscale/hujson"
)

const (
	dfltServerWriteTimeoutSecs = 30
	dfltServerReadTimeoutSecs  = 10
	dfltListenPort             = 8080
	dfltTimeZone               = "Europe/Prague"
	dfltAnonymousUserID        = 0
)

// Conf is a root configuration of the application
type Conf struct {
	srcPath                string
	ListenAddress          string           `json:"listenAddress"`
	ListenPort             int              `json:"listenPort"`
	ServerReadTimeoutSecs  int              `json:"serverReadTimeoutSecs"`
	ServerWriteTimeoutSecs int              `json:"serverWriteTimeoutSecs"`
	LogFile                string           `json:"logFile"`
	LogLevel               logging.LogLevel `json:"logLevel"`
	TimeZone               string           `json:"timeZone"`

	// AnonymousUserID identifies requests of users who are not
	// logged in. Such users cannot own named items.
	AnonymousUserID int `json:"anonymousUserId"`

	// DryRun makes all the writes to the MySQL archive and query
	// history to be only logged
	DryRun bool `json:"dryRun"`

	// FreqDBDir is a directory for precalculated frequency
	// databases (used by wordlists and collocations)
	FreqDBDir string `json:"freqDbDir"`

	// MetricsEnabled exposes Prometheus metrics at /metrics
	MetricsEnabled bool `json:"metricsEnabled"`

	Redis            *archiver.RedisConf `json:"redis"`
	Archiver         *archiver.Conf      `json:"archiver"`
	MySQL            *cncdb.DBConf       `json:"db"`
	QueryPersistence *qpersist.Conf      `json:"queryPersistence"`
	Corpora          *vert.Conf          `json:"corpora"`
	Concordance      *concord.Conf       `json:"concordance"`
	Worker           *worker.Conf        `json:"worker"`
	Subcorpus        *subcorpus.Conf     `json:"subcorpus"`
	Freqs            *freqs.Conf         `json:"freqs"`
	Colls            *colls.Conf         `json:"colls"`
	Pquery           *pquery.Conf        `json:"pquery"`
	Wordlist         *wordlist.Conf      `json:"wordlist"`
	QueryHistory     *history.Conf       `json:"queryHistory"`
	Indexer          *indexer.Conf       `json:"indexer"`
	Cleaner          *cleaner.Conf       `json:"cleaner"`
	Reporting        *reporting.Conf     `json:"reporting"`
}

func (conf *Conf) TimezoneLocation() *time.Location {
	// we can ignore the error here as we always call c.Validate()
	// first (which also tries to load the location and report possible
	// error)
	loc, _ := time.LoadLocation(conf.TimeZone)
	return loc
}

func (conf *Conf) SrcPath() string {
	return conf.srcPath
}

// LoadConfig reads a JSON configuration (comments and trailing
// commas are allowed). Any error terminates the application.
func LoadConfig(path string) *Conf {
	if path == "" {
		log.Fatal().Msg("Cannot load config - path not specified")
	}
	rawData, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	conf, err := parseConfig(rawData)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	conf.srcPath = path
	return conf
}

func parseConfig(rawData []byte) (*Conf, error) {
	stdData, err := hujson.Standardize(rawData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	var conf Conf
	if err := json.Unmarshal(stdData, &conf); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &conf, nil
}

type validable interface {
	ValidateAndDefaults() error
}

func validate(conf *Conf) error {
	if conf.ListenPort == 0 {
		conf.ListenPort = dfltListenPort
		log.Warn().Int("value", conf.ListenPort).Msg("listenPort not specified, using default")
	}
	if conf.ServerWriteTimeoutSecs == 0 {
		conf.ServerWriteTimeoutSecs = dfltServerWriteTimeoutSecs
		log.Warn().
			Int("value", conf.ServerWriteTimeoutSecs).
			Msg("serverWriteTimeoutSecs not specified, using default")
	}
	if conf.ServerReadTimeoutSecs == 0 {
		conf.ServerReadTimeoutSecs = dfltServerReadTimeoutSecs
		log.Warn().
			Int("value", conf.ServerReadTimeoutSecs).
			Msg("serverReadTimeoutSecs not specified, using default")
	}
	if conf.TimeZone == "" {
		conf.TimeZone = dfltTimeZone
		log.Warn().Str("timeZone", conf.TimeZone).Msg("time zone not specified, using default")
	}
	if _, err := time.LoadLocation(conf.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone `%s`: %w", conf.TimeZone, err)
	}
	if conf.FreqDBDir == "" {
		return fmt.Errorf("missing freqDbDir")
	}
	if isDir, err := fs.IsDir(conf.FreqDBDir); err != nil || !isDir {
		return fmt.Errorf("freqDbDir `%s` is not a directory", conf.FreqDBDir)
	}
	if conf.QueryPersistence == nil {
		return fmt.Errorf("missing `queryPersistence` section")
	}
	if conf.QueryPersistence.AnonymousUserID == dfltAnonymousUserID {
		conf.QueryPersistence.AnonymousUserID = conf.AnonymousUserID
	}
	if conf.QueryPersistence.AnonymousUserID != conf.AnonymousUserID {
		return fmt.Errorf("queryPersistence.anonymousUserId does not match anonymousUserId")
	}
	sections := []struct {
		name string
		v    validable
	}{
		{"redis", conf.Redis},
		{"archiver", conf.Archiver},
		{"db", conf.MySQL},
		{"queryPersistence", conf.QueryPersistence},
		{"corpora", conf.Corpora},
		{"concordance", conf.Concordance},
		{"worker", conf.Worker},
		{"subcorpus", conf.Subcorpus},
		{"freqs", conf.Freqs},
		{"colls", conf.Colls},
		{"pquery", conf.Pquery},
		{"wordlist", conf.Wordlist},
		{"queryHistory", conf.QueryHistory},
		{"indexer", conf.Indexer},
	}
	for _, sect := range sections {
		if err := sect.v.ValidateAndDefaults(); err != nil {
			return fmt.Errorf("invalid section `%s`: %w", sect.name, err)
		}
	}
	if conf.Cleaner == nil {
		conf.Cleaner = &cleaner.Conf{}
	}
	if err := conf.Cleaner.ValidateAndDefaults(conf.Archiver.CheckIntervalSecs); err != nil {
		return fmt.Errorf("invalid section `cleaner`: %w", err)
	}
	return nil
}

// ValidateAndDefaults checks all the configuration sections and
// sets default values where possible. Invalid configuration
// terminates the application.
func ValidateAndDefaults(conf *Conf) {
	if err := validate(conf); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
}
