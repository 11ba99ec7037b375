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

package worker

import (
	"fmt"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/rs/zerolog/log"
)

const (
	dfltTaskTimeLimitSecs   = 300
	dfltNumWorkers          = 4
	dfltFinishedTasksMaxAge = "1h"
)

type Conf struct {

	// TaskTimeLimitSecs is a wall-clock limit of a single task
	TaskTimeLimitSecs int `json:"taskTimeLimitSecs"`

	// NumWorkers limits number of concurrently running tasks
	NumWorkers int `json:"numWorkers"`

	// FinishedTasksMaxAge specifies how long results of finished
	// tasks can be fetched (e.g. `1h`, `30m`)
	FinishedTasksMaxAge string `json:"finishedTasksMaxAge"`
}

func (conf *Conf) TaskTimeLimit() time.Duration {
	return time.Duration(conf.TaskTimeLimitSecs) * time.Second
}

func (conf *Conf) FinishedTasksMaxAgeDur() time.Duration {
	dur, err := datetime.ParseDuration(conf.FinishedTasksMaxAge)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks the value
	}
	return dur
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `worker` section")
	}
	if conf.TaskTimeLimitSecs == 0 {
		conf.TaskTimeLimitSecs = dfltTaskTimeLimitSecs
		log.Warn().
			Int("value", conf.TaskTimeLimitSecs).
			Msg("worker.taskTimeLimitSecs not specified, using default")
	}
	if conf.NumWorkers == 0 {
		conf.NumWorkers = dfltNumWorkers
		log.Warn().
			Int("value", conf.NumWorkers).
			Msg("worker.numWorkers not specified, using default")
	}
	if conf.FinishedTasksMaxAge == "" {
		conf.FinishedTasksMaxAge = dfltFinishedTasksMaxAge
		log.Warn().
			Str("value", conf.FinishedTasksMaxAge).
			Msg("worker.finishedTasksMaxAge not specified, using default")
	}
	if dur, err := datetime.ParseDuration(conf.FinishedTasksMaxAge); err != nil || dur == 0 {
		return fmt.Errorf("invalid worker.finishedTasksMaxAge `%s`", conf.FinishedTasksMaxAge)
	}
	return nil
}
