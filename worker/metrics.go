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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concbench_worker_tasks_total",
		Help: "Total finished worker tasks by task name and result",
	}, []string{"task", "result"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concbench_worker_task_duration_seconds",
		Help:    "Worker task duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"task"})

	tasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concbench_worker_tasks_running",
		Help: "Number of currently running worker tasks",
	})

	tasksWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concbench_worker_tasks_waiting",
		Help: "Number of tasks waiting for a free worker",
	})
)
