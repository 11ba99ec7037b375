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


package cleaner

import (
	"concbench/reporting"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memStatus map[string]string

func (ms memStatus) Get(k string) (string, error) {
	return ms[k], nil
}

func (ms memStatus) Set(k string, v any, ttl time.Duration) error {
	ms[k] = fmt.Sprint(v)
	return nil
}

type fakeArchive struct {
	numCalls int
}

func (fa *fakeArchive) ClearOldArchiveRecords() (int64, error) {
	fa.numCalls++
	return 3, nil
}

type fakeSweeper struct {
	numRemoved int
	err        error
}

func (fs *fakeSweeper) SweepCache() (int, error) {
	return fs.numRemoved, fs.err
}

func prepareCleaner() (*Service, *fakeArchive, memStatus, *reporting.DummyWriter) {
	conf := &Conf{}
	if err := conf.ValidateAndDefaults(31); err != nil {
		panic(err)
	}
	archive := &fakeArchive{}
	status := make(memStatus)
	writer := &reporting.DummyWriter{}
	svc := NewService(
		archive,
		map[string]CacheSweeper{
			"concordances": &fakeSweeper{numRemoved: 2},
			"collocations": &fakeSweeper{numRemoved: 1, err: fmt.Errorf("disk failure")},
		},
		status,
		writer,
		conf,
		time.UTC,
	)
	return svc, archive, status, writer
}

func TestPerformCleanup(t *testing.T) {
	svc, archive, status, writer := prepareCleaner()
	stats, err := svc.performCleanup(false)
	assert.NoError(t, err)
	assert.Equal(t, reporting.CleanupStats{NumDeletedRecords: 3, NumDeletedFiles: 3, NumErrors: 1}, stats)
	assert.Equal(t, stats, writer.LastCleanup)
	assert.NotEmpty(t, status[dfltStatusKey])
	assert.Equal(t, 1, archive.numCalls)

	// a recent cleanup is not repeated unless forced
	_, err = svc.performCleanup(false)
	assert.NoError(t, err)
	assert.Equal(t, 1, archive.numCalls)
	_, err = svc.RunOnce()
	assert.NoError(t, err)
	assert.Equal(t, 2, archive.numCalls)
}

func TestSkipCaches(t *testing.T) {
	svc, _, _, _ := prepareCleaner()
	svc.conf.SkipCaches = []string{"collocations"}
	stats, err := svc.RunOnce()
	assert.NoError(t, err)
	assert.Equal(t, reporting.CleanupStats{NumDeletedRecords: 3, NumDeletedFiles: 2}, stats)

	conf := &Conf{SkipCaches: []string{" "}}
	assert.Error(t, conf.ValidateAndDefaults(31))
}

func TestInvalidStatus(t *testing.T) {
	svc, _, status, _ := prepareCleaner()
	status[dfltStatusKey] = "foo"
	_, err := svc.RunOnce()
	assert.Error(t, err)
}

func TestConfTuning(t *testing.T) {
	conf := &Conf{CheckIntervalSecs: 30}
	assert.NoError(t, conf.ValidateAndDefaults(31))
	assert.NotEqual(t, 31, conf.CheckIntervalSecs)
	assert.Equal(t, dfltStatusKey, conf.StatusKey)

	conf = &Conf{CheckIntervalSecs: 5}
	assert.Error(t, conf.ValidateAndDefaults(31))
}
