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

package concord

import (
	"concbench/engine"
	"concbench/kcache"
	"concbench/worker"
	"context"
	"fmt"
	"sync"
)

// Sizes describes size properties of a concordance
type Sizes struct {
	ConcSize int `json:"concsize"`

	// SampledSize is non-zero only for sampled concordances
	SampledSize int `json:"sampled_size"`

	// FullSize is an estimated size of the concordance without sampling
	FullSize    int     `json:"fullsize"`
	RelConcSize float64 `json:"relconcsize"`
	ARF         float64 `json:"arf"`
	Finished    bool    `json:"finished"`
}

// Concordance is a handle of a (possibly still computed) concordance
type Concordance struct {
	args   Args
	key    kcache.EntryKey
	comp   *computation
	mat    *Materializer
	future *worker.Future

	mu  sync.Mutex
	res *result
	err error
}

func (c *Concordance) Args() Args {
	return c.args
}

func (c *Concordance) Corpus() engine.Corpus {
	return c.comp.primary
}

// AlignedCorpus returns a handle of an aligned corpus of the concordance
func (c *Concordance) AlignedCorpus(name string) (engine.Corpus, error) {
	return c.comp.corpus(name)
}

func (c *Concordance) acceptFuture(value any, err error) {
	if err != nil {
		c.err = err
		return
	}
	res, ok := value.(*result)
	if !ok {
		c.err = fmt.Errorf("unexpected concordance task result type %T", value)
		return
	}
	c.res = res
}

// Finished tells whether the concordance is completely calculated
// (either successfully or with an error)
func (c *Concordance) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res != nil || c.err != nil {
		return true
	}
	if c.future != nil && c.future.Done() {
		c.acceptFuture(c.future.Wait(context.Background()))
		return true
	}
	return false
}

// Wait blocks until the concordance is ready. Cancelling the context
// does not stop the computation.
func (c *Concordance) Wait(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.res != nil || c.err != nil {
		return c.err
	}
	if c.future == nil {
		return fmt.Errorf("concordance has neither a result nor a running task")
	}
	value, err := c.future.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}
	c.acceptFuture(value, err)
	return c.err
}

// Err returns a computation error of a finished concordance
func (c *Concordance) Err() error {
	c.Finished()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// ready returns a result of a successfully finished concordance
func (c *Concordance) ready() (*result, bool) {
	if !c.Finished() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.res, c.err == nil
}

// Size returns the number of lines. For unfinished concordances,
// a lower bound is returned.
func (c *Concordance) Size() int {
	if res, ok := c.ready(); ok {
		return len(res.Lines)
	}
	return 0
}

// Sizes returns size information (including relative frequency and ARF).
// For unfinished concordances, only the Finished flag is meaningful.
func (c *Concordance) Sizes() Sizes {
	res, ok := c.ready()
	if !ok {
		return Sizes{Finished: c.Finished()}
	}
	ans := Sizes{
		ConcSize: len(res.Lines),
		FullSize: res.FullSize,
		Finished: true,
	}
	if res.Sampled {
		ans.SampledSize = len(res.Lines)
	}
	if entry, err := c.mat.status.Get(c.key); err == nil && entry.Finished {
		ans.RelConcSize = entry.RelConcSize
		ans.ARF = entry.Arf
	}
	return ans
}

// Lines returns all the lines of a finished concordance
func (c *Concordance) Lines() []Line {
	if res, ok := c.ready(); ok {
		return res.Lines
	}
	return []Line{}
}

// ActiveCorpus returns the corpus KWICs refer to
func (c *Concordance) ActiveCorpus() string {
	if res, ok := c.ready(); ok {
		return res.ActiveCorpus
	}
	return c.args.Corpora[0]
}

// TaskID returns ID of a worker task calculating the concordance
// (empty for concordances loaded from the cache)
func (c *Concordance) TaskID() string {
	if c.future == nil {
		return ""
	}
	return c.future.ID()
}
