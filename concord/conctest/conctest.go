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

// Package conctest provides small corpora and a ready-to-use
// materializer for tests of packages working with concordances.
package conctest

import (
	"concbench/concord"
	"concbench/engine/vert"
	"concbench/kcache"
	"concbench/worker"
	"context"
	"strings"
	"testing"
	"time"
)

// C1Vertical is a small monolingual corpus. Token positions:
//
//	0 The, 1 dog, 2 runs, 3 ., 4 A, 5 black, 6 dog, 7 barks, 8 at, 9 the,
//	10 cat, 11 Dogs, 12 run, 13 fast, 14 the, 15 dog, 16 and, 17 the,
//	18 cat, 19 sleep
const C1Vertical = `<doc id="d1" genre="fiction" title="Dog stories">
<s>
The	the	DT
dog	dog	NN
runs	run	VBZ
.	.	PUNCT
</s>
<s>
A	a	DT
black	black	JJ
dog	dog	NN
barks	bark	VBZ
at	at	IN
the	the	DT
cat	cat	NN
</s>
</doc>
<doc id="d2" genre="news" title="Daily news">
<s>
Dogs	dog	NNS
run	run	VBP
fast	fast	RB
</s>
<s>
the	the	DT
dog	dog	NN
and	and	CC
the	the	DT
cat	cat	NN
sleep	sleep	VBP
</s>
</doc>
`

// EnVertical and CsVertical form a parallel corpus aligned by sentences.
// The third English sentence has no Czech counterpart.
const EnVertical = `<doc id="p1">
<s>
The	the
dog	dog
runs	run
</s>
<s>
A	a
cat	cat
sleeps	sleep
</s>
<s>
Birds	bird
fly	fly
</s>
</doc>
`

const CsVertical = `<doc id="p1">
<s>
Pes	pes
běží	běžet
</s>
<s>
Kočka	kočka
spí	spát
</s>
</doc>
`

func mustLoad(t testing.TB, conf *vert.CorpusConf, src string) *vert.Corpus {
	corp, err := vert.ReadVertical(conf, strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to load test corpus %s: %s", conf.Name, err)
	}
	return corp
}

// NewRegistry creates a registry with corpora `c1`, `en` and `cs`
func NewRegistry(t testing.TB) *vert.Registry {
	reg := vert.NewEmptyRegistry()
	reg.Add(mustLoad(t, &vert.CorpusConf{
		Name:         "c1",
		PosAttrs:     []string{"word", "lemma", "tag"},
		BibIDAttr:    "doc.id",
		BibLabelAttr: "doc.title",
	}, C1Vertical))
	reg.Add(mustLoad(t, &vert.CorpusConf{
		Name:     "en",
		PosAttrs: []string{"word", "lemma"},
		Aligned:  []string{"cs"},
	}, EnVertical))
	reg.Add(mustLoad(t, &vert.CorpusConf{
		Name:     "cs",
		PosAttrs: []string{"word", "lemma"},
		Aligned:  []string{"en"},
	}, CsVertical))
	return reg
}

// NewPool creates a worker pool stopped automatically at the end of a test
func NewPool(t testing.TB) *worker.Pool {
	conf := &worker.Conf{TaskTimeLimitSecs: 30, NumWorkers: 2, FinishedTasksMaxAge: "1h"}
	pool := worker.NewPool(conf)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Stop(ctx)
	})
	return pool
}

// NewMaterializer creates a materializer over the test registry with
// an in-memory status store and a temporary cache directory
func NewMaterializer(t testing.TB, subcorpora concord.SubcorpusResolver) *concord.Materializer {
	conf := &concord.Conf{CacheDir: t.TempDir()}
	if err := conf.ValidateAndDefaults(); err != nil {
		t.Fatal(err)
	}
	return concord.NewMaterializer(
		conf, NewRegistry(t), subcorpora, kcache.NewMemStatusStore(), NewPool(t), nil)
}

// MustGetConc synchronously calculates a concordance of the `c1` corpus
func MustGetConc(t testing.TB, mat *concord.Materializer, q ...string) *concord.Concordance {
	conc, err := mat.GetConc(context.Background(), concord.Args{Corpora: []string{"c1"}, Q: q}, false)
	if err != nil {
		t.Fatalf("failed to get concordance %v: %s", q, err)
	}
	return conc
}
