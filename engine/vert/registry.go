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

package vert

import (
	"concbench/engine"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/czcorpus/cnc-gokit/fs"
	"github.com/rs/zerolog/log"
	"github.com/tailscale/hujson"
)

const (
	dfltAlignStruct    = "s"
	dfltNonWordsRegexp = `^[\p{P}\p{S}\d]+$`
)

// CorpusConf describes a corpus. Registry files use the JSON format
// (comments are allowed).
type CorpusConf struct {
	Name         string   `json:"name"`
	VerticalPath string   `json:"verticalPath"`
	PosAttrs     []string `json:"posAttrs"`
	DefaultAttr  string   `json:"defaultAttr"`
	AlignStruct  string   `json:"alignStruct"`

	// Aligned lists corpora aligned with this one
	Aligned        []string `json:"aligned"`
	NonWordsRegexp string   `json:"nonWordsRegexp"`
	BibIDAttr      string   `json:"bibIdAttr"`
	BibLabelAttr   string   `json:"bibLabelAttr"`
}

func (conf *CorpusConf) ValidateAndDefaults() error {
	if conf.Name == "" {
		return fmt.Errorf("missing corpus name")
	}
	if len(conf.PosAttrs) == 0 {
		return fmt.Errorf("corpus %s: no positional attributes defined", conf.Name)
	}
	if conf.DefaultAttr == "" {
		conf.DefaultAttr = conf.PosAttrs[0]
	}
	if conf.AlignStruct == "" {
		conf.AlignStruct = dfltAlignStruct
	}
	if conf.NonWordsRegexp == "" {
		conf.NonWordsRegexp = dfltNonWordsRegexp
	}
	return nil
}

type Conf struct {

	// RegistryDir contains one JSON file per corpus
	RegistryDir string `json:"registryDir"`
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `corpora` section")
	}
	isDir, err := fs.IsDir(conf.RegistryDir)
	if err != nil {
		return fmt.Errorf("failed to validate corpora.registryDir: %w", err)
	}
	if !isDir {
		return fmt.Errorf("corpora.registryDir `%s` is not a directory", conf.RegistryDir)
	}
	return nil
}

// Registry loads corpora lazily and keeps them loaded
type Registry struct {
	confs   map[string]*CorpusConf
	corpora map[string]*Corpus
	mu      sync.Mutex
}

func (reg *Registry) CorporaNames() []string {
	ans := make([]string, 0, len(reg.confs))
	for k := range reg.confs {
		ans = append(ans, k)
	}
	sort.Strings(ans)
	return ans
}

// AlignedCorpora returns corpora aligned with a specified one
func (reg *Registry) AlignedCorpora(corpname string) []string {
	conf, ok := reg.confs[corpname]
	if !ok {
		return []string{}
	}
	return conf.Aligned
}

func (reg *Registry) Corpus(name string) (engine.Corpus, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if corp, ok := reg.corpora[name]; ok {
		return corp, nil
	}
	conf, ok := reg.confs[name]
	if !ok {
		return nil, fmt.Errorf("corpus %s: %w", name, engine.ErrUnknownCorpus)
	}
	f, err := os.Open(conf.VerticalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", name, err)
	}
	defer f.Close()
	corp, err := ReadVertical(conf, f)
	if err != nil {
		return nil, err
	}
	reg.corpora[name] = corp
	log.Info().Str("corpus", name).Int("size", corp.Size()).Msg("loaded corpus")
	return corp, nil
}

// Add registers an already loaded corpus
func (reg *Registry) Add(corp *Corpus) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.confs[corp.Name()] = corp.conf
	reg.corpora[corp.Name()] = corp
}

func NewEmptyRegistry() *Registry {
	return &Registry{
		confs:   make(map[string]*CorpusConf),
		corpora: make(map[string]*Corpus),
	}
}

// LoadRegistry reads all the corpora configurations from a registry
// directory. Vertical paths are resolved relative to the directory.
func LoadRegistry(conf *Conf) (*Registry, error) {
	files, err := filepath.Glob(filepath.Join(conf.RegistryDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to load corpora registry: %w", err)
	}
	ans := NewEmptyRegistry()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load corpora registry: %w", err)
		}
		data, err = hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse registry file %s: %w", file, err)
		}
		var corpConf CorpusConf
		if err := json.Unmarshal(data, &corpConf); err != nil {
			return nil, fmt.Errorf("failed to parse registry file %s: %w", file, err)
		}
		if err := corpConf.ValidateAndDefaults(); err != nil {
			return nil, fmt.Errorf("invalid registry file %s: %w", file, err)
		}
		if !filepath.IsAbs(corpConf.VerticalPath) {
			corpConf.VerticalPath = filepath.Join(conf.RegistryDir, corpConf.VerticalPath)
		}
		ans.confs[corpConf.Name] = &corpConf
	}
	log.Info().Strs("corpora", ans.CorporaNames()).Msg("loaded corpora registry")
	return ans, nil
}
