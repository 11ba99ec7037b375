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


package documents

import (
	"concbench/indexer/lotokenizer"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	queryAnalyzer = "query_analyzer"
)

func CreateMapping() (mapping.IndexMapping, error) {

	// whole index
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name
	err := indexMapping.AddCustomAnalyzer(
		queryAnalyzer,
		map[string]any{
			"type":          custom.Name,
			"tokenizer":     lotokenizer.Name,
			"token_filters": []string{lowercase.Name},
		},
	)
	if err != nil {
		return nil, err
	}

	// field types
	exactStringMapping := bleve.NewKeywordFieldMapping()
	multiValMapping := bleve.NewTextFieldMapping()
	multiValMapping.Analyzer = simple.Name
	queryMapping := bleve.NewTextFieldMapping()
	queryMapping.Analyzer = queryAnalyzer
	dtMapping := bleve.NewDateTimeFieldMapping()

	commonMapping := func() *mapping.DocumentMapping {
		ans := bleve.NewDocumentMapping()
		ans.AddFieldMappingsAt("id", exactStringMapping)
		ans.AddFieldMappingsAt("name", multiValMapping)
		ans.AddFieldMappingsAt("created", dtMapping)
		ans.AddFieldMappingsAt("query_supertype", exactStringMapping)
		ans.AddFieldMappingsAt("user_id", exactStringMapping)
		ans.AddFieldMappingsAt("corpora", multiValMapping)
		ans.AddFieldMappingsAt("subcorpus", exactStringMapping)
		ans.AddFieldMappingsAt("raw_query", queryMapping)
		ans.AddFieldMappingsAt("pos_attr_names", multiValMapping)
		return ans
	}

	// conc and pquery types
	for _, tp := range []string{"conc", "pquery"} {
		concMapping := commonMapping()
		concMapping.AddFieldMappingsAt("structures", multiValMapping)
		concMapping.AddFieldMappingsAt("struct_attr_names", multiValMapping)
		concMapping.AddFieldMappingsAt("struct_attr_values", multiValMapping)
		concMapping.AddFieldMappingsAt("pos_attr_values", queryMapping)
		indexMapping.AddDocumentMapping(tp, concMapping)
	}

	// wlist type
	wlistMapping := commonMapping()
	wlistMapping.AddFieldMappingsAt("pfilter_words", multiValMapping)
	wlistMapping.AddFieldMappingsAt("nfilter_words", multiValMapping)
	indexMapping.AddDocumentMapping("wlist", wlistMapping)

	// kwords type
	indexMapping.AddDocumentMapping("kwords", commonMapping())

	return indexMapping, nil
}
