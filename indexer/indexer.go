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


package indexer

import (
	"concbench/cncdb"
	"concbench/indexer/documents"
	"concbench/indexer/ftclient"
	"concbench/qpersist"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	RequirementMustNot = "must_not"
	RequirementShould  = "should"
)

var (
	// keywordFields are not analyzed so they must be searched
	// by exact terms
	keywordFields = map[string]bool{
		"query_supertype": true,
		"subcorpus":       true,
	}
)

// Indexer maintains an embedded fulltext index of query history
type Indexer struct {
	conf     *Conf
	db       cncdb.IQHistArchOps
	conv     *converter
	bleveIdx bleve.Index
}

// IndexUserRecords takes latest `numLatest` records of a user and
// (re)indexes them. It returns number of actually indexed
// records. Unindexable records are skipped.
func (idx *Indexer) IndexUserRecords(userID, numLatest int) (int, error) {
	results, err := idx.db.GetUserRecords(userID, numLatest)
	if err != nil {
		return 0, fmt.Errorf("failed to index records: %w", err)
	}
	var numIndexed int
	for _, rec := range results {
		indexed, err := idx.IndexRecord(&rec)
		if !indexed && err == nil {
			continue

		} else if err != nil {
			log.Error().Err(err).Any("rec", rec).Msg("invalid record, skipping")
			continue
		}
		numIndexed++
	}
	return numIndexed, nil
}

// IndexRecord indexes a provided history record. The returned bool
// specifies whether the record was indexed. Records referring
// to operations which cannot be converted are skipped without error.
func (idx *Indexer) IndexRecord(hRec *cncdb.HistoryRecord) (bool, error) {
	doc, err := idx.conv.RecToDoc(hRec)
	if errors.Is(err, ErrRecordNotIndexable) {
		return false, nil

	} else if err != nil {
		return false, fmt.Errorf("failed to index record: %w", err)
	}
	docToIndex := doc.AsIndexableDoc()
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		spew.Dump(docToIndex)
	}
	if err := idx.bleveIdx.Index(docToIndex.GetID(), docToIndex); err != nil {
		return false, fmt.Errorf("failed to index record: %w", err)
	}
	log.Debug().Str("id", docToIndex.GetID()).Msg("indexed record")
	return true, nil
}

// SetName re-indexes a history item with a new name. The SQL
// table is expected to contain the new name already.
func (idx *Indexer) SetName(key cncdb.HistoryKey, name string) error {
	hRec, err := idx.db.GetRecord(key)
	if err != nil {
		return fmt.Errorf("failed to set name of indexed item: %w", err)
	}
	hRec.Name = name
	if _, err := idx.IndexRecord(&hRec); err != nil {
		return fmt.Errorf("failed to set name of indexed item: %w", err)
	}
	return nil
}

// Delete removes a document identified by cncdb.HistoryRecord.CreateIndexID
func (idx *Indexer) Delete(indexID string) error {
	if err := idx.bleveIdx.Delete(indexID); err != nil {
		return fmt.Errorf("failed to delete indexed item %s: %w", indexID, err)
	}
	return nil
}

func (idx *Indexer) DocCount() (uint64, error) {
	return idx.bleveIdx.DocCount()
}

func itemQuery(item ftclient.QueryItem) query.Query {
	if item.IsWildCard {
		q := bleve.NewWildcardQuery(strings.ToLower(item.Value))
		if item.Field != "_all" {
			q.SetField(item.Field)
		}
		return q
	}
	if keywordFields[item.Field] {
		q := bleve.NewTermQuery(item.Value)
		q.SetField(item.Field)
		return q
	}
	q := bleve.NewMatchQuery(item.Value)
	if item.Field != "_all" {
		q.SetField(item.Field)
	}
	return q
}

// Search searches history items of a user. Without `order`, results
// are sorted by relevance.
func (idx *Indexer) Search(
	userID int,
	items []ftclient.QueryItem,
	limit int,
	order []string,
	fields []string,
) (*bleve.SearchResult, error) {
	userQuery := bleve.NewTermQuery(strconv.Itoa(userID))
	userQuery.SetField("user_id")
	q := bleve.NewBooleanQuery()
	q.AddMust(userQuery)
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, err
		}
		switch item.Requirement {
		case RequirementMustNot:
			q.AddMustNot(itemQuery(item))
		case RequirementShould:
			q.AddShould(itemQuery(item))
		default:
			q.AddMust(itemQuery(item))
		}
	}
	if limit <= 0 {
		limit = idx.conf.SearchMaxResults
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	if len(order) > 0 {
		req.SortBy(order)
	}
	req.Fields = fields
	return idx.bleveIdx.Search(req)
}

func (idx *Indexer) Close() error {
	return idx.bleveIdx.Close()
}

func NewIndexer(
	conf *Conf,
	db cncdb.IQHistArchOps,
	records qpersist.Opener,
	subc SubcNames,
) (*Indexer, error) {
	bleveIdx, err := bleve.Open(conf.IndexDirPath)
	if err == bleve.ErrorIndexMetaMissing || err == bleve.ErrorIndexPathDoesNotExist {
		mapping, err := documents.CreateMapping()
		if err != nil {
			return nil, fmt.Errorf("failed to create index mapping: %w", err)
		}
		bleveIdx, err = bleve.New(conf.IndexDirPath, mapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create new index: %w", err)
		}

	} else if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return &Indexer{
		conf:     conf,
		db:       db,
		conv:     &converter{records: records, subc: subc},
		bleveIdx: bleveIdx,
	}, nil
}
