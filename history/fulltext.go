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


package history

import (
	"concbench/cncdb"
	"concbench/indexer"
	"concbench/indexer/ftclient"
	"context"
	"fmt"
)

var (
	fulltextOrder = []string{"-_score", "-created"}
)

// EmbeddedFulltext adapts the embedded Bleve index to the Fulltext
// interface. Removed documents are handled by indexer.Service via
// the deleted items channel so Delete is a no-op here.
type EmbeddedFulltext struct {
	idx *indexer.Indexer
}

func (ef *EmbeddedFulltext) Search(
	ctx context.Context,
	userID int,
	items []ftclient.QueryItem,
	limit int,
) ([]cncdb.HistoryKey, error) {
	res, err := ef.idx.Search(userID, items, limit, fulltextOrder, nil)
	if err != nil {
		return nil, err
	}
	ans := make([]cncdb.HistoryKey, 0, len(res.Hits))
	for _, hit := range res.Hits {
		key, err := cncdb.ParseIndexID(hit.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to process fulltext result: %w", err)
		}
		ans = append(ans, key)
	}
	return ans, nil
}

func (ef *EmbeddedFulltext) SetName(ctx context.Context, key cncdb.HistoryKey, name string) error {
	return ef.idx.SetName(key, name)
}

func (ef *EmbeddedFulltext) Delete(ctx context.Context, key cncdb.HistoryKey) error {
	return nil
}

func NewEmbeddedFulltext(idx *indexer.Indexer) *EmbeddedFulltext {
	return &EmbeddedFulltext{idx: idx}
}
