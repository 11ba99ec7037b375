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


// Package ftclient is a client of a query-history fulltext service.
// The protocol is also served by the embedded index (see indexer.Actions)
// so concbench can act as its own fulltext service.
package ftclient

import (
	"bytes"
	"concbench/apperr"
	"concbench/cncdb"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	RequirementMust = "must"

	DefaultTimeout = 10 * time.Second

	searchOrder  = "-_score,-created"
	searchFields = "query_supertype,name"
)

// KnownFields lists the fields a query item may refer to
var KnownFields = []string{
	"query_supertype", "name", "corpora", "subcorpus", "raw_query",
	"pos_attr_names", "pos_attr_values", "structures", "struct_attr_names",
	"struct_attr_values", "pfilter_words", "nfilter_words", "_all",
}

// QueryItem is a single condition of a fulltext search
type QueryItem struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Requirement string `json:"requirement"`
	IsWildCard  bool   `json:"isWildCard"`
}

// Validate tests whether the item refers to a known field
func (qi QueryItem) Validate() error {
	for _, f := range KnownFields {
		if f == qi.Field {
			return nil
		}
	}
	return apperr.NewUserInputError("unknown fulltext field `%s`", qi.Field)
}

// Hit is a single search result. The ID is created by
// cncdb.HistoryRecord.CreateIndexID
type Hit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields"`
}

// SearchResponse is a result of a fulltext search. Hits are
// ordered by relevance.
type SearchResponse struct {
	Total uint64 `json:"total"`
	Hits  []Hit  `json:"hits"`
}

type setNameArgs struct {
	Name string `json:"name"`
}

// Client talks to a fulltext service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fulltext request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read fulltext response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fulltext service returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *Client) itemURL(key cncdb.HistoryKey) string {
	return fmt.Sprintf(
		"%s/user-query-history/%d/%s/%d",
		c.baseURL, key.UserID, url.PathEscape(key.QueryID), key.Created)
}

// Search sends a fulltext query and returns matching history
// items in relevance order
func (c *Client) Search(ctx context.Context, userID int, items []QueryItem, limit int) ([]cncdb.HistoryKey, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fulltext query: %w", err)
	}
	args := url.Values{}
	args.Set("limit", strconv.Itoa(limit))
	args.Set("order", searchOrder)
	args.Set("fields", searchFields)
	u := fmt.Sprintf("%s/user-query-history/%d?%s", c.baseURL, userID, args.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create fulltext request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var resp SearchResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode fulltext response: %w", err)
	}
	ans := make([]cncdb.HistoryKey, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		key, err := cncdb.ParseIndexID(hit.ID)
		if err != nil {
			return nil, err
		}
		ans = append(ans, key)
	}
	return ans, nil
}

// SetName propagates a new name of a history item
func (c *Client) SetName(ctx context.Context, key cncdb.HistoryKey, name string) error {
	body, err := json.Marshal(setNameArgs{Name: name})
	if err != nil {
		return fmt.Errorf("failed to encode name: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.itemURL(key), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create fulltext request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

// Delete removes a history item from the fulltext index
func (c *Client) Delete(ctx context.Context, key cncdb.HistoryKey) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.itemURL(key), nil)
	if err != nil {
		return fmt.Errorf("failed to create fulltext request: %w", err)
	}
	_, err = c.do(req)
	return err
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}
