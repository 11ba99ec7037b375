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
	"fmt"
	"net/url"
	"strings"
)

// ChainStep is a single stored operation of a chain
type ChainStep struct {
	OpID string

	// Q contains all the tokens up to and including the operation
	Q []string

	// NumNew is the number of tokens the operation appended
	NumNew int
}

// OpDesc is a user-friendly description of an operation
type OpDesc struct {
	Op       string `json:"op"`
	OpID     string `json:"opid"`
	NiceArg  string `json:"nicearg"`
	Arg      string `json:"arg"`
	ToURL    string `json:"tourl"`
	Size     int    `json:"size"`
	FullSize int    `json:"fullsize"`

	// PersistentID refers to the stored operation
	PersistentID string `json:"conc_persistence_op_id"`
}

func describeOperation(op Operation) (string, string) {
	switch tOp := op.(type) {
	case QueryOp:
		return "Query", tOp.CQL
	case FilterOp:
		if tOp.Positive {
			return "Positive filter", tOp.CQL
		}
		return "Negative filter", tOp.CQL
	case SortOp:
		items := make([]string, len(tOp.Keys))
		for i, k := range tOp.Keys {
			items[i] = fmt.Sprintf("%s %s", k.Attr, k.Ctx)
		}
		return "Sort", strings.Join(items, ", ")
	case SampleOp:
		return "Sample", fmt.Sprint(tOp.Size)
	case ShuffleOp:
		return "Shuffle", ""
	case SwitchAlignedOp:
		return "Switch KWIC", tOp.Corpus
	case RemoveEmptyOp:
		return "Remove empty aligned", ""
	}
	return "", ""
}

// Describe produces descriptions of chain steps. Sizes are read
// from the concordance cache (zero for concordances not calculated yet).
func (m *Materializer) Describe(args Args, steps []ChainStep) ([]OpDesc, error) {
	ans := make([]OpDesc, 0, len(steps))
	for _, step := range steps {
		desc := OpDesc{
			PersistentID: step.OpID,
			ToURL:        "q=~" + url.QueryEscape(step.OpID),
		}
		if step.NumNew == 0 || len(step.Q) == 0 {
			desc.Op = "Line groups"
			desc.OpID = "g"

		} else {
			token := step.Q[len(step.Q)-step.NumNew]
			op, err := ParseOperation(token)
			if err != nil {
				return nil, err
			}
			desc.OpID = string(op.Code())
			desc.Op, desc.NiceArg = describeOperation(op)
			desc.Arg = token[1:]
		}
		if len(step.Q) > 0 {
			stepArgs := args
			stepArgs.Q = step.Q
			if entry, err := m.Status(stepArgs); err == nil && entry.Finished && entry.Error == "" {
				desc.Size = entry.ConcSize
				desc.FullSize = entry.FullSize
			}
		}
		ans = append(ans, desc)
	}
	return ans, nil
}
