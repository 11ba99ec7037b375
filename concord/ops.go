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
	"concbench/apperr"
	"concbench/engine"
	"fmt"
	"strconv"
	"strings"
)

// OpCode identifies a kind of concordance operation. It is
// the first character of an operation token.
type OpCode byte

const (
	OpQuery           OpCode = 'q'
	OpQueryAttr       OpCode = 'a'
	OpFilterPos       OpCode = 'p'
	OpFilterNeg       OpCode = 'n'
	OpFilterPosNoKwic OpCode = 'P'
	OpFilterNegNoKwic OpCode = 'N'
	OpSort            OpCode = 's'
	OpSample          OpCode = 'r'
	OpShuffle         OpCode = 'f'
	OpSwitchAligned   OpCode = 'x'
	OpRemoveEmpty     OpCode = 'D'

	// RankFirst and RankLast select the first or the last
	// token of a filter match
	RankFirst = 0
	RankLast  = -1
)

// Operation is a parsed operation token
type Operation interface {
	Code() OpCode

	// Token produces the canonical token of the operation
	Token() string
}

// QueryOp is the initial query of a chain
type QueryOp struct {
	DefaultAttr string
	CQL         string
}

func (op QueryOp) Code() OpCode {
	if op.DefaultAttr != "" {
		return OpQueryAttr
	}
	return OpQuery
}

func (op QueryOp) Token() string {
	if op.DefaultAttr != "" {
		return fmt.Sprintf("a%s,%s", op.DefaultAttr, op.CQL)
	}
	return "q" + op.CQL
}

// FilterOp keeps (or removes) lines having a match of its query
// within a window defined relatively to KWIC
type FilterOp struct {
	Positive bool

	// InclKwic allows the filter match to overlap the KWIC
	InclKwic bool
	From     engine.CtxPos
	To       engine.CtxPos

	// Rank >= 0 tests the first token of a match, RankLast the last one
	Rank int
	CQL  string
}

func (op FilterOp) Code() OpCode {
	switch {
	case op.Positive && op.InclKwic:
		return OpFilterPos
	case op.Positive:
		return OpFilterPosNoKwic
	case op.InclKwic:
		return OpFilterNeg
	}
	return OpFilterNegNoKwic
}

func ctxPosToken(cp engine.CtxPos) string {
	// the short notation is used whenever it is unambiguous
	if cp.FromEnd == (cp.Offset > 0) {
		return strconv.Itoa(cp.Offset)
	}
	if cp.FromEnd {
		return fmt.Sprintf("%d>", cp.Offset)
	}
	return fmt.Sprintf("%d<", cp.Offset)
}

func (op FilterOp) Token() string {
	return fmt.Sprintf(
		"%c%s %s %d %s",
		op.Code(), ctxPosToken(op.From), ctxPosToken(op.To), op.Rank, op.CQL)
}

// SortKey is a single level of a sort
type SortKey struct {
	Attr  string
	Icase bool

	// Bward sorts by reversed values (i.e. by word endings)
	Bward bool
	Ctx   engine.CtxRange
}

func (sk SortKey) String() string {
	var flags string
	if sk.Icase {
		flags += "i"
	}
	if sk.Bward {
		flags += "r"
	}
	return fmt.Sprintf("%s/%s %s", sk.Attr, flags, sk.Ctx)
}

// SortOp sorts lines by one or more keys
type SortOp struct {
	Keys []SortKey
}

func (op SortOp) Code() OpCode {
	return OpSort
}

func (op SortOp) Token() string {
	items := make([]string, len(op.Keys))
	for i, k := range op.Keys {
		items[i] = k.String()
	}
	return "s" + strings.Join(items, " ")
}

type SampleOp struct {
	Size int
}

func (op SampleOp) Code() OpCode {
	return OpSample
}

func (op SampleOp) Token() string {
	return fmt.Sprintf("r%d", op.Size)
}

type ShuffleOp struct{}

func (op ShuffleOp) Code() OpCode {
	return OpShuffle
}

func (op ShuffleOp) Token() string {
	return "f"
}

// SwitchAlignedOp makes KWICs refer to a different corpus
// of a parallel concordance
type SwitchAlignedOp struct {
	Corpus string
}

func (op SwitchAlignedOp) Code() OpCode {
	return OpSwitchAligned
}

func (op SwitchAlignedOp) Token() string {
	return "x-" + op.Corpus
}

// RemoveEmptyOp removes lines without aligned counterparts
type RemoveEmptyOp struct{}

func (op RemoveEmptyOp) Code() OpCode {
	return OpRemoveEmpty
}

func (op RemoveEmptyOp) Token() string {
	return "D"
}

// -------------------------

func parseFilter(code OpCode, args string) (Operation, error) {
	items := strings.SplitN(args, " ", 4)
	if len(items) < 4 || strings.TrimSpace(items[3]) == "" {
		return nil, apperr.NewConcordanceQueryParamsError(
			fmt.Sprintf("invalid filter operation `%c%s`", code, args), nil)
	}
	from, err := engine.ParseCtxPos(items[0])
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError("invalid filter range", err)
	}
	to, err := engine.ParseCtxPos(items[1])
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError("invalid filter range", err)
	}
	rank, err := strconv.Atoi(items[2])
	if err != nil {
		return nil, apperr.NewConcordanceQueryParamsError("invalid filter rank", err)
	}
	return FilterOp{
		Positive: code == OpFilterPos || code == OpFilterPosNoKwic,
		InclKwic: code == OpFilterPos || code == OpFilterNeg,
		From:     from,
		To:       to,
		Rank:     rank,
		CQL:      items[3],
	}, nil
}

func parseSort(args string) (Operation, error) {
	items := strings.Fields(args)
	if len(items) == 0 || len(items)%2 != 0 {
		return nil, apperr.NewConcordanceQueryParamsError("invalid sort operation `s"+args+"`", nil)
	}
	ans := SortOp{Keys: make([]SortKey, 0, len(items)/2)}
	for i := 0; i < len(items); i += 2 {
		attr, flags, _ := strings.Cut(items[i], "/")
		if attr == "" {
			return nil, apperr.NewConcordanceQueryParamsError("missing sort attribute", nil)
		}
		ctx, err := engine.ParseCtxRange(items[i+1])
		if err != nil {
			return nil, apperr.NewConcordanceQueryParamsError("invalid sort context", err)
		}
		ans.Keys = append(ans.Keys, SortKey{
			Attr:  attr,
			Icase: strings.Contains(flags, "i"),
			Bward: strings.Contains(flags, "r"),
			Ctx:   ctx,
		})
	}
	return ans, nil
}

// ParseOperation parses a single operation token
func ParseOperation(token string) (Operation, error) {
	if token == "" {
		return nil, apperr.NewUnknownConcordanceAction(token)
	}
	args := token[1:]
	switch code := OpCode(token[0]); code {
	case OpQuery:
		if strings.TrimSpace(args) == "" {
			return nil, apperr.NewConcordanceQueryParamsError("empty query", nil)
		}
		return QueryOp{CQL: args}, nil
	case OpQueryAttr:
		attr, cql, ok := strings.Cut(args, ",")
		if !ok || attr == "" || strings.TrimSpace(cql) == "" {
			return nil, apperr.NewConcordanceQueryParamsError("invalid query `"+token+"`", nil)
		}
		return QueryOp{DefaultAttr: attr, CQL: cql}, nil
	case OpFilterPos, OpFilterNeg, OpFilterPosNoKwic, OpFilterNegNoKwic:
		return parseFilter(code, args)
	case OpSort:
		return parseSort(args)
	case OpSample:
		size, err := strconv.Atoi(args)
		if err != nil || size <= 0 {
			return nil, apperr.NewConcordanceQueryParamsError("invalid sample size `"+args+"`", err)
		}
		return SampleOp{Size: size}, nil
	case OpShuffle:
		if args != "" {
			return nil, apperr.NewUnknownConcordanceAction(token)
		}
		return ShuffleOp{}, nil
	case OpSwitchAligned:
		corp, ok := strings.CutPrefix(args, "-")
		if !ok || corp == "" {
			return nil, apperr.NewUnknownConcordanceAction(token)
		}
		return SwitchAlignedOp{Corpus: corp}, nil
	case OpRemoveEmpty:
		if args != "" {
			return nil, apperr.NewUnknownConcordanceAction(token)
		}
		return RemoveEmptyOp{}, nil
	}
	return nil, apperr.NewUnknownConcordanceAction(token)
}

// ParseOperations parses a whole chain of tokens. The first
// operation must be a query and no other query may follow.
func ParseOperations(q []string) ([]Operation, error) {
	if len(q) == 0 {
		return nil, apperr.NewConcordanceQueryParamsError("empty operation chain", nil)
	}
	ans := make([]Operation, len(q))
	for i, token := range q {
		op, err := ParseOperation(token)
		if err != nil {
			return nil, err
		}
		_, isQuery := op.(QueryOp)
		if isQuery != (i == 0) {
			return nil, apperr.NewConcordanceSpecificationError(
				"a chain must start with exactly one query", nil)
		}
		ans[i] = op
	}
	return ans, nil
}
