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

package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ctxPosRegexp = regexp.MustCompile(`^(-?\d+)([<>]0?)?$`)

// CtxPos is a position relative to a KWIC. Offsets are counted either
// from the first KWIC token or from the last one.
//
// Accepted notation:
//   - `N<0`, `N<` relative to the first KWIC token
//   - `N>0`, `N>` relative to the last KWIC token
//   - `N` relative to the first token for N <= 0, otherwise to the last one
type CtxPos struct {
	Offset  int
	FromEnd bool
}

func (cp CtxPos) Resolve(hit Hit) int {
	if cp.FromEnd {
		return hit.End - 1 + cp.Offset
	}
	return hit.Start + cp.Offset
}

func (cp CtxPos) String() string {
	if cp.FromEnd {
		return fmt.Sprintf("%d>0", cp.Offset)
	}
	return fmt.Sprintf("%d<0", cp.Offset)
}

func ParseCtxPos(s string) (CtxPos, error) {
	srch := ctxPosRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if len(srch) == 0 {
		return CtxPos{}, fmt.Errorf("invalid context position `%s`: %w", s, ErrQuerySyntax)
	}
	offset, err := strconv.Atoi(srch[1])
	if err != nil {
		return CtxPos{}, fmt.Errorf("invalid context position `%s`: %w", s, ErrQuerySyntax)
	}
	ans := CtxPos{Offset: offset}
	switch {
	case strings.HasPrefix(srch[2], ">"):
		ans.FromEnd = true
	case srch[2] == "":
		ans.FromEnd = offset > 0
	}
	return ans, nil
}

// CtxRange is a range of KWIC-relative positions, written as
// `from~to` (or a single position)
type CtxRange struct {
	From CtxPos
	To   CtxPos
}

// Resolve returns a closed interval of absolute positions
// (possibly empty or exceeding corpus boundaries)
func (cr CtxRange) Resolve(hit Hit) (int, int) {
	return cr.From.Resolve(hit), cr.To.Resolve(hit)
}

func (cr CtxRange) String() string {
	if cr.From == cr.To {
		return cr.From.String()
	}
	return cr.From.String() + "~" + cr.To.String()
}

func ParseCtxRange(s string) (CtxRange, error) {
	items := strings.Split(s, "~")
	if len(items) > 2 {
		return CtxRange{}, fmt.Errorf("invalid context range `%s`: %w", s, ErrQuerySyntax)
	}
	from, err := ParseCtxPos(items[0])
	if err != nil {
		return CtxRange{}, err
	}
	if len(items) == 1 {
		return CtxRange{From: from, To: from}, nil
	}
	to, err := ParseCtxPos(items[1])
	if err != nil {
		return CtxRange{}, err
	}
	return CtxRange{From: from, To: to}, nil
}
