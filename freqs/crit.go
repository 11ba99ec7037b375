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

package freqs

import (
	"concbench/apperr"
	"concbench/concord"
	"concbench/engine"
	"concbench/texttypes"
	"fmt"
	"strings"
)

// Level is a single level of a frequency criterion. Positional
// attributes are read within Range (values of multiple positions
// are joined by a space), structural attributes (`struct.attr`)
// are read from the structure containing the KWIC start.
type Level struct {
	Attr  string
	Icase bool
	Range engine.CtxRange
}

func (lev Level) IsStructAttr() bool {
	return strings.Contains(lev.Attr, ".")
}

func (lev Level) String() string {
	attr := lev.Attr
	if lev.Icase {
		attr += "/i"
	}
	return attr + " " + lev.Range.String()
}

// value extracts the level's value for a KWIC. False is returned
// for lines the level cannot be applied to (context out of the corpus,
// KWIC outside of the structure).
func (lev Level) value(corp engine.Corpus, kwic engine.Hit) (string, bool) {
	if lev.IsStructAttr() {
		st, attr, _ := strings.Cut(lev.Attr, ".")
		occ, ok := corp.StructAt(st, kwic.Start)
		if !ok {
			return "", false
		}
		return occ.Attrs[attr], true
	}
	from, to := lev.Range.Resolve(kwic)
	if from > to || from < 0 || to >= corp.Size() {
		return "", false
	}
	vals := make([]string, 0, to-from+1)
	for pos := from; pos <= to; pos++ {
		v := corp.Value(lev.Attr, pos)
		if lev.Icase {
			v = strings.ToLower(v)
		}
		vals = append(vals, v)
	}
	return strings.Join(vals, " "), true
}

// filter produces a concordance filter token restricting
// the concordance to lines having `value` at the level
func (lev Level) filter(value string, positive bool) string {
	if lev.IsStructAttr() {
		st, attr, _ := strings.Cut(lev.Attr, ".")
		op := concord.FilterOp{
			Positive: positive,
			InclKwic: true,
			Rank:     1,
			CQL: fmt.Sprintf(
				`[] within <%s %s="%s"/>`, st, attr, texttypes.EscapeValue(value)),
		}
		return op.Token()
	}
	flag := ""
	if lev.Icase {
		flag = "%c"
	}
	var cql strings.Builder
	for _, v := range strings.Split(value, " ") {
		fmt.Fprintf(&cql, `[%s="%s"%s]`, lev.Attr, texttypes.EscapeValue(v), flag)
	}
	op := concord.FilterOp{
		Positive: positive,
		InclKwic: true,
		From:     lev.Range.From,
		To:       lev.Range.From,
		Rank:     concord.RankFirst,
		CQL:      cql.String(),
	}
	return op.Token()
}

// Crit is a frequency criterion with one or more levels
// (written as `attr[/i] range [attr[/i] range ...]`)
type Crit struct {
	Levels []Level
}

func (c Crit) String() string {
	items := make([]string, len(c.Levels))
	for i, lev := range c.Levels {
		items[i] = lev.String()
	}
	return strings.Join(items, " ")
}

// IsPositional tells whether all the levels are positional attributes
func (c Crit) IsPositional() bool {
	for _, lev := range c.Levels {
		if lev.IsStructAttr() {
			return false
		}
	}
	return true
}

// structLevel returns index of the first structural level (or -1)
func (c Crit) structLevel() int {
	for i, lev := range c.Levels {
		if lev.IsStructAttr() {
			return i
		}
	}
	return -1
}

// ParseCrit parses a criterion and checks its attributes
// against a corpus
func ParseCrit(src string, maxLevels int, corp engine.Corpus) (Crit, error) {
	items := strings.Fields(src)
	if len(items) == 0 || len(items)%2 != 0 {
		return Crit{}, apperr.NewUserInputError("invalid frequency criterion `%s`", src)
	}
	if len(items)/2 > maxLevels {
		return Crit{}, apperr.NewUserInputError(
			"frequency criterion `%s` exceeds the limit of %d levels", src, maxLevels)
	}
	ans := Crit{Levels: make([]Level, 0, len(items)/2)}
	for i := 0; i < len(items); i += 2 {
		attr, flags, _ := strings.Cut(items[i], "/")
		if flags != "" && flags != "i" {
			return Crit{}, apperr.NewUserInputError("invalid attribute flags `%s`", flags)
		}
		rng, err := engine.ParseCtxRange(items[i+1])
		if err != nil {
			return Crit{}, apperr.NewUserInputError("invalid frequency criterion `%s`: %s", src, err)
		}
		lev := Level{Attr: attr, Icase: flags == "i", Range: rng}
		if lev.IsStructAttr() && !corp.HasStructAttr(attr) || !lev.IsStructAttr() && !corp.HasPosAttr(attr) {
			return Crit{}, apperr.NewConcordanceSpecificationError(
				fmt.Sprintf("unknown attribute `%s` in %s", attr, corp.Name()), nil)
		}
		ans.Levels = append(ans.Levels, lev)
	}
	return ans, nil
}
