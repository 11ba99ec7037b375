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
	"slices"
	"strings"
)

// AlignedPart is a counterpart of a line in an aligned corpus
type AlignedPart struct {
	Corpus string `json:"corpus"`
	Text   string `json:"text"`
}

// KwicLine is a concordance line prepared for viewing
type KwicLine struct {
	LineNum   int           `json:"linenum"`
	Pos       int           `json:"pos"`
	Ref       string        `json:"ref,omitempty"`
	Left      string        `json:"left"`
	Kwic      string        `json:"kwic"`
	Right     string        `json:"right"`
	LineGroup int           `json:"linegroup,omitempty"`
	Align     []AlignedPart `json:"align,omitempty"`
}

// Page is a single page of a concordance
type Page struct {
	Lines    []KwicLine `json:"Lines"`
	Page     int        `json:"page"`
	PageSize int        `json:"pagesize"`
	LastPage int        `json:"lastpage"`
}

func tokens(corp engine.Corpus, attr string, from, to int) string {
	from = max(from, 0)
	to = min(to, corp.Size())
	if from >= to {
		return ""
	}
	ans := make([]string, 0, to-from)
	for pos := from; pos < to; pos++ {
		ans = append(ans, corp.Value(attr, pos))
	}
	return strings.Join(ans, " ")
}

// GroupLines applies manual line groups. Each group is
// a triple (first line, last line, group ID), line numbers refer
// to the order of `lines`. In case `sorted` is set, lines are
// ordered by their groups (ungrouped lines go last).
func GroupLines(lines []Line, groups [][3]int, sorted bool) ([]Line, []int) {
	lineGroups := make([]int, len(lines))
	for _, g := range groups {
		for i := max(g[0], 0); i <= g[1] && i < len(lines); i++ {
			lineGroups[i] = g[2]
		}
	}
	if !sorted || len(groups) == 0 {
		return lines, lineGroups
	}
	idxs := make([]int, len(lines))
	for i := range idxs {
		idxs[i] = i
	}
	groupOrder := func(g int) int {
		if g == 0 {
			return int(^uint(0) >> 1)
		}
		return g
	}
	slices.SortStableFunc(idxs, func(a, b int) int {
		return groupOrder(lineGroups[a]) - groupOrder(lineGroups[b])
	})
	ansLines := make([]Line, len(lines))
	ansGroups := make([]int, len(lines))
	for i, idx := range idxs {
		ansLines[i] = lines[idx]
		ansGroups[i] = lineGroups[idx]
	}
	return ansLines, ansGroups
}

// ViewArgs specifies a concordance page
type ViewArgs struct {
	Page        int
	PageSize    int
	Attr        string
	LinesGroups [][3]int
	GroupSorted bool
}

// View produces a page of KWIC lines of a finished concordance
func (m *Materializer) View(conc *Concordance, args ViewArgs) (Page, error) {
	if args.PageSize <= 0 {
		args.PageSize = m.conf.DefaultPageSize
	}
	if args.Page < 1 {
		args.Page = 1
	}
	corp := conc.Corpus()
	attr := args.Attr
	if attr == "" {
		attr = corp.DefaultAttr()
	}
	if !corp.HasPosAttr(attr) {
		return Page{}, apperr.NewConcordanceSpecificationError("unknown attribute `"+attr+"`", nil)
	}
	lines, groups := GroupLines(conc.Lines(), args.LinesGroups, args.GroupSorted)
	from := (args.Page - 1) * args.PageSize
	to := min(from+args.PageSize, len(lines))
	ans := Page{
		Lines:    make([]KwicLine, 0, args.PageSize),
		Page:     args.Page,
		PageSize: args.PageSize,
		LastPage: max(1, (len(lines)+args.PageSize-1)/args.PageSize),
	}
	idAttr, _ := corp.BibAttrs()
	refStruct, refAttr, _ := strings.Cut(idAttr, ".")
	ctxSize := m.conf.KwicCtxSize
	for i := from; i < to; i++ {
		kwic := lines[i].Main
		kl := KwicLine{
			LineNum:   i,
			Pos:       kwic.Start,
			Left:      tokens(corp, attr, kwic.Start-ctxSize, kwic.Start),
			Kwic:      tokens(corp, attr, kwic.Start, kwic.End),
			Right:     tokens(corp, attr, kwic.End, kwic.End+ctxSize),
			LineGroup: groups[i],
		}
		if refStruct != "" {
			if occ, ok := corp.StructAt(refStruct, kwic.Start); ok {
				kl.Ref = occ.Attrs[refAttr]
			}
		}
		for _, alName := range conc.Args().Corpora[1:] {
			alCorp, err := conc.AlignedCorpus(alName)
			if err != nil {
				return Page{}, err
			}
			rng, err := engine.AlignedRange(corp, alCorp, kwic.Start)
			if err != nil {
				return Page{}, mapEngineError(err)
			}
			kl.Align = append(kl.Align, AlignedPart{
				Corpus: alName,
				Text:   tokens(alCorp, alCorp.DefaultAttr(), rng.Start, rng.End),
			})
		}
		ans.Lines = append(ans.Lines, kl)
	}
	return ans, nil
}
