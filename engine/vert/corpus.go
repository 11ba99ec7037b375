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

// Package vert provides an in-memory corpus engine working with
// corpora in the "vertical" format (one token per line, tab separated
// positional attributes, XML-like tags for structures).
package vert

import (
	"bufio"
	"concbench/engine"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

var (
	openTagRegexp  = regexp.MustCompile(`^<([\w]+)((?:\s+[\w]+="[^"]*")*)\s*(/?)>$`)
	tagAttrRegexp  = regexp.MustCompile(`([\w]+)="([^"]*)"`)
	closeTagRegexp = regexp.MustCompile(`^</([\w]+)>$`)
)

// Corpus is an in-memory corpus. Once loaded, it is read-only
// and safe for concurrent use.
type Corpus struct {
	conf        *CorpusConf
	size        int
	attrs       map[string][]string
	structs     map[string][]engine.StructOccurrence
	structAttrs []string
}

func (c *Corpus) Name() string {
	return c.conf.Name
}

func (c *Corpus) Size() int {
	return c.size
}

func (c *Corpus) PosAttrs() []string {
	return c.conf.PosAttrs
}

func (c *Corpus) DefaultAttr() string {
	return c.conf.DefaultAttr
}

func (c *Corpus) HasPosAttr(attr string) bool {
	_, ok := c.attrs[attr]
	return ok
}

func (c *Corpus) HasStructAttr(structAttr string) bool {
	i := sort.SearchStrings(c.structAttrs, structAttr)
	return i < len(c.structAttrs) && c.structAttrs[i] == structAttr
}

func (c *Corpus) StructAttrs() []string {
	return c.structAttrs
}

func (c *Corpus) Value(attr string, pos int) string {
	vals, ok := c.attrs[attr]
	if !ok || pos < 0 || pos >= len(vals) {
		return ""
	}
	return vals[pos]
}

func (c *Corpus) Structures(name string) ([]engine.StructOccurrence, error) {
	ans, ok := c.structs[name]
	if !ok {
		return nil, fmt.Errorf("structure `%s` in %s: %w", name, c.conf.Name, engine.ErrUnknownStructure)
	}
	return ans, nil
}

// StructAt expects occurrences of a structure not to nest
func (c *Corpus) StructAt(name string, pos int) (engine.StructOccurrence, bool) {
	occs := c.structs[name]
	i := sort.Search(len(occs), func(i int) bool {
		return occs[i].End > pos
	})
	for ; i < len(occs) && occs[i].Start <= pos; i++ {
		if occs[i].Contains(pos) {
			return occs[i], true
		}
	}
	return engine.StructOccurrence{}, false
}

func (c *Corpus) AlignStruct() string {
	return c.conf.AlignStruct
}

func (c *Corpus) NonWordsRegexp() string {
	return c.conf.NonWordsRegexp
}

func (c *Corpus) BibAttrs() (string, string) {
	return c.conf.BibIDAttr, c.conf.BibLabelAttr
}

// matchEnds returns all possible (exclusive) ends of a match
// of elements starting at `pos`
func (c *Corpus) matchEnds(elems []seqElem, pos int, limit int, ans map[int]bool) {
	if len(elems) == 0 {
		ans[pos] = true
		return
	}
	el := elems[0]
	curr := pos
	for n := 0; n <= el.max; n++ {
		if n >= el.min {
			c.matchEnds(elems[1:], curr, limit, ans)
		}
		if n == el.max || curr >= limit || !el.tok.match(c, curr) {
			break
		}
		curr++
	}
}

func (c *Corpus) withinOccurrences(q *query) ([]engine.Range, error) {
	if len(q.within) == 0 {
		return nil, nil
	}
	var ans []engine.Range
	for i, ws := range q.within {
		occs, err := c.Structures(ws.structName)
		if err != nil {
			return nil, err
		}
		curr := make([]engine.Range, 0, len(occs))
		for _, occ := range occs {
			if ws.accepts(occ) {
				curr = append(curr, occ.Range)
			}
		}
		if i == 0 {
			ans = curr

		} else {
			ans = intersectRanges(ans, curr)
		}
	}
	return ans, nil
}

func (c *Corpus) searchRange(q *query, rng engine.Range, ans []engine.Hit) []engine.Hit {
	ends := make(map[int]bool)
	for pos := rng.Start; pos < rng.End; pos++ {
		clear(ends)
		c.matchEnds(q.elems, pos, rng.End, ends)
		longest := -1
		for e := range ends {
			if e > pos && e > longest {
				longest = e
			}
		}
		if longest > pos {
			ans = append(ans, engine.Hit{Start: pos, End: longest})
		}
	}
	return ans
}

// Search evaluates a CQL query. For each starting position, the longest
// match is returned. Matches are ordered by their positions.
func (c *Corpus) Search(cql string, within []engine.Range) ([]engine.Hit, error) {
	return c.SearchWithDefaultAttr(cql, c.conf.DefaultAttr, within)
}

// SearchWithDefaultAttr is like Search but bare regular expressions
// (e.g. `"dogs?"`) are applied to `defaultAttr`
func (c *Corpus) SearchWithDefaultAttr(cql, defaultAttr string, within []engine.Range) ([]engine.Hit, error) {
	if !c.HasPosAttr(defaultAttr) {
		return nil, fmt.Errorf("invalid default attribute %s: %w", defaultAttr, engine.ErrUnknownAttr)
	}
	q, err := parseQuery(cql, defaultAttr, c.conf.PosAttrs)
	if err != nil {
		return nil, err
	}
	searchRanges := []engine.Range{{Start: 0, End: c.size}}
	if len(within) > 0 {
		searchRanges = engine.MergeRanges(within)
	}
	structRanges, err := c.withinOccurrences(q)
	if err != nil {
		return nil, err
	}
	if structRanges != nil {
		searchRanges = intersectRanges(searchRanges, structRanges)
	}
	ans := make([]engine.Hit, 0, 100)
	for _, rng := range searchRanges {
		ans = c.searchRange(q, rng, ans)
	}
	sort.SliceStable(ans, func(i, j int) bool {
		return ans[i].Start < ans[j].Start
	})
	return ans, nil
}

// intersectRanges intersects merged ranges with (possibly nested)
// structure ranges, each structure occurrence produces separate ranges
// so matches cannot cross structure boundaries
func intersectRanges(base []engine.Range, structs []engine.Range) []engine.Range {
	ans := make([]engine.Range, 0, len(structs))
	for _, s := range structs {
		for _, b := range base {
			start, end := max(s.Start, b.Start), min(s.End, b.End)
			if start < end {
				ans = append(ans, engine.Range{Start: start, End: end})
			}
		}
	}
	return ans
}

// ReadVertical loads a corpus from a vertical file
func ReadVertical(conf *CorpusConf, src io.Reader) (*Corpus, error) {
	if err := conf.ValidateAndDefaults(); err != nil {
		return nil, err
	}
	ans := &Corpus{
		conf:    conf,
		attrs:   make(map[string][]string),
		structs: make(map[string][]engine.StructOccurrence),
	}
	for _, a := range conf.PosAttrs {
		ans.attrs[a] = make([]string, 0, 1000)
	}
	open := make(map[string][]engine.StructOccurrence)
	structAttrs := make(map[string]bool)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if srch := closeTagRegexp.FindStringSubmatch(line); len(srch) > 0 {
			name := srch[1]
			stack := open[name]
			if len(stack) == 0 {
				return nil, fmt.Errorf(
					"failed to read %s, line %d: unexpected closing tag %s", conf.Name, lineNum, name)
			}
			occ := stack[len(stack)-1]
			occ.End = ans.size
			open[name] = stack[:len(stack)-1]
			ans.structs[name] = append(ans.structs[name], occ)
			continue
		}
		if srch := openTagRegexp.FindStringSubmatch(line); len(srch) > 0 {
			name := srch[1]
			occ := engine.StructOccurrence{
				Range: engine.Range{Start: ans.size},
				Attrs: make(map[string]string),
			}
			for _, am := range tagAttrRegexp.FindAllStringSubmatch(srch[2], -1) {
				occ.Attrs[am[1]] = am[2]
				structAttrs[name+"."+am[1]] = true
			}
			if srch[3] == "/" {
				occ.End = ans.size
				ans.structs[name] = append(ans.structs[name], occ)

			} else {
				open[name] = append(open[name], occ)
			}
			if _, ok := ans.structs[name]; !ok {
				ans.structs[name] = []engine.StructOccurrence{}
			}
			continue
		}
		cols := strings.Split(line, "\t")
		for i, a := range conf.PosAttrs {
			var v string
			if i < len(cols) {
				v = cols[i]
			}
			ans.attrs[a] = append(ans.attrs[a], v)
		}
		ans.size++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", conf.Name, err)
	}
	for name, stack := range open {
		if len(stack) > 0 {
			return nil, fmt.Errorf("failed to read %s: unclosed structure %s", conf.Name, name)
		}
	}
	for name, occs := range ans.structs {
		sort.SliceStable(occs, func(i, j int) bool {
			return occs[i].Start < occs[j].Start
		})
		ans.structs[name] = occs
	}
	for k := range structAttrs {
		ans.structAttrs = append(ans.structAttrs, k)
	}
	sort.Strings(ans.structAttrs)
	return ans, nil
}
