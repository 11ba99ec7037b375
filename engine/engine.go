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

// Package engine defines the capabilities the workbench expects
// from a corpus engine: positional attribute streams, structural
// annotations, CQL search and alignment of parallel corpora.
package engine

import (
	"errors"
	"sort"
)

var (
	ErrUnknownAttr      = errors.New("unknown attribute")
	ErrUnknownStructure = errors.New("unknown structure")
	ErrQuerySyntax      = errors.New("query syntax error")
	ErrUnknownCorpus    = errors.New("unknown corpus")
)

// Range is a half-open interval of token positions
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Contains(pos int) bool {
	return pos >= r.Start && pos < r.End
}

// Hit is a single search match (a KWIC). End is exclusive.
type Hit = Range

// StructOccurrence is a single occurrence of a structure (e.g. a `doc`)
type StructOccurrence struct {
	Range
	Attrs map[string]string
}

// Corpus represents a single opened corpus. All the methods must
// be safe for concurrent use.
type Corpus interface {
	Name() string
	Size() int
	PosAttrs() []string
	DefaultAttr() string
	HasPosAttr(attr string) bool

	// HasStructAttr tests for `struct.attr` existence
	HasStructAttr(structAttr string) bool
	StructAttrs() []string

	// Value returns a value of a positional attribute at a position
	Value(attr string, pos int) string

	// Structures returns all occurrences of a structure ordered
	// by their positions
	Structures(name string) ([]StructOccurrence, error)

	// StructAt finds an occurrence of a structure containing the position
	StructAt(name string, pos int) (StructOccurrence, bool)

	// Search evaluates a CQL query. In case `within` is not empty,
	// only matches lying completely inside the ranges are returned.
	Search(query string, within []Range) ([]Hit, error)

	// AlignStruct is a structure used to align parallel corpora
	AlignStruct() string

	// NonWordsRegexp matches values which are not considered words
	// (punctuation etc.)
	NonWordsRegexp() string

	// BibAttrs returns a structural attribute identifying bibliographic
	// units and an attribute providing their human readable labels
	BibAttrs() (idAttr string, labelAttr string)
}

// DefaultAttrSearcher is implemented by corpora able to evaluate
// queries with a default attribute different from the configured one
type DefaultAttrSearcher interface {
	SearchWithDefaultAttr(query, defaultAttr string, within []Range) ([]Hit, error)
}

// Provider opens corpora by their names
type Provider interface {
	Corpus(name string) (Corpus, error)
	CorporaNames() []string
}

// MergeRanges sorts ranges and joins overlapping and adjacent ones
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return []Range{}
	}
	tmp := make([]Range, len(ranges))
	copy(tmp, ranges)
	sort.Slice(tmp, func(i, j int) bool {
		return tmp[i].Start < tmp[j].Start
	})
	ans := []Range{tmp[0]}
	for _, r := range tmp[1:] {
		last := &ans[len(ans)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}

		} else {
			ans = append(ans, r)
		}
	}
	return ans
}

// IntersectRanges intersects two sorted lists of non-overlapping ranges
func IntersectRanges(a, b []Range) []Range {
	ans := make([]Range, 0, len(a))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start, end := max(a[i].Start, b[j].Start), min(a[i].End, b[j].End)
		if start < end {
			ans = append(ans, Range{Start: start, End: end})
		}
		if a[i].End < b[j].End {
			i++

		} else {
			j++
		}
	}
	return ans
}

// RangesSize returns number of positions covered by (merged) ranges
func RangesSize(ranges []Range) int {
	var ans int
	for _, r := range ranges {
		ans += r.Len()
	}
	return ans
}

// InRanges tests whether a whole hit lies inside one of sorted ranges
func InRanges(ranges []Range, hit Hit) bool {
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].End > hit.Start
	})
	return i < len(ranges) && ranges[i].Start <= hit.Start && hit.End <= ranges[i].End
}

// AlignedRange finds a range in an aligned corpus corresponding
// to a position of the source corpus. Corpora are aligned by the i-th
// occurrence of their alignment structures. An empty range is returned
// if there is no counterpart.
func AlignedRange(src, dst Corpus, pos int) (Range, error) {
	srcStructs, err := src.Structures(src.AlignStruct())
	if err != nil {
		return Range{}, err
	}
	dstStructs, err := dst.Structures(dst.AlignStruct())
	if err != nil {
		return Range{}, err
	}
	i := sort.Search(len(srcStructs), func(i int) bool {
		return srcStructs[i].End > pos
	})
	if i >= len(srcStructs) || !srcStructs[i].Contains(pos) || i >= len(dstStructs) {
		return Range{}, nil
	}
	return dstStructs[i].Range, nil
}
