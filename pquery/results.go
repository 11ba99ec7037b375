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

package pquery

import (
	"bytes"
	"cmp"
	"concbench/apperr"
	"concbench/fcache"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	SortFreq  = "freq"
	SortValue = "value"

	// sortFreqPrefix starts sort keys referring to a single concordance
	// (e.g. `freq-<concID>`)
	sortFreqPrefix = "freq-"

	totalRowKey = "__total__"
)

// Page is a part of a stored result
type Page struct {
	Total   int      `json:"total"`
	ConcIDs []string `json:"conc_ids"`
	Rows    []Row    `json:"rows"`
}

// PageArgs specifies which part of a result to read and in which order
type PageArgs struct {
	Sort    string
	Reverse bool
	Offset  int
	Limit   int
}

func encodeResult(rows []Row) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{totalRowKey, strconv.Itoa(len(rows))}); err != nil {
		return nil, err
	}
	record := make([]string, 0, 5)
	for _, row := range rows {
		record = append(record[:0], row.Value)
		for _, f := range row.Freqs {
			record = append(record, strconv.Itoa(f))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return &buf, w.Error()
}

func decodeRow(record []string) (Row, error) {
	if len(record) < 2 {
		return Row{}, fmt.Errorf("invalid result row %v", record)
	}
	ans := Row{Value: record[0], Freqs: make([]int, len(record)-1)}
	for i, v := range record[1:] {
		f, err := strconv.Atoi(v)
		if err != nil {
			return Row{}, fmt.Errorf("invalid result row %v: %w", record, err)
		}
		ans.Freqs[i] = f
	}
	return ans, nil
}

// resultFile provides access to a CSV file with a result. The first
// row contains the total number of rows, the other rows are
// already sorted by the sum of frequencies.
type resultFile struct {
	files *fcache.Cache
	key   string
}

func (rf resultFile) write(rows []Row) error {
	buf, err := encodeResult(rows)
	if err != nil {
		return fmt.Errorf("failed to encode paradigmatic query result: %w", err)
	}
	return rf.files.Write(rf.key, buf)
}

func (rf resultFile) open() (*csv.Reader, io.Closer, int, error) {
	f, err := rf.files.Open(rf.key)
	if errors.Is(err, fcache.ErrCacheMiss) {
		return nil, nil, 0, apperr.NewPqueryResultNotFound(rf.files.Path(rf.key))

	} else if err != nil {
		return nil, nil, 0, err
	}
	rd := csv.NewReader(f)
	rd.FieldsPerRecord = -1
	rd.ReuseRecord = true
	head, err := rd.Read()
	if err != nil || len(head) != 2 || head[0] != totalRowKey {
		f.Close()
		return nil, nil, 0, fmt.Errorf("invalid result file %s", rf.files.Path(rf.key))
	}
	total, err := strconv.Atoi(head[1])
	if err != nil {
		f.Close()
		return nil, nil, 0, fmt.Errorf("invalid result file %s: %w", rf.files.Path(rf.key), err)
	}
	return rd, f, total, nil
}

// readPartial reads rows in the stored order without loading
// the whole file
func (rf resultFile) readPartial(offset, limit int) (int, []Row, error) {
	rd, closer, total, err := rf.open()
	if err != nil {
		return 0, nil, err
	}
	defer closer.Close()
	ans := make([]Row, 0, limit)
	for i := 0; len(ans) < limit; i++ {
		record, err := rd.Read()
		if err == io.EOF {
			break

		} else if err != nil {
			return 0, nil, err
		}
		if i < offset {
			continue
		}
		row, err := decodeRow(record)
		if err != nil {
			return 0, nil, err
		}
		ans = append(ans, row)
	}
	return total, ans, nil
}

func (rf resultFile) readAll() ([]Row, error) {
	rd, closer, total, err := rf.open()
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	ans := make([]Row, 0, total)
	for {
		record, err := rd.Read()
		if err == io.EOF {
			break

		} else if err != nil {
			return nil, err
		}
		row, err := decodeRow(record)
		if err != nil {
			return nil, err
		}
		ans = append(ans, row)
	}
	return ans, nil
}

// sortRows sorts rows according to the `sortKey` which is one
// of `freq`, `value` and `freq-<concID>`. Frequencies are sorted
// in descending order, values in ascending one.
func sortRows(rows []Row, sortKey string, reverse bool, concIDs []string) error {
	var cmpFn func(a, b Row) int
	switch {
	case sortKey == SortFreq:
		cmpFn = func(a, b Row) int {
			return cmp.Compare(b.Sum(), a.Sum())
		}
	case sortKey == SortValue:
		cmpFn = func(a, b Row) int {
			return strings.Compare(a.Value, b.Value)
		}
	case strings.HasPrefix(sortKey, sortFreqPrefix):
		idx := slices.Index(concIDs, strings.TrimPrefix(sortKey, sortFreqPrefix))
		if idx < 0 {
			return apperr.NewUserInputError("invalid sort key `%s`", sortKey)
		}
		cmpFn = func(a, b Row) int {
			return cmp.Compare(b.Freqs[idx], a.Freqs[idx])
		}
	default:
		return apperr.NewUserInputError("invalid sort key `%s`", sortKey)
	}
	slices.SortStableFunc(rows, func(a, b Row) int {
		if reverse {
			return cmpFn(b, a)
		}
		return cmpFn(a, b)
	})
	return nil
}

// readPage reads a sorted part of a result. The stored order is
// used directly for `freq` sorting, other orders require the whole
// result to be loaded.
func (rf resultFile) readPage(args PageArgs, concIDs []string) (Page, error) {
	ans := Page{ConcIDs: concIDs}
	if args.Offset < 0 || args.Limit < 1 {
		return ans, apperr.NewUserInputError("invalid offset %d or limit %d", args.Offset, args.Limit)
	}
	if args.Sort == SortFreq && !args.Reverse {
		total, rows, err := rf.readPartial(args.Offset, args.Limit)
		if err != nil {
			return ans, err
		}
		ans.Total = total
		ans.Rows = rows
		return ans, nil
	}
	rows, err := rf.readAll()
	if err != nil {
		return ans, err
	}
	if err := sortRows(rows, args.Sort, args.Reverse, concIDs); err != nil {
		return ans, err
	}
	ans.Total = len(rows)
	from, to := min(args.Offset, len(rows)), min(args.Offset+args.Limit, len(rows))
	ans.Rows = rows[from:to]
	return ans, nil
}
