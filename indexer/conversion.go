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


package indexer

import (
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/indexer/documents"
	"concbench/qpersist"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrRecordNotIndexable = errors.New("record is not indexable")
)

const (
	defaultAttrFallback = "word"
)

// SubcNames resolves human readable names of subcorpora
// (see subcorpus.Service)
type SubcNames interface {
	GetNames(ids []string) (map[string]string, error)
}

type converter struct {
	records qpersist.Opener
	subc    SubcNames
}

func (conv *converter) subcName(id string) (string, error) {
	if id == "" || conv.subc == nil {
		return "", nil
	}
	names, err := conv.subc.GetNames([]string{id})
	if err != nil {
		return "", fmt.Errorf("failed to get subcorpus name: %w", err)
	}
	if name, ok := names[id]; ok {
		return name, nil
	}
	return id, nil
}

func addTextTypes(doc *documents.MidDoc, tt map[string][]string) {
	for attr, items := range tt {
		for _, v := range items {
			doc.AddStructAttr(attr, v)
		}
		if strct, _, ok := strings.Cut(attr, "."); ok {
			doc.AddStructure(strct)
		}
	}
}

// importConc fills in properties of a concordance chain ending
// with `concID`. Filters found on the way back to the initial
// query are indexed as additional queries.
func (conv *converter) importConc(doc *documents.MidDoc, concID string) error {
	rec, _, err := qpersist.OpenAnchor(conv.records, concID)
	if err != nil {
		return err
	}
	firstQuery := len(doc.RawQueries)
	for i := 0; rec.FormType() == formargs.FormTypeFilter; i++ {
		if i >= qpersist.MaxChainLength {
			return fmt.Errorf("chain of %s is too long or cyclic", concID)
		}
		form, err := rec.FormArgs()
		if err != nil {
			return err
		}
		if tForm, ok := form.(*formargs.FilterFormArgs); ok && tForm.Query != "" {
			doc.RawQueries = append(doc.RawQueries, cncdb.RawQuery{Value: tForm.Query, Type: tForm.QueryType})
		}
		if rec.PrevID == "" {
			return ErrRecordNotIndexable
		}
		rec, _, err = qpersist.OpenAnchor(conv.records, rec.PrevID)
		if err != nil {
			return err
		}
	}
	form, err := rec.FormArgs()
	if err != nil {
		return err
	}
	qForm, ok := form.(*formargs.QueryFormArgs)
	if !ok {
		return ErrRecordNotIndexable
	}
	for _, corp := range rec.Corpora {
		if !slices.Contains(doc.Corpora, corp) {
			doc.Corpora = append(doc.Corpora, corp)
		}
		if q := qForm.CurrQueries[corp]; q != "" {
			doc.RawQueries = append(doc.RawQueries, cncdb.RawQuery{Value: q, Type: qForm.CurrQueryTypes[corp]})
		}
	}
	subcName, err := conv.subcName(rec.UseSubcorp)
	if err != nil {
		return err
	}
	if subcName != "" && !slices.Contains(doc.Subcorpora, subcName) {
		doc.Subcorpora = append(doc.Subcorpora, subcName)
	}
	defaultAttr := qForm.CurrDefaultAttrValues[rec.PrimaryCorpus()]
	if defaultAttr == "" {
		defaultAttr = defaultAttrFallback
	}
	if err := documents.ExtractQueryProps(defaultAttr, doc.RawQueries[firstQuery:], doc); err != nil {
		log.Warn().
			Err(err).
			Str("concId", concID).
			Msg("indexing record with unparseable CQL query")
	}
	addTextTypes(doc, qForm.SelectedTextTypes)
	return nil
}

func (conv *converter) importWlist(doc *documents.MidDoc, form *formargs.WlistFormArgs) error {
	subcName, err := conv.subcName(form.UseSubcorp)
	if err != nil {
		return err
	}
	doc.Corpora = []string{form.Corpname}
	if subcName != "" {
		doc.Subcorpora = []string{subcName}
	}
	if form.WLPattern != "" {
		doc.RawQueries = []cncdb.RawQuery{{Value: form.WLPattern, Type: documents.QueryTypeRegexp}}
	}
	doc.PosAttrs[form.WLAttr] = []string{}
	doc.PFilterWords = form.PFilterWords
	doc.NFilterWords = form.NFilterWords
	return nil
}

func (conv *converter) importKwords(doc *documents.MidDoc, form *formargs.KwordsFormArgs) error {
	doc.Corpora = []string{form.Corpname, form.RefCorpname}
	for _, subc := range []string{form.UseSubcorp, form.RefUsesubcorp} {
		name, err := conv.subcName(subc)
		if err != nil {
			return err
		}
		if name != "" {
			doc.Subcorpora = append(doc.Subcorpora, name)
		}
	}
	if form.WLPattern != "" {
		doc.RawQueries = []cncdb.RawQuery{{Value: form.WLPattern, Type: documents.QueryTypeRegexp}}
	}
	doc.PosAttrs[form.WLAttr] = []string{}
	return nil
}

// importPquery merges properties of all the involved concordances
func (conv *converter) importPquery(doc *documents.MidDoc, form *formargs.PqueryFormArgs) error {
	doc.Corpora = []string{form.Corpname}
	for i, concID := range form.ConcIDs {
		if err := conv.importConc(doc, concID); err != nil {
			return fmt.Errorf("failed to process pquery concordance #%d: %w", i, err)
		}
	}
	if _, ok := doc.PosAttrs[form.Attr]; !ok {
		doc.PosAttrs[form.Attr] = []string{}
	}
	return nil
}

// RecToDoc converts a query history item into an intermediate
// document. Records which cannot be indexed produce ErrRecordNotIndexable.
func (conv *converter) RecToDoc(hRec *cncdb.HistoryRecord) (*documents.MidDoc, error) {
	doc := documents.NewMidDoc(hRec)
	if hRec.Supertype == cncdb.QuerySupertypeConc {
		if err := conv.importConc(doc, hRec.QueryID); err != nil {
			return nil, fmt.Errorf("failed to convert rec. to doc.: %w", err)
		}
		return doc, nil
	}
	rec, err := conv.records.Open(hRec.QueryID)
	if err != nil {
		return nil, fmt.Errorf("failed to convert rec. to doc.: %w", err)
	}
	form, err := rec.FormArgs()
	if err != nil {
		return nil, fmt.Errorf("failed to convert rec. to doc.: %w", err)
	}
	switch tForm := form.(type) {
	case *formargs.WlistFormArgs:
		err = conv.importWlist(doc, tForm)
	case *formargs.KwordsFormArgs:
		err = conv.importKwords(doc, tForm)
	case *formargs.PqueryFormArgs:
		err = conv.importPquery(doc, tForm)
	default:
		err = ErrRecordNotIndexable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to convert rec. to doc.: %w", err)
	}
	return doc, nil
}
