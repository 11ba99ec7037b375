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


package history

import (
	"concbench/cncdb"
	"concbench/formargs"
	"concbench/qpersist"
	"fmt"

	"github.com/rs/zerolog/log"
)

// FilterInfo describes a filter a history item refers to
type FilterInfo struct {
	Query       string `json:"query"`
	QueryType   string `json:"query_type"`
	Qmcase      bool   `json:"qmcase"`
	DefaultAttr string `json:"default_attr"`
	Pnfilter    string `json:"pnfilter"`
	Filfl       string `json:"filfl"`
	Filfpos     string `json:"filfpos"`
	Filtpos     string `json:"filtpos"`
	Inclkwic    bool   `json:"inclkwic"`
	WithinCorp  string `json:"within_corp,omitempty"`
}

// Item is a readable query history item
type Item struct {
	QueryID   string               `json:"query_id"`
	UserID    int                  `json:"user_id"`
	Created   int64                `json:"created"`
	Name      string               `json:"name,omitempty"`
	Supertype cncdb.QuerySupertype `json:"q_supertype"`
	Corpname  string               `json:"corpname"`
	Aligned   []string             `json:"aligned"`

	SubcorpusID   string `json:"subcorpus_id,omitempty"`
	SubcorpusName string `json:"subcorpus_name,omitempty"`

	// Queries, QueryTypes and DefaultAttrs are keyed by corpora
	Queries           map[string]string   `json:"queries,omitempty"`
	QueryTypes        map[string]string   `json:"query_types,omitempty"`
	DefaultAttrs      map[string]string   `json:"default_attrs,omitempty"`
	SelectedTextTypes map[string][]string `json:"selected_text_types,omitempty"`

	// Filters lists filters between the initial query and the referenced
	// operation (the last one first)
	Filters []FilterInfo `json:"filters,omitempty"`

	// LastopForm contains arguments of pquery, wlist and kwords items
	LastopForm map[string]any `json:"lastop_form,omitempty"`

	// AnchorID differs from QueryID in case the item referred
	// to an operation other than a query or a filter
	AnchorID string `json:"anchor_id"`
}

func filterInfo(form *formargs.FilterFormArgs) FilterInfo {
	return FilterInfo{
		Query:       form.Query,
		QueryType:   form.QueryType,
		Qmcase:      form.Qmcase,
		DefaultAttr: form.DefaultAttr,
		Pnfilter:    form.Pnfilter,
		Filfl:       form.Filfl,
		Filfpos:     form.Filfpos,
		Filtpos:     form.Filtpos,
		Inclkwic:    form.Inclkwic,
		WithinCorp:  form.WithinCorp,
	}
}

func (s *Service) subcName(id string) string {
	if id == "" || s.subc == nil {
		return ""
	}
	names, err := s.subc.GetNames([]string{id})
	if err != nil {
		log.Error().Err(err).Str("subcorpusId", id).Msg("failed to get subcorpus name")
		return id
	}
	if name, ok := names[id]; ok {
		return name
	}
	return id
}

// hydrateConc walks back from a (possibly re-anchored) concordance
// operation to its initial query and collects filters on the way
func (s *Service) hydrateConc(item *Item) error {
	rec, walked, err := qpersist.OpenAnchor(s.records, item.QueryID)
	if err != nil {
		return err
	}
	if walked {
		log.Warn().
			Str("queryId", item.QueryID).
			Str("anchorId", rec.ID).
			Msg("history item does not refer to a query or a filter, using a preceding operation")
	}
	item.AnchorID = rec.ID
	for i := 0; ; i++ {
		if i >= qpersist.MaxChainLength {
			return fmt.Errorf("chain of %s is too long or cyclic", item.QueryID)
		}
		form, err := rec.FormArgs()
		if err != nil {
			return err
		}
		switch tForm := form.(type) {
		case *formargs.QueryFormArgs:
			item.Corpname = rec.PrimaryCorpus()
			item.Aligned = rec.AlignedCorpora()
			item.SubcorpusID = rec.UseSubcorp
			item.SubcorpusName = s.subcName(rec.UseSubcorp)
			item.Queries = tForm.CurrQueries
			item.QueryTypes = tForm.CurrQueryTypes
			item.DefaultAttrs = tForm.CurrDefaultAttrValues
			item.SelectedTextTypes = tForm.SelectedTextTypes
			return nil
		case *formargs.FilterFormArgs:
			item.Filters = append(item.Filters, filterInfo(tForm))
		default:
			return fmt.Errorf("unexpected operation %s in chain of %s", rec.FormType(), item.QueryID)
		}
		if rec.PrevID == "" {
			return fmt.Errorf("chain of %s does not start with a query", item.QueryID)
		}
		rec, _, err = qpersist.OpenAnchor(s.records, rec.PrevID)
		if err != nil {
			return err
		}
	}
}

func (s *Service) hydrate(hRec cncdb.HistoryRecord) (Item, error) {
	item := Item{
		QueryID:   hRec.QueryID,
		UserID:    hRec.UserID,
		Created:   hRec.Created,
		Name:      hRec.Name,
		Supertype: hRec.Supertype,
		Aligned:   []string{},
	}
	if hRec.Supertype == cncdb.QuerySupertypeConc {
		if err := s.hydrateConc(&item); err != nil {
			return item, err
		}
		return item, nil
	}
	rec, err := s.records.Open(hRec.QueryID)
	if err != nil {
		return item, err
	}
	item.AnchorID = rec.ID
	item.Corpname = rec.PrimaryCorpus()
	if item.Corpname == "" {
		item.Corpname = hRec.CorpusName
	}
	item.Aligned = rec.AlignedCorpora()
	item.SubcorpusID = rec.UseSubcorp
	item.SubcorpusName = s.subcName(rec.UseSubcorp)
	item.LastopForm = rec.LastopForm
	return item, nil
}
