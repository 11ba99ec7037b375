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

package archiver

import (
	"concbench/cncdb"
	"context"
	"strings"
)

type QueueRecordType string

const (
	QRTypeArchive QueueRecordType = "archive"
	QRTypeHistory QueueRecordType = "history"

	concRecordKeyPrefix = "concordance:"
)

type queueRecord struct {
	Type QueueRecordType `json:"type"`
	Key  string          `json:"key"`

	// query persistence data
	Explicit bool `json:"explicit"`

	// query history data
	UserID     int                  `json:"user_id"`
	Created    int64                `json:"created"`
	Name       string               `json:"name"`
	CorpusName string               `json:"corpus_name"`
	Supertype  cncdb.QuerySupertype `json:"q_supertype"`
}

func (qr queueRecord) IsArchive() bool {
	return qr.Type == QRTypeArchive || qr.Type == ""
}

func (qr queueRecord) IsHistory() bool {
	return qr.Type == QRTypeHistory
}

func (qr queueRecord) KeyCode() string {
	return strings.TrimPrefix(qr.Key, concRecordKeyPrefix)
}

func (qr queueRecord) HistoryRecord() cncdb.HistoryRecord {
	return cncdb.HistoryRecord{
		QueryID:    qr.KeyCode(),
		UserID:     qr.UserID,
		Created:    qr.Created,
		Name:       qr.Name,
		CorpusName: qr.CorpusName,
		Supertype:  qr.Supertype,
	}
}

// -----------------------

type ConcCacheRec struct {
	ID   string
	Data string
}

// -----------------------

// RecordArchiver copies a record (along with its not yet archived
// ancestors) from the hot store to the cold one. It returns number
// of actually inserted records.
type RecordArchiver interface {
	Archive(ctx context.Context, id string, explicit bool) (int, error)
}

// HistoryListener is notified about query history items
// passed via the archiving queue.
type HistoryListener interface {
	OnHistoryItem(rec cncdb.HistoryRecord)
}
