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
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ChannelSubscriber provides messages published to a channel
// (see archiver.RedisAdapter)
type ChannelSubscriber interface {
	ChannelSubscribe(name string) <-chan *redis.Message
}

// Service keeps the embedded index in sync with the query history
// table. Deleted history items are announced via a pub/sub channel
// (payload = index ID of the item).
type Service struct {
	indexer    *Indexer
	rmChanName string
	rmChan     <-chan *redis.Message
}

func (service *Service) Indexer() *Indexer {
	return service.indexer
}

func (service *Service) Start(ctx context.Context) {
	log.Info().
		Str("channel", service.rmChanName).
		Msg("starting indexer.Service task")
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close indexer.Service")
				return
			case msg, ok := <-service.rmChan:
				if !ok {
					log.Warn().Msg("deleted items channel closed, indexer.Service ends")
					return
				}
				log.Debug().Str("id", msg.Payload).Msg("about to remove item from Bleve index")
				if err := service.indexer.Delete(msg.Payload); err != nil {
					log.Error().Err(err).Str("id", msg.Payload).Msg("failed to remove item from index")
				}
			}
		}
	}()
}

// OnHistoryItem indexes a new query history item
// (see archiver.HistoryListener)
func (service *Service) OnHistoryItem(rec cncdb.HistoryRecord) {
	if _, err := service.indexer.IndexRecord(&rec); err != nil {
		log.Error().
			Err(err).
			Str("queryId", rec.QueryID).
			Int("userId", rec.UserID).
			Msg("failed to index query history item")
	}
}

func (service *Service) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping indexer.Service task")
	return service.indexer.Close()
}

func NewService(indexer *Indexer, subscr ChannelSubscriber, rmChanName string) *Service {
	return &Service{
		indexer:    indexer,
		rmChanName: rmChanName,
		rmChan:     subscr.ChannelSubscribe(rmChanName),
	}
}
