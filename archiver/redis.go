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
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisAdapter struct {
	conf           *RedisConf
	redis          *redis.Client
	ctx            context.Context
	queueKey       string
	failedQueueKey string
}

func (rd *RedisAdapter) String() string {
	if rd.redis == nil {
		return fmt.Sprintf(
			"RedisAdapter (inactive), address %s:%d, db %d",
			rd.conf.Host, rd.conf.Port, rd.conf.DB,
		)
	}
	return fmt.Sprintf(
		"RedisAdapter (active) address %s:%d, db %d",
		rd.conf.Host, rd.conf.Port, rd.conf.DB,
	)
}

func (rd *RedisAdapter) Close() error {
	return rd.redis.Close()
}

// Get returns a string value of a key. For non-existing keys,
// an empty string is returned (and no error).
func (rd *RedisAdapter) Get(k string) (string, error) {
	cmd := rd.redis.Get(rd.ctx, k)
	if cmd.Err() == redis.Nil {
		return "", nil
	}
	if cmd.Err() != nil {
		return "", fmt.Errorf("failed to get Redis entry %s: %w", k, cmd.Err())
	}
	return cmd.Val(), nil
}

// Set stores a value with an optional TTL (zero means no expiration)
func (rd *RedisAdapter) Set(k string, v any, ttl time.Duration) error {
	cmd := rd.redis.Set(rd.ctx, k, v, ttl)
	if cmd.Err() != nil {
		return fmt.Errorf("failed to set Redis item %s: %w", k, cmd.Err())
	}
	return nil
}

func (rd *RedisAdapter) Del(k string) error {
	if err := rd.redis.Del(rd.ctx, k).Err(); err != nil {
		return fmt.Errorf("failed to delete Redis item %s: %w", k, err)
	}
	return nil
}

func (rd *RedisAdapter) HGet(key, field string) (string, error) {
	cmd := rd.redis.HGet(rd.ctx, key, field)
	if cmd.Err() == redis.Nil {
		return "", cncdb.ErrRecordNotFound
	}
	if cmd.Err() != nil {
		return "", fmt.Errorf("failed to get hash field %s[%s]: %w", key, field, cmd.Err())
	}
	return cmd.Val(), nil
}

func (rd *RedisAdapter) HSet(key, field string, value any) error {
	if err := rd.redis.HSet(rd.ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to set hash field %s[%s]: %w", key, field, err)
	}
	return nil
}

func (rd *RedisAdapter) HDel(key, field string) error {
	if err := rd.redis.HDel(rd.ctx, key, field).Err(); err != nil {
		return fmt.Errorf("failed to delete hash field %s[%s]: %w", key, field, err)
	}
	return nil
}

func (rd *RedisAdapter) HGetAll(key string) (map[string]string, error) {
	cmd := rd.redis.HGetAll(rd.ctx, key)
	if cmd.Err() != nil {
		return map[string]string{}, fmt.Errorf("failed to get hash %s: %w", key, cmd.Err())
	}
	return cmd.Val(), nil
}

func (rd *RedisAdapter) TriggerChan(chname, value string) error {
	return rd.redis.Publish(rd.ctx, chname, value).Err()
}

// ChannelSubscribe subscribe to a Redis channel with a specified name.
func (rd *RedisAdapter) ChannelSubscribe(name string) <-chan *redis.Message {
	sub := rd.redis.Subscribe(rd.ctx, name)
	return sub.Channel()
}

func (rd *RedisAdapter) pushQueueRecord(item queueRecord) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to enqueue item %s: %w", item.Key, err)
	}
	if err := rd.redis.RPush(rd.ctx, rd.queueKey, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to enqueue item %s: %w", item.Key, err)
	}
	return nil
}

// EnqueueArchive adds a request to copy a record to the cold store.
func (rd *RedisAdapter) EnqueueArchive(id string, explicit bool) error {
	return rd.pushQueueRecord(queueRecord{
		Type:     QRTypeArchive,
		Key:      rd.mkKey(id),
		Explicit: explicit,
	})
}

// EnqueueHistory adds a query history item to be processed
// by the background job (typically to be indexed).
func (rd *RedisAdapter) EnqueueHistory(rec cncdb.HistoryRecord) error {
	return rd.pushQueueRecord(queueRecord{
		Type:       QRTypeHistory,
		Key:        rd.mkKey(rec.QueryID),
		UserID:     rec.UserID,
		Created:    rec.Created,
		Name:       rec.Name,
		CorpusName: rec.CorpusName,
		Supertype:  rec.Supertype,
	})
}

func (rd *RedisAdapter) QueueSize() (int64, error) {
	cmd := rd.redis.LLen(rd.ctx, rd.queueKey)
	if cmd.Err() != nil {
		return 0, fmt.Errorf("failed to get queue size: %w", cmd.Err())
	}
	return cmd.Val(), nil
}

func (rd *RedisAdapter) NextNArchItems(n int64) ([]queueRecord, error) {
	ans := make([]queueRecord, 0, n)
	ppl := rd.redis.Pipeline()
	lrangeCmd := ppl.LRange(rd.ctx, rd.queueKey, 0, n-1)
	ppl.LTrim(rd.ctx, rd.queueKey, n, -1)
	_, err := ppl.Exec(rd.ctx)
	if err != nil {
		return []queueRecord{}, fmt.Errorf("failed to get items from queue: %w", err)
	}
	items, err := lrangeCmd.Result()
	if err != nil {
		return []queueRecord{}, fmt.Errorf("failed to get items from queue: %w", err)
	}
	for _, item := range items {
		if strings.Contains(item, `"key"`) {
			var v queueRecord
			err := json.Unmarshal([]byte(item), &v)
			if err != nil {
				return []queueRecord{}, fmt.Errorf("failed to decode queue item `%s`: %w", item, err)
			}
			ans = append(ans, v)

		} else {
			ans = append(ans, queueRecord{Type: QRTypeArchive, Key: item})
		}
	}
	return ans, nil
}

func (rd *RedisAdapter) AddError(item queueRecord, rec *cncdb.QueryArchRec) error {
	itemJSON, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to add error record %s: %w", item.Key, err)
	}
	cmd := rd.redis.LPush(rd.ctx, rd.failedQueueKey, string(itemJSON))
	if cmd.Err() != nil {
		return fmt.Errorf("failed to insert error key %s: %w", item.Key, cmd.Err())
	}
	if rec != nil {
		cmd = rd.redis.HSet(rd.ctx, rd.failedQueueKey+":data", item.Key, rec.Data)
		if cmd.Err() != nil {
			return fmt.Errorf("failed to insert error record %s: %w", item.Key, cmd.Err())
		}
	}
	return nil
}

func (rd *RedisAdapter) mkKey(id string) string {
	return concRecordKeyPrefix + id
}

// GetConcRecord returns a concordance/wlist/pquery/kwords records
// with a specified ID. In case no such record is found, ErrRecordNotFound
// is returned.
func (rd *RedisAdapter) GetConcRecord(id string) (cncdb.QueryArchRec, error) {
	ans := rd.redis.Get(rd.ctx, rd.mkKey(id))
	if ans.Err() == redis.Nil {
		return cncdb.QueryArchRec{}, cncdb.ErrRecordNotFound
	}
	if ans.Err() != nil {
		return cncdb.QueryArchRec{}, fmt.Errorf("failed to get concordance record: %w", ans.Err())
	}
	return cncdb.QueryArchRec{
		ID:   id,
		Data: ans.Val(),
	}, nil
}

// SetConcRecord stores operation record data with a specified TTL
// (zero means no expiration)
func (rd *RedisAdapter) SetConcRecord(id string, data string, ttl time.Duration) error {
	if err := rd.redis.Set(rd.ctx, rd.mkKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store concordance record %s: %w", id, err)
	}
	return nil
}

func (rd *RedisAdapter) DelConcRecord(id string) error {
	return rd.Del(rd.mkKey(id))
}

// ConcCacheKey returns a key of a Redis hash containing conc. cache
// status records of a corpus.
func ConcCacheKey(corpusID string) string {
	return fmt.Sprintf("conc_cache:%s", strings.ToLower(corpusID))
}

// ConcCacheField is an exact rewrite of KonText's `_uniqname` function stored in
// lib/plugins/default_conc_cache/__init__.py. It is important to keep this in sync as
// otherwise, we won't be able to share cache records with KonText.
func ConcCacheField(corpusID, subcorpusID string, q []string, cutoff int) string {
	corpusIDLw := strings.ToLower(corpusID)
	corpKey := corpusIDLw
	if subcorpusID != "" {
		corpKey = corpusIDLw + "/" + subcorpusID
	}
	hashInput := strings.Join(q, "#") + corpKey + strconv.Itoa(cutoff)
	hash := sha1.Sum([]byte(hashInput))
	return fmt.Sprintf("%x", hash)
}

// GetConcCacheRawRecord gets a raw representation of conc. cache record
// (i.e. without parsed data).
func (rd *RedisAdapter) GetConcCacheRawRecord(id string) (ConcCacheRec, error) {
	concRecord, err := rd.GetConcRecord(id)
	if err != nil {
		return ConcCacheRec{}, fmt.Errorf("failed to get concordance record: %w", err)
	}
	data, err := concRecord.FetchData()
	if err != nil {
		return ConcCacheRec{}, fmt.Errorf("failed to fetch concordance record data: %w", err)
	}
	corpora := data.GetCorpora()
	if len(corpora) == 0 {
		return ConcCacheRec{}, fmt.Errorf("record %s does not contain corpora", id)
	}
	field := ConcCacheField(corpora[0], data.GetSubcorpus(), data.GetQuery(), 0)
	ans, err := rd.HGet(ConcCacheKey(corpora[0]), field)
	if errors.Is(err, cncdb.ErrRecordNotFound) {
		return ConcCacheRec{ID: field}, cncdb.ErrRecordNotFound
	}
	if err != nil {
		return ConcCacheRec{}, fmt.Errorf("failed to get conc_cache record: %w", err)
	}
	return ConcCacheRec{
		ID:   field,
		Data: ans,
	}, nil
}

func NewRedisAdapter(ctx context.Context, conf *RedisConf, archConf *Conf) *RedisAdapter {
	ans := &RedisAdapter{
		conf: conf,
		redis: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
			Password: conf.Password,
			DB:       conf.DB,
		}),
		ctx:            ctx,
		queueKey:       archConf.QueueKey,
		failedQueueKey: archConf.FailedQueueKey,
	}
	return ans
}
