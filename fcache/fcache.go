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

// Package fcache provides content-addressed on-disk caches used for
// concordance hits, collocations, paradigmatic query results and ARF
// databases. Files are written atomically so readers never see
// partially written data.
package fcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is a directory of files addressed by hex keys. Files are
// spread into subdirectories by the first two characters of the key.
type Cache struct {
	rootDir string
	ext     string
}

func (c *Cache) RootDir() string {
	return c.rootDir
}

func (c *Cache) Path(key string) string {
	if len(key) < 3 {
		return filepath.Join(c.rootDir, key+c.ext)
	}
	return filepath.Join(c.rootDir, key[:2], key+c.ext)
}

func (c *Cache) Contains(key string) bool {
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Write atomically replaces a file identified by the key
func (c *Cache) Write(key string, data io.Reader) error {
	path := c.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", path, err)
	}
	if err := atomic.WriteFile(path, data); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", path, err)
	}
	return nil
}

func (c *Cache) WriteJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value %s: %w", key, err)
	}
	return c.Write(key, bytes.NewReader(data))
}

// Open opens a cache file for reading. A missing file produces ErrCacheMiss.
// The file's modification time is updated so the sweeper considers
// the file recently used.
func (c *Cache) Open(key string) (*os.File, error) {
	path := c.Path(key)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrCacheMiss

	} else if err != nil {
		return nil, fmt.Errorf("failed to open cache file %s: %w", path, err)
	}
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to touch cache file")
	}
	return f, nil
}

func (c *Cache) ReadJSON(key string, value any) error {
	f, err := c.Open(key)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(value); err != nil {
		return fmt.Errorf("failed to decode cache file %s: %w", f.Name(), err)
	}
	return nil
}

func (c *Cache) Remove(key string) error {
	err := os.Remove(c.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// Sweep removes files not modified within `maxAge`. It returns number
// of removed files.
func (c *Cache) Sweep(maxAge time.Duration) (int, error) {
	limit := time.Now().Add(-maxAge)
	var numRemoved int
	err := filepath.WalkDir(c.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(limit) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			numRemoved++
		}
		return nil
	})
	if err != nil {
		return numRemoved, fmt.Errorf("failed to sweep cache %s: %w", c.rootDir, err)
	}
	return numRemoved, nil
}

// New creates a cache stored in `rootDir`, files get the `ext` extension
// (e.g. `.csv`)
func New(rootDir, ext string) *Cache {
	return &Cache{rootDir: rootDir, ext: ext}
}
