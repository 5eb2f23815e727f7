// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hq

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CacheFile is the name of the persisted cache inside the model directory.
const CacheFile = "hq_cache.toml"

// Cache stores HQ-subproblem answers by canonical key.
type Cache interface {
	Get(key string) (Entry, bool)
	Put(key string, e Entry)
}

// MemoryCache is a Cache living for one run.
type MemoryCache struct {
	entries map[string]Entry
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Put implements Cache. An existing entry is never replaced.
func (c *MemoryCache) Put(key string, e Entry) {
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = e
	}
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	return len(c.entries)
}

// FileCache is a MemoryCache persisted to CacheFile in a model directory.
// It is read once by OpenFileCache and written once by Save.
type FileCache struct {
	*MemoryCache
	path        string
	fingerprint uint64
}

type cacheFile struct {
	Fingerprint string       `toml:"fingerprint"`
	Entries     []cacheEntry `toml:"entry"`
}

type cacheEntry struct {
	Key       string    `toml:"key"`
	Objective float64   `toml:"objective"`
	X         []float64 `toml:"x"`
}

// OpenFileCache loads the cache of a model directory. The stored entries are
// discarded when the model files changed since they were written: the fingerprint
// of file names and modification times differs, or a model file is newer than the cache.
func OpenFileCache(dir string, logger *zap.Logger) (*FileCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fp, newest, err := fingerprint(dir)
	if err != nil {
		return nil, err
	}
	c := &FileCache{MemoryCache: NewMemoryCache(), path: filepath.Join(dir, CacheFile), fingerprint: fp}

	info, err := os.Stat(c.path)
	switch {
	case os.IsNotExist(err):
		return c, nil
	case err != nil:
		return nil, errors.Wrap(err, "stat hq cache")
	case newest.After(info.ModTime()):
		logger.Info("hq cache is older than the model files, discarding", zap.String("path", c.path))
		return c, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "read hq cache")
	}
	var f cacheFile
	if err = toml.Unmarshal(data, &f); err != nil {
		logger.Warn("unreadable hq cache, discarding", zap.String("path", c.path), zap.Error(err))
		return c, nil
	}
	if f.Fingerprint != formatFingerprint(fp) {
		logger.Info("hq cache fingerprint changed, discarding", zap.String("path", c.path))
		return c, nil
	}
	for _, e := range f.Entries {
		if len(e.X) != 2 {
			continue
		}
		c.Put(e.Key, Entry{Objective: e.Objective, X: [2]float64{e.X[0], e.X[1]}})
	}
	logger.Debug("hq cache loaded", zap.String("path", c.path), zap.Int("entries", c.Len()))
	return c, nil
}

// Save writes all entries to disk.
func (c *FileCache) Save() error {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	f := cacheFile{Fingerprint: formatFingerprint(c.fingerprint), Entries: make([]cacheEntry, len(keys))}
	for i, k := range keys {
		e := c.entries[k]
		f.Entries[i] = cacheEntry{Key: k, Objective: e.Objective, X: e.X[:]}
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(f); err != nil {
		return errors.Wrap(err, "encode hq cache")
	}
	return errors.Wrap(os.WriteFile(c.path, buf.Bytes(), 0o644), "write hq cache")
}

// fingerprint hashes the names and modification times of the regular files in dir,
// excluding the cache itself, and returns the newest modification time.
func fingerprint(dir string) (uint64, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, time.Time{}, errors.Wrap(err, "read model directory")
	}
	h := xxhash.New()
	var newest time.Time
	for _, de := range entries {
		if !de.Type().IsRegular() || de.Name() == CacheFile {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return 0, time.Time{}, errors.Wrap(err, "stat model file")
		}
		mt := info.ModTime()
		if mt.After(newest) {
			newest = mt
		}
		_, _ = h.WriteString(de.Name())
		_, _ = h.WriteString(strconv.FormatInt(mt.UnixNano(), 10))
	}
	return h.Sum64(), newest, nil
}

func formatFingerprint(fp uint64) string {
	return strconv.FormatUint(fp, 16)
}
