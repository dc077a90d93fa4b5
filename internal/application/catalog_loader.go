package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-wattwise/internal/catalog"
)

// CatalogLoader parses plan catalogs and caches them by content hash, so a
// long-running process can reload the catalog file cheaply and concurrent
// loads of the same content parse once.
// Cached catalogs are shared and MUST NOT be mutated.
type CatalogLoader struct {
	mu    sync.RWMutex
	cache map[string]*catalog.Catalog // format:sha256 -> catalog
	sf    singleflight.Group
}

// NewCatalogLoader returns a loader with an empty cache.
func NewCatalogLoader() *CatalogLoader {
	return &CatalogLoader{cache: make(map[string]*catalog.Catalog)}
}

// Load reads a YAML or JSON catalog from path. A .json extension selects
// JSON.
func (l *CatalogLoader) Load(ctx context.Context, path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	cat, err := l.load(ctx, data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// LoadFromReader reads a YAML catalog from r.
func (l *CatalogLoader) LoadFromReader(ctx context.Context, r io.Reader) (*catalog.Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return l.load(ctx, data, false)
}

func (l *CatalogLoader) load(ctx context.Context, data []byte, isJSON bool) (*catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	key := "yaml:" + hex.EncodeToString(sum[:])
	if isJSON {
		key = "json:" + key[len("yaml:"):]
	}

	v, err, _ := l.sf.Do(key, func() (any, error) {
		if cat, ok := l.cached(key); ok {
			return cat, nil
		}
		parse := catalog.Parse
		if isJSON {
			parse = catalog.ParseJSON
		}
		cat, err := parse(data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[key] = cat
		l.mu.Unlock()
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Catalog), nil
}

func (l *CatalogLoader) cached(key string) (*catalog.Catalog, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cat, ok := l.cache[key]
	return cat, ok
}

// ClearCache drops every cached catalog.
func (l *CatalogLoader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*catalog.Catalog)
}
