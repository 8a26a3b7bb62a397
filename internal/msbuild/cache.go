package msbuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xamarin/mirepoix/internal/logging"
	"github.com/xamarin/mirepoix/internal/pathutil"
)

// DefaultCacheSize is the number of evaluations kept by NewCachingEvaluator
// when size is not positive.
const DefaultCacheSize = 512

type cacheEntry struct {
	project *Project
	err     error
}

// CachingEvaluator memoises another Evaluator by resolved path and global
// property set. Failed evaluations are cached too, except cancellations.
// Returned projects are shared and must not be modified.
type CachingEvaluator struct {
	inner  Evaluator
	cache  *lru.Cache[string, cacheEntry]
	logger *slog.Logger
}

// NewCachingEvaluator wraps inner with an LRU cache holding size entries.
func NewCachingEvaluator(inner Evaluator, size int, logger *slog.Logger) (*CachingEvaluator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create evaluation cache: %w", err)
	}
	return &CachingEvaluator{inner: inner, cache: cache, logger: logging.OrDiscard(logger)}, nil
}

// Evaluate implements Evaluator.
func (c *CachingEvaluator) Evaluate(ctx context.Context, path string, globalProperties map[string]string) (*Project, error) {
	key := cacheKey(pathutil.ResolveFull(path), globalProperties)
	if e, ok := c.cache.Get(key); ok {
		c.logger.Debug("evaluation cache hit", "path", path)
		return e.project, e.err
	}
	p, err := c.inner.Evaluate(ctx, path, globalProperties)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{project: p, err: err})
	return p, err
}

// Len returns the number of cached evaluations.
func (c *CachingEvaluator) Len() int {
	return c.cache.Len()
}

// Purge drops every cached evaluation.
func (c *CachingEvaluator) Purge() {
	c.cache.Purge()
}

func cacheKey(path string, globals map[string]string) string {
	pairs := make([]string, 0, len(globals))
	for k, v := range globals {
		pairs = append(pairs, strings.ToLower(k)+"="+v)
	}
	sort.Strings(pairs)
	return path + "\x00" + strings.Join(pairs, "\x00")
}
