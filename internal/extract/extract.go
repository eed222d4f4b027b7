// Package extract turns a source item reference into a canonical product.
// Fetched pages are hashed so an unchanged page is never normalized twice.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Extractor knows where a platform's item lives and how to read it
type Extractor interface {
	SourceURL(msg domain.ItemMessage) (string, error)
	Normalize(msg domain.ItemMessage, raw []byte) (*domain.Product, error)
}

// Fetcher downloads a source document
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Service fetches, normalizes and caches source items
type Service struct {
	fetcher    Fetcher
	extractors map[domain.Source]Extractor
	cache      storage.CacheStore
	ttl        time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// NewService creates an extraction service with the default extractor of every source
func NewService(fetcher Fetcher, cache storage.CacheStore, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		fetcher: fetcher,
		extractors: map[domain.Source]Extractor{
			domain.SourceShopify:   Shopify{},
			domain.SourceWordPress: WordPress{},
			domain.SourceWix:       Wix{},
		},
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: log.Component("extract"),
	}
}

// FetchAndNormalize returns the canonical product of msg's item.
// Failures are classified as fetch_failed.
func (s *Service) FetchAndNormalize(ctx context.Context, msg domain.ItemMessage) (*domain.Product, error) {
	ext, ok := s.extractors[msg.Source]
	if !ok {
		return nil, domain.NewProcessError(domain.ReasonMissingFields, fmt.Errorf("%w: %s", domain.ErrInvalidSource, msg.Source))
	}

	url, err := ext.SourceURL(msg)
	if err != nil {
		return nil, domain.NewProcessError(domain.ReasonFetchFailed, err)
	}

	entry, err := s.cache.GetCache(ctx, url)
	if err != nil && !errors.Is(err, domain.ErrCacheMiss) {
		s.logger.Warn("Cache lookup failed", slog.String("url", url), slog.Any("error", err))
		entry = nil
	}
	if entry.Fresh(s.now(), s.ttl) {
		if p, err := decode(entry.Payload); err == nil {
			return p, nil
		}
	}

	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, domain.NewProcessError(domain.ReasonFetchFailed, err)
	}

	hash := contentHash(raw)
	if entry != nil && entry.ContentHash == hash {
		if p, err := decode(entry.Payload); err == nil {
			s.save(ctx, url, hash, entry.Payload)
			return p, nil
		}
	}

	product, err := ext.Normalize(msg, raw)
	if err != nil {
		return nil, domain.NewProcessError(domain.ReasonFetchFailed, fmt.Errorf("normalize %s: %w", url, err))
	}
	if product.Name == "" {
		return nil, domain.NewProcessError(domain.ReasonFetchFailed, fmt.Errorf("no product found at %s", url))
	}

	if payload, err := json.Marshal(product); err == nil {
		s.save(ctx, url, hash, payload)
	}
	return product, nil
}

// SweepCache deletes entries older than the cache TTL
func (s *Service) SweepCache(ctx context.Context) (int64, error) {
	return s.cache.DeleteExpiredCache(ctx, s.now().Add(-s.ttl))
}

func (s *Service) save(ctx context.Context, url, hash string, payload []byte) {
	err := s.cache.SaveCache(ctx, &domain.CacheEntry{
		SourceURL:   url,
		ContentHash: hash,
		Payload:     payload,
		UpdatedAt:   s.now(),
	})
	if err != nil {
		s.logger.Warn("Failed to save cache entry", slog.String("url", url), slog.Any("error", err))
	}
}

func decode(payload []byte) (*domain.Product, error) {
	var p domain.Product
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
