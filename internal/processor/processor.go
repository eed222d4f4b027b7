// Package processor migrates one queued item into the tenant's destination
// store. Every source shares the same pipeline; the source only decides
// how the item is extracted.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/ledger"
	"github.com/cuongbtq/catalog-migrator/internal/woo"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Processor migrates items of one source
type Processor interface {
	Source() domain.Source
	Process(ctx context.Context, msg domain.ItemMessage, dst *domain.Destination) (*ledger.Outcome, error)
}

// Normalizer turns an item message into a canonical product
type Normalizer interface {
	FetchAndNormalize(ctx context.Context, msg domain.ItemMessage) (*domain.Product, error)
}

// ClientFactory returns a destination client for a tenant
type ClientFactory interface {
	For(dst *domain.Destination) *woo.Client
}

// Config holds the payload shaping rules
type Config struct {
	MaxImages    int
	ImageProxy   string
	ProxyFormats []string
}

type pipeline struct {
	source     domain.Source
	normalizer Normalizer
	clients    ClientFactory
	cfg        Config
	logger     *logger.Logger
}

func newPipeline(src domain.Source, n Normalizer, clients ClientFactory, cfg Config, log *logger.Logger) *pipeline {
	return &pipeline{
		source:     src,
		normalizer: n,
		clients:    clients,
		cfg:        cfg,
		logger:     log.Component("processor").With(slog.String("source", src.String())),
	}
}

// NewShopify creates the processor of Shopify items
func NewShopify(n Normalizer, clients ClientFactory, cfg Config, log *logger.Logger) Processor {
	return newPipeline(domain.SourceShopify, n, clients, cfg, log)
}

// NewWordPress creates the processor of WooCommerce storefront items
func NewWordPress(n Normalizer, clients ClientFactory, cfg Config, log *logger.Logger) Processor {
	return newPipeline(domain.SourceWordPress, n, clients, cfg, log)
}

// NewWix creates the processor of Wix Stores items
func NewWix(n Normalizer, clients ClientFactory, cfg Config, log *logger.Logger) Processor {
	return newPipeline(domain.SourceWix, n, clients, cfg, log)
}

func (p *pipeline) Source() domain.Source {
	return p.source
}

func (p *pipeline) Process(ctx context.Context, msg domain.ItemMessage, dst *domain.Destination) (*ledger.Outcome, error) {
	if !dst.Configured() {
		return nil, domain.NewProcessError(domain.ReasonMissingConfig, domain.ErrDestinationNotFound)
	}

	product, err := p.normalizer.FetchAndNormalize(ctx, msg)
	if err != nil {
		return nil, err
	}

	client := p.clients.For(dst)

	categories, err := client.EnsureTerms(ctx, woo.Categories, merge(product.Categories, msg.CategoryHints))
	if err != nil {
		return nil, classify(fmt.Errorf("ensure categories: %w", err))
	}
	tags, err := client.EnsureTerms(ctx, woo.Tags, merge(product.Tags, msg.TagHints))
	if err != nil {
		return nil, classify(fmt.Errorf("ensure tags: %w", err))
	}

	payload := p.buildPayload(product, categories, tags)

	saved, action, err := p.upsert(ctx, client, product, payload)
	if err != nil {
		return nil, err
	}

	if product.Variable() {
		p.syncVariations(ctx, client, saved.ID, product)
	}

	p.logger.Debug("Item migrated",
		slog.String("request_id", msg.RequestID),
		slog.String("item", msg.ItemRef),
		slog.Int64("destination_id", saved.ID),
		slog.String("action", string(action)),
	)

	return &ledger.Outcome{
		DestinationID: saved.ID,
		Name:          product.Name,
		Action:        action,
	}, nil
}

// upsert matches by SKU then slug and updates the match, otherwise creates.
// A conflict naming the existing resource is resolved by one update of it.
func (p *pipeline) upsert(ctx context.Context, client *woo.Client, product *domain.Product, payload *woo.ProductPayload) (*woo.Product, domain.Action, error) {
	existing, err := client.FindProductBySKU(ctx, product.SKU)
	if err != nil {
		return nil, "", classify(fmt.Errorf("find by sku: %w", err))
	}
	if existing == nil {
		if existing, err = client.FindProductBySlug(ctx, product.Slug); err != nil {
			return nil, "", classify(fmt.Errorf("find by slug: %w", err))
		}
	}

	if existing != nil {
		saved, err := client.UpdateProduct(ctx, existing.ID, payload)
		if err != nil {
			return nil, "", classify(fmt.Errorf("update product %d: %w", existing.ID, err))
		}
		return saved, domain.ActionUpdate, nil
	}

	saved, err := client.CreateProduct(ctx, payload)
	if err == nil {
		return saved, domain.ActionCreate, nil
	}

	var apiErr *woo.APIError
	if !errors.As(err, &apiErr) {
		return nil, "", classify(fmt.Errorf("create product: %w", err))
	}
	reason, conflict := apiErr.Conflict()
	if !conflict {
		return nil, "", classify(fmt.Errorf("create product: %w", err))
	}
	if apiErr.ResourceID == 0 {
		return nil, "", domain.NewProcessError(reason, err)
	}

	saved, err = client.UpdateProduct(ctx, apiErr.ResourceID, payload)
	if err != nil {
		return nil, "", classify(fmt.Errorf("update conflicting product %d: %w", apiErr.ResourceID, err))
	}
	return saved, domain.ActionUpdate, nil
}

func (p *pipeline) syncVariations(ctx context.Context, client *woo.Client, productID int64, product *domain.Product) {
	for _, v := range product.Variations {
		payload := &woo.VariationPayload{
			SKU:          v.SKU,
			RegularPrice: v.RegularPrice,
			SalePrice:    v.SalePrice,
			Attributes:   attributeValues(v.Attributes),
		}
		if v.Image != "" {
			payload.Image = &woo.Image{Src: p.imageURL(v.Image)}
		}
		if _, err := client.CreateVariation(ctx, productID, payload); err != nil {
			p.logger.Warn("Variation sync failed",
				slog.Int64("product_id", productID),
				slog.String("sku", v.SKU),
				slog.Any("error", err),
			)
		}
	}
}

func (p *pipeline) buildPayload(product *domain.Product, categories, tags []woo.TermRef) *woo.ProductPayload {
	payload := &woo.ProductPayload{
		Name:              product.Name,
		Slug:              product.Slug,
		SKU:               product.SKU,
		Type:              "simple",
		Status:            "publish",
		RegularPrice:      product.RegularPrice,
		SalePrice:         product.SalePrice,
		Description:       product.Description,
		ShortDescription:  product.ShortDescription,
		Categories:        categories,
		Tags:              tags,
		DefaultAttributes: attributeValues(product.DefaultAttributes),
	}
	if product.Variable() {
		payload.Type = "variable"
		payload.SKU = ""
		payload.RegularPrice = ""
		payload.SalePrice = ""
	}

	for _, a := range product.Attributes {
		payload.Attributes = append(payload.Attributes, woo.Attribute{
			Name:      a.Name,
			Options:   a.Options,
			Visible:   true,
			Variation: a.Variation,
		})
	}

	for _, src := range product.Images {
		if p.cfg.MaxImages > 0 && len(payload.Images) >= p.cfg.MaxImages {
			break
		}
		if src = strings.TrimSpace(src); src != "" {
			payload.Images = append(payload.Images, woo.Image{Src: p.imageURL(src)})
		}
	}
	return payload
}

// imageURL routes formats the destination cannot sideload through the proxy
func (p *pipeline) imageURL(src string) string {
	if p.cfg.ImageProxy == "" {
		return src
	}
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	for _, f := range p.cfg.ProxyFormats {
		if strings.EqualFold(ext, f) {
			return fmt.Sprintf(p.cfg.ImageProxy, url.QueryEscape(src))
		}
	}
	return src
}

// classify maps destination failures onto processing reasons
func classify(err error) error {
	var pe *domain.ProcessError
	if errors.As(err, &pe) {
		return err
	}
	var apiErr *woo.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Unauthorized() {
			return domain.NewProcessError(domain.ReasonMissingConfig, err)
		}
		if reason, ok := apiErr.Conflict(); ok {
			return domain.NewProcessError(reason, err)
		}
	}
	return domain.NewProcessError(domain.ReasonException, err)
}

func merge(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func attributeValues(m map[string]string) []woo.AttributeValue {
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]woo.AttributeValue, 0, len(names))
	for _, name := range names {
		out = append(out, woo.AttributeValue{Name: name, Option: m[name]})
	}
	return out
}
