package processor

import (
	"fmt"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/shared/logger"
)

// Registry selects the processor of a message's source
type Registry struct {
	processors map[domain.Source]Processor
}

func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{processors: make(map[domain.Source]Processor, len(processors))}
	for _, p := range processors {
		r.processors[p.Source()] = p
	}
	return r
}

// NewDefaultRegistry registers a processor for every supported source
func NewDefaultRegistry(n Normalizer, clients ClientFactory, cfg Config, log *logger.Logger) *Registry {
	return NewRegistry(
		NewShopify(n, clients, cfg, log),
		NewWordPress(n, clients, cfg, log),
		NewWix(n, clients, cfg, log),
	)
}

func (r *Registry) Get(src domain.Source) (Processor, error) {
	p, ok := r.processors[src]
	if !ok {
		return nil, fmt.Errorf("%w: no processor for %q", domain.ErrInvalidSource, src)
	}
	return p, nil
}
