package promo

import (
	"context"
	"maps"
	"sync"
)

// Source defines how the promo catalog is loaded into the registry,
// keyed by canonical code.
type Source interface {
	Load(ctx context.Context) (map[string]Code, error)
}

// inMemSource implements Source over a static map. Used in tests and for
// catalogs compiled into the client.
type inMemSource struct {
	mu    sync.RWMutex
	codes map[string]Code
}

// NewInMemSource returns an in-memory Source with a copy of the given codes,
// re-keyed by canonical code.
func NewInMemSource(codes map[string]Code) Source {
	canonical := make(map[string]Code, len(codes))
	for _, code := range codes {
		code.Code = Canonical(code.Code)
		canonical[code.Code] = code
	}
	return &inMemSource{codes: canonical}
}

// Load returns a copy of the catalog.
func (s *inMemSource) Load(ctx context.Context) (map[string]Code, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.codes), nil
}
