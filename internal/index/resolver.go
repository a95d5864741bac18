package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// resolverRegistry maps identifier prefixes to resolvers.
// Registering a prefix twice replaces the earlier resolver (last registration wins).
type resolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

func newResolverRegistry() *resolverRegistry {
	return &resolverRegistry{resolvers: make(map[string]Resolver)}
}

func (r *resolverRegistry) add(prefix string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resolvers[prefix]; exists {
		slog.Warn("replacing resource resolver", slog.String("prefix", prefix))
	}
	r.resolvers[prefix] = resolver
}

func (r *resolverRegistry) lookup(prefix string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resolvers[prefix]
	return res, ok
}

// resolve splits identifier on the first ':' and delegates the remainder.
// It returns nil when the identifier has no prefix or no resolver matches.
func (r *resolverRegistry) resolve(ctx context.Context, identifier string) (Resource, error) {
	prefix, rest, found := strings.Cut(identifier, ":")
	if !found {
		return nil, nil
	}
	res, ok := r.lookup(prefix)
	if !ok {
		return nil, nil
	}
	return res.Resolve(ctx, rest)
}
