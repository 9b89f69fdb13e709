package mappings

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Resolver looks up several keys of one module at once.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the account id of every key. A missing key fails with ErrMappingNotFound
// naming the first key that could not be resolved.
func (r *Resolver) Resolve(ctx context.Context, storeID int64, module string, keys ...string) (map[string]int64, error) {
	if storeID <= 0 {
		return nil, shared.ErrStoreRequired
	}
	list, err := r.repo.ListModule(ctx, storeID, module)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	known := make(map[string]int64, len(list))
	for _, m := range list {
		known[m.Key] = m.AccountID
	}
	out := make(map[string]int64, len(keys))
	for _, key := range keys {
		id, ok := known[normalizeKey(key)]
		if !ok || id <= 0 {
			return nil, fmt.Errorf("%w: %s/%s", shared.ErrMappingNotFound, normalizeModule(module), normalizeKey(key))
		}
		out[key] = id
	}
	return out, nil
}
