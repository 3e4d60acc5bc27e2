package engine

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

// Cache entries are row UUIDs, not rows, so a hit still reads the current
// row inside the caller's transaction and a stale entry can never serve a
// soft-deleted template as live.
const (
	cacheExpiration = 5 * time.Minute
	cacheSweep      = 10 * time.Minute
)

// Resolver loads templates by composite code or identifier through a
// process-local read-through cache. Templates mutate rarely, so entries are
// flushed wholesale on any template mutation.
type Resolver struct {
	store *sqlite.Store
	cache *gocache.Cache
}

// NewResolver builds a resolver and registers its invalidation against the
// store's template-mutation hook.
func NewResolver(store *sqlite.Store) *Resolver {
	r := &Resolver{
		store: store,
		cache: gocache.New(cacheExpiration, cacheSweep),
	}
	store.OnTemplateMutation(r.InvalidateCache)
	return r
}

// Resolve returns the live template for a composite code string
// ("category/type/subtype/version", trailing slash tolerated). Unknown codes
// fail with ErrTemplateNotFound; a duplicate live key fails with
// ErrTemplateIntegrity.
func (r *Resolver) Resolve(tx *sqlite.Tx, rawCode string) (*types.Template, error) {
	code, err := types.ParseCode(rawCode)
	if err != nil {
		return nil, err
	}

	key := "code:" + code.String()
	if tmpl, ok := r.cached(tx, key); ok {
		return tmpl, nil
	}

	tmpl, err := tx.GetTemplateByCode(code)
	if err != nil {
		return nil, err
	}
	r.remember(tmpl, key)
	return tmpl, nil
}

// ResolveEUID returns the live template for an identifier. A soft-deleted
// template is ErrTemplateNotFound here; history lookups go through the store
// directly.
func (r *Resolver) ResolveEUID(tx *sqlite.Tx, id string) (*types.Template, error) {
	key := "euid:" + id
	if tmpl, ok := r.cached(tx, key); ok {
		return tmpl, nil
	}

	tmpl, err := tx.GetTemplateByEUID(id)
	if err != nil {
		return nil, err
	}
	if tmpl.IsDeleted {
		return nil, types.ErrTemplateNotFound
	}
	r.remember(tmpl, key)
	return tmpl, nil
}

// List returns live templates matching the filter, uncached.
func (r *Resolver) List(tx *sqlite.Tx, f sqlite.TemplateFilter) ([]*types.Template, error) {
	return tx.ListTemplates(f)
}

// InvalidateCache drops every cached entry.
func (r *Resolver) InvalidateCache() {
	r.cache.Flush()
}

// cached re-reads the row behind a cached UUID. A vanished or soft-deleted
// row evicts the entry and reports a miss.
func (r *Resolver) cached(tx *sqlite.Tx, key string) (*types.Template, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	tmpl, err := tx.GetTemplate(v.(string))
	if err != nil || tmpl.IsDeleted {
		r.cache.Delete(key)
		return nil, false
	}
	return tmpl, true
}

func (r *Resolver) remember(tmpl *types.Template, codeKey string) {
	r.cache.SetDefault(codeKey, tmpl.UUID)
	r.cache.SetDefault("euid:"+tmpl.EUID, tmpl.UUID)
}
