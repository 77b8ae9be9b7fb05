package extract

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

type fieldKey struct {
	documentID uuid.UUID
	category   constants.FieldCategory
}

type fieldEntry struct {
	fields *Fields
	noData bool
}

// Cache memoizes FieldProvider results. Successes and ErrNoData are cached;
// other errors are not, so transient failures can be retried.
type Cache struct {
	next FieldProvider

	mu      sync.RWMutex
	entries map[fieldKey]fieldEntry
}

func NewCache(next FieldProvider) *Cache {
	return &Cache{next: next, entries: make(map[fieldKey]fieldEntry)}
}

func (c *Cache) Extract(ctx context.Context, documentID uuid.UUID, category constants.FieldCategory) (*Fields, error) {
	key := fieldKey{documentID: documentID, category: category}
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if e.noData {
			return nil, ErrNoData
		}
		return e.fields, nil
	}

	f, err := c.next.Extract(ctx, documentID, category)
	switch {
	case errors.Is(err, ErrNoData):
		c.store(key, fieldEntry{noData: true})
		return nil, err
	case err != nil:
		return nil, err
	}
	c.store(key, fieldEntry{fields: f})
	return f, nil
}

// Invalidate drops every cached category of a document.
func (c *Cache) Invalidate(documentID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.documentID == documentID {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) store(key fieldKey, e fieldEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// LayoutCache collapses concurrent and repeated layout calls for the same document.
type LayoutCache struct {
	next  LayoutProvider
	group singleflight.Group

	mu      sync.RWMutex
	results map[uuid.UUID]LayoutResult
}

func NewLayoutCache(next LayoutProvider) *LayoutCache {
	return &LayoutCache{next: next, results: make(map[uuid.UUID]LayoutResult)}
}

func (c *LayoutCache) Analyze(ctx context.Context, doc *entity.Document) (LayoutResult, error) {
	c.mu.RLock()
	res, ok := c.results[doc.ID]
	c.mu.RUnlock()
	if ok {
		return res, nil
	}

	v, err, _ := c.group.Do(doc.ID.String(), func() (any, error) {
		res, err := c.next.Analyze(ctx, doc)
		if err != nil {
			return LayoutResult{}, err
		}
		c.mu.Lock()
		c.results[doc.ID] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return LayoutResult{}, err
	}
	return v.(LayoutResult), nil
}
