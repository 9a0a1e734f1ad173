package iam

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
)

// catalogCache memoizes permission lookups by code for reads. Only this
// process's deletes purge it, so an entry can outlive a delete and re-create
// done elsewhere. Writes resolve codes inside their own transaction and
// refresh the entry with what they find.
type catalogCache struct {
	permissions repository.PermissionRepository
	entries     *lru.Cache[string, models.Permission]
}

func newCatalogCache(permissions repository.PermissionRepository, size int) (*catalogCache, error) {
	entries, err := lru.New[string, models.Permission](size)
	if err != nil {
		return nil, err
	}
	return &catalogCache{permissions: permissions, entries: entries}, nil
}

func (c *catalogCache) get(ctx context.Context, code string) (*models.Permission, error) {
	if p, ok := c.entries.Get(code); ok {
		return &p, nil
	}
	p, err := c.permissions.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.entries.Add(code, *p)
	return p, nil
}

func (c *catalogCache) put(p models.Permission) {
	c.entries.Add(p.Code, p)
}

func (c *catalogCache) forget(code string) {
	c.entries.Remove(code)
}

func (c *catalogCache) purge() {
	c.entries.Purge()
}
