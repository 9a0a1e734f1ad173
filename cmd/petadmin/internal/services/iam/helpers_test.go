package iam

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/dbtest"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    Service
	db     *bun.DB
	stores repository.Stores
	clock  *testClock
}

// newFixture builds a service over a fresh migrated database. rulesYAML
// selects the rule table; empty uses the embedded default.
func newFixture(t *testing.T, rulesYAML string) *fixture {
	t.Helper()

	db := dbtest.New(t)
	table := mustRules(t, rulesYAML)
	clock := newTestClock()
	stores := repository.NewBunStores(db)

	svc, err := NewIAMService(IAMServiceDependencies{
		Stores:     stores,
		Transactor: repository.NewBunTransactor(db),
		Rules:      table,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:      clock.Now,
	}, IAMServiceConfig{DefaultProvider: "oidc"})
	require.NoError(t, err)

	return &fixture{svc: svc, db: db, stores: stores, clock: clock}
}

func mustRules(t *testing.T, doc string) *rules.Table {
	t.Helper()
	if doc == "" {
		table, err := rules.Default()
		require.NoError(t, err)
		return table
	}
	table, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	return table
}

func (f *fixture) user(t *testing.T, email string) *models.User {
	t.Helper()
	return dbtest.CreateUser(t, f.db, email, models.RoleUser)
}

func (f *fixture) userWithRole(t *testing.T, email, role string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email, Role: role}
	require.NoError(t, f.stores.Users.Create(context.Background(), u))
	return u
}

func (f *fixture) group(t *testing.T, name string) *models.Group {
	t.Helper()
	g, err := f.svc.CreateGroup(context.Background(), CreateGroupInput{Name: name})
	require.NoError(t, err)
	return g
}

func codes(perms []EffectivePermission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.Code
	}
	return out
}

func find(perms []EffectivePermission, code string) (EffectivePermission, bool) {
	for _, p := range perms {
		if p.Code == code {
			return p, true
		}
	}
	return EffectivePermission{}, false
}
