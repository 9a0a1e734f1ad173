//go:build integration

package iam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/dbtest"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
)

// startPostgres runs a throwaway PostgreSQL container and returns a migrated
// connection to it.
func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("petadmin_test"),
		tcpostgres.WithUsername("petadmin"),
		tcpostgres.WithPassword("petadmin"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://petadmin:petadmin@%s:%s/petadmin_test?sslmode=disable", host, port.Port())

	db, err := bunx.NewDB(dsn, bunx.Options{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.True(t, bunx.IsPostgreSQL(db))

	dbtest.Migrate(t, db)
	return db
}

func newPostgresService(t *testing.T, db *bun.DB) Service {
	t.Helper()
	table, err := rules.Default()
	require.NoError(t, err)

	svc, err := NewIAMService(IAMServiceDependencies{
		Stores:     repository.NewBunStores(db),
		Transactor: repository.NewBunTransactor(db),
		Rules:      table,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, IAMServiceConfig{DefaultProvider: "oidc"})
	require.NoError(t, err)
	return svc
}

func TestPostgres_ScenarioAdminAndDefault(t *testing.T) {
	db := startPostgres(t)
	svc := newPostgresService(t, db)
	ctx := context.Background()

	admin, err := svc.Login(ctx, rules.Identity{Email: "admin@example.com", ProviderID: "sub-admin"})
	require.NoError(t, err)
	require.Nil(t, admin.ProvisioningErr)
	assert.Equal(t, models.RoleAdmin, admin.Provisioning.Role)

	perms, err := svc.ResolveEffectivePermissions(ctx, admin.User.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		models.PermUsersView, models.PermUsersCreate, models.PermUsersEdit,
		models.PermUsersDelete, models.PermGroupsManage, models.PermPermissionsManage,
	}, codes(perms))

	bob, err := svc.Login(ctx, rules.Identity{Email: "bob@unknown-domain.test", ProviderID: "sub-bob"})
	require.NoError(t, err)
	require.Nil(t, bob.ProvisioningErr)

	perms, err = svc.ResolveEffectivePermissions(ctx, bob.User.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{models.PermUsersView}, codes(perms))
}

func TestPostgres_ConcurrentFirstLoginsShareGroup(t *testing.T) {
	db := startPostgres(t)
	svc := newPostgresService(t, db)
	ctx := context.Background()

	const n = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.ProvisionFromIdentity(ctx, rules.Identity{
				Email:      fmt.Sprintf("keeper%d@example.com", i),
				ProviderID: fmt.Sprintf("sub-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created += len(res.CreatedGroups)
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created, "exactly one login creates the Staff group")

	groups, err := repository.NewBunStores(db).Groups.GetByNames(ctx, []string{"Staff"})
	require.NoError(t, err)
	require.Len(t, groups, 1)

	members, err := svc.ListGroupMembers(ctx, groups[0].ID)
	require.NoError(t, err)
	assert.Len(t, members, n)
}

func TestPostgres_ConcurrentResyncOfOneUser(t *testing.T) {
	db := startPostgres(t)
	svc := newPostgresService(t, db)
	ctx := context.Background()

	res, err := svc.Login(ctx, rules.Identity{Email: "dana@example.com", ProviderID: "sub-dana"})
	require.NoError(t, err)
	require.Nil(t, res.ProvisioningErr)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ResyncProvisioning(ctx, res.User.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	direct, err := svc.ListDirectPermissions(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Len(t, direct, 3)

	groups, err := svc.ListUserGroups(ctx, res.User.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Staff", groups[0].Group.Name)
}
