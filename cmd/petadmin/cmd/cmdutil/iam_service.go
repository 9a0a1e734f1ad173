package cmdutil

import (
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/config"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/bunx"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/services/iam"
)

// IAMServiceBundle bundles the service with its underlying DB connection so callers can
// reuse the connection for other repositories when necessary.
type IAMServiceBundle struct {
	Service iam.Service
	DB      *bun.DB
}

// Close releases the underlying database connection.
func (b *IAMServiceBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	_ = bunx.Close(b.DB)
}

// NewIAMServiceBundle centralizes IAM service construction for the server and
// CLI commands. It connects to the database, loads the rule table and
// returns a ready-to-use service.
func NewIAMServiceBundle(cfg *config.Config, logger *slog.Logger) (*IAMServiceBundle, error) {
	table, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load provisioning rules: %w", err)
	}

	db, err := bunx.NewDB(cfg.DatabaseURL, bunx.Options{MaxOpenConns: cfg.MaxDBConnections})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	iamConfig := iam.IAMServiceConfig{}
	if cfg.OIDC.ExternalIdP != nil {
		iamConfig.DefaultProvider = cfg.OIDC.ExternalIdP.ProviderName
	}

	svc, err := iam.NewIAMService(iam.IAMServiceDependencies{
		Stores:     repository.NewBunStores(db),
		Transactor: repository.NewBunTransactor(db),
		Rules:      table,
		Logger:     logger,
	}, iamConfig)
	if err != nil {
		_ = bunx.Close(db)
		return nil, fmt.Errorf("failed to create IAM service: %w", err)
	}

	return &IAMServiceBundle{Service: svc, DB: db}, nil
}
