package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/internal/users"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/security"
)

// AdminProvisioner creates operator accounts from the CLI.
type AdminProvisioner struct {
	db          *db.Client
	passwordCfg config.PasswordConfig
}

// NewAdminProvisioner builds an AdminProvisioner.
func NewAdminProvisioner(client *db.Client, cfg config.PasswordConfig) (*AdminProvisioner, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	return &AdminProvisioner{db: client, passwordCfg: cfg}, nil
}

// Create validates the password policy and inserts a new admin.
func (p *AdminProvisioner) Create(ctx context.Context, req CreateAdminRequest) (*users.AdminDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "valid email is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	hash, err := security.HashPassword(req.Password, p.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var created *users.AdminDTO
	err = p.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := users.NewRepository(tx)

		if _, err := repo.FindByEmail(ctx, email); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check admin email")
		}

		admin, err := repo.Create(ctx, users.CreateAdminDTO{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
			Role:         enums.AdminRoleAdmin,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create admin")
		}
		created = users.FromModel(admin)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
