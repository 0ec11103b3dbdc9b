package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
)

type SeedAccount struct {
	Email    string
	FullName string
	Password string
	Verified bool
}

type SeedReport struct {
	Created  []string `json:"created,omitempty"`
	Existing []string `json:"existing,omitempty"`
	Noop     bool     `json:"noop"`
}

// DevAccounts are local fixtures. Never seed them outside development.
var DevAccounts = []SeedAccount{
	{Email: "verified@example.com", FullName: "Verified Demo", Password: "DemoPassw0rd!", Verified: true},
	{Email: "pending@example.com", FullName: "Pending Demo", Password: "DemoPassw0rd!", Verified: false},
}

// SeedAccounts inserts accounts that do not exist yet. Existing emails are left
// untouched, so reruns are no-ops.
func SeedAccounts(ctx context.Context, db *gorm.DB, accounts []SeedAccount, minPasswordLength int) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{}
	for _, seed := range accounts {
		created, err := seedAccount(ctx, db, seed, minPasswordLength)
		if err != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, fmt.Errorf("seed %s: %w", seed.Email, err)
		}
		email := domain.NormalizeEmail(seed.Email)
		if created {
			report.Created = append(report.Created, email)
		} else {
			report.Existing = append(report.Existing, email)
		}
	}
	report.Noop = len(report.Created) == 0
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}

func seedAccount(ctx context.Context, db *gorm.DB, seed SeedAccount, minPasswordLength int) (bool, error) {
	email := domain.NormalizeEmail(seed.Email)
	name := strings.TrimSpace(seed.FullName)
	switch {
	case validation.Validate(email, validation.Required, is.EmailFormat) != nil:
		return false, errors.New("a valid email is required")
	case name == "":
		return false, errors.New("full name is required")
	case len(seed.Password) < minPasswordLength:
		return false, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	var count int64
	if err := db.WithContext(ctx).Model(&domain.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	hash, err := security.HashPassword(seed.Password)
	if err != nil {
		return false, err
	}
	account := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     name,
		PasswordHash: hash,
		IsVerified:   seed.Verified,
	}
	if seed.Verified {
		now := time.Now().UTC()
		account.VerifiedAt = &now
	}
	if err := db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// VerifyAccountEmail marks an account verified out of band and clears any
// outstanding verification token.
func VerifyAccountEmail(ctx context.Context, db *gorm.DB, email string) error {
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return errors.New("email is required")
	}
	now := time.Now().UTC()
	tx := db.WithContext(ctx).Model(&domain.Account{}).
		Where("email = ?", normalized).
		Updates(map[string]any{
			"is_verified":                   true,
			"verified_at":                   &now,
			"verification_token_hash":       nil,
			"verification_token_expires_at": nil,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
