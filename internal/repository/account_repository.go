package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"

	"gorm.io/gorm"
)

type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByVerificationTokenHash(ctx context.Context, hash string) (*domain.Account, error)
	FindByVerifiedTokenHash(ctx context.Context, hash string) (*domain.Account, error)
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account, notification *domain.OutboxMessage) error
	Save(ctx context.Context, account *domain.Account) error
	MarkVerified(ctx context.Context, id, tokenHash string, now time.Time) error
	IssueVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error
	IssueResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error
	CompleteReset(ctx context.Context, id, tokenHash, newPasswordHash string, now time.Time) error
}

type GormAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "email = ?", domain.NormalizeEmail(email))
}

func (r *GormAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GormAccountRepository) FindByVerificationTokenHash(ctx context.Context, hash string) (*domain.Account, error) {
	return r.first(ctx, "verification_token_hash = ?", hash)
}

func (r *GormAccountRepository) FindByVerifiedTokenHash(ctx context.Context, hash string) (*domain.Account, error) {
	return r.first(ctx, "verified_token_hash = ?", hash)
}

func (r *GormAccountRepository) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*domain.Account, error) {
	return r.first(ctx, "reset_token_hash = ? AND reset_token_expires_at > ?", hash, now)
}

func (r *GormAccountRepository) first(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account
	if err := r.db.WithContext(ctx).Where(query, args...).First(&a).Error; err != nil {
		return nil, mapNotFound(err, ErrAccountNotFound)
	}
	return &a, nil
}

// Create inserts the account and its notification atomically. A duplicate
// email surfaces as ErrEmailTaken.
func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account, notification *domain.OutboxMessage) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = domain.NormalizeEmail(account.Email)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}
		if notification == nil {
			return nil
		}
		notification.AccountID = account.ID
		return enqueue(tx, notification)
	})
}

func (r *GormAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *GormAccountRepository) MarkVerified(ctx context.Context, id, tokenHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND verification_token_hash = ? AND is_verified = ? AND verification_token_expires_at > ?", id, tokenHash, false, now).
		Updates(map[string]any{
			"is_verified":                   true,
			"verification_token_hash":       nil,
			"verification_token_expires_at": nil,
			"verified_token_hash":           tokenHash,
			"verified_at":                   now,
			"updated_at":                    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

// IssueVerificationToken replaces the outstanding verification token of an
// unverified account and enqueues its notification in the same transaction.
func (r *GormAccountRepository) IssueVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Account{}).
			Where("id = ? AND is_verified = ?", id, false).
			Updates(map[string]any{
				"verification_token_hash":       tokenHash,
				"verification_token_expires_at": expiresAt,
				"updated_at":                    time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		if notification == nil {
			return nil
		}
		notification.AccountID = id
		return enqueue(tx, notification)
	})
}

func (r *GormAccountRepository) IssueResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time, notification *domain.OutboxMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Account{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"reset_token_hash":       tokenHash,
				"reset_token_expires_at": expiresAt,
				"updated_at":             time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		if notification == nil {
			return nil
		}
		notification.AccountID = id
		return enqueue(tx, notification)
	})
}

// CompleteReset swaps the password hash only while the given reset token is
// still the outstanding, unexpired one. Of concurrent callers at most one wins.
func (r *GormAccountRepository) CompleteReset(ctx context.Context, id, tokenHash, newPasswordHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND reset_token_hash = ? AND reset_token_expires_at > ?", id, tokenHash, now).
		Updates(map[string]any{
			"password_hash":          newPasswordHash,
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
			"password_changed_at":    now,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}
