package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"

	"gorm.io/gorm"
)

const maxLastErrorLen = 1024

type OutboxRepository interface {
	Enqueue(ctx context.Context, msg *domain.OutboxMessage) error
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastErr string, dead bool) error
	Requeue(ctx context.Context, id string, now time.Time) error
	Stats(ctx context.Context) (domain.OutboxStats, error)
	ListByStatus(ctx context.Context, status string, req PageRequest) (PageResult[domain.OutboxMessage], error)
}

type GormOutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Enqueue(ctx context.Context, msg *domain.OutboxMessage) error {
	return enqueue(r.db.WithContext(ctx), msg)
}

func enqueue(tx *gorm.DB, msg *domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = domain.OutboxStatusPending
	}
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = time.Now().UTC()
	}
	return tx.Create(msg).Error
}

// ClaimDue leases up to limit due messages. Each row is claimed with a
// conditional update so concurrent dispatchers never deliver the same row
// under the same lease.
func (r *GormOutboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.OutboxMessage, error) {
	db := r.db.WithContext(ctx)
	var candidates []domain.OutboxMessage
	err := db.Where("status = ? AND next_attempt_at <= ? AND (locked_until IS NULL OR locked_until <= ?)",
		domain.OutboxStatusPending, now, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	lockedUntil := now.Add(lease)
	claimed := make([]domain.OutboxMessage, 0, len(candidates))
	for _, c := range candidates {
		res := db.Model(&domain.OutboxMessage{}).
			Where("id = ? AND status = ? AND (locked_until IS NULL OR locked_until <= ?)", c.ID, domain.OutboxStatusPending, now).
			Updates(map[string]any{"locked_until": lockedUntil, "updated_at": now})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			c.LockedUntil = &lockedUntil
			claimed = append(claimed, c)
		}
	}
	return claimed, nil
}

// MarkSent records delivery and scrubs the body, which carries a raw token link.
func (r *GormOutboxRepository) MarkSent(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.OutboxStatusSent,
			"attempts":     gorm.Expr("attempts + 1"),
			"html_body":    "",
			"sent_at":      now,
			"locked_until": nil,
			"last_error":   "",
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

func (r *GormOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastErr string, dead bool) error {
	status := domain.OutboxStatusPending
	if dead {
		status = domain.OutboxStatusDead
	}
	if len(lastErr) > maxLastErrorLen {
		lastErr = lastErr[:maxLastErrorLen]
	}
	res := r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastErr,
			"locked_until":    nil,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

// Requeue moves a dead message back to pending with a fresh attempt budget.
func (r *GormOutboxRepository) Requeue(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Where("id = ? AND status = ?", id, domain.OutboxStatusDead).
		Updates(map[string]any{
			"status":          domain.OutboxStatusPending,
			"attempts":        0,
			"next_attempt_at": now,
			"locked_until":    nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

func (r *GormOutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return domain.OutboxStats{}, err
	}
	var stats domain.OutboxStats
	for _, row := range rows {
		switch row.Status {
		case domain.OutboxStatusPending:
			stats.Pending = row.Count
		case domain.OutboxStatusSent:
			stats.Sent = row.Count
		case domain.OutboxStatusDead:
			stats.Dead = row.Count
		}
	}
	return stats, nil
}

// ListByStatus pages through messages of one status, newest update first.
// Bodies are not loaded.
func (r *GormOutboxRepository) ListByStatus(ctx context.Context, status string, req PageRequest) (PageResult[domain.OutboxMessage], error) {
	req = normalizePageRequest(req)
	q := r.db.WithContext(ctx).Model(&domain.OutboxMessage{}).Where("status = ?", status).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return PageResult[domain.OutboxMessage]{}, err
	}
	var items []domain.OutboxMessage
	err := q.Omit("html_body").
		Order("updated_at DESC").
		Order("id ASC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error
	if err != nil {
		return PageResult[domain.OutboxMessage]{}, err
	}
	return PageResult[domain.OutboxMessage]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}
