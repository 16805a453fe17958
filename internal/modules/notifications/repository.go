package notifications

import (
	"context"
	"fmt"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/storage"
)

// RepositoryInterface defines the store operations for notifications.
type RepositoryInterface interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	// MarkRead flips the read flag on one notification owned by userID.
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) error
	// DeleteOlderThan removes notifications created before the cutoff and
	// reports how many went away.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Repository is the PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *storage.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *storage.DB) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, notification_type, title, message, is_read, related_url)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING created_at`
	err := r.db.Q(ctx).QueryRow(ctx, query,
		n.ID, n.UserID, n.NotificationType, n.Title, n.Message, n.RelatedURL,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, notification_type, title, message, is_read, related_url, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.Q(ctx).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.NotificationType, &n.Title, &n.Message, &n.IsRead, &n.RelatedURL, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *Repository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	if err := r.db.Q(ctx).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *Repository) MarkRead(ctx context.Context, notificationID, userID string) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	tag, err := r.db.Q(ctx).Exec(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, userID string) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	if _, err := r.db.Q(ctx).Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM notifications WHERE created_at < $1`
	tag, err := r.db.Q(ctx).Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
