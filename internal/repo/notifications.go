package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/ryanhung919/x-men-sub002/internal/domain"
)

// CreateNotification appends a notification row. The id is generated
// when absent.
func (r Repo) CreateNotification(ctx context.Context, n domain.Notification) error {
	return insertNotification(ctx, r.DB, n)
}

func insertNotification(ctx context.Context, db querier, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `INSERT INTO notifications(id,user_id,title,message,type,read,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, boolToInt(n.Read), n.CreatedAt)
	return err
}

// ListNotifications returns a user's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,title,message,type,read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flips the read flag on one notification owned by
// the user.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification for the user.
func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	return err
}
