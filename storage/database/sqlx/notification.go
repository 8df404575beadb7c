package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/somahq/soma/core/notification"
)

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

type notificationRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	Kind      string      `db:"kind"`
	Title     string      `db:"title"`
	Body      null.String `db:"body"`
	Ref       null.String `db:"ref"`
	IsRead    bool        `db:"is_read"`
	CreatedAt time.Time   `db:"created_at"`
	ReadAt    null.Time   `db:"read_at"`
}

func (repo notificationRepository) row(ntf notification.Notification) notificationRow {
	return notificationRow{
		ID:        ntf.ID,
		UserID:    ntf.UserID,
		Kind:      ntf.Kind,
		Title:     ntf.Title,
		Body:      null.NewString(ntf.Body, ntf.Body != ""),
		Ref:       null.NewString(ntf.Ref, ntf.Ref != ""),
		IsRead:    ntf.IsRead,
		CreatedAt: ntf.CreatedAt.UTC(),
		ReadAt:    null.NewTime(ntf.ReadAt.UTC(), !ntf.ReadAt.IsZero()),
	}
}

func (repo notificationRepository) unrow(row notificationRow) notification.Notification {
	return notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Kind:      row.Kind,
		Title:     row.Title,
		Body:      row.Body.String,
		Ref:       row.Ref.String,
		IsRead:    row.IsRead,
		CreatedAt: row.CreatedAt,
		ReadAt:    row.ReadAt.Time,
	}
}

func (repo notificationRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return notification.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo notificationRepository) CreateNotification(ctx context.Context, ntf notification.Notification) (notification.Notification, error) {
	ntf.ID = uuid.New().String()
	row := repo.row(ntf)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO notification (id, user_id, kind, title, body, ref, is_read, created_at, read_at)
		VALUES (:id, :user_id, :kind, :title, :body, :ref, :is_read, :created_at, :read_at)`,
		row)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return repo.unrow(row), nil
}

func (repo notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM notification WHERE id = $1`, id); err != nil {
		return notification.Notification{}, repo.trapNoRowsErr(err, "finding notification")
	}
	return repo.unrow(row), nil
}

func (repo notificationRepository) FilterNotifications(ctx context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conds = append(conds, "user_id = "+arg(filter.UserID))
	}
	if filter.Kind != "" {
		conds = append(conds, "kind = "+arg(filter.Kind))
	}
	if filter.IsRead != nil {
		conds = append(conds, "is_read = "+arg(*filter.IsRead))
	}

	query := `SELECT * FROM notification`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY is_read ASC, created_at DESC"

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}

	ntfs := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		ntfs = append(ntfs, repo.unrow(row))
	}
	return ntfs, nil
}

func (repo notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notification WHERE user_id = $1 AND NOT is_read`, userID)
	return count, errors.Wrap(err, "counting unread notifications")
}

func (repo notificationRepository) UpdateNotification(ctx context.Context, ntf notification.Notification) (notification.Notification, error) {
	row := repo.row(ntf)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE notification
		SET is_read = :is_read, read_at = :read_at
		WHERE id = :id`,
		row)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "updating notification")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return notification.Notification{}, notification.ErrNotFound
	}
	return repo.unrow(row), nil
}

func (repo notificationRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) error {
	_, err := repo.db.ExecContext(ctx,
		`UPDATE notification SET is_read = true, read_at = $2 WHERE user_id = $1 AND NOT is_read`,
		userID, readAt.UTC())
	return errors.Wrap(err, "marking notifications read")
}

func (repo notificationRepository) DeleteNotificationsByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM notification WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting notifications")
}
