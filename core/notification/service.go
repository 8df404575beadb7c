package notification

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, ntf Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		// FilterNotifications returns unread notifications first, newest first within each group.
		FilterNotifications(ctx context.Context, filter QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		UpdateNotification(ctx context.Context, ntf Notification) (Notification, error)
		MarkAllRead(ctx context.Context, userID string, readAt time.Time) error
		DeleteNotificationsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Notify creates a notification for a single user.
func (svc *Service) Notify(ctx context.Context, userID, kind, title, body, ref string) (Notification, error) {
	return svc.repo.CreateNotification(ctx, Notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	})
}

// NotifyAll fans a notification out to several users; fails on the first error.
func (svc *Service) NotifyAll(ctx context.Context, userIDs []string, kind, title, body, ref string) error {
	for _, uid := range userIDs {
		if _, err := svc.Notify(ctx, uid, kind, title, body, ref); err != nil {
			return err
		}
	}
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Notification, error) {
	return svc.repo.GetNotification(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Notification, error) {
	return svc.repo.FilterNotifications(ctx, filter)
}

func (svc *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, id string) (Notification, error) {
	ntf, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if ntf.IsRead {
		return ntf, nil
	}
	ntf.IsRead = true
	ntf.ReadAt = time.Now().UTC()
	return svc.repo.UpdateNotification(ctx, ntf)
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) error {
	return svc.repo.MarkAllRead(ctx, userID, time.Now().UTC())
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteNotificationsByID(ctx, ids...)
}
