package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/somahq/soma/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, ntf notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ntf.ID = uuid.New().String()
	repo.db.table[ntf.ID] = &ntf
	return ntf, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ntf, ok := repo.db.table[id]; ok {
		return *ntf, nil
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) FilterNotifications(_ context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ntfs []notification.Notification
	for _, ntf := range repo.db.table {
		if filter.UserID != "" && ntf.UserID != filter.UserID {
			continue
		}
		if filter.Kind != "" && ntf.Kind != filter.Kind {
			continue
		}
		if filter.IsRead != nil && ntf.IsRead != *filter.IsRead {
			continue
		}
		ntfs = append(ntfs, *ntf)
	}

	// unread first, newest first within each group
	sort.Slice(ntfs, func(i, j int) bool {
		if ntfs[i].IsRead != ntfs[j].IsRead {
			return !ntfs[i].IsRead
		}
		return ntfs[i].CreatedAt.After(ntfs[j].CreatedAt)
	})
	return ntfs, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, ntf := range repo.db.table {
		if ntf.UserID == userID && !ntf.IsRead {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) UpdateNotification(_ context.Context, ntf notification.Notification) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[ntf.ID]; !ok {
		return notification.Notification{}, notification.ErrNotFound
	}
	repo.db.table[ntf.ID] = &ntf
	return ntf, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string, readAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, ntf := range repo.db.table {
		if ntf.UserID == userID && !ntf.IsRead {
			ntf.IsRead = true
			ntf.ReadAt = readAt
		}
	}
	return nil
}

func (repo *notificationRepository) DeleteNotificationsByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
