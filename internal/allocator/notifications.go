package allocator

import (
	"context"

	"wisefido-allocator/internal/models"
	"wisefido-allocator/internal/store"
)

// Notifications 返回通知列表（最新在前）；unreadOnly 只返回未读
func (a *Allocator) Notifications(ctx context.Context, unreadOnly bool) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []models.Notification{}
	err := a.store.View(func(tx *store.Tx) error {
		for _, n := range tx.Notifications() {
			if unreadOnly && n.Read {
				continue
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// MarkNotificationRead 标记通知已读
func (a *Allocator) MarkNotificationRead(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.store.Update(func(tx *store.Tx) error {
		return tx.MarkNotificationRead(id)
	})
}
