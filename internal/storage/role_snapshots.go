package storage

import (
	"context"
	"errors"

	"restockbot/backend/internal/models"
)

// ErrNoRoleSnapshot is returned when restoring roles for a user with no open snapshot.
var ErrNoRoleSnapshot = errors.New("no role snapshot to restore")

// SaveRoleSnapshot records the roles a user held before a moderation action. An open
// snapshot for the same user is replaced.
func (s *Store) SaveRoleSnapshot(ctx context.Context, userID string, roles []string, actor string) error {
	now := s.now()
	return s.Update(ctx, func(doc *models.Document) error {
		snap := &models.RoleSnapshot{
			UserID:  userID,
			Roles:   append([]string(nil), roles...),
			SavedBy: actor,
			SavedAt: now,
		}
		for i, existing := range doc.RoleSnapshots {
			if existing.UserID == userID && existing.RestoredAt == nil {
				doc.RoleSnapshots[i] = snap
				return nil
			}
		}
		doc.RoleSnapshots = append(doc.RoleSnapshots, snap)
		return nil
	})
}

// RestoreRoleSnapshot marks the user's open snapshot as restored and returns its roles.
func (s *Store) RestoreRoleSnapshot(ctx context.Context, userID, actor string) ([]string, error) {
	now := s.now()
	var roles []string
	err := s.Update(ctx, func(doc *models.Document) error {
		for _, snap := range doc.RoleSnapshots {
			if snap.UserID == userID && snap.RestoredAt == nil {
				t := now
				snap.RestoredAt = &t
				snap.RestoredBy = actor
				roles = append([]string(nil), snap.Roles...)
				return nil
			}
		}
		return ErrNoRoleSnapshot
	})
	return roles, err
}
