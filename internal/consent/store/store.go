// Package store persists consent requests.
//
// Error contract:
//   - sentinel.ErrNotFound when the consent does not exist
//   - sentinel.ErrConflict when Create finds the id taken
//   - sentinel.ErrInvalidState when SetStatus is asked for an illegal edge
//   - wrapped errors for infrastructure failures
package store

import (
	"fmt"

	"hie-gateway/internal/consent/models"
	"hie-gateway/pkg/platform/sentinel"
)

// nextStatus decides a status write: same status is an unchanged no-op,
// otherwise the edge must exist.
func nextStatus(cur *models.Request, to models.Status) (changed bool, err error) {
	if cur.Status == to {
		return false, nil
	}
	if !cur.Status.CanTransitionTo(to) {
		return false, fmt.Errorf("consent %s cannot move %s -> %s: %w", cur.ID, cur.Status, to, sentinel.ErrInvalidState)
	}
	return true, nil
}
