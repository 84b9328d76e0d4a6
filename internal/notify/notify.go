// Package notify alerts store staff about threads that need manual review.
package notify

import (
	"context"

	"github.com/xaenox/hitome/internal/models"
)

type Notifier interface {
	Notify(ctx context.Context, store *models.Store, thread *models.Thread) error
}

// Nop drops every alert
type Nop struct{}

func (Nop) Notify(context.Context, *models.Store, *models.Thread) error { return nil }
