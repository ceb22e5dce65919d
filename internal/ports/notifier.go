package ports

import (
	"context"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// Notifier surfaces engine activity to the operator.
type Notifier interface {
	// NotifyCycle presents the ranked opportunities and held positions
	// after a scan cycle.
	NotifyCycle(ctx context.Context, opps []domain.Opportunity, positions []domain.Position) error

	// NotifyAlert delivers a high-priority message (circuit breaker trip,
	// mode transition, true-edge find).
	NotifyAlert(ctx context.Context, title, detail string) error
}
