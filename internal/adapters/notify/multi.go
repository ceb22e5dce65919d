package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Multi fans notifications out to several sinks. Errors are collected, not
// short-circuited, so a Telegram outage never silences the console.
type Multi struct {
	sinks []ports.Notifier
}

// NewMulti creates a Multi over the given sinks. Nil entries are dropped.
func NewMulti(sinks ...ports.Notifier) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) NotifyCycle(ctx context.Context, opps []domain.Opportunity, positions []domain.Position) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.NotifyCycle(ctx, opps, positions); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) NotifyAlert(ctx context.Context, title, detail string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.NotifyAlert(ctx, title, detail); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
